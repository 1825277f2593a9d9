package vesting_test

import (
	"context"
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tokenledger/internal/access"
	"github.com/roach88/tokenledger/internal/ledger"
	"github.com/roach88/tokenledger/internal/testutil"
	"github.com/roach88/tokenledger/internal/vesting"
)

type harness struct {
	ctx   context.Context
	state *testutil.State
	roles *access.Roles
	token *ledger.Token
}

// setup initializes a token owned by admin and a vault at account "vault"
// holding pool units, with treasury and vault exempt from burns.
func setup(t *testing.T, pool uint64) *harness {
	t.Helper()
	ctx := context.Background()
	st := testutil.NewState(t)
	roles := access.New(st)
	tok := ledger.New(st, roles, roles)
	h := &harness{ctx: ctx, state: st, roles: roles, token: tok}

	require.NoError(t, tok.Initialize(ctx, "deployer", ledger.InitParams{
		Self:        "token",
		Holder:      "treasury",
		Reserve:     "reserve",
		Supply:      ledger.Tokens(1_000_000),
		BurnRateBps: 300,
	}))
	require.NoError(t, tok.AssignOwner(ctx, "deployer", "admin"))
	require.NoError(t, tok.SetExemptFromBurn(ctx, "admin", "treasury", true))
	require.NoError(t, tok.SetExemptFromBurn(ctx, "admin", "vault", true))
	require.NoError(t, h.vault(0).Initialize(ctx, "admin", "vault"))
	if pool > 0 {
		_, err := tok.Transfer(ctx, "treasury", "vault", uint256.NewInt(pool))
		require.NoError(t, err)
	}
	st.Reset()
	return h
}

func (h *harness) vault(now uint64) *vesting.Vault {
	return vesting.NewVault(h.state, h.token, h.roles, h.roles, now)
}

func exampleParams(beneficiary ledger.Address) vesting.ScheduleParams {
	return vesting.ScheduleParams{
		Beneficiary:        beneficiary,
		TotalAmount:        uint256.NewInt(1200),
		Start:              0,
		CliffDuration:      300,
		Duration:           1200,
		SlicePeriodSeconds: 100,
		CliffUnlockPercent: 25,
	}
}

func (h *harness) balance(t *testing.T, account ledger.Address) uint64 {
	t.Helper()
	bal, err := h.token.BalanceOf(h.ctx, account)
	require.NoError(t, err)
	return bal.Uint64()
}

func TestVault_Initialize(t *testing.T) {
	h := setup(t, 0)

	err := h.vault(0).Initialize(h.ctx, "admin", "vault2")
	require.ErrorIs(t, err, ledger.ErrAlreadyInitialized)

	// A fresh store to exercise the address checks.
	st := testutil.NewState(t)
	roles := access.New(st)
	tok := ledger.New(st, roles, roles)
	require.NoError(t, tok.Initialize(h.ctx, "deployer", ledger.InitParams{Self: "token", Holder: "t", Reserve: "r"}))
	require.NoError(t, tok.AssignOwner(h.ctx, "deployer", "admin"))
	v := vesting.NewVault(st, tok, roles, roles, 0)

	require.ErrorIs(t, v.Initialize(h.ctx, "mallory", "vault"), ledger.ErrUnauthorized)
	require.ErrorIs(t, v.Initialize(h.ctx, "admin", "token"), ledger.ErrInvalidAddress)
	require.ErrorIs(t, v.Initialize(h.ctx, "admin", ""), ledger.ErrInvalidAddress)

	_, err = v.AddVestingSchedule(h.ctx, "admin", exampleParams("bob"))
	require.ErrorIs(t, err, ledger.ErrNotInitialized)
}

func TestAddVestingSchedule_Validation(t *testing.T) {
	h := setup(t, 0)
	v := h.vault(0)

	mutate := func(f func(*vesting.ScheduleParams)) vesting.ScheduleParams {
		p := exampleParams("bob")
		f(&p)
		return p
	}
	tests := []struct {
		name   string
		caller ledger.Address
		params vesting.ScheduleParams
		want   error
	}{
		{"not admin", "bob", exampleParams("bob"), ledger.ErrUnauthorized},
		{"zero beneficiary", "admin", exampleParams(""), ledger.ErrInvalidAddress},
		{"zero duration", "admin", mutate(func(p *vesting.ScheduleParams) { p.Duration = 0 }), ledger.ErrInvalidParameter},
		{"zero slice", "admin", mutate(func(p *vesting.ScheduleParams) { p.SlicePeriodSeconds = 0 }), ledger.ErrInvalidParameter},
		{"percent over 100", "admin", mutate(func(p *vesting.ScheduleParams) { p.CliffUnlockPercent = 101 }), ledger.ErrInvalidParameter},
		{"zero total", "admin", mutate(func(p *vesting.ScheduleParams) { p.TotalAmount = new(uint256.Int) }), ledger.ErrInvalidParameter},
		{"end overflows", "admin", mutate(func(p *vesting.ScheduleParams) { p.Start = math.MaxInt64 }), ledger.ErrInvalidParameter},
		{"duration wraps end", "admin", mutate(func(p *vesting.ScheduleParams) {
			p.Start = math.MaxInt64 - 10
			p.Duration = math.MaxUint64
		}), ledger.ErrInvalidParameter},
		{"cliff beyond int64", "admin", mutate(func(p *vesting.ScheduleParams) { p.CliffDuration = math.MaxUint64 }), ledger.ErrInvalidParameter},
		{"slice beyond int64", "admin", mutate(func(p *vesting.ScheduleParams) { p.SlicePeriodSeconds = math.MaxInt64 + 1 }), ledger.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.AddVestingSchedule(h.ctx, tt.caller, tt.params)
			require.ErrorIs(t, err, tt.want)
		})
	}

	n, err := v.ScheduleCount(h.ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddVestingSchedule_MaxTotalVestsMonotonically(t *testing.T) {
	h := setup(t, 0)
	p := exampleParams("bob")
	p.TotalAmount = new(uint256.Int).SetAllOne()
	p.CliffDuration = 0
	p.CliffUnlockPercent = 33
	p.Duration = 1000
	p.SlicePeriodSeconds = 1

	index, err := h.vault(0).AddVestingSchedule(h.ctx, "admin", p)
	require.NoError(t, err)

	prev := new(uint256.Int)
	for now := uint64(0); now <= 1000; now++ {
		cur, err := h.vault(now).ReleasableAmount(h.ctx, "bob", index)
		require.NoError(t, err)
		require.False(t, cur.Lt(prev), "releasable decreased at %d", now)
		prev = cur
	}
	assert.True(t, prev.Eq(p.TotalAmount))
}

func TestAddVestingSchedule_AppendOnlyIndexes(t *testing.T) {
	h := setup(t, 0)
	v := h.vault(0)

	for want := uint64(0); want < 3; want++ {
		idx, err := v.AddVestingSchedule(h.ctx, "admin", exampleParams("bob"))
		require.NoError(t, err)
		assert.Equal(t, want, idx)
	}
	idx, err := v.AddVestingSchedule(h.ctx, "admin", exampleParams("carol"))
	require.NoError(t, err)
	assert.Zero(t, idx, "indexes are per beneficiary")

	ev := h.state.Events[0]
	assert.Equal(t, "schedule-created", ev.Kind)
	assert.Equal(t, int64(300), ev.Fields["cliff"])
	assert.Equal(t, "1200", ev.Fields["total_amount"])

	locked, err := v.TotalLocked(h.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(3600), locked.Uint64())
}

func TestClaim_Example(t *testing.T) {
	h := setup(t, 1200)
	_, err := h.vault(0).AddVestingSchedule(h.ctx, "admin", exampleParams("bob"))
	require.NoError(t, err)

	_, err = h.vault(299).Claim(h.ctx, "bob", 0)
	require.ErrorIs(t, err, ledger.ErrNothingToRelease)

	res, err := h.vault(300).Claim(h.ctx, "bob", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), res.Amount.Uint64())

	_, err = h.vault(300).Claim(h.ctx, "bob", 0)
	require.ErrorIs(t, err, ledger.ErrNothingToRelease, "no double pay")

	res, err = h.vault(500).Claim(h.ctx, "bob", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), res.Amount.Uint64())

	res, err = h.vault(1500).Claim(h.ctx, "bob", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), res.Amount.Uint64())

	assert.Equal(t, uint64(1200), h.balance(t, "bob"))
	pool, err := h.vault(1500).PoolBalance(h.ctx)
	require.NoError(t, err)
	assert.True(t, pool.IsZero())
}

func TestClaim_ScheduleIndependence(t *testing.T) {
	h := setup(t, 2400)
	v := h.vault(0)
	_, err := v.AddVestingSchedule(h.ctx, "admin", exampleParams("bob"))
	require.NoError(t, err)
	_, err = v.AddVestingSchedule(h.ctx, "admin", exampleParams("bob"))
	require.NoError(t, err)

	_, err = h.vault(600).Claim(h.ctx, "bob", 1)
	require.NoError(t, err)

	schedules, releasable, err := h.vault(600).VestingInfo(h.ctx, "bob")
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	assert.True(t, schedules[0].Released.IsZero(), "claiming index 1 leaves index 0 alone")
	assert.Equal(t, uint64(600), schedules[1].Released.Uint64())
	assert.Equal(t, uint64(600), releasable[0].Uint64())
	assert.True(t, releasable[1].IsZero())
}

func TestClaim_Rejections(t *testing.T) {
	h := setup(t, 100)
	_, err := h.vault(0).AddVestingSchedule(h.ctx, "admin", exampleParams("bob"))
	require.NoError(t, err)

	_, err = h.vault(500).Claim(h.ctx, "bob", 7)
	assert.ErrorIs(t, err, ledger.ErrScheduleNotFound)

	_, err = h.vault(500).ClaimFor(h.ctx, "anyone", "", 0)
	assert.ErrorIs(t, err, ledger.ErrInvalidAddress)

	_, err = h.vault(500).Claim(h.ctx, "bob", 0)
	assert.ErrorIs(t, err, ledger.ErrPoolInsufficient, "pool of 100 cannot cover 500")

	require.NoError(t, h.token.SetPaused(h.ctx, "admin", ledger.ScopeClaims, true))
	_, err = h.vault(500).Claim(h.ctx, "bob", 0)
	assert.ErrorIs(t, err, ledger.ErrPaused)

	info, err := h.vault(500).ReleasableAmount(h.ctx, "bob", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), info.Uint64(), "failed claims release nothing")
}

func TestClaimFor_PaysBeneficiary(t *testing.T) {
	h := setup(t, 1200)
	_, err := h.vault(0).AddVestingSchedule(h.ctx, "admin", exampleParams("bob"))
	require.NoError(t, err)
	h.state.Reset()

	res, err := h.vault(400).ClaimFor(h.ctx, "keeper", "bob", 0)
	require.NoError(t, err)
	assert.Equal(t, ledger.Address("bob"), res.Beneficiary)
	assert.Equal(t, uint64(400), h.balance(t, "bob"))
	assert.Zero(t, h.balance(t, "keeper"))

	assert.Equal(t, []string{"transfer", "tokens-claimed"}, h.state.Kinds())
	assert.Equal(t, "keeper", h.state.Events[1].Fields["caller"])
}

func TestDepositTokens(t *testing.T) {
	h := setup(t, 0)
	v := h.vault(0)
	_, err := h.token.Transfer(h.ctx, "treasury", "alice", ledger.Tokens(10_000))
	require.NoError(t, err)

	_, err = v.DepositTokens(h.ctx, "alice", ledger.Tokens(1_000))
	require.ErrorIs(t, err, ledger.ErrInsufficientAllowance)

	require.NoError(t, h.token.Approve(h.ctx, "alice", "vault", ledger.Tokens(1_000)))
	credited, err := v.DepositTokens(h.ctx, "alice", ledger.Tokens(1_000))
	require.NoError(t, err)
	assert.True(t, credited.Eq(ledger.Tokens(1_000)), "vault is exempt, so nothing burns")

	pool, err := v.PoolBalance(h.ctx)
	require.NoError(t, err)
	assert.True(t, pool.Eq(ledger.Tokens(1_000)))
}

func TestDepositTokens_BurnsWhenVaultNotExempt(t *testing.T) {
	h := setup(t, 0)
	require.NoError(t, h.token.SetExemptFromBurn(h.ctx, "admin", "vault", false))
	_, err := h.token.Transfer(h.ctx, "treasury", "alice", ledger.Tokens(10_000))
	require.NoError(t, err)
	require.NoError(t, h.token.Approve(h.ctx, "alice", "vault", ledger.Tokens(1_000)))

	credited, err := h.vault(0).DepositTokens(h.ctx, "alice", ledger.Tokens(1_000))
	require.NoError(t, err)
	assert.True(t, credited.Eq(ledger.Tokens(970)), "credited is the pool delta after the burn split")
}

func TestAdminWithdraw(t *testing.T) {
	h := setup(t, 1000)
	v := h.vault(0)

	require.ErrorIs(t, v.AdminWithdraw(h.ctx, "bob", "bob", uint256.NewInt(1)), ledger.ErrUnauthorized)
	require.ErrorIs(t, v.AdminWithdraw(h.ctx, "admin", "", uint256.NewInt(1)), ledger.ErrInvalidAddress)
	require.ErrorIs(t, v.AdminWithdraw(h.ctx, "admin", "safe", uint256.NewInt(1001)), ledger.ErrPoolInsufficient)

	require.NoError(t, v.AdminWithdraw(h.ctx, "admin", "safe", uint256.NewInt(400)))
	assert.Equal(t, uint64(400), h.balance(t, "safe"))
	assert.Equal(t, uint64(600), h.balance(t, "vault"))
}

func TestVault_Queries(t *testing.T) {
	h := setup(t, 5000)
	v := h.vault(300)

	_, err := v.AddVestingSchedule(h.ctx, "admin", exampleParams("bob"))
	require.NoError(t, err)
	short := vesting.ScheduleParams{
		Beneficiary:        "bob",
		TotalAmount:        uint256.NewInt(800),
		Duration:           100,
		SlicePeriodSeconds: 1,
	}
	_, err = v.AddVestingSchedule(h.ctx, "admin", short)
	require.NoError(t, err)

	res, err := v.Claim(h.ctx, "bob", 0)
	require.NoError(t, err)
	require.Equal(t, uint64(300), res.Amount.Uint64())

	schedules, releasable, err := v.VestingInfo(h.ctx, "bob")
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	assert.Equal(t, uint64(300), schedules[0].Released.Uint64())
	assert.Equal(t, []uint64{0, 800}, []uint64{releasable[0].Uint64(), releasable[1].Uint64()})

	amount, err := v.ReleasableAmount(h.ctx, "bob", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(800), amount.Uint64())
	_, err = v.ReleasableAmount(h.ctx, "bob", 2)
	require.ErrorIs(t, err, ledger.ErrScheduleNotFound)

	locked, err := v.TotalLocked(h.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(900+800), locked.Uint64())

	pool, err := v.PoolBalance(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4700), pool.Uint64())

	count, err := v.ScheduleCount(h.ctx, "carol")
	require.NoError(t, err)
	assert.Zero(t, count)
	none, err := v.TotalLocked(h.ctx, "carol")
	require.NoError(t, err)
	assert.True(t, none.IsZero())
}
