package engine_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tokenledger/internal/engine"
	"github.com/roach88/tokenledger/internal/ledger"
	"github.com/roach88/tokenledger/internal/store"
	"github.com/roach88/tokenledger/internal/testutil"
)

const genesisSupply = 3_000_000_000

type fixture struct {
	eng   *engine.Engine
	store *store.Store
	clock *testutil.ManualTime
}

func newFixture(t *testing.T, opts ...engine.Option) *fixture {
	t.Helper()
	return newFixtureOn(t, testutil.OpenStore(t), opts...)
}

func newFixtureOn(t *testing.T, s *store.Store, opts ...engine.Option) *fixture {
	t.Helper()
	clock := testutil.NewManualTime(1_000)
	opts = append([]engine.Option{
		engine.WithTimeSource(clock),
		engine.WithFlowTokens(testutil.NewFixedFlowGenerator("")),
	}, opts...)
	eng, err := engine.New(context.Background(), s, opts...)
	require.NoError(t, err)
	return &fixture{eng: eng, store: s, clock: clock}
}

func (f *fixture) exec(t *testing.T, op, caller string, args map[string]string) engine.Receipt {
	t.Helper()
	r, err := f.eng.Execute(context.Background(), engine.Call{Op: op, Caller: caller, Args: args})
	require.NoError(t, err, "%s by %s", op, caller)
	return r
}

func (f *fixture) execAt(t *testing.T, at uint64, op, caller string, args map[string]string) (engine.Receipt, error) {
	t.Helper()
	return f.eng.Execute(context.Background(), engine.Call{Op: op, Caller: caller, Args: args, Time: &at})
}

func (f *fixture) reject(t *testing.T, op, caller string, args map[string]string) ledger.Code {
	t.Helper()
	r, err := f.eng.Execute(context.Background(), engine.Call{Op: op, Caller: caller, Args: args})
	require.Error(t, err, "%s by %s", op, caller)
	require.NotEmpty(t, r.ErrorCode, "expected a ledger rejection, got %v", err)
	return r.ErrorCode
}

func (f *fixture) query(t *testing.T, op string, args map[string]string) map[string]any {
	t.Helper()
	out, err := f.eng.Query(context.Background(), engine.Call{Op: op, Args: args})
	require.NoError(t, err, op)
	return out
}

func (f *fixture) balance(t *testing.T, account string) string {
	t.Helper()
	return f.query(t, "balance-of", map[string]string{"account": account})["balance"].(string)
}

// bootstrap initializes the token with treasury exempt from burns.
func (f *fixture) bootstrap(t *testing.T) {
	t.Helper()
	f.exec(t, "initialize", "deployer", map[string]string{
		"self":          "token",
		"holder":        "treasury",
		"reserve":       "reserve",
		"supply":        tok(genesisSupply),
		"burn_rate_bps": "300",
	})
	f.exec(t, "assign-owner", "deployer", map[string]string{"owner": "admin"})
	f.exec(t, "set-exempt-from-burn", "admin", map[string]string{"account": "treasury", "exempt": "true"})
}

func tok(n uint64) string {
	return ledger.Tokens(n).Dec()
}

func TestExecute_TransferBurnSplit(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)
	f.exec(t, "transfer", "treasury", map[string]string{"recipient": "alice", "amount": tok(10_000)})

	r := f.exec(t, "transfer", "alice", map[string]string{"recipient": "bob", "amount": tok(1_000)})

	assert.Equal(t, tok(970), r.Result["sent"])
	assert.Equal(t, tok(15), r.Result["burned"])
	assert.Equal(t, tok(15), r.Result["reserved"])
	assert.Equal(t, int64(300), r.Result["rate_bps"])

	kinds := make([]string, len(r.Events))
	for i, ev := range r.Events {
		kinds[i] = ev.Kind
		assert.Equal(t, r.Seq, ev.Seq)
		assert.Equal(t, i, ev.Index)
	}
	assert.Equal(t, []string{"burn", "transfer", "transfer"}, kinds)

	assert.Equal(t, tok(9_000), f.balance(t, "alice"))
	assert.Equal(t, tok(970), f.balance(t, "bob"))
	assert.Equal(t, tok(15), f.balance(t, "reserve"))

	want := new(uint256.Int).Sub(ledger.Tokens(genesisSupply), ledger.Tokens(15))
	assert.Equal(t, want.Dec(), f.query(t, "total-supply", nil)["total_supply"])
	require.NoError(t, f.store.CheckSupply(context.Background()))
}

func TestExecute_ThresholdSkip(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)
	f.exec(t, "transfer", "treasury", map[string]string{"recipient": "alice", "amount": tok(1_000)})

	// Threshold is max(1000*0.5%, 100) = 100 tokens.
	r := f.exec(t, "transfer", "alice", map[string]string{"recipient": "bob", "amount": tok(50)})

	assert.Equal(t, tok(50), r.Result["sent"])
	assert.Equal(t, "0", r.Result["burned"])
	assert.Equal(t, tok(950), f.balance(t, "alice"))
	assert.Equal(t, tok(50), f.balance(t, "bob"))
}

func TestExecute_RejectionIsRecordedWithoutEffects(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)
	ctx := context.Background()

	before, err := f.store.Digest(ctx)
	require.NoError(t, err)
	eventsBefore, err := f.store.ReadEvents(ctx, store.EventFilter{})
	require.NoError(t, err)

	code := f.reject(t, "transfer", "alice", map[string]string{"recipient": "bob", "amount": "1"})
	assert.Equal(t, ledger.ErrCodeInsufficientBalance, code)

	after, err := f.store.Digest(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	eventsAfter, err := f.store.ReadEvents(ctx, store.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, eventsAfter, len(eventsBefore))

	calls, err := f.store.ReadCalls(ctx)
	require.NoError(t, err)
	last := calls[len(calls)-1]
	assert.Equal(t, "transfer", last.Op)
	assert.Equal(t, "error", last.Outcome)
	assert.Equal(t, "INSUFFICIENT_BALANCE", last.ErrorCode)
}

func TestExecute_MidOperationFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)
	setupVesting(t, f)

	// Claims are open but the payout transfer is paused: the released counter
	// is written before the transfer fails and must not survive.
	f.exec(t, "set-paused", "admin", map[string]string{"scope": "transfers", "paused": "true"})

	_, err := f.execAt(t, 500, "claim", "bob", map[string]string{"index": "0"})
	require.ErrorIs(t, err, ledger.ErrPaused)

	info := f.query(t, "get-vesting-info", map[string]string{"beneficiary": "bob"})
	schedules := info["schedules"].([]map[string]any)
	require.Len(t, schedules, 1)
	assert.Equal(t, "0", schedules[0]["released"])
	assert.Equal(t, "1200", f.query(t, "get-pool-balance", nil)["pool_balance"])
}

func setupVesting(t *testing.T, f *fixture) {
	t.Helper()
	f.exec(t, "initialize-vault", "admin", map[string]string{"self": "vault"})
	f.exec(t, "set-exempt-from-burn", "admin", map[string]string{"account": "vault", "exempt": "true"})
	f.exec(t, "transfer", "treasury", map[string]string{"recipient": "vault", "amount": "1200"})
	r := f.exec(t, "add-vesting-schedule", "admin", map[string]string{
		"beneficiary":          "bob",
		"total_amount":         "1200",
		"start":                "0",
		"cliff_duration":       "300",
		"duration":             "1200",
		"slice_period_seconds": "100",
		"cliff_unlock_percent": "25",
	})
	require.Equal(t, int64(0), r.Result["index"])
}

func TestExecute_VestingClaims(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)
	setupVesting(t, f)

	_, err := f.execAt(t, 299, "claim", "bob", map[string]string{"index": "0"})
	require.ErrorIs(t, err, ledger.ErrNothingToRelease)

	r, err := f.execAt(t, 300, "claim", "bob", map[string]string{"index": "0"})
	require.NoError(t, err)
	assert.Equal(t, "300", r.Result["amount"])

	_, err = f.execAt(t, 300, "claim", "bob", map[string]string{"index": "0"})
	require.ErrorIs(t, err, ledger.ErrNothingToRelease, "no double pay")

	r, err = f.execAt(t, 500, "claim-for", "carol", map[string]string{"beneficiary": "bob", "index": "0"})
	require.NoError(t, err)
	assert.Equal(t, "200", r.Result["amount"])

	r, err = f.execAt(t, 1_500, "claim", "bob", map[string]string{"index": "0"})
	require.NoError(t, err)
	assert.Equal(t, "700", r.Result["amount"])

	assert.Equal(t, "1200", f.balance(t, "bob"))
	assert.Equal(t, "0", f.balance(t, "carol"), "claim-for pays the beneficiary")
	assert.Equal(t, "0", f.query(t, "get-pool-balance", nil)["pool_balance"])
	assert.Equal(t, "0", f.query(t, "get-total-locked", map[string]string{"beneficiary": "bob"})["total_locked"])
}

func TestExecute_UnknownOp(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.Execute(context.Background(), engine.Call{Op: "mint", Caller: "x"})
	require.Error(t, err)
	assert.True(t, engine.IsUnknownOp(err))

	last, err := f.store.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Zero(t, last, "unknown ops are not recorded")
}

func TestExecute_ModeMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.Execute(ctx, engine.Call{Op: "balance-of", Args: map[string]string{"account": "a"}})
	var re *engine.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, engine.ErrCodeWrongMode, re.Code)

	_, err = f.eng.Query(ctx, engine.Call{Op: "transfer"})
	require.ErrorAs(t, err, &re)
	assert.Equal(t, engine.ErrCodeWrongMode, re.Code)
}

func TestExecute_MissingArgument(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)

	code := f.reject(t, "transfer", "treasury", map[string]string{"recipient": "bob"})
	assert.Equal(t, ledger.ErrCodeInvalidParameter, code)

	code = f.reject(t, "set-burn-rate", "admin", map[string]string{"bps": "lots"})
	assert.Equal(t, ledger.ErrCodeInvalidParameter, code)
}

func TestQuery_DoesNotRecord(t *testing.T) {
	f := newFixture(t)
	f.bootstrap(t)
	ctx := context.Background()

	before, err := f.store.LastSeq(ctx)
	require.NoError(t, err)
	f.query(t, "quote-transfer", map[string]string{"sender": "treasury", "recipient": "bob", "amount": "5"})
	f.query(t, "settings", nil)
	after, err := f.store.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	r := f.exec(t, "sync-burn-rate", "anyone", nil)
	assert.Equal(t, after+1, r.Seq, "queries do not consume seq")
}

func TestNew_ClockResumesFromStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s1, err := store.Open(path)
	require.NoError(t, err)
	f1 := newFixtureOn(t, s1)
	f1.bootstrap(t)
	require.NoError(t, s1.Close())

	s2, err := store.Open(path)
	require.NoError(t, err)
	defer s2.Close()
	f2 := newFixtureOn(t, s2)

	r := f2.exec(t, "transfer", "treasury", map[string]string{"recipient": "alice", "amount": "1"})
	assert.Equal(t, int64(4), r.Seq)

	calls, err := s2.ReadCalls(ctx)
	require.NoError(t, err)
	assert.Len(t, calls, 4)
}

func TestExecute_CallIDsAreDeterministic(t *testing.T) {
	a := newFixture(t)
	b := newFixture(t)
	a.bootstrap(t)
	b.bootstrap(t)

	ra := a.exec(t, "transfer", "treasury", map[string]string{"recipient": "alice", "amount": tok(5)})
	rb := b.exec(t, "transfer", "treasury", map[string]string{"recipient": "alice", "amount": tok(5)})
	assert.Equal(t, ra.CallID, rb.CallID)
	require.Len(t, ra.Events, 1)
	assert.Equal(t, ra.Events[0].ID, rb.Events[0].ID)
}

func TestOps_Partition(t *testing.T) {
	mutating := engine.Ops(false)
	queries := engine.Ops(true)

	assert.Contains(t, mutating, "transfer")
	assert.Contains(t, mutating, "claim-for")
	assert.Contains(t, queries, "get-vesting-info")
	for _, q := range queries {
		assert.NotContains(t, mutating, q)
	}
}
