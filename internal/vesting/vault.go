// Package vesting releases pre-committed token allocations to beneficiaries
// over time.
//
// Each beneficiary owns an append-only list of schedules; a schedule's index
// in that list is its permanent identifier. All claims draw from one shared
// pool: the vault account's token balance.
package vesting

import (
	"context"
	"math"

	"github.com/holiman/uint256"

	"github.com/roach88/tokenledger/internal/ledger"
)

// VaultSettings is the vault's one-time configuration.
type VaultSettings struct {
	Self        ledger.Address // account holding the pool
	Initialized bool
}

// State is the repository handle the vault operates on.
type State interface {
	ledger.Emitter

	VaultSettings(ctx context.Context) (VaultSettings, error)
	SaveVaultSettings(ctx context.Context, s VaultSettings) error

	Schedules(ctx context.Context, beneficiary ledger.Address) ([]Schedule, error)
	Schedule(ctx context.Context, beneficiary ledger.Address, index uint64) (Schedule, bool, error)
	AppendSchedule(ctx context.Context, beneficiary ledger.Address, s Schedule) (uint64, error)
	SetReleased(ctx context.Context, beneficiary ledger.Address, index uint64, released *uint256.Int) error
}

// Token is the subset of the ledger the vault moves funds through.
type Token interface {
	BalanceOf(ctx context.Context, account ledger.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, caller, recipient ledger.Address, amount *uint256.Int) (ledger.TransferResult, error)
	TransferFrom(ctx context.Context, spender, sender, recipient ledger.Address, amount *uint256.Int) (ledger.TransferResult, error)
	Settings(ctx context.Context) (ledger.Settings, error)
}

// Vault is the vesting engine for a single entry point. now is the host's
// current time in unix seconds.
type Vault struct {
	state State
	token Token
	auth  ledger.Authorizer
	pause ledger.Pauser
	now   uint64
}

// NewVault creates a Vault view.
func NewVault(state State, token Token, auth ledger.Authorizer, pause ledger.Pauser, now uint64) *Vault {
	return &Vault{state: state, token: token, auth: auth, pause: pause, now: now}
}

// ScheduleParams describes a new schedule.
type ScheduleParams struct {
	Beneficiary        ledger.Address
	TotalAmount        *uint256.Int
	Start              uint64
	CliffDuration      uint64
	Duration           uint64
	SlicePeriodSeconds uint64
	CliffUnlockPercent uint64
}

// ClaimResult reports a completed claim.
type ClaimResult struct {
	Beneficiary ledger.Address
	Index       uint64
	Amount      *uint256.Int
}

// Initialize binds the vault to its pool account. Allowed once.
func (v *Vault) Initialize(ctx context.Context, caller, self ledger.Address) error {
	if err := v.auth.Authorize(ctx, caller, ledger.OpInitializeVault); err != nil {
		return err
	}
	vs, err := v.state.VaultSettings(ctx)
	if err != nil {
		return err
	}
	if vs.Initialized {
		return ledger.Errorf(ledger.ErrCodeAlreadyInitialized, "vault already initialized at %s", vs.Self)
	}
	ts, err := v.token.Settings(ctx)
	if err != nil {
		return err
	}
	if self.IsZero() || self == ts.Self {
		return ledger.Errorf(ledger.ErrCodeInvalidAddress, "vault address %q must be set and differ from the token", self)
	}
	if err := v.state.SaveVaultSettings(ctx, VaultSettings{Self: self, Initialized: true}); err != nil {
		return err
	}
	v.state.Emit(ledger.Event{Kind: "vault-initialized", Fields: map[string]any{"self": string(self)}})
	return nil
}

// AddVestingSchedule appends a schedule to the beneficiary's list and returns
// its index.
func (v *Vault) AddVestingSchedule(ctx context.Context, caller ledger.Address, p ScheduleParams) (uint64, error) {
	if err := v.auth.Authorize(ctx, caller, ledger.OpAddVestingSchedule); err != nil {
		return 0, err
	}
	if _, err := v.live(ctx); err != nil {
		return 0, err
	}
	if p.Beneficiary.IsZero() {
		return 0, ledger.Errorf(ledger.ErrCodeInvalidAddress, "beneficiary must be set")
	}
	switch {
	case p.TotalAmount == nil || p.TotalAmount.IsZero():
		return 0, ledger.Errorf(ledger.ErrCodeInvalidParameter, "total amount must be positive")
	case p.Duration == 0:
		return 0, ledger.Errorf(ledger.ErrCodeInvalidParameter, "duration must be positive")
	case p.SlicePeriodSeconds == 0:
		return 0, ledger.Errorf(ledger.ErrCodeInvalidParameter, "slice period must be positive")
	case p.CliffUnlockPercent > 100:
		return 0, ledger.Errorf(ledger.ErrCodeInvalidParameter, "cliff unlock percent %d exceeds 100", p.CliffUnlockPercent)
	case p.Start > math.MaxInt64 || p.Duration > math.MaxInt64 ||
		p.CliffDuration > math.MaxInt64 || p.SlicePeriodSeconds > math.MaxInt64:
		return 0, ledger.Errorf(ledger.ErrCodeInvalidParameter, "schedule times must not exceed %d", int64(math.MaxInt64))
	case p.Start > math.MaxInt64-p.Duration || p.Start > math.MaxInt64-p.CliffDuration:
		return 0, ledger.Errorf(ledger.ErrCodeInvalidParameter, "schedule end overflows")
	}

	s := Schedule{
		Initialized:        true,
		TotalAmount:        p.TotalAmount.Clone(),
		Released:           new(uint256.Int),
		Start:              p.Start,
		Cliff:              p.Start + p.CliffDuration,
		Duration:           p.Duration,
		SlicePeriodSeconds: p.SlicePeriodSeconds,
		CliffUnlockPercent: p.CliffUnlockPercent,
	}
	index, err := v.state.AppendSchedule(ctx, p.Beneficiary, s)
	if err != nil {
		return 0, err
	}
	v.state.Emit(ledger.Event{Kind: "schedule-created", Fields: map[string]any{
		"beneficiary":          string(p.Beneficiary),
		"index":                int64(index),
		"total_amount":         s.TotalAmount.Dec(),
		"start":                int64(s.Start),
		"cliff":                int64(s.Cliff),
		"duration":             int64(s.Duration),
		"slice_period_seconds": int64(s.SlicePeriodSeconds),
		"cliff_unlock_percent": int64(s.CliffUnlockPercent),
	}})
	return index, nil
}

// Claim releases the vested amount of the caller's own schedule.
func (v *Vault) Claim(ctx context.Context, caller ledger.Address, index uint64) (ClaimResult, error) {
	return v.claim(ctx, caller, caller, index)
}

// ClaimFor releases a beneficiary's vested amount. Anyone may call it; funds
// always go to the beneficiary.
func (v *Vault) ClaimFor(ctx context.Context, caller, beneficiary ledger.Address, index uint64) (ClaimResult, error) {
	return v.claim(ctx, caller, beneficiary, index)
}

func (v *Vault) claim(ctx context.Context, caller, beneficiary ledger.Address, index uint64) (ClaimResult, error) {
	if paused, err := v.pause.Paused(ctx, ledger.ScopeClaims); err != nil {
		return ClaimResult{}, err
	} else if paused {
		return ClaimResult{}, ledger.Errorf(ledger.ErrCodePaused, "claims are paused")
	}
	vs, err := v.live(ctx)
	if err != nil {
		return ClaimResult{}, err
	}
	if beneficiary.IsZero() {
		return ClaimResult{}, ledger.Errorf(ledger.ErrCodeInvalidAddress, "beneficiary must be set")
	}

	s, ok, err := v.state.Schedule(ctx, beneficiary, index)
	if err != nil {
		return ClaimResult{}, err
	}
	if !ok || !s.Initialized {
		return ClaimResult{}, ledger.Errorf(ledger.ErrCodeScheduleNotFound, "no schedule %d for %s", index, beneficiary)
	}

	releasable := ComputeReleasable(s, v.now)
	if releasable.IsZero() {
		return ClaimResult{}, ledger.Errorf(ledger.ErrCodeNothingToRelease, "schedule %d of %s has nothing releasable at %d", index, beneficiary, v.now)
	}
	pool, err := v.token.BalanceOf(ctx, vs.Self)
	if err != nil {
		return ClaimResult{}, err
	}
	if pool.Lt(releasable) {
		return ClaimResult{}, ledger.Errorf(ledger.ErrCodePoolInsufficient, "pool %s cannot cover %s", pool.Dec(), releasable.Dec())
	}

	released := new(uint256.Int).Add(s.Released, releasable)
	if err := v.state.SetReleased(ctx, beneficiary, index, released); err != nil {
		return ClaimResult{}, err
	}
	if _, err := v.token.Transfer(ctx, vs.Self, beneficiary, releasable); err != nil {
		return ClaimResult{}, err
	}
	v.state.Emit(ledger.Event{Kind: "tokens-claimed", Fields: map[string]any{
		"beneficiary": string(beneficiary),
		"caller":      string(caller),
		"index":       int64(index),
		"amount":      releasable.Dec(),
	}})
	return ClaimResult{Beneficiary: beneficiary, Index: index, Amount: releasable}, nil
}

// DepositTokens pulls amount from caller into the pool. The caller must have
// approved the vault account beforehand. It returns the amount credited to
// the pool, which is less than amount if the transfer burned.
func (v *Vault) DepositTokens(ctx context.Context, caller ledger.Address, amount *uint256.Int) (*uint256.Int, error) {
	vs, err := v.live(ctx)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, ledger.Errorf(ledger.ErrCodeInvalidParameter, "amount must be positive")
	}
	before, err := v.token.BalanceOf(ctx, vs.Self)
	if err != nil {
		return nil, err
	}
	if _, err := v.token.TransferFrom(ctx, vs.Self, caller, vs.Self, amount); err != nil {
		return nil, err
	}
	after, err := v.token.BalanceOf(ctx, vs.Self)
	if err != nil {
		return nil, err
	}
	credited := new(uint256.Int).Sub(after, before)
	v.state.Emit(ledger.Event{Kind: "tokens-deposited", Fields: map[string]any{
		"from":     string(caller),
		"amount":   amount.Dec(),
		"credited": credited.Dec(),
	}})
	return credited, nil
}

// AdminWithdraw moves amount out of the pool in an emergency.
func (v *Vault) AdminWithdraw(ctx context.Context, caller, to ledger.Address, amount *uint256.Int) error {
	if err := v.auth.Authorize(ctx, caller, ledger.OpAdminWithdraw); err != nil {
		return err
	}
	vs, err := v.live(ctx)
	if err != nil {
		return err
	}
	if to.IsZero() {
		return ledger.Errorf(ledger.ErrCodeInvalidAddress, "recipient must be set")
	}
	if amount.IsZero() {
		return ledger.Errorf(ledger.ErrCodeInvalidParameter, "amount must be positive")
	}
	pool, err := v.token.BalanceOf(ctx, vs.Self)
	if err != nil {
		return err
	}
	if pool.Lt(amount) {
		return ledger.Errorf(ledger.ErrCodePoolInsufficient, "pool %s cannot cover %s", pool.Dec(), amount.Dec())
	}
	if _, err := v.token.Transfer(ctx, vs.Self, to, amount); err != nil {
		return err
	}
	v.state.Emit(ledger.Event{Kind: "admin-withdrawal", Fields: map[string]any{
		"admin":  string(caller),
		"to":     string(to),
		"amount": amount.Dec(),
	}})
	return nil
}

func (v *Vault) live(ctx context.Context) (VaultSettings, error) {
	vs, err := v.state.VaultSettings(ctx)
	if err != nil {
		return VaultSettings{}, err
	}
	if !vs.Initialized {
		return VaultSettings{}, ledger.Errorf(ledger.ErrCodeNotInitialized, "vault not initialized")
	}
	return vs, nil
}
