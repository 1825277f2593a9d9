package ledger

import (
	"context"

	"github.com/holiman/uint256"
)

// SetBurnRate sets the global burn rate. Dynamic mode, when enabled,
// overwrites it on the next qualifying transfer.
func (t *Token) SetBurnRate(ctx context.Context, caller Address, bps uint64) error {
	s, err := t.admin(ctx, caller, OpSetBurnRate)
	if err != nil {
		return err
	}
	if bps > MaxBurnRateBps {
		return Errorf(ErrCodeInvalidParameter, "burn rate %d exceeds %d bps", bps, MaxBurnRateBps)
	}
	return t.updateRate(ctx, s, bps, "manual")
}

// SetReserveBurnAddress changes the account that receives the reserved half
// of every burn split.
func (t *Token) SetReserveBurnAddress(ctx context.Context, caller, reserve Address) error {
	s, err := t.admin(ctx, caller, OpSetReserveAddress)
	if err != nil {
		return err
	}
	if reserve.IsZero() || reserve == s.Self {
		return Errorf(ErrCodeInvalidAddress, "reserve address %q must be set and differ from self", reserve)
	}
	old := s.Reserve
	s.Reserve = reserve
	if err := t.state.SaveSettings(ctx, s); err != nil {
		return err
	}
	t.state.Emit(Event{Kind: "reserve-address-changed", Fields: map[string]any{
		"old": string(old),
		"new": string(reserve),
	}})
	return nil
}

// SetExemptFromBurn flags or unflags account in the exemption registry.
func (t *Token) SetExemptFromBurn(ctx context.Context, caller, account Address, exempt bool) error {
	if _, err := t.admin(ctx, caller, OpSetExemptFromBurn); err != nil {
		return err
	}
	if account.IsZero() {
		return Errorf(ErrCodeInvalidAddress, "account must be set")
	}
	if err := t.state.SetExempt(ctx, account, exempt); err != nil {
		return err
	}
	t.state.Emit(Event{Kind: "exemption-changed", Fields: map[string]any{
		"account": string(account),
		"exempt":  exempt,
	}})
	return nil
}

// SetDynamicBurnEnabled toggles tiered rate recomputation.
func (t *Token) SetDynamicBurnEnabled(ctx context.Context, caller Address, enabled bool) error {
	s, err := t.admin(ctx, caller, OpSetDynamicBurn)
	if err != nil {
		return err
	}
	s.DynamicBurn = enabled
	if err := t.state.SaveSettings(ctx, s); err != nil {
		return err
	}
	t.state.Emit(Event{Kind: "dynamic-burn-changed", Fields: map[string]any{"enabled": enabled}})
	return nil
}

// SetApprovedPlatform registers or removes a platform allowed to burn fees.
func (t *Token) SetApprovedPlatform(ctx context.Context, caller, platform Address, approved bool) error {
	return t.setApproved(ctx, caller, OpSetApprovedPlatform, RolePlatform, platform, approved, "platform-approval-changed")
}

// SetApprovedNFTContract registers or removes an NFT contract allowed to burn
// from user balances.
func (t *Token) SetApprovedNFTContract(ctx context.Context, caller, contract Address, approved bool) error {
	return t.setApproved(ctx, caller, OpSetApprovedNFT, RoleNFTContract, contract, approved, "nft-approval-changed")
}

func (t *Token) setApproved(ctx context.Context, caller Address, op Operation, role Role, account Address, approved bool, kind string) error {
	if _, err := t.admin(ctx, caller, op); err != nil {
		return err
	}
	if account.IsZero() {
		return Errorf(ErrCodeInvalidAddress, "account must be set")
	}
	if err := t.state.SetApproved(ctx, role, account, approved); err != nil {
		return err
	}
	t.state.Emit(Event{Kind: kind, Fields: map[string]any{
		"account":  string(account),
		"approved": approved,
	}})
	return nil
}

// SetPaused halts or resumes a scope.
func (t *Token) SetPaused(ctx context.Context, caller Address, scope Scope, paused bool) error {
	if _, err := t.admin(ctx, caller, OpSetPaused); err != nil {
		return err
	}
	if scope != ScopeTransfers && scope != ScopeClaims {
		return Errorf(ErrCodeInvalidParameter, "unknown pause scope %q", scope)
	}
	if err := t.state.SetPaused(ctx, scope, paused); err != nil {
		return err
	}
	t.state.Emit(Event{Kind: "pause-changed", Fields: map[string]any{
		"scope":  string(scope),
		"paused": paused,
	}})
	return nil
}

// BalanceOf returns the balance of account, zero if it has never held tokens.
func (t *Token) BalanceOf(ctx context.Context, account Address) (*uint256.Int, error) {
	return t.state.Balance(ctx, account)
}

// TotalSupply is the circulating supply: the genesis mint less everything burned.
func (t *Token) TotalSupply(ctx context.Context) (*uint256.Int, error) {
	return t.state.TotalSupply(ctx)
}

// Allowance is how much spender may still move out of owner's balance.
func (t *Token) Allowance(ctx context.Context, owner, spender Address) (*uint256.Int, error) {
	return t.state.Allowance(ctx, owner, spender)
}

// IsExempt reports whether transfers to or from account skip the burn.
func (t *Token) IsExempt(ctx context.Context, account Address) (bool, error) {
	return t.state.IsExempt(ctx, account)
}

// Settings returns the token's configuration and lifecycle phase.
func (t *Token) Settings(ctx context.Context) (Settings, error) {
	return t.state.Settings(ctx)
}

// admin authorizes caller for op and returns the current settings.
func (t *Token) admin(ctx context.Context, caller Address, op Operation) (Settings, error) {
	if err := t.auth.Authorize(ctx, caller, op); err != nil {
		return Settings{}, err
	}
	return t.live(ctx)
}
