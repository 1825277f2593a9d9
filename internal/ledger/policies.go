package ledger

import (
	"context"

	"github.com/holiman/uint256"
)

// BurnPlatformFee burns a fee from an approved platform's own balance. The
// split matches a burning transfer at the caller-supplied rate, without the
// recipient leg: BurnNow is destroyed, ToReserve moves to the reserve address,
// and Send stays with the platform.
func (t *Token) BurnPlatformFee(ctx context.Context, caller Address, amount *uint256.Int, bps uint64) (Split, error) {
	if err := t.auth.Authorize(ctx, caller, OpBurnPlatformFee); err != nil {
		return Split{}, err
	}
	s, err := t.live(ctx)
	if err != nil {
		return Split{}, err
	}
	if bps > MaxPlatformFeeBps {
		return Split{}, Errorf(ErrCodeInvalidParameter, "platform fee %d exceeds %d bps", bps, MaxPlatformFeeBps)
	}
	if amount.IsZero() {
		return Split{}, Errorf(ErrCodeInvalidParameter, "amount must be positive")
	}
	bal, err := t.state.Balance(ctx, caller)
	if err != nil {
		return Split{}, err
	}
	if bal.Lt(amount) {
		return Split{}, Errorf(ErrCodeInsufficientBalance, "balance %s of %s is below %s", bal.Dec(), caller, amount.Dec())
	}

	split := SplitBurn(amount, bps)
	if !split.BurnNow.IsZero() {
		if err := t.destroy(ctx, caller, split.BurnNow); err != nil {
			return Split{}, err
		}
	}
	if !split.ToReserve.IsZero() {
		if err := t.move(ctx, caller, s.Reserve, split.ToReserve); err != nil {
			return Split{}, err
		}
	}
	t.state.Emit(Event{Kind: "platform-fee-burned", Fields: map[string]any{
		"platform": string(caller),
		"amount":   amount.Dec(),
		"bps":      int64(bps),
		"burned":   split.BurnNow.Dec(),
		"reserved": split.ToReserve.Dec(),
	}})
	return split, nil
}

// BurnForNFT destroys tokens from user's balance on behalf of an approved NFT
// contract. A single call never burns more than 1% of the user's balance;
// requests above the cap are reduced to it.
func (t *Token) BurnForNFT(ctx context.Context, caller, user Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := t.auth.Authorize(ctx, caller, OpBurnForNFT); err != nil {
		return nil, err
	}
	if _, err := t.live(ctx); err != nil {
		return nil, err
	}
	if user.IsZero() {
		return nil, Errorf(ErrCodeInvalidAddress, "user must be set")
	}
	if amount.IsZero() {
		return nil, Errorf(ErrCodeInvalidParameter, "amount must be positive")
	}
	bal, err := t.state.Balance(ctx, user)
	if err != nil {
		return nil, err
	}
	burned := minAmount(amount, new(uint256.Int).Div(bal, uint256.NewInt(100)))
	if burned.IsZero() {
		return nil, Errorf(ErrCodeInsufficientBalance, "balance %s of %s allows no NFT burn", bal.Dec(), user)
	}
	if err := t.destroy(ctx, user, burned); err != nil {
		return nil, err
	}
	t.state.Emit(Event{Kind: "nft-burned", Fields: map[string]any{
		"nft_contract": string(caller),
		"user":         string(user),
		"requested":    amount.Dec(),
		"burned":       burned.Dec(),
	}})
	return burned, nil
}

// BurnKPIEvent destroys amount from the administrator's own balance. No cap
// applies beyond the available balance.
func (t *Token) BurnKPIEvent(ctx context.Context, caller Address, amount *uint256.Int) error {
	if _, err := t.admin(ctx, caller, OpBurnKPIEvent); err != nil {
		return err
	}
	if amount.IsZero() {
		return Errorf(ErrCodeInvalidParameter, "amount must be positive")
	}
	if err := t.destroy(ctx, caller, amount); err != nil {
		return err
	}
	t.state.Emit(Event{Kind: "kpi-burned", Fields: map[string]any{
		"admin":  string(caller),
		"amount": amount.Dec(),
	}})
	return nil
}
