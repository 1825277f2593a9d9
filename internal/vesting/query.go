package vesting

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/roach88/tokenledger/internal/ledger"
)

// VestingInfo returns every schedule of beneficiary with its releasable
// amount at the vault's current time. Both slices share indexes.
func (v *Vault) VestingInfo(ctx context.Context, beneficiary ledger.Address) ([]Schedule, []*uint256.Int, error) {
	schedules, err := v.state.Schedules(ctx, beneficiary)
	if err != nil {
		return nil, nil, err
	}
	releasable := make([]*uint256.Int, len(schedules))
	for i, s := range schedules {
		releasable[i] = ComputeReleasable(s, v.now)
	}
	return schedules, releasable, nil
}

// ReleasableAmount computes the releasable amount of one schedule.
func (v *Vault) ReleasableAmount(ctx context.Context, beneficiary ledger.Address, index uint64) (*uint256.Int, error) {
	s, ok, err := v.state.Schedule(ctx, beneficiary, index)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ledger.Errorf(ledger.ErrCodeScheduleNotFound, "no schedule %d for %s", index, beneficiary)
	}
	return ComputeReleasable(s, v.now), nil
}

// TotalLocked sums TotalAmount - Released over all of beneficiary's schedules.
func (v *Vault) TotalLocked(ctx context.Context, beneficiary ledger.Address) (*uint256.Int, error) {
	schedules, err := v.state.Schedules(ctx, beneficiary)
	if err != nil {
		return nil, err
	}
	sum := new(uint256.Int)
	for _, s := range schedules {
		sum.Add(sum, s.Locked())
	}
	return sum, nil
}

// PoolBalance is the vault account's token balance.
func (v *Vault) PoolBalance(ctx context.Context) (*uint256.Int, error) {
	vs, err := v.live(ctx)
	if err != nil {
		return nil, err
	}
	return v.token.BalanceOf(ctx, vs.Self)
}

// ScheduleCount is the length of beneficiary's schedule list.
func (v *Vault) ScheduleCount(ctx context.Context, beneficiary ledger.Address) (uint64, error) {
	schedules, err := v.state.Schedules(ctx, beneficiary)
	if err != nil {
		return 0, err
	}
	return uint64(len(schedules)), nil
}
