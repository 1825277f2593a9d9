package vesting

import (
	"github.com/holiman/uint256"
)

// Schedule is one vesting allocation. Once Initialized, every field except
// Released is immutable; Released only grows, up to TotalAmount.
type Schedule struct {
	Initialized        bool
	TotalAmount        *uint256.Int
	Released           *uint256.Int
	Start              uint64
	Cliff              uint64 // Start + cliff duration
	Duration           uint64
	SlicePeriodSeconds uint64
	CliffUnlockPercent uint64
}

// CliffDuration is the time between Start and Cliff.
func (s Schedule) CliffDuration() uint64 {
	return s.Cliff - s.Start
}

// End is the instant at which everything has vested.
func (s Schedule) End() uint64 {
	return s.Start + s.Duration
}

// CliffAmount is the share unlocked at the cliff: floor(total * percent / 100).
// Callers keep percent <= 100, so the result never exceeds TotalAmount.
func (s Schedule) CliffAmount() *uint256.Int {
	out, _ := new(uint256.Int).MulDivOverflow(s.TotalAmount, uint256.NewInt(s.CliffUnlockPercent), uint256.NewInt(100))
	return out
}

// Locked is the amount not yet released.
func (s Schedule) Locked() *uint256.Int {
	return new(uint256.Int).Sub(s.TotalAmount, s.Released)
}

// VestedAmount is the cumulative amount vested at now, ignoring Released.
//
// Before the cliff nothing is vested. From the end on, everything is. In
// between, the cliff share plus a linear share of the rest, accrued in whole
// slices over the window between cliff and end.
func (s Schedule) VestedAmount(now uint64) *uint256.Int {
	if now < s.Cliff {
		return new(uint256.Int)
	}
	if now >= s.End() {
		return s.TotalAmount.Clone()
	}

	cliffAmount := s.CliffAmount()
	window := s.Duration - s.CliffDuration()
	elapsed := now - s.Cliff
	slices := (elapsed / s.SlicePeriodSeconds) * s.SlicePeriodSeconds
	if slices > window {
		slices = window
	}

	// The product is taken at 512 bits; slices <= window keeps the quotient
	// within the remainder.
	linear := new(uint256.Int).Sub(s.TotalAmount, cliffAmount)
	linear.MulDivOverflow(linear, uint256.NewInt(slices), uint256.NewInt(window))
	return linear.Add(linear, cliffAmount)
}

// ComputeReleasable is the amount a claim at now would release. It is never
// negative and never exceeds TotalAmount - Released.
func ComputeReleasable(s Schedule, now uint64) *uint256.Int {
	if !s.Initialized {
		return new(uint256.Int)
	}
	vested := s.VestedAmount(now)
	if vested.Lt(s.Released) {
		return new(uint256.Int)
	}
	return vested.Sub(vested, s.Released)
}
