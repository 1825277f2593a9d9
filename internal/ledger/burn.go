package ledger

import "github.com/holiman/uint256"

// Split is the three-way division of a burning transfer.
//
// Invariant: Send + BurnNow + ToReserve == amount. Only Burn is derived by
// division; the other legs are remainders, so no rounding is lost.
type Split struct {
	Burn      *uint256.Int // total burn share, floor(amount*bps/10000)
	BurnNow   *uint256.Int // destroyed, floor(Burn/2)
	ToReserve *uint256.Int // moved to the reserve address
	Send      *uint256.Int // delivered to the recipient
}

// SplitBurn divides amount at the given rate.
func SplitBurn(amount *uint256.Int, bps uint64) Split {
	burn := mulDiv(amount, bps, BasisPoints)
	burnNow := new(uint256.Int).Rsh(burn, 1)
	return Split{
		Burn:      burn,
		BurnNow:   burnNow,
		ToReserve: new(uint256.Int).Sub(burn, burnNow),
		Send:      new(uint256.Int).Sub(amount, burn),
	}
}

// MinBurnThreshold is the smallest amount a sender with the given balance can
// transfer and still incur a burn: max(balance*0.5%, MinExemptAmount).
func MinBurnThreshold(senderBalance *uint256.Int) *uint256.Int {
	t := mulDiv(senderBalance, 5, 1000)
	if t.Lt(MinExemptAmount) {
		return MinExemptAmount.Clone()
	}
	return t
}

// TieredRate maps total circulating supply to a burn rate.
//
//	supply > 2.5B        → 300 bps
//	2.0B < supply ≤ 2.5B → 200 bps
//	supply ≤ 2.0B        → 100 bps
func TieredRate(totalSupply *uint256.Int) uint64 {
	switch {
	case totalSupply.Gt(TierHighSupply):
		return TierHighRateBps
	case totalSupply.Gt(TierMidSupply):
		return TierMidRateBps
	default:
		return TierLowRateBps
	}
}
