package ledger

import "github.com/holiman/uint256"

// Decimals is the native decimal scale of the token.
const Decimals = 18

// Basis-point limits.
const (
	BasisPoints       = 10000
	MaxBurnRateBps    = 300
	MaxPlatformFeeBps = 500
)

// Tiered burn rates selected from total supply.
const (
	TierHighRateBps = 300
	TierMidRateBps  = 200
	TierLowRateBps  = 100
)

var unit = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(Decimals))

// MinExemptAmount is the floor of the burn threshold: 100 whole tokens.
var MinExemptAmount = Tokens(100)

// Supply thresholds for the tiered rate policy.
var (
	TierHighSupply = Tokens(2_500_000_000)
	TierMidSupply  = Tokens(2_000_000_000)
)

// Tokens scales whole tokens into base units.
func Tokens(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), unit)
}

// ParseAmount parses a decimal base-unit amount.
func ParseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, Errorf(ErrCodeInvalidParameter, "invalid amount %q: %v", s, err)
	}
	return v, nil
}

// ParseTokens parses a decimal count of whole tokens and scales it to base units.
func ParseTokens(s string) (*uint256.Int, error) {
	v, err := ParseAmount(s)
	if err != nil {
		return nil, err
	}
	out, overflow := new(uint256.Int).MulOverflow(v, unit)
	if overflow {
		return nil, Errorf(ErrCodeInvalidParameter, "token amount %q overflows", s)
	}
	return out, nil
}

// Zero returns a fresh zero amount.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// mulDiv returns floor(x*num/den) with a 512-bit intermediate product.
// Every caller passes num <= den, so the quotient fits in 256 bits.
func mulDiv(x *uint256.Int, num, den uint64) *uint256.Int {
	out, _ := new(uint256.Int).MulDivOverflow(x, uint256.NewInt(num), uint256.NewInt(den))
	return out
}

func minAmount(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a.Clone()
	}
	return b.Clone()
}
