package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the fixed-point precision of pool amounts
const TokenDecimals = 18

// ToWei converts a token amount to its 18 decimal integer encoding.
// Digits beyond 18 decimals are truncated; callers validate precision first.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(TokenDecimals).BigInt()
}

// FromWei converts an 18 decimal integer amount to token units
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -TokenDecimals)
}

// HasValidPrecision reports whether amount fits in 18 decimals
func HasValidPrecision(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(TokenDecimals))
}
