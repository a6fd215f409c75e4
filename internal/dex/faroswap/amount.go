package faroswap

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the precision of PHRS and WPHRS.
const NativeDecimals = 18

// ToWei converts a human amount into base units, truncating extra precision.
func ToWei(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// FromWei converts base units into a human amount.
func FromWei(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}

// Randomize adds between 0.001000 and 0.009999 to base so repeated swaps do
// not carry identical amounts. intn must return values in [0, n).
func Randomize(base decimal.Decimal, intn func(n int) int) decimal.Decimal {
	return base.Add(decimal.New(int64(1000+intn(9000)), -6))
}
