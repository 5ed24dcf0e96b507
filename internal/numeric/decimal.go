package numeric

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Scale at which divisions are carried out. Enough for 18-decimal tokens
// accumulated over years without visible drift.
const divPrecision = 38

// Exponent returns 10^decimals as an exact decimal.
func Exponent(decimals int32) decimal.Decimal {
	return decimal.New(1, decimals)
}

// ScaleDown converts a raw on-chain integer amount into a decimal value by
// dividing by 10^decimals. decimals=0 is the identity.
func ScaleDown(amount *big.Int, decimals int32) decimal.Decimal {
	d := decimal.NewFromBigInt(amount, 0)
	if decimals == 0 {
		return d
	}
	return d.DivRound(Exponent(decimals), divPrecision)
}

// SafeDiv divides a by b, returning zero when b is zero. Every ratio in the
// aggregates (averages, ownership fractions, implied prices) goes through
// here so a zero denominator can never produce an undefined value.
func SafeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.DivRound(b, divPrecision)
}
