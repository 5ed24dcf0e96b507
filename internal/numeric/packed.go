package numeric

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Cove contracts report their state as one 256-bit integer:
// high 128 bits = pool token amount (18 decimals), low 128 bits = raw
// long-tail asset balance in its native decimals.

var lowMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

type PackedBalance struct {
	PoolTokensRaw *big.Int
	AssetRaw      *big.Int
}

// UnpackBalance splits the 256-bit packed value into its two 128-bit fields.
func UnpackBalance(packed *big.Int) PackedBalance {
	return PackedBalance{
		PoolTokensRaw: new(big.Int).Rsh(packed, 128),
		AssetRaw:      new(big.Int).And(packed, lowMask),
	}
}

// Repack reassembles the original 256-bit value, (poolTokens << 128) | asset.
func (p PackedBalance) Repack() *big.Int {
	out := new(big.Int).Lsh(p.PoolTokensRaw, 128)
	return out.Or(out, p.AssetRaw)
}

// PoolTokens returns the pool token leg scaled by the fixed 18 decimals.
func (p PackedBalance) PoolTokens() decimal.Decimal {
	return ScaleDown(p.PoolTokensRaw, 18)
}

// Asset returns the long-tail leg scaled by the asset's own decimals.
func (p PackedBalance) Asset(decimals int32) decimal.Decimal {
	return ScaleDown(p.AssetRaw, decimals)
}
