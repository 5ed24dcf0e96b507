package numeric

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packedFixture(poolTokens, asset int64) *big.Int {
	p := new(big.Int).Lsh(big.NewInt(poolTokens), 128)
	return p.Or(p, big.NewInt(asset))
}

func TestUnpackBalance_Fixture(t *testing.T) {
	t.Parallel()

	// (50 << 128) | 25, pool tokens 18 decimals, asset 6 decimals
	packed := packedFixture(50, 25)
	got := UnpackBalance(packed)

	assert.Zero(t, got.PoolTokensRaw.Cmp(big.NewInt(50)))
	assert.Zero(t, got.AssetRaw.Cmp(big.NewInt(25)))

	assert.True(t, got.PoolTokens().Equal(ScaleDown(big.NewInt(50), 18)))
	assert.True(t, got.Asset(6).Equal(decimal.RequireFromString("0.000025")))
}

func TestUnpackBalance_RoundTrip(t *testing.T) {
	t.Parallel()

	cases := []string{
		"0",
		"25",
		"340282366920938463463374607431768211455", // 2^128 - 1, pure asset leg
		"340282366920938463463374607431768211456", // 2^128, pure pool leg
		"115792089237316195423570985008687907853269984665640564039457584007913129639935", // 2^256 - 1
	}

	for _, s := range cases {
		packed, ok := new(big.Int).SetString(s, 10)
		require.True(t, ok)

		unpacked := UnpackBalance(packed)
		assert.Zero(t, unpacked.Repack().Cmp(packed), "round trip mismatch for %s", s)
		assert.True(t, unpacked.AssetRaw.Cmp(new(big.Int).Lsh(big.NewInt(1), 128)) < 0, "asset leg must fit 128 bits")
	}
}
