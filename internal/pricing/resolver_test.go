package pricing

import (
	"context"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	"clipperstats/internal/chain"
	"clipperstats/internal/config"
)

func newTestLogger() logger.Logger {
	return logger.New(lgcfg.LoggerCfg{Level: "error", Format: "json"})
}

const ethOracle = "0x00000000000000000000000000000000000000e1"

func newTestResolver(t *testing.T, snap *chain.Static, chainCfg *config.ChainConfig) *Resolver {
	t.Helper()

	r, err := NewResolver(newTestLogger(), snap, chainCfg)
	require.NoError(t, err)
	return r
}

func TestResolve_OracleTakesPrecedenceOverFallback(t *testing.T) {
	t.Parallel()

	snap := chain.NewStatic()
	// 1850.00000000 at 8 decimals
	snap.SetOracle(ethOracle, big.NewInt(185000000000), 8)

	r := newTestResolver(t, snap, &config.ChainConfig{
		OracleAddresses: map[string]string{"WETH": ethOracle},
		FallbackPrices:  map[string]string{"WETH": "1700"},
	})

	price, err := r.Resolve(context.Background(), "WETH")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(1850)), "got %s", price)
}

func TestResolve_ZeroOracleAddressUsesFallback(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, chain.NewStatic(), &config.ChainConfig{
		OracleAddresses: map[string]string{"DOT": "0x0000000000000000000000000000000000000000"},
		FallbackPrices:  map[string]string{"DOT": "6.25"},
	})

	price, err := r.Resolve(context.Background(), "DOT")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("6.25")))
}

func TestResolve_NoOracleNoFallbackDefaultsToOne(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, chain.NewStatic(), &config.ChainConfig{})

	price, err := r.Resolve(context.Background(), "USDC")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(1)))
}

func TestResolve_RevertedOracleFallsBack(t *testing.T) {
	t.Parallel()

	// oracle configured but the snapshot has no answer -> call reverts
	r := newTestResolver(t, chain.NewStatic(), &config.ChainConfig{
		OracleAddresses: map[string]string{"WBTC": ethOracle},
		FallbackPrices:  map[string]string{"WBTC": "29000"},
	})

	price, err := r.Resolve(context.Background(), "WBTC")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(29000)))
}

func TestResolve_RevertedOracleWithoutFallbackFails(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, chain.NewStatic(), &config.ChainConfig{
		OracleAddresses: map[string]string{"GYEN": ethOracle},
	})

	_, err := r.Resolve(context.Background(), "GYEN")
	assert.ErrorIs(t, err, chain.ErrReverted)
}

func TestNewResolver_RejectsBadFallbackPrice(t *testing.T) {
	t.Parallel()

	_, err := NewResolver(newTestLogger(), chain.NewStatic(), &config.ChainConfig{
		FallbackPrices: map[string]string{"X": "not-a-number"},
	})
	assert.Error(t, err)
}
