package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"

	"clipperstats/internal/chain"
	"clipperstats/internal/config"
	"clipperstats/internal/numeric"
)

const addressZero = "0x0000000000000000000000000000000000000000"

// Resolver resolves a USD price for an asset symbol with a three-tier
// precedence: oracle, then static fallback, then constant 1. The tables come
// from deployment config and are fixed for the process lifetime.
type Resolver struct {
	log       logger.Logger
	oracle    chain.OracleReader
	oracles   map[string]string          // symbol -> oracle address
	fallbacks map[string]decimal.Decimal // symbol -> static USD price
}

func NewResolver(log logger.Logger, oracle chain.OracleReader, cfg *config.ChainConfig) (*Resolver, error) {
	oracles := make(map[string]string, len(cfg.OracleAddresses))
	for sym, addr := range cfg.OracleAddresses {
		oracles[sym] = strings.ToLower(addr)
	}

	fallbacks := make(map[string]decimal.Decimal, len(cfg.FallbackPrices))
	for sym, raw := range cfg.FallbackPrices {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid fallback price for %s: %w", sym, err)
		}
		fallbacks[sym] = price
	}

	return &Resolver{
		log:       log,
		oracle:    oracle,
		oracles:   oracles,
		fallbacks: fallbacks,
	}, nil
}

// Resolve returns the USD price for a symbol.
//
// A non-zero oracle address always takes precedence over a fallback price.
// If the oracle call reverts, the fallback (when present) absorbs the
// failure; without one the event must abort, there is no safe default
// mid-computation. Symbols with neither source resolve to 1, the sentinel
// price for stable and native assets that carry no pricing table entry.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (decimal.Decimal, error) {
	oracleAddr, hasOracle := r.oracles[symbol]
	fallback, hasFallback := r.fallbacks[symbol]

	if !hasOracle || oracleAddr == addressZero {
		if hasFallback {
			return fallback, nil
		}
		return decimal.NewFromInt(1), nil
	}

	answer, decimals, err := r.oracle.LatestAnswer(ctx, oracleAddr)
	if err != nil {
		if hasFallback {
			r.log.Warnf("Oracle %s for %s reverted, using fallback price: %v", oracleAddr, symbol, err)
			return fallback, nil
		}
		return decimal.Zero, fmt.Errorf("oracle %s for %s: %w", oracleAddr, symbol, err)
	}

	return numeric.ScaleDown(answer, decimals), nil
}
