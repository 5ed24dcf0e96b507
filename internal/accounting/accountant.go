package accounting

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"

	"clipperstats/internal/chain"
	"clipperstats/internal/config"
	"clipperstats/internal/entities"
	"clipperstats/internal/entity"
	"clipperstats/internal/numeric"
	"clipperstats/internal/pricing"
)

var two = decimal.NewFromInt(2)

// Accountant prices fractional claims on shared liquidity: pool shares in
// USD, cove legs in USD, and the implied price of long-tail assets. All
// balances are read mark-to-market as of the event being processed.
type Accountant struct {
	log    logger.Logger
	reader chain.Reader
	pricer *pricing.Resolver

	poolAddress string
	coveAddress string
	// deployment-specific liquidity constant; nil means live balances
	poolValueOverride *decimal.Decimal
}

func New(log logger.Logger, reader chain.Reader, pricer *pricing.Resolver, cfg *config.ChainConfig) (*Accountant, error) {
	a := &Accountant{
		log:         log,
		reader:      reader,
		pricer:      pricer,
		poolAddress: strings.ToLower(cfg.PoolAddress),
		coveAddress: strings.ToLower(cfg.CoveAddress),
	}

	if cfg.PoolValueOverrideUSD != "" {
		v, err := decimal.NewFromString(cfg.PoolValueOverrideUSD)
		if err != nil {
			return nil, fmt.Errorf("invalid pool value override: %w", err)
		}
		a.poolValueOverride = &v
	}

	return a, nil
}

// PoolLiquidityUSD sums balance × price over every asset the pool holds,
// refreshing each token's tvl/tvlUSD to the observed balance along the way.
// The deployment override, when configured, short-circuits the computation.
func (a *Accountant) PoolLiquidityUSD(ctx context.Context, reg *entities.Registry) (decimal.Decimal, error) {
	if a.poolValueOverride != nil {
		return *a.poolValueOverride, nil
	}

	n, err := a.reader.NTokens(ctx, a.poolAddress)
	if err != nil {
		return decimal.Zero, fmt.Errorf("nTokens: %w", err)
	}

	liquidity := decimal.Zero
	for i := 0; i < n; i++ {
		addr, err := a.reader.TokenAt(ctx, a.poolAddress, i)
		if err != nil {
			return decimal.Zero, fmt.Errorf("tokenAt(%d): %w", i, err)
		}

		token, err := reg.LoadToken(ctx, addr)
		if err != nil {
			return decimal.Zero, err
		}

		balance, err := a.TokenBalance(ctx, token, a.poolAddress)
		if err != nil {
			return decimal.Zero, err
		}

		price, err := a.pricer.Resolve(ctx, token.Symbol)
		if err != nil {
			return decimal.Zero, err
		}

		liquidity = liquidity.Add(balance.Mul(price))

		token.TVL = balance
		token.TVLUSD = balance.Mul(price)
		if err = reg.SaveToken(ctx, token); err != nil {
			return decimal.Zero, err
		}
	}

	return liquidity, nil
}

// PoolTokenSupply reads the pool share token supply, 18-decimal scaled.
func (a *Accountant) PoolTokenSupply(ctx context.Context) (decimal.Decimal, error) {
	raw, err := a.reader.TotalSupply(ctx, a.poolAddress)
	if err != nil {
		return decimal.Zero, fmt.Errorf("totalSupply: %w", err)
	}
	return numeric.ScaleDown(raw, 18), nil
}

// TokenBalance reads a wallet's balance of a token, scaled by its decimals.
func (a *Accountant) TokenBalance(ctx context.Context, token *entity.Token, wallet string) (decimal.Decimal, error) {
	raw, err := a.reader.BalanceOf(ctx, token.ID, wallet)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf(%s): %w", token.ID, err)
	}
	return numeric.ScaleDown(raw, token.Decimals), nil
}

// ShareValueUSD prices a pool-share claim: liquidity × shares / supply.
// A zero supply yields zero, never an undefined value.
func ShareValueUSD(liquidityUSD, shareTokens, totalSupply decimal.Decimal) decimal.Decimal {
	return liquidityUSD.Mul(numeric.SafeDiv(shareTokens, totalSupply))
}

// OwnedFraction computes the proportional claim of an operation's share
// tokens. The post-operation supply carried in the event is authoritative;
// a zero post figure (misreporting event shape) falls back to the supply
// read from the chain.
func OwnedFraction(opTokens, postSupply, chainSupply decimal.Decimal) decimal.Decimal {
	denom := postSupply
	if denom.IsZero() {
		denom = chainSupply
	}
	return numeric.SafeDiv(opTokens, denom)
}

// CoveValuation is the full mark-to-market picture of one cove.
type CoveValuation struct {
	PoolTokenBalance decimal.Decimal // cove's pool share tokens
	AssetBalance     decimal.Decimal // cove's long-tail asset balance
	// USD value of the pool share leg
	PoolShareUSD decimal.Decimal
	// reported cove TVL: twice the pool share leg, since the asset leg is
	// held at approximately equal value and its own price derives from it
	LiquidityUSD decimal.Decimal
	// implied long-tail asset price: PoolShareUSD / AssetBalance, zero
	// when the cove holds no asset
	AssetPrice decimal.Decimal
}

// ValueCove decodes the cove's packed balance state and prices both legs.
func (a *Accountant) ValueCove(ctx context.Context, reg *entities.Registry, coveAsset *entity.Token) (CoveValuation, error) {
	packed, err := a.reader.LastBalances(ctx, a.coveAddress, coveAsset.ID)
	if err != nil {
		return CoveValuation{}, fmt.Errorf("lastBalances(%s): %w", coveAsset.ID, err)
	}

	balances := numeric.UnpackBalance(packed)
	poolTokens := balances.PoolTokens()
	assetBalance := balances.Asset(coveAsset.Decimals)

	liquidityUSD, err := a.PoolLiquidityUSD(ctx, reg)
	if err != nil {
		return CoveValuation{}, err
	}
	supply, err := a.PoolTokenSupply(ctx)
	if err != nil {
		return CoveValuation{}, err
	}

	poolShareUSD := ShareValueUSD(liquidityUSD, poolTokens, supply)

	return CoveValuation{
		PoolTokenBalance: poolTokens,
		AssetBalance:     assetBalance,
		PoolShareUSD:     poolShareUSD,
		LiquidityUSD:     poolShareUSD.Mul(two),
		AssetPrice:       numeric.SafeDiv(poolShareUSD, assetBalance),
	}, nil
}
