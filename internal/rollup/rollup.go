package rollup

import (
	"context"

	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"

	"clipperstats/internal/accounting"
	"clipperstats/internal/entities"
	"clipperstats/internal/entity"
	"clipperstats/internal/numeric"
)

var bpsFactor = decimal.NewFromInt(10000)

// Op tags which counter family a cove bucket update touches.
type Op int

const (
	OpSwap Op = iota
	OpDeposit
	OpWithdrawal
)

// Engine maintains the lifetime pool aggregate and every hourly/daily
// bucket. Buckets are created lazily on first touch and only ever change by
// same-bucket increments; derived averages are recomputed from sums after
// every increment, never incremented themselves.
type Engine struct {
	log  logger.Logger
	acct *accounting.Accountant
}

func NewEngine(log logger.Logger, acct *accounting.Accountant) *Engine {
	return &Engine{log: log, acct: acct}
}

var intervals = []int64{numeric.OneHour, numeric.OneDay}

// RecordSwap applies one swap's volume and fee to the pool and its buckets.
// newUser increments the cumulative unique-user counter.
func (e *Engine) RecordSwap(ctx context.Context, reg *entities.Registry, timestamp int64, volumeUSD, feeUSD decimal.Decimal, newUser bool) error {
	pool, err := reg.LoadPool(ctx)
	if err != nil {
		return err
	}

	pool.TxCount++
	pool.VolumeUSD = pool.VolumeUSD.Add(volumeUSD)
	pool.AvgTrade = numeric.SafeDiv(pool.VolumeUSD, decimal.NewFromInt(pool.TxCount))
	pool.FeeUSD = pool.FeeUSD.Add(feeUSD)
	pool.AvgTradeFee = numeric.SafeDiv(pool.FeeUSD, decimal.NewFromInt(pool.TxCount))
	pool.AvgFeeInBps = numeric.SafeDiv(pool.FeeUSD, pool.VolumeUSD).Mul(bpsFactor)
	if newUser {
		pool.UniqueUsers++
	}

	supply, err := e.acct.PoolTokenSupply(ctx)
	if err != nil {
		return err
	}
	pool.PoolTokensSupply = supply

	for _, interval := range intervals {
		status, err := e.loadPoolStatus(ctx, reg, pool, timestamp, interval)
		if err != nil {
			return err
		}

		status.TxCount++
		status.VolumeUSD = status.VolumeUSD.Add(volumeUSD)
		status.AvgTrade = numeric.SafeDiv(status.VolumeUSD, decimal.NewFromInt(status.TxCount))
		status.FeeUSD = status.FeeUSD.Add(feeUSD)
		status.AvgTradeFee = numeric.SafeDiv(status.FeeUSD, decimal.NewFromInt(status.TxCount))
		status.AvgFeeInBps = numeric.SafeDiv(status.FeeUSD, status.VolumeUSD).Mul(bpsFactor)
		status.PoolTokensSupply = supply

		if err = reg.SavePoolStatus(ctx, status, interval); err != nil {
			return err
		}
	}

	return reg.SavePool(ctx, pool)
}

// RecordDeposit applies one deposit's USD value to the pool and its buckets.
func (e *Engine) RecordDeposit(ctx context.Context, reg *entities.Registry, timestamp int64, amountUSD decimal.Decimal) error {
	pool, err := reg.LoadPool(ctx)
	if err != nil {
		return err
	}

	pool.DepositCount++
	pool.DepositedUSD = pool.DepositedUSD.Add(amountUSD)
	pool.AvgDeposit = numeric.SafeDiv(pool.DepositedUSD, decimal.NewFromInt(pool.DepositCount))

	supply, err := e.acct.PoolTokenSupply(ctx)
	if err != nil {
		return err
	}
	pool.PoolTokensSupply = supply

	for _, interval := range intervals {
		status, err := e.loadPoolStatus(ctx, reg, pool, timestamp, interval)
		if err != nil {
			return err
		}

		status.DepositCount++
		status.DepositedUSD = status.DepositedUSD.Add(amountUSD)
		status.AvgDeposit = numeric.SafeDiv(status.DepositedUSD, decimal.NewFromInt(status.DepositCount))
		status.PoolTokensSupply = supply

		if err = reg.SavePoolStatus(ctx, status, interval); err != nil {
			return err
		}
	}

	return reg.SavePool(ctx, pool)
}

// RecordWithdrawal applies one withdrawal's USD value to the pool and its
// buckets.
func (e *Engine) RecordWithdrawal(ctx context.Context, reg *entities.Registry, timestamp int64, amountUSD decimal.Decimal) error {
	pool, err := reg.LoadPool(ctx)
	if err != nil {
		return err
	}

	pool.WithdrawalCount++
	pool.WithdrewUSD = pool.WithdrewUSD.Add(amountUSD)
	pool.AvgWithdraw = numeric.SafeDiv(pool.WithdrewUSD, decimal.NewFromInt(pool.WithdrawalCount))

	supply, err := e.acct.PoolTokenSupply(ctx)
	if err != nil {
		return err
	}
	pool.PoolTokensSupply = supply

	for _, interval := range intervals {
		status, err := e.loadPoolStatus(ctx, reg, pool, timestamp, interval)
		if err != nil {
			return err
		}

		status.WithdrawalCount++
		status.WithdrewUSD = status.WithdrewUSD.Add(amountUSD)
		status.AvgWithdraw = numeric.SafeDiv(status.WithdrewUSD, decimal.NewFromInt(status.WithdrawalCount))
		status.PoolTokensSupply = supply

		if err = reg.SavePoolStatus(ctx, status, interval); err != nil {
			return err
		}
	}

	return reg.SavePool(ctx, pool)
}

// RecordCoveActivity applies one cove operation to the cove's own buckets
// and the global buckets combining all coves, at both granularities.
// assetPrice is the latest implied price observed for the cove asset.
func (e *Engine) RecordCoveActivity(ctx context.Context, reg *entities.Registry, coveID string, timestamp int64, volumeUSD, assetPrice decimal.Decimal, op Op) error {
	for _, scope := range []string{coveID, ""} {
		for _, interval := range intervals {
			status, err := reg.LoadCoveStatus(ctx, scope, timestamp, interval)
			if err != nil {
				return err
			}

			status.TxCount++
			status.VolumeUSD = status.VolumeUSD.Add(volumeUSD)
			status.AvgTrade = numeric.SafeDiv(status.VolumeUSD, decimal.NewFromInt(status.TxCount))
			status.LatestPrice = assetPrice

			switch op {
			case OpDeposit:
				status.DepositCount++
			case OpWithdrawal:
				status.WithdrawalCount++
			}

			if err = reg.SaveCoveStatus(ctx, status, interval); err != nil {
				return err
			}
		}
	}

	return nil
}

// loadPoolStatus hands the registry a lazy pool valuation so the mark to
// market read (which also refreshes token tvl) runs only when a new bucket
// is created, not on every increment.
func (e *Engine) loadPoolStatus(ctx context.Context, reg *entities.Registry, pool *entity.Pool, timestamp, interval int64) (*entity.PoolStatus, error) {
	return reg.LoadPoolStatus(ctx, pool, timestamp, interval, func(ctx context.Context) (decimal.Decimal, error) {
		return e.acct.PoolLiquidityUSD(ctx, reg)
	})
}
