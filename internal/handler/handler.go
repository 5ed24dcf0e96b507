package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"

	"clipperstats/internal/accounting"
	"clipperstats/internal/chain"
	"clipperstats/internal/config"
	"clipperstats/internal/domain"
	"clipperstats/internal/entities"
	"clipperstats/internal/entity"
	"clipperstats/internal/numeric"
	"clipperstats/internal/pricing"
	"clipperstats/internal/rollup"
	"clipperstats/internal/store"
)

var two = decimal.NewFromInt(2)

const addressZero = "0x0000000000000000000000000000000000000000"

// Handlers applies decoded contract events to the aggregate state. Each
// Apply call is one state transition: the caller binds the registry to a
// write overlay and flushes it only when Apply returns nil, so a failing
// event leaves no partial writes behind.
type Handlers struct {
	log    logger.Logger
	reader chain.Reader
	pricer *pricing.Resolver
	acct   *accounting.Accountant
	engine *rollup.Engine

	poolAddress   string
	coveAddress   string
	farmingHelper string
	wrappedNative string
}

func New(log logger.Logger, reader chain.Reader, pricer *pricing.Resolver, acct *accounting.Accountant, engine *rollup.Engine, cfg *config.ChainConfig) *Handlers {
	return &Handlers{
		log:           log,
		reader:        reader,
		pricer:        pricer,
		acct:          acct,
		engine:        engine,
		poolAddress:   strings.ToLower(cfg.PoolAddress),
		coveAddress:   strings.ToLower(cfg.CoveAddress),
		farmingHelper: strings.ToLower(cfg.FarmingHelperAddress),
		wrappedNative: strings.ToLower(cfg.WrappedNativeAddress),
	}
}

// Apply dispatches one event to its handler.
func (h *Handlers) Apply(ctx context.Context, reg *entities.Registry, ev *domain.Event) error {
	switch ev.Kind {
	case domain.KindDeposited:
		return h.handleDeposited(ctx, reg, ev)
	case domain.KindWithdrawn:
		return h.handleWithdrawn(ctx, reg, ev)
	case domain.KindAssetWithdrawn:
		return h.handleAssetWithdrawn(ctx, reg, ev)
	case domain.KindSwapped:
		return h.handleSwapped(ctx, reg, ev)
	case domain.KindTransfer:
		return h.handleTransfer(ctx, reg, ev)
	case domain.KindCoveDeposited:
		return h.handleCoveDeposited(ctx, reg, ev)
	case domain.KindCoveSwapped:
		return h.handleCoveSwapped(ctx, reg, ev)
	case domain.KindCoveWithdrawn:
		return h.handleCoveWithdrawn(ctx, reg, ev)
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

// handleDeposited infers per-asset deposits by comparing each pool asset's
// live balance to its last recorded tvl. A non-positive delta is a no-op
// from an unrelated balance refresh, not a deposit.
func (h *Handlers) handleDeposited(ctx context.Context, reg *entities.Registry, ev *domain.Event) error {
	p, err := ev.Deposited()
	if err != nil {
		return err
	}

	pool, err := reg.LoadPool(ctx)
	if err != nil {
		return err
	}

	n, err := h.reader.NTokens(ctx, h.poolAddress)
	if err != nil {
		return fmt.Errorf("nTokens: %w", err)
	}

	txHash := strings.ToLower(ev.TxHash)
	depositor := strings.ToLower(p.Depositor)
	totalUSD := decimal.Zero
	var rows []string

	for i := 0; i < n; i++ {
		addr, err := h.reader.TokenAt(ctx, h.poolAddress, i)
		if err != nil {
			return fmt.Errorf("tokenAt(%d): %w", i, err)
		}

		token, err := reg.LoadToken(ctx, addr)
		if err != nil {
			return err
		}

		balance, err := h.acct.TokenBalance(ctx, token, h.poolAddress)
		if err != nil {
			return err
		}

		delta := balance.Sub(token.TVL)
		if delta.Sign() <= 0 {
			continue
		}

		price, err := h.pricer.Resolve(ctx, token.Symbol)
		if err != nil {
			return err
		}
		usd := price.Mul(delta)

		rowID := fmt.Sprintf("%d-%s-%s", ev.Timestamp, txHash, token.ID)
		row := entity.Deposit{
			ID:        rowID,
			Timestamp: ev.Timestamp,
			PoolID:    pool.ID,
			TokenID:   token.ID,
			Amount:    delta,
			AmountUSD: usd,
			Depositor: depositor,
		}
		if err = reg.Store().Put(ctx, entity.KindDepositRecord, rowID, &row); err != nil {
			return err
		}
		rows = append(rows, rowID)

		token.TVL = balance
		token.TVLUSD = token.TVLUSD.Add(usd)
		token.Deposited = token.Deposited.Add(delta)
		token.DepositedUSD = token.DepositedUSD.Add(usd)
		if err = reg.SaveToken(ctx, token); err != nil {
			return err
		}

		totalUSD = totalUSD.Add(usd)
	}

	if len(rows) == 0 {
		h.log.Debugf("Deposited %s produced no per-asset deltas", txHash)
		return nil
	}

	idx := entity.DepositIndex{ID: txHash, Rows: rows}
	if err = reg.Store().Put(ctx, entity.KindDepositIndex, txHash, &idx); err != nil {
		return err
	}

	return h.engine.RecordDeposit(ctx, reg, ev.Timestamp, totalUSD)
}

// handleWithdrawn prices the burned pool-share tokens as a proportional
// claim on current liquidity.
func (h *Handlers) handleWithdrawn(ctx context.Context, reg *entities.Registry, ev *domain.Event) error {
	p, err := ev.Withdrawn()
	if err != nil {
		return err
	}

	pool, err := reg.LoadPool(ctx)
	if err != nil {
		return err
	}

	liquidity, err := h.acct.PoolLiquidityUSD(ctx, reg)
	if err != nil {
		return err
	}
	chainSupply, err := h.acct.PoolTokenSupply(ctx)
	if err != nil {
		return err
	}

	burned := numeric.ScaleDown(p.PoolTokens.Value(), 18)
	post := numeric.ScaleDown(p.PoolTokensSupply.Value(), 18)
	usd := liquidity.Mul(accounting.OwnedFraction(burned, post, chainSupply))

	rowID := fmt.Sprintf("%d-%s", ev.Timestamp, strings.ToLower(ev.TxHash))
	row := entity.Withdrawal{
		ID:         rowID,
		Timestamp:  ev.Timestamp,
		PoolID:     pool.ID,
		Amount:     burned,
		AmountUSD:  usd,
		Withdrawer: strings.ToLower(p.Withdrawer),
	}
	if err = reg.Store().Put(ctx, entity.KindWithdrawRecord, rowID, &row); err != nil {
		return err
	}

	return h.engine.RecordWithdrawal(ctx, reg, ev.Timestamp, usd)
}

// handleAssetWithdrawn records a single-asset withdrawal and walks the
// asset's tvl down by the withdrawn amount.
func (h *Handlers) handleAssetWithdrawn(ctx context.Context, reg *entities.Registry, ev *domain.Event) error {
	p, err := ev.AssetWithdrawn()
	if err != nil {
		return err
	}

	pool, err := reg.LoadPool(ctx)
	if err != nil {
		return err
	}

	token, err := reg.LoadToken(ctx, p.Asset)
	if err != nil {
		return err
	}

	amount := numeric.ScaleDown(p.Amount.Value(), token.Decimals)
	price, err := h.pricer.Resolve(ctx, token.Symbol)
	if err != nil {
		return err
	}
	usd := price.Mul(amount)

	token.TVL = token.TVL.Sub(amount)
	token.TVLUSD = token.TVLUSD.Sub(usd)
	if err = reg.SaveToken(ctx, token); err != nil {
		return err
	}

	rowID := fmt.Sprintf("%d-%s-%s", ev.Timestamp, strings.ToLower(ev.TxHash), token.ID)
	row := entity.Withdrawal{
		ID:         rowID,
		Timestamp:  ev.Timestamp,
		PoolID:     pool.ID,
		TokenID:    token.ID,
		Amount:     amount,
		AmountUSD:  usd,
		Withdrawer: strings.ToLower(p.Withdrawer),
	}
	if err = reg.Store().Put(ctx, entity.KindWithdrawRecord, rowID, &row); err != nil {
		return err
	}

	return h.engine.RecordWithdrawal(ctx, reg, ev.Timestamp, usd)
}

// handleSwapped processes a direct pool swap between two short-tail assets.
func (h *Handlers) handleSwapped(ctx context.Context, reg *entities.Registry, ev *domain.Event) error {
	p, err := ev.Swapped()
	if err != nil {
		return err
	}

	in, err := reg.LoadToken(ctx, p.InAsset)
	if err != nil {
		return err
	}
	out, err := reg.LoadToken(ctx, p.OutAsset)
	if err != nil {
		return err
	}

	amountIn := numeric.ScaleDown(p.InAmount.Value(), in.Decimals)
	amountOut := numeric.ScaleDown(p.OutAmount.Value(), out.Decimals)

	inPrice, err := h.pricer.Resolve(ctx, in.Symbol)
	if err != nil {
		return err
	}
	outPrice, err := h.pricer.Resolve(ctx, out.Symbol)
	if err != nil {
		return err
	}

	inUSD := inPrice.Mul(amountIn)
	outUSD := outPrice.Mul(amountOut)
	volume := inUSD.Add(outUSD).Div(two)
	fee := maxZero(inUSD.Sub(outUSD))

	in.TxCount++
	in.Volume = in.Volume.Add(amountIn)
	in.VolumeUSD = in.VolumeUSD.Add(inUSD)
	in.TVL = in.TVL.Add(amountIn)
	in.TVLUSD = in.TVLUSD.Add(inUSD)

	out.TxCount++
	out.Volume = out.Volume.Add(amountOut)
	out.VolumeUSD = out.VolumeUSD.Add(outUSD)
	out.TVL = out.TVL.Sub(amountOut)
	out.TVLUSD = out.TVLUSD.Sub(outUSD)

	src, err := reg.LoadTransactionSource(ctx, p.AuxiliaryData)
	if err != nil {
		return err
	}
	src.TxCount++
	if err = reg.SaveSource(ctx, src); err != nil {
		return err
	}

	pair, err := reg.LoadPair(ctx, in.ID, out.ID)
	if err != nil {
		return err
	}
	pair.TxCount++
	pair.VolumeUSD = pair.VolumeUSD.Add(volume)
	if err = reg.SavePair(ctx, pair); err != nil {
		return err
	}

	_, isNew, err := reg.UpsertUser(ctx, ev.TxFrom, ev.Timestamp, volume)
	if err != nil {
		return err
	}

	swapID := domain.MakeEventID(ev.TxHash, ev.LogIndex)
	swap := entity.Swap{
		ID:                  swapID,
		Transaction:         strings.ToLower(ev.TxHash),
		Timestamp:           ev.Timestamp,
		LogIndex:            ev.LogIndex,
		PoolID:              h.poolAddress,
		InToken:             in.ID,
		OutToken:            out.ID,
		Sender:              strings.ToLower(ev.TxFrom),
		Recipient:           strings.ToLower(p.Recipient),
		Origin:              strings.ToLower(ev.TxFrom),
		AmountIn:            amountIn,
		AmountOut:           amountOut,
		AmountInUSD:         inUSD,
		AmountOutUSD:        outUSD,
		PricePerInputToken:  inPrice,
		PricePerOutputToken: outPrice,
		FeeUSD:              fee,
		TransactionSource:   src.ID,
		PairID:              pair.ID,
	}
	if err = reg.Store().Put(ctx, entity.KindSwapRecord, swapID, &swap); err != nil {
		return err
	}

	if err = h.engine.RecordSwap(ctx, reg, ev.Timestamp, volume, fee, isNew); err != nil {
		return err
	}

	// token saves come after the rollup so the incremental tvl wins over
	// the balance refresh a new bucket's valuation performs
	if err = reg.SaveToken(ctx, in); err != nil {
		return err
	}
	return reg.SaveToken(ctx, out)
}

// handleTransfer is purely an attribution fix-up: deposits proxied through
// the farming helper carry the helper as their nominal depositor, and the
// follow-up share transfer names the real one.
func (h *Handlers) handleTransfer(ctx context.Context, reg *entities.Registry, ev *domain.Event) error {
	p, err := ev.Transfer()
	if err != nil {
		return err
	}

	if h.farmingHelper == "" || strings.ToLower(p.From) != h.farmingHelper {
		return nil
	}

	txHash := strings.ToLower(ev.TxHash)

	var idx entity.DepositIndex
	err = reg.Store().Get(ctx, entity.KindDepositIndex, txHash, &idx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	recipient := strings.ToLower(p.To)
	for _, rowID := range idx.Rows {
		var row entity.Deposit
		if err = reg.Store().Get(ctx, entity.KindDepositRecord, rowID, &row); err != nil {
			return err
		}
		row.Depositor = recipient
		if err = reg.Store().Put(ctx, entity.KindDepositRecord, rowID, &row); err != nil {
			return err
		}
	}

	return nil
}

func (h *Handlers) handleCoveDeposited(ctx context.Context, reg *entities.Registry, ev *domain.Event) error {
	p, err := ev.CoveDeposited()
	if err != nil {
		return err
	}

	txHash := strings.ToLower(ev.TxHash)

	cove, err := reg.LoadCove(ctx, p.TokenAddress, p.Depositor, ev.Timestamp, txHash)
	if err != nil {
		return err
	}
	coveAsset, err := reg.LoadToken(ctx, p.TokenAddress)
	if err != nil {
		return err
	}
	stake, err := reg.LoadUserCoveStake(ctx, cove.ID, p.Depositor)
	if err != nil {
		return err
	}

	val, err := h.acct.ValueCove(ctx, reg, coveAsset)
	if err != nil {
		return err
	}

	depTokens := numeric.ScaleDown(p.PoolTokens.Value(), 18)
	post := numeric.ScaleDown(p.DepositSupply.Value(), 18)

	rawSupply, err := h.reader.DepositSupply(ctx, h.coveAddress, coveAsset.ID)
	if err != nil {
		return fmt.Errorf("depositSupply(%s): %w", coveAsset.ID, err)
	}
	chainSupply := numeric.ScaleDown(rawSupply, 18)

	estimated := val.LiquidityUSD.Mul(accounting.OwnedFraction(depTokens, post, chainSupply))

	cove.DepositCount++
	cove.PoolTokenAmount = val.PoolTokenBalance
	cove.LongtailTokenAmount = val.AssetBalance
	cove.TVLUSD = val.LiquidityUSD
	if err = reg.SaveCove(ctx, cove); err != nil {
		return err
	}

	coveAsset.TVL = val.AssetBalance
	coveAsset.TVLUSD = val.PoolShareUSD
	coveAsset.DepositedUSD = coveAsset.DepositedUSD.Add(estimated)
	if err = reg.SaveToken(ctx, coveAsset); err != nil {
		return err
	}

	stake.Active = true
	stake.DepositTokens = stake.DepositTokens.Add(depTokens)
	if err = reg.SaveStake(ctx, stake); err != nil {
		return err
	}

	row := entity.CoveDeposit{
		ID:        txHash,
		Timestamp: ev.Timestamp,
		CoveID:    cove.ID,
		AmountUSD: estimated,
		Depositor: strings.ToLower(p.Depositor),
	}
	if err = reg.Store().Put(ctx, entity.KindCoveDepositRow, txHash, &row); err != nil {
		return err
	}

	return h.engine.RecordCoveActivity(ctx, reg, cove.ID, ev.Timestamp, decimal.Zero, val.AssetPrice, rollup.OpDeposit)
}

// legValue is one side of a cove swap, priced according to its class.
type legValue struct {
	price      decimal.Decimal
	balance    decimal.Decimal
	balanceUSD decimal.Decimal

	// set only for long-tail legs
	covePoolTokens decimal.Decimal
	coveLiquidity  decimal.Decimal
}

func (h *Handlers) valueLeg(ctx context.Context, reg *entities.Registry, token *entity.Token) (legValue, error) {
	switch token.Class {
	case entity.LongTail:
		val, err := h.acct.ValueCove(ctx, reg, token)
		if err != nil {
			return legValue{}, err
		}
		return legValue{
			price:          val.AssetPrice,
			balance:        val.AssetBalance,
			balanceUSD:     val.AssetBalance.Mul(val.AssetPrice),
			covePoolTokens: val.PoolTokenBalance,
			coveLiquidity:  val.LiquidityUSD,
		}, nil
	case entity.ShortTail:
		price, err := h.pricer.Resolve(ctx, token.Symbol)
		if err != nil {
			return legValue{}, err
		}
		balance, err := h.acct.TokenBalance(ctx, token, h.poolAddress)
		if err != nil {
			return legValue{}, err
		}
		return legValue{price: price, balance: balance, balanceUSD: price.Mul(balance)}, nil
	default:
		return legValue{}, fmt.Errorf("unknown asset class %q for %s", token.Class, token.ID)
	}
}

// handleCoveSwapped processes a swap with at least one long-tail leg routed
// through a cove. The native-asset sentinel (zero address) is aliased to the
// wrapped native token before lookup.
func (h *Handlers) handleCoveSwapped(ctx context.Context, reg *entities.Registry, ev *domain.Event) error {
	p, err := ev.Swapped()
	if err != nil {
		return err
	}

	in, err := reg.LoadToken(ctx, h.aliasZero(p.InAsset))
	if err != nil {
		return err
	}
	out, err := reg.LoadToken(ctx, h.aliasZero(p.OutAsset))
	if err != nil {
		return err
	}

	inLeg, err := h.valueLeg(ctx, reg, in)
	if err != nil {
		return err
	}
	outLeg, err := h.valueLeg(ctx, reg, out)
	if err != nil {
		return err
	}

	amountIn := numeric.ScaleDown(p.InAmount.Value(), in.Decimals)
	amountOut := numeric.ScaleDown(p.OutAmount.Value(), out.Decimals)
	inUSD := inLeg.price.Mul(amountIn)
	outUSD := outLeg.price.Mul(amountOut)
	volume := inUSD.Add(outUSD).Div(two)
	fee := maxZero(inUSD.Sub(outUSD))

	in.TxCount++
	in.Volume = in.Volume.Add(amountIn)
	in.VolumeUSD = in.VolumeUSD.Add(inUSD)
	in.TVL = inLeg.balance
	in.TVLUSD = inLeg.balanceUSD
	if err = reg.SaveToken(ctx, in); err != nil {
		return err
	}

	out.TxCount++
	out.Volume = out.Volume.Add(amountOut)
	out.VolumeUSD = out.VolumeUSD.Add(outUSD)
	out.TVL = outLeg.balance
	out.TVLUSD = outLeg.balanceUSD
	if err = reg.SaveToken(ctx, out); err != nil {
		return err
	}

	src, err := reg.LoadTransactionSource(ctx, p.AuxiliaryData)
	if err != nil {
		return err
	}
	src.TxCount++
	if err = reg.SaveSource(ctx, src); err != nil {
		return err
	}

	_, isNew, err := reg.UpsertUser(ctx, ev.TxFrom, ev.Timestamp, volume)
	if err != nil {
		return err
	}

	txHash := strings.ToLower(ev.TxHash)
	swapID := domain.MakeEventID(ev.TxHash, ev.LogIndex)
	swap := entity.Swap{
		ID:                  swapID,
		Transaction:         txHash,
		Timestamp:           ev.Timestamp,
		LogIndex:            ev.LogIndex,
		SwapType:            "COVE",
		InToken:             in.ID,
		OutToken:            out.ID,
		Sender:              strings.ToLower(ev.TxFrom),
		Recipient:           strings.ToLower(p.Recipient),
		Origin:              strings.ToLower(ev.TxFrom),
		AmountIn:            amountIn,
		AmountOut:           amountOut,
		AmountInUSD:         inUSD,
		AmountOutUSD:        outUSD,
		PricePerInputToken:  inLeg.price,
		PricePerOutputToken: outLeg.price,
		FeeUSD:              fee,
		TransactionSource:   src.ID,
	}
	if err = reg.Store().Put(ctx, entity.KindSwapRecord, swapID, &swap); err != nil {
		return err
	}

	// only swaps touching the main pool feed the pool rollup
	if in.Class == entity.ShortTail || out.Class == entity.ShortTail {
		if err = h.engine.RecordSwap(ctx, reg, ev.Timestamp, volume, fee, isNew); err != nil {
			return err
		}
	}

	if in.Class == entity.LongTail {
		if err = h.touchSwappedCove(ctx, reg, ev, in.ID, p.Recipient, volume, inLeg); err != nil {
			return err
		}
	}
	if out.Class == entity.LongTail {
		if err = h.touchSwappedCove(ctx, reg, ev, out.ID, p.Recipient, volume, outLeg); err != nil {
			return err
		}
	}

	return nil
}

func (h *Handlers) touchSwappedCove(ctx context.Context, reg *entities.Registry, ev *domain.Event, assetID, recipient string, volume decimal.Decimal, leg legValue) error {
	cove, err := reg.LoadCove(ctx, assetID, recipient, ev.Timestamp, strings.ToLower(ev.TxHash))
	if err != nil {
		return err
	}

	cove.SwapCount++
	cove.PoolTokenAmount = leg.covePoolTokens
	cove.LongtailTokenAmount = leg.balance
	cove.VolumeUSD = cove.VolumeUSD.Add(volume)
	if !leg.coveLiquidity.IsZero() {
		cove.TVLUSD = leg.coveLiquidity
	}
	if err = reg.SaveCove(ctx, cove); err != nil {
		return err
	}

	return h.engine.RecordCoveActivity(ctx, reg, cove.ID, ev.Timestamp, volume, leg.price, rollup.OpSwap)
}

func (h *Handlers) handleCoveWithdrawn(ctx context.Context, reg *entities.Registry, ev *domain.Event) error {
	p, err := ev.CoveWithdrawn()
	if err != nil {
		return err
	}

	txHash := strings.ToLower(ev.TxHash)

	cove, err := reg.LoadCove(ctx, p.TokenAddress, p.Withdrawer, ev.Timestamp, txHash)
	if err != nil {
		return err
	}
	coveAsset, err := reg.LoadToken(ctx, p.TokenAddress)
	if err != nil {
		return err
	}
	stake, err := reg.LoadUserCoveStake(ctx, cove.ID, p.Withdrawer)
	if err != nil {
		return err
	}

	val, err := h.acct.ValueCove(ctx, reg, coveAsset)
	if err != nil {
		return err
	}

	cove.WithdrawalCount++
	cove.PoolTokenAmount = val.PoolTokenBalance
	cove.LongtailTokenAmount = val.AssetBalance
	cove.TVLUSD = val.LiquidityUSD
	if err = reg.SaveCove(ctx, cove); err != nil {
		return err
	}

	coveAsset.TVL = val.AssetBalance
	coveAsset.TVLUSD = val.AssetBalance.Mul(val.AssetPrice)
	if err = reg.SaveToken(ctx, coveAsset); err != nil {
		return err
	}

	stake.DepositTokens = stake.DepositTokens.Sub(numeric.ScaleDown(p.PoolTokens.Value(), 18))
	if stake.DepositTokens.Sign() <= 0 {
		stake.Active = false
	}
	if err = reg.SaveStake(ctx, stake); err != nil {
		return err
	}

	return h.engine.RecordCoveActivity(ctx, reg, cove.ID, ev.Timestamp, decimal.Zero, val.AssetPrice, rollup.OpWithdrawal)
}

func (h *Handlers) aliasZero(addr string) string {
	if strings.ToLower(addr) == addressZero && h.wrappedNative != "" {
		return h.wrappedNative
	}
	return addr
}

func maxZero(v decimal.Decimal) decimal.Decimal {
	if v.Sign() < 0 {
		return decimal.Zero
	}
	return v
}
