package entities

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"

	"clipperstats/internal/chain"
	"clipperstats/internal/config"
	"clipperstats/internal/entity"
	"clipperstats/internal/numeric"
	"clipperstats/internal/store"
)

// Attribution tags for transactions whose auxiliary data is absent or
// unreadable.
const (
	SourceClipper = "Clipper"
	SourceUnknown = "Unknown"
)

// Registry is the load-or-create accessor layer. Every accessor persists a
// freshly created entity with zeroed counters before returning it, so the
// entity is visible to any later read within the same event. Callers mutate
// and save again; the two-phase write is deliberate, not an accident of the
// store API.
type Registry struct {
	log       logger.Logger
	store     store.Store
	erc20     chain.ERC20Reader
	cfg       *config.ChainConfig
	shortTail map[string]bool
}

func NewRegistry(log logger.Logger, st store.Store, erc20 chain.ERC20Reader, cfg *config.ChainConfig) *Registry {
	shortTail := make(map[string]bool, len(cfg.ShortTailAssets))
	for _, addr := range cfg.ShortTailAssets {
		shortTail[strings.ToLower(addr)] = true
	}

	return &Registry{
		log:       log,
		store:     st,
		erc20:     erc20,
		cfg:       cfg,
		shortTail: shortTail,
	}
}

// WithStore returns a registry bound to a different store. Handlers use it
// to run all accessors against the per-event write overlay.
func (r *Registry) WithStore(st store.Store) *Registry {
	cp := *r
	cp.store = st
	return &cp
}

// Store exposes the bound document store for direct record writes.
func (r *Registry) Store() store.Store {
	return r.store
}

// LoadToken loads a token aggregate or creates it with metadata probed from
// the chain. Metadata probes are best-effort: a reverted symbol or name
// reads as "unknown", reverted decimals as 18.
func (r *Registry) LoadToken(ctx context.Context, address string) (*entity.Token, error) {
	id := strings.ToLower(address)

	var token entity.Token
	err := r.store.Get(ctx, entity.KindToken, id, &token)
	if err == nil {
		return &token, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	token = entity.Token{
		ID:           id,
		Symbol:       r.probeSymbol(ctx, address),
		Name:         r.probeName(ctx, address),
		Decimals:     r.probeDecimals(ctx, address),
		Class:        r.classify(id),
		Volume:       decimal.Zero,
		VolumeUSD:    decimal.Zero,
		TVL:          decimal.Zero,
		TVLUSD:       decimal.Zero,
		Deposited:    decimal.Zero,
		DepositedUSD: decimal.Zero,
	}
	if token.Class == entity.LongTail {
		token.CoveID = id // a cove is keyed by its long-tail asset address
	}

	if err = r.SaveToken(ctx, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *Registry) SaveToken(ctx context.Context, token *entity.Token) error {
	return r.store.Put(ctx, entity.KindToken, token.ID, token)
}

func (r *Registry) classify(id string) entity.AssetClass {
	if r.shortTail[id] {
		return entity.ShortTail
	}
	return entity.LongTail
}

func (r *Registry) probeSymbol(ctx context.Context, address string) string {
	sym, err := r.erc20.Symbol(ctx, address)
	if err != nil {
		r.log.Debugf("Symbol probe reverted for %s, using default: %v", address, err)
		return "unknown"
	}
	return sym
}

func (r *Registry) probeName(ctx context.Context, address string) string {
	name, err := r.erc20.Name(ctx, address)
	if err != nil {
		r.log.Debugf("Name probe reverted for %s, using default: %v", address, err)
		return "unknown"
	}
	return name
}

func (r *Registry) probeDecimals(ctx context.Context, address string) int32 {
	dec, err := r.erc20.Decimals(ctx, address)
	if err != nil {
		r.log.Debugf("Decimals probe reverted for %s, using default 18: %v", address, err)
		return 18
	}
	return dec
}

// LoadPool loads or creates the pool singleton for this deployment.
func (r *Registry) LoadPool(ctx context.Context) (*entity.Pool, error) {
	id := strings.ToLower(r.cfg.PoolAddress)

	var pool entity.Pool
	err := r.store.Get(ctx, entity.KindPool, id, &pool)
	if err == nil {
		return &pool, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	pool = entity.Pool{
		ID:               id,
		VolumeUSD:        decimal.Zero,
		AvgTrade:         decimal.Zero,
		FeeUSD:           decimal.Zero,
		AvgTradeFee:      decimal.Zero,
		AvgFeeInBps:      decimal.Zero,
		DepositedUSD:     decimal.Zero,
		AvgDeposit:       decimal.Zero,
		WithdrewUSD:      decimal.Zero,
		AvgWithdraw:      decimal.Zero,
		PoolTokensSupply: decimal.Zero,
	}

	if err = r.SavePool(ctx, &pool); err != nil {
		return nil, err
	}
	return &pool, nil
}

func (r *Registry) SavePool(ctx context.Context, pool *entity.Pool) error {
	return r.store.Put(ctx, entity.KindPool, pool.ID, pool)
}

// LoadCove loads a cove or creates it, recording the opener and opening
// transaction. Creating a cove also creates its long-tail token aggregate.
func (r *Registry) LoadCove(ctx context.Context, tokenAddress, opener string, timestamp int64, txHash string) (*entity.Cove, error) {
	id := strings.ToLower(tokenAddress)

	var cove entity.Cove
	err := r.store.Get(ctx, entity.KindCove, id, &cove)
	if err == nil {
		return &cove, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	coveAsset, err := r.LoadToken(ctx, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("load cove asset: %w", err)
	}

	cove = entity.Cove{
		ID:                  id,
		LongtailAsset:       coveAsset.ID,
		Opener:              strings.ToLower(opener),
		OpenedAt:            timestamp,
		Transaction:         txHash,
		PoolTokenAmount:     decimal.Zero,
		LongtailTokenAmount: decimal.Zero,
		TVLUSD:              decimal.Zero,
		VolumeUSD:           decimal.Zero,
	}

	if err = r.SaveCove(ctx, &cove); err != nil {
		return nil, err
	}
	return &cove, nil
}

func (r *Registry) SaveCove(ctx context.Context, cove *entity.Cove) error {
	return r.store.Put(ctx, entity.KindCove, cove.ID, cove)
}

func (r *Registry) LoadUserCoveStake(ctx context.Context, coveID, wallet string) (*entity.UserCoveStake, error) {
	id := coveID + "-" + strings.ToLower(wallet)

	var stake entity.UserCoveStake
	err := r.store.Get(ctx, entity.KindUserCoveStake, id, &stake)
	if err == nil {
		return &stake, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	stake = entity.UserCoveStake{
		ID:            id,
		CoveID:        coveID,
		User:          strings.ToLower(wallet),
		DepositTokens: decimal.Zero,
		Active:        true,
	}

	if err = r.SaveStake(ctx, &stake); err != nil {
		return nil, err
	}
	return &stake, nil
}

func (r *Registry) SaveStake(ctx context.Context, stake *entity.UserCoveStake) error {
	return r.store.Put(ctx, entity.KindUserCoveStake, stake.ID, stake)
}

// LoadPair loads the unordered pair aggregate for two assets, probing both
// key orderings before creating a new one keyed by (inAsset, outAsset).
func (r *Registry) LoadPair(ctx context.Context, inAsset, outAsset string) (*entity.Pair, error) {
	in, out := strings.ToLower(inAsset), strings.ToLower(outAsset)
	pairID := in + out
	altPairID := out + in

	var pair entity.Pair
	err := r.store.Get(ctx, entity.KindPair, pairID, &pair)
	if err == nil {
		return &pair, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	err = r.store.Get(ctx, entity.KindPair, altPairID, &pair)
	if err == nil {
		return &pair, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	pair = entity.Pair{
		ID:        pairID,
		Asset0:    in,
		Asset1:    out,
		VolumeUSD: decimal.Zero,
	}

	if err = r.SavePair(ctx, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

func (r *Registry) SavePair(ctx context.Context, pair *entity.Pair) error {
	return r.store.Put(ctx, entity.KindPair, pair.ID, pair)
}

// SourceTag maps event auxiliary data to an attribution tag. All-zero bytes
// are the stale in-house tag, unreadable bytes map to the unknown sentinel.
func SourceTag(aux []byte) string {
	allZero := true
	for _, b := range aux {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return SourceClipper
	}

	tag := strings.TrimRight(string(aux), "\x00")
	for _, r := range tag {
		if !unicode.IsPrint(r) {
			return SourceUnknown
		}
	}
	if tag == "" {
		return SourceUnknown
	}
	return tag
}

func (r *Registry) LoadTransactionSource(ctx context.Context, aux []byte) (*entity.TransactionSource, error) {
	id := SourceTag(aux)

	var src entity.TransactionSource
	err := r.store.Get(ctx, entity.KindTxSource, id, &src)
	if err == nil {
		return &src, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	src = entity.TransactionSource{ID: id}
	if err = r.SaveSource(ctx, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

func (r *Registry) SaveSource(ctx context.Context, src *entity.TransactionSource) error {
	return r.store.Put(ctx, entity.KindTxSource, src.ID, src)
}

// UpsertUser creates or updates the wallet's lifetime aggregate and reports
// whether the wallet was seen for the first time. The creation signal feeds
// the pool's unique-user counter exactly once per wallet.
func (r *Registry) UpsertUser(ctx context.Context, wallet string, timestamp int64, volumeUSD decimal.Decimal) (*entity.User, bool, error) {
	id := strings.ToLower(wallet)

	var user entity.User
	isNew := false

	err := r.store.Get(ctx, entity.KindUser, id, &user)
	if errors.Is(err, store.ErrNotFound) {
		isNew = true
		user = entity.User{
			ID:               id,
			FirstTxTimestamp: timestamp,
			VolumeUSD:        decimal.Zero,
		}
	} else if err != nil {
		return nil, false, err
	}

	user.LastTxTimestamp = timestamp
	user.VolumeUSD = user.VolumeUSD.Add(volumeUSD)
	user.TxCount++

	if err = r.store.Put(ctx, entity.KindUser, id, &user); err != nil {
		return nil, false, err
	}
	return &user, isNew, nil
}

// LoadPoolStatus loads or creates the pool bucket containing timestamp at
// the given interval. poolValue computes the mark-to-market pool liquidity;
// it is invoked only when the bucket does not exist yet, and the result is
// frozen into the bucket. A nil poolValue records zero.
func (r *Registry) LoadPoolStatus(ctx context.Context, pool *entity.Pool, timestamp, interval int64, poolValue func(context.Context) (decimal.Decimal, error)) (*entity.PoolStatus, error) {
	kind := entity.KindHourlyPool
	if interval == numeric.OneDay {
		kind = entity.KindDailyPool
	}

	from, to := numeric.BucketBounds(timestamp, interval)
	id := numeric.BucketID(pool.ID, from, to)

	var status entity.PoolStatus
	err := r.store.Get(ctx, kind, id, &status)
	if err == nil {
		return &status, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	value := decimal.Zero
	if poolValue != nil {
		if value, err = poolValue(ctx); err != nil {
			return nil, err
		}
	}

	status = entity.PoolStatus{
		ID:               id,
		PoolID:           pool.ID,
		From:             from,
		To:               to,
		VolumeUSD:        decimal.Zero,
		AvgTrade:         decimal.Zero,
		FeeUSD:           decimal.Zero,
		AvgTradeFee:      decimal.Zero,
		AvgFeeInBps:      decimal.Zero,
		DepositedUSD:     decimal.Zero,
		AvgDeposit:       decimal.Zero,
		WithdrewUSD:      decimal.Zero,
		AvgWithdraw:      decimal.Zero,
		PoolTokensSupply: decimal.Zero,
		PoolValueUSD:     value,
	}

	if err = r.SavePoolStatus(ctx, &status, interval); err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *Registry) SavePoolStatus(ctx context.Context, status *entity.PoolStatus, interval int64) error {
	kind := entity.KindHourlyPool
	if interval == numeric.OneDay {
		kind = entity.KindDailyPool
	}
	return r.store.Put(ctx, kind, status.ID, status)
}

// LoadCoveStatus loads or creates a per-cove bucket; coveID empty selects
// the global bucket that aggregates all coves.
func (r *Registry) LoadCoveStatus(ctx context.Context, coveID string, timestamp, interval int64) (*entity.CoveStatus, error) {
	kind := coveStatusKind(coveID, interval)

	scope := coveID
	if scope == "" {
		scope = "global"
	}

	from, to := numeric.BucketBounds(timestamp, interval)
	id := numeric.BucketID(scope, from, to)

	var status entity.CoveStatus
	err := r.store.Get(ctx, kind, id, &status)
	if err == nil {
		return &status, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	status = entity.CoveStatus{
		ID:          id,
		CoveID:      coveID,
		From:        from,
		To:          to,
		VolumeUSD:   decimal.Zero,
		AvgTrade:    decimal.Zero,
		LatestPrice: decimal.Zero,
	}

	if err = r.SaveCoveStatus(ctx, &status, interval); err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *Registry) SaveCoveStatus(ctx context.Context, status *entity.CoveStatus, interval int64) error {
	return r.store.Put(ctx, coveStatusKind(status.CoveID, interval), status.ID, status)
}

func coveStatusKind(coveID string, interval int64) string {
	switch {
	case coveID == "" && interval == numeric.OneDay:
		return entity.KindDailyGlobal
	case coveID == "":
		return entity.KindHourlyGlobal
	case interval == numeric.OneDay:
		return entity.KindDailyCove
	default:
		return entity.KindHourlyCove
	}
}
