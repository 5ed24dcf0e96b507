package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gitlab.com/nevasik7/alerting/logger"

	"clipperstats/internal/dedupe"
	"clipperstats/internal/domain"
	"clipperstats/internal/entities"
	"clipperstats/internal/entity"
	"clipperstats/internal/handler"
	"clipperstats/internal/metrics"
	"clipperstats/internal/numeric"
	"clipperstats/internal/pubsub"
	"clipperstats/internal/store"
	"clipperstats/internal/stores/clickhouse"
)

var (
	ErrNotFound        = errors.New("entity not found")
	ErrUnknownInterval = errors.New("unknown interval")
)

// EventArchive receives every processed event for long-term storage.
type EventArchive interface {
	Enqueue(row clickhouse.EventRecord) error
	Health(ctx context.Context) error
}

// UpdateNotice is the broadcast payload published after each applied event.
// Subscribers re-read the affected aggregates through the API; the notice
// itself carries identity only.
type UpdateNotice struct {
	Kind        domain.Kind `json:"kind"`
	EventID     string      `json:"event_id"`
	BlockNumber uint64      `json:"block_number"`
	Timestamp   int64       `json:"timestamp"`
}

// Processor is the single orchestration point of the pipeline:
// dedupe -> apply handlers on a write overlay -> flush -> archive -> broadcast.
// It is driven by one consumer goroutine; events must arrive in canonical
// chain order for the aggregates to be deterministic.
type Processor struct {
	log         logger.Logger
	base        store.Store
	registry    *entities.Registry
	handlers    *handler.Handlers
	deduper     dedupe.Deduplicator
	archive     EventArchive
	broadcaster pubsub.Broadcaster
}

func NewProcessor(
	log logger.Logger,
	base store.Store,
	registry *entities.Registry,
	handlers *handler.Handlers,
	deduper dedupe.Deduplicator,
	archive EventArchive,
	broadcaster pubsub.Broadcaster,
) *Processor {
	return &Processor{
		log:         log,
		base:        base,
		registry:    registry,
		handlers:    handlers,
		deduper:     deduper,
		archive:     archive,
		broadcaster: broadcaster,
	}
}

func (p *Processor) ProcessEvent(ctx context.Context, ev *domain.Event) error {
	id := ev.ID()

	dup, err := p.deduper.IsDuplicate(ctx, id)
	if err != nil {
		return fmt.Errorf("dedup check failed for %s: %w", id, err)
	}
	if dup {
		metrics.EventsDuplicate.Inc()
		p.log.Debugf("Duplicate event ignored: %s", id)
		return nil
	}

	start := time.Now()

	// all handler writes land together or not at all
	overlay := store.NewOverlay(p.base)
	if err = p.handlers.Apply(ctx, p.registry.WithStore(overlay), ev); err != nil {
		metrics.EventsFailed.WithLabelValues(string(ev.Kind)).Inc()
		return fmt.Errorf("apply %s failed for %s: %w", ev.Kind, id, err)
	}
	if err = overlay.Flush(ctx); err != nil {
		metrics.EventsFailed.WithLabelValues(string(ev.Kind)).Inc()
		return fmt.Errorf("flush failed for %s: %w", id, err)
	}

	metrics.EventsProcessed.WithLabelValues(string(ev.Kind)).Inc()
	metrics.ProcessDuration.Observe(time.Since(start).Seconds())

	// archive and broadcast are best-effort; the aggregate state is already
	// durable and a dropped row or notice does not corrupt it
	if p.archive != nil {
		if err = p.archive.Enqueue(buildRecord(ev)); err != nil {
			p.log.Errorf("Failed to archive event %s: %v", id, err)
		}
	}
	if p.broadcaster != nil {
		notice := UpdateNotice{
			Kind:        ev.Kind,
			EventID:     id,
			BlockNumber: ev.BlockNumber,
			Timestamp:   ev.Timestamp,
		}
		if err = p.broadcaster.Publish(ctx, string(ev.Kind), notice); err != nil {
			p.log.Errorf("Failed to broadcast %s: %v", id, err)
		}
	}

	if err = p.deduper.MarkSeen(ctx, id); err != nil {
		p.log.Errorf("Failed to mark event as seen %s: %v", id, err)
	}

	p.log.Debugf("Event processed: %s kind=%s block=%d", id, ev.Kind, ev.BlockNumber)
	return nil
}

// buildRecord flattens the raw event for the archive table. Param decode
// failures cannot happen here (Apply already decoded them), but a partially
// filled row is still preferable to a dropped one.
func buildRecord(ev *domain.Event) clickhouse.EventRecord {
	rec := clickhouse.EventRecord{
		EventTime:     time.Unix(ev.Timestamp, 0).UTC(),
		EventID:       ev.ID(),
		Kind:          string(ev.Kind),
		TxHash:        strings.ToLower(ev.TxHash),
		LogIndex:      ev.LogIndex,
		BlockNumber:   ev.BlockNumber,
		Contract:      strings.ToLower(ev.Contract),
		SchemaVersion: ev.SchemaVer,
	}

	switch ev.Kind {
	case domain.KindDeposited:
		if p, err := ev.Deposited(); err == nil {
			rec.Wallet = strings.ToLower(p.Depositor)
			rec.AmountInRaw = p.PoolTokens.Value().String()
		}
	case domain.KindWithdrawn:
		if p, err := ev.Withdrawn(); err == nil {
			rec.Wallet = strings.ToLower(p.Withdrawer)
			rec.AmountOutRaw = p.PoolTokens.Value().String()
		}
	case domain.KindAssetWithdrawn:
		if p, err := ev.AssetWithdrawn(); err == nil {
			rec.Wallet = strings.ToLower(p.Withdrawer)
			rec.AssetOut = strings.ToLower(p.Asset)
			rec.AmountOutRaw = p.Amount.Value().String()
		}
	case domain.KindSwapped, domain.KindCoveSwapped:
		if p, err := ev.Swapped(); err == nil {
			rec.Wallet = strings.ToLower(p.Recipient)
			rec.AssetIn = strings.ToLower(p.InAsset)
			rec.AssetOut = strings.ToLower(p.OutAsset)
			rec.AmountInRaw = p.InAmount.Value().String()
			rec.AmountOutRaw = p.OutAmount.Value().String()
		}
	case domain.KindTransfer:
		if p, err := ev.Transfer(); err == nil {
			rec.Wallet = strings.ToLower(p.To)
			rec.AmountInRaw = p.Amount.Value().String()
		}
	case domain.KindCoveDeposited:
		if p, err := ev.CoveDeposited(); err == nil {
			rec.Wallet = strings.ToLower(p.Depositor)
			rec.AssetIn = strings.ToLower(p.TokenAddress)
			rec.AmountInRaw = p.PoolTokens.Value().String()
		}
	case domain.KindCoveWithdrawn:
		if p, err := ev.CoveWithdrawn(); err == nil {
			rec.Wallet = strings.ToLower(p.Withdrawer)
			rec.AssetOut = strings.ToLower(p.TokenAddress)
			rec.AmountOutRaw = p.PoolTokens.Value().String()
		}
	}

	return rec
}

// IntervalSeconds resolves an interval query parameter.
func IntervalSeconds(name string) (int64, error) {
	switch name {
	case "", "hour", "hourly":
		return numeric.OneHour, nil
	case "day", "daily":
		return numeric.OneDay, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownInterval, name)
	}
}

// Read-side accessors for the HTTP API. These go straight to the base store
// and never create missing entities the way registry loads do.

func (p *Processor) getDoc(ctx context.Context, kind, key string, out any) error {
	err := p.base.Get(ctx, kind, key, out)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (p *Processor) GetPool(ctx context.Context, poolID string) (*entity.Pool, error) {
	var pool entity.Pool
	if err := p.getDoc(ctx, entity.KindPool, strings.ToLower(poolID), &pool); err != nil {
		return nil, err
	}
	return &pool, nil
}

func (p *Processor) GetPoolStatus(ctx context.Context, poolID string, timestamp, interval int64) (*entity.PoolStatus, error) {
	kind := entity.KindHourlyPool
	if interval == numeric.OneDay {
		kind = entity.KindDailyPool
	}
	from, to := numeric.BucketBounds(timestamp, interval)

	var status entity.PoolStatus
	if err := p.getDoc(ctx, kind, numeric.BucketID(strings.ToLower(poolID), from, to), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (p *Processor) GetToken(ctx context.Context, address string) (*entity.Token, error) {
	var token entity.Token
	if err := p.getDoc(ctx, entity.KindToken, strings.ToLower(address), &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func (p *Processor) GetCove(ctx context.Context, id string) (*entity.Cove, error) {
	var cove entity.Cove
	if err := p.getDoc(ctx, entity.KindCove, strings.ToLower(id), &cove); err != nil {
		return nil, err
	}
	return &cove, nil
}

// GetCoveStatus reads a cove bucket; coveID empty selects the global bucket.
func (p *Processor) GetCoveStatus(ctx context.Context, coveID string, timestamp, interval int64) (*entity.CoveStatus, error) {
	coveID = strings.ToLower(coveID)

	kind := coveStatusKind(coveID, interval)
	scope := coveID
	if scope == "" {
		scope = "global"
	}
	from, to := numeric.BucketBounds(timestamp, interval)

	var status entity.CoveStatus
	if err := p.getDoc(ctx, kind, numeric.BucketID(scope, from, to), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (p *Processor) GetUser(ctx context.Context, wallet string) (*entity.User, error) {
	var user entity.User
	if err := p.getDoc(ctx, entity.KindUser, strings.ToLower(wallet), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetPair probes both key orderings, mirroring how pairs are created.
func (p *Processor) GetPair(ctx context.Context, asset0, asset1 string) (*entity.Pair, error) {
	a, b := strings.ToLower(asset0), strings.ToLower(asset1)

	var pair entity.Pair
	err := p.getDoc(ctx, entity.KindPair, a+b, &pair)
	if err == nil {
		return &pair, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if err = p.getDoc(ctx, entity.KindPair, b+a, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

func (p *Processor) GetSource(ctx context.Context, tag string) (*entity.TransactionSource, error) {
	var src entity.TransactionSource
	if err := p.getDoc(ctx, entity.KindTxSource, tag, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

func (p *Processor) GetStake(ctx context.Context, coveID, wallet string) (*entity.UserCoveStake, error) {
	id := strings.ToLower(coveID) + "-" + strings.ToLower(wallet)

	var stake entity.UserCoveStake
	if err := p.getDoc(ctx, entity.KindUserCoveStake, id, &stake); err != nil {
		return nil, err
	}
	return &stake, nil
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

func (p *Processor) CheckDependency(ctx context.Context) error {
	errDependency := make([]string, 0, 3)

	if err := p.deduper.Health(ctx); err != nil {
		errDependency = append(errDependency, fmt.Sprintf("deduper: %v", err))
	}

	if p.archive != nil {
		if err := p.archive.Health(ctx); err != nil {
			errDependency = append(errDependency, fmt.Sprintf("ClickHouse connection error: %v", err))
		}
	}

	if p.broadcaster != nil {
		if err := p.broadcaster.Health(ctx); err != nil {
			errDependency = append(errDependency, "NATS: connection not ready")
		}
	}

	if len(errDependency) > 0 {
		return fmt.Errorf("dependency check failed: %v", strings.Join(errDependency, "; "))
	}

	p.log.Debugf("All dependency check passed")
	return nil
}
