package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gitlab.com/nevasik7/alerting/logger"

	"clipperstats/internal/config"
	rdb "clipperstats/internal/stores/redis"
)

// bloomIndex is the membership prefilter in front of the exact keys. A
// negative answer is authoritative, a positive one is only probable.
type bloomIndex interface {
	Add(ctx context.Context, item string) (bool, error)
	Exists(ctx context.Context, item string) (bool, error)
}

// RedisDedupe dedupes event ids across indexer restarts with TTL'd keys.
// The TTL only has to outlive the feed's redelivery horizon, not the whole
// chain history: replays from genesis run against a wiped store anyway.
type RedisDedupe struct {
	log    logger.Logger
	rdb    *rdb.Client
	ttl    time.Duration
	prefix string
	bloom  bloomIndex // optional prefilter
}

func NewRedisDeduper(log logger.Logger, cfg *config.DedupeConfig, rdb *rdb.Client, bloom *Bloom) (*RedisDedupe, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required to the redis deduper")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required to the redis deduper")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "clipperstats:dedupe:"
	}

	d := &RedisDedupe{
		log:    log,
		rdb:    rdb,
		ttl:    cfg.TTL,
		prefix: prefix,
	}
	if bloom != nil {
		d.bloom = bloom
	}
	return d, nil
}

func (d *RedisDedupe) IsDuplicate(ctx context.Context, id string) (bool, error) {
	// the bloom can only prove absence. A positive may be a false positive
	// and skipping on it would drop an original event, so it just routes
	// us to the exact key check.
	if d.bloom != nil {
		if exists, err := d.bloom.Exists(ctx, id); err == nil && !exists {
			return false, nil
		}
	}

	err := d.rdb.Get(ctx, d.prefix+id).Err()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		d.log.Errorf("Redis Get error=%v", err)
		return false, fmt.Errorf("redis Get error=%v", err)
	}
	return true, nil
}

func (d *RedisDedupe) MarkSeen(ctx context.Context, id string) error {
	if err := d.rdb.Set(ctx, d.prefix+id, 1, d.ttl).Err(); err != nil {
		d.log.Errorf("Redis Set error=%v", err)
		return fmt.Errorf("redis Set error=%v", err)
	}

	if d.bloom != nil {
		if _, err := d.bloom.Add(ctx, id); err != nil {
			d.log.Errorf("Failed to add bloom id %s, err=%v", id, err)
		}
	}
	return nil
}

func (d *RedisDedupe) Health(ctx context.Context) error {
	return d.rdb.Ping(ctx).Err()
}
