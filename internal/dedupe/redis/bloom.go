package redis

import (
	"context"
	"errors"
	"fmt"

	"clipperstats/internal/config"
	rdb "clipperstats/internal/stores/redis"
)

// Bloom is a RedisBloom-backed prefilter in front of SETNX. During catch-up
// indexing most delivered events are redelivered duplicates, and one BF.EXISTS
// is cheaper than a write. Requires the RedisBloom module on the server.
type Bloom struct {
	rdb      *rdb.Client
	Key      string
	Capacity int64
	ErrRate  float64
}

func NewBloom(cfg *config.BloomConfig, rdb *rdb.Client) (*Bloom, error) {
	if cfg == nil {
		return nil, errors.New("bloom config is required to the bloom")
	}
	if rdb == nil {
		return nil, errors.New("redis client is required to the bloom")
	}

	key := cfg.Key
	if key == "" {
		key = "clipperstats:dedupe:bf:events"
	}

	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1_000_000
	}

	errRate := cfg.ErrRate
	if errRate <= 0 {
		errRate = 0.001
	}

	return &Bloom{
		rdb:      rdb,
		Key:      key,
		Capacity: capacity,
		ErrRate:  errRate,
	}, nil
}

// Ensure creates the filter if it does not exist. Repeated calls are safe.
func (b *Bloom) Ensure(ctx context.Context) error {
	exists, err := b.rdb.Exists(ctx, b.Key).Result()
	if err != nil {
		return fmt.Errorf("failed to check bloom key: %w", err)
	}
	if exists > 0 {
		return nil
	}

	res := b.rdb.Do(ctx, "BF.RESERVE", b.Key, b.ErrRate, b.Capacity)
	if res.Err() != nil {
		// unknown command here means the module is not loaded
		return fmt.Errorf("BF.RESERVE failed: %w", res.Err())
	}

	return nil
}

// Add inserts an item. Returns true if the item was definitely absent.
func (b *Bloom) Add(ctx context.Context, item string) (bool, error) {
	res := b.rdb.Do(ctx, "BF.ADD", b.Key, item)
	if err := res.Err(); err != nil {
		return false, fmt.Errorf("failed to add item to bloom: %w", err)
	}

	v, err := res.Int()
	return v == 1, err
}

// Exists reports whether the item was probably added before.
func (b *Bloom) Exists(ctx context.Context, item string) (bool, error) {
	res := b.rdb.Do(ctx, "BF.EXISTS", b.Key, item)
	if err := res.Err(); err != nil {
		return false, fmt.Errorf("failed to check item in bloom: %w", err)
	}

	v, err := res.Int()
	return v == 1, err
}
