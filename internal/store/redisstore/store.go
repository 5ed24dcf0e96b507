package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"clipperstats/internal/store"
	rdb "clipperstats/internal/stores/redis"
)

// Store keeps every aggregate document as a JSON value under
// "<prefix><kind>:<key>". Redis is the system of record for derived state;
// replaying the event log from genesis rebuilds it from scratch.
type Store struct {
	rdb    *rdb.Client
	prefix string
}

func New(client *rdb.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "clipperstats:"
	}
	return &Store{rdb: client, prefix: prefix}
}

func (s *Store) docKey(kind, key string) string {
	return s.prefix + kind + ":" + key
}

func (s *Store) Get(ctx context.Context, kind, key string, out any) error {
	raw, err := s.rdb.Get(ctx, s.docKey(kind, key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return fmt.Errorf("%w: %s:%s", store.ErrNotFound, kind, key)
	}
	if err != nil {
		return fmt.Errorf("redis get %s:%s: %w", kind, key, err)
	}
	return json.Unmarshal(raw, out)
}

func (s *Store) Put(ctx context.Context, kind, key string, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshal %s:%s: %w", kind, key, err)
	}
	if err = s.rdb.Set(ctx, s.docKey(kind, key), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s:%s: %w", kind, key, err)
	}
	return nil
}
