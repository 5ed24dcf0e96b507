package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipperstats/internal/store"
	rdb "clipperstats/internal/stores/redis"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := &rdb.Client{
		Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
	}
	t.Cleanup(func() { _ = client.Close() })

	return New(client, "test:")
}

type poolDoc struct {
	ID      string `json:"id"`
	TxCount int64  `json:"tx_count"`
}

func TestStore_GetMissing(t *testing.T) {
	s := setupTestStore(t)

	var out poolDoc
	err := s.Get(context.Background(), "pool", "0x01", &out)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_PutThenGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "pool", "0x01", poolDoc{ID: "0x01", TxCount: 5}))

	var out poolDoc
	require.NoError(t, s.Get(ctx, "pool", "0x01", &out))
	assert.Equal(t, int64(5), out.TxCount)
}

func TestStore_OverwriteInPlace(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "pool", "0x01", poolDoc{TxCount: 1}))
	require.NoError(t, s.Put(ctx, "pool", "0x01", poolDoc{TxCount: 2}))

	var out poolDoc
	require.NoError(t, s.Get(ctx, "pool", "0x01", &out))
	assert.Equal(t, int64(2), out.TxCount)
}

func TestStore_KindsAreNamespaced(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "pool", "x", poolDoc{TxCount: 1}))

	var out poolDoc
	err := s.Get(ctx, "token", "x", &out)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
