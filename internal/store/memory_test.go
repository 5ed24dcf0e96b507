package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

func TestMemory_GetPut(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	var out doc
	err := m.Get(ctx, "token", "0x01", &out)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Put(ctx, "token", "0x01", doc{Name: "USDC", Count: 2}))
	require.NoError(t, m.Get(ctx, "token", "0x01", &out))
	assert.Equal(t, "USDC", out.Name)
	assert.Equal(t, int64(2), out.Count)
	assert.Equal(t, 1, m.Len())
}

func TestMemory_DumpDeterministic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	a, b := NewMemory(), NewMemory()
	// insertion order differs, dumps must not
	require.NoError(t, a.Put(ctx, "pool", "p1", doc{Name: "x"}))
	require.NoError(t, a.Put(ctx, "token", "t1", doc{Name: "y"}))
	require.NoError(t, b.Put(ctx, "token", "t1", doc{Name: "y"}))
	require.NoError(t, b.Put(ctx, "pool", "p1", doc{Name: "x"}))

	assert.Equal(t, a.Dump(), b.Dump())
}

func TestOverlay_BufferedWritesVisibleToReads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := NewMemory()
	ov := NewOverlay(base)

	require.NoError(t, ov.Put(ctx, "user", "0xaa", doc{Name: "fresh"}))

	// read through the overlay sees the write, the base does not
	var out doc
	require.NoError(t, ov.Get(ctx, "user", "0xaa", &out))
	assert.Equal(t, "fresh", out.Name)
	assert.Zero(t, base.Len())

	require.NoError(t, ov.Flush(ctx))
	assert.Equal(t, 1, base.Len())
	assert.Zero(t, ov.Pending())

	require.NoError(t, base.Get(ctx, "user", "0xaa", &out))
	assert.Equal(t, "fresh", out.Name)
}

func TestOverlay_ReadsFallThrough(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := NewMemory()
	require.NoError(t, base.Put(ctx, "pair", "ab", doc{Count: 7}))

	ov := NewOverlay(base)
	var out doc
	require.NoError(t, ov.Get(ctx, "pair", "ab", &out))
	assert.Equal(t, int64(7), out.Count)
}

func TestOverlay_DiscardLeavesBaseUntouched(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := NewMemory()
	require.NoError(t, base.Put(ctx, "pool", "p", doc{Count: 1}))
	before := base.Dump()

	ov := NewOverlay(base)
	require.NoError(t, ov.Put(ctx, "pool", "p", doc{Count: 99}))
	require.NoError(t, ov.Put(ctx, "token", "t", doc{Count: 5}))

	// overlay dropped without flush: aborted event, no partial writes
	assert.Equal(t, before, base.Dump())
}
