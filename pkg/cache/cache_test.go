package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheGetSet(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()

	_, err := mc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, mc.Set(ctx, "k", []byte("v1"), time.Minute))
	v, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)

	require.NoError(t, mc.Delete(ctx, "k"))
	_, err = mc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }
	require.NoError(t, mc.Set(ctx, "k", []byte("v"), time.Minute))

	now = now.Add(2 * time.Minute)
	_, err := mc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryCleanup(0))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, mc.Set(ctx, "b", []byte("2"), time.Minute))
	_, err := mc.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, mc.Set(ctx, "c", []byte("3"), time.Minute))

	_, err = mc.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = mc.Get(ctx, "a")
	assert.NoError(t, err)
	assert.Equal(t, 2, mc.Len())
}

func TestDeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, Key("series", "XAGUSD", "H4"), []byte("x"), 0))
	require.NoError(t, mc.Set(ctx, Key("series", "XAUUSD", "H4"), []byte("y"), 0))
	require.NoError(t, mc.Set(ctx, Key("other", 1), []byte("z"), 0))

	require.NoError(t, mc.DeleteByPrefix(ctx, "series:"))
	assert.Equal(t, 1, mc.Len())
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()

	type point struct {
		X float64 `json:"x"`
	}
	require.NoError(t, SetJSON(ctx, mc, "p", []point{{1.5}, {2}}, time.Minute))
	got, err := GetJSON[[]point](ctx, mc, "p")
	require.NoError(t, err)
	assert.Equal(t, []point{{1.5}, {2}}, got)

	require.NoError(t, mc.Set(ctx, "bad", []byte("{"), time.Minute))
	_, err = GetJSON[[]point](ctx, mc, "bad")
	assert.Error(t, err)
}

func TestLayeredBackfillsL1(t *testing.T) {
	ctx := context.Background()
	l2 := NewMemoryCache(WithMemoryCleanup(0))
	lc := NewLayeredCache(l2, 10)
	defer lc.Close()

	require.NoError(t, l2.Set(ctx, "k", []byte("v"), time.Minute))
	v, err := lc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
	assert.Equal(t, 1, lc.l1.Len())

	require.NoError(t, lc.Set(ctx, "w", []byte("x"), time.Minute))
	v, err = l2.Get(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), v)

	require.NoError(t, lc.Delete(ctx, "k"))
	_, err = lc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "series:XAGUSD:H4:500", Key("series", "XAGUSD", "H4", 500))
}
