package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestMemoryStore(ttl time.Duration, maxSize int) (*MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore("test", ttl, maxSize)
	store.now = clock.Now
	return store, clock
}

func TestMemoryStore_SetThenGet(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore(time.Minute, 10)

	require.True(t, store.Set(ctx, "k", map[string]any{"a": 1}, 0))

	value, ok := store.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": 1}, value)

	stats := store.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
}

func TestMemoryStore_ExpiredEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestMemoryStore(time.Minute, 10)

	store.Set(ctx, "k", "v", 0)
	clock.Advance(time.Minute + time.Second)

	_, ok := store.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, int64(1), store.Stats().Misses)
	assert.Equal(t, 0, store.Len(), "expired entry should be removed on lookup")
}

func TestMemoryStore_PerCallTTLOverridesDefault(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestMemoryStore(time.Hour, 10)

	store.Set(ctx, "short", "v", 10*time.Second)
	store.Set(ctx, "long", "v", 0)
	clock.Advance(30 * time.Second)

	_, ok := store.Get(ctx, "short")
	assert.False(t, ok)
	_, ok = store.Get(ctx, "long")
	assert.True(t, ok)
}

func TestMemoryStore_EvictsOldestInserted(t *testing.T) {
	ctx := context.Background()
	const k = 5
	store, _ := newTestMemoryStore(time.Hour, k)

	for i := 0; i <= k; i++ {
		store.Set(ctx, fmt.Sprintf("key-%d", i), i, 0)
	}

	assert.Equal(t, k, store.Len())
	_, ok := store.Get(ctx, "key-0")
	assert.False(t, ok, "first inserted key should be evicted")
	for i := 1; i <= k; i++ {
		_, ok := store.Get(ctx, fmt.Sprintf("key-%d", i))
		assert.True(t, ok, "key-%d should survive", i)
	}
}

func TestMemoryStore_UpdateKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore(time.Hour, 2)

	store.Set(ctx, "a", 1, 0)
	store.Set(ctx, "b", 2, 0)
	store.Set(ctx, "a", 10, 0) // update, no eviction
	assert.Equal(t, 2, store.Len())

	store.Set(ctx, "c", 3, 0) // evicts a, still the oldest insert
	_, ok := store.Get(ctx, "a")
	assert.False(t, ok)
	value, ok := store.Get(ctx, "b")
	assert.True(t, ok)
	assert.Equal(t, 2, value)
}

func TestMemoryStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore(time.Hour, 10)

	store.Set(ctx, "a", 1, 0)
	store.Set(ctx, "b", 2, 0)

	assert.True(t, store.Delete(ctx, "a"))
	assert.False(t, store.Delete(ctx, "a"))
	assert.True(t, store.Clear(ctx))
	assert.Equal(t, 0, store.Len())

	stats := store.Stats()
	assert.Equal(t, int64(0), stats.Hits+stats.Misses, "delete and clear do not count as lookups")
	assert.Equal(t, int64(0), stats.Errors)
}

func TestMemoryStore_HitRate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore(time.Hour, 10)

	assert.Equal(t, 0.0, store.Stats().HitRate)

	store.Set(ctx, "k", "v", 0)
	for i := 0; i < 3; i++ {
		store.Get(ctx, "k")
	}
	store.Get(ctx, "missing")

	stats := store.Stats()
	assert.Equal(t, int64(3), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(4), stats.TotalRequests)
	assert.InDelta(t, 0.75, stats.HitRate, 1e-9)
}

func TestHitRate(t *testing.T) {
	tests := []struct {
		hits, misses int64
		want         float64
	}{
		{0, 0, 0.0},
		{1, 0, 1.0},
		{0, 4, 0.0},
		{2, 6, 0.25},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, HitRate(tt.hits, tt.misses), 1e-9, "H=%d M=%d", tt.hits, tt.misses)
	}
}
