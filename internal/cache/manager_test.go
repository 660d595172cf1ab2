package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_StoreIsIdempotentPerName(t *testing.T) {
	m, err := NewManager(ManagerConfig{Enabled: true, Backend: BackendMemory})
	require.NoError(t, err)

	first := m.Store("entity", time.Hour, 2)
	second := m.Store("entity", time.Minute, 100)
	assert.Same(t, first, second)

	// first call's max size wins
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		second.Set(ctx, k, k, 0)
	}
	assert.Equal(t, 2, first.(*MemoryStore).Len())
}

func TestManager_ConcurrentCreateYieldsOneStore(t *testing.T) {
	m, err := NewManager(ManagerConfig{Enabled: true})
	require.NoError(t, err)

	const workers = 32
	stores := make([]Store, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stores[i] = m.Store("shared", time.Hour, 10)
		}(i)
	}
	wg.Wait()

	for _, s := range stores[1:] {
		assert.Same(t, stores[0], s)
	}
	assert.Equal(t, []string{"shared"}, m.Names())
}

func TestManager_AllStatsAndClearAll(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(ManagerConfig{Enabled: true})
	require.NoError(t, err)

	a := m.Store("a", time.Hour, 10)
	b := m.Store("b", time.Hour, 10)
	a.Set(ctx, "k", 1, 0)
	a.Get(ctx, "k")
	b.Get(ctx, "k")

	stats := m.AllStats()
	require.Len(t, stats, 2)
	assert.Equal(t, int64(1), stats["a"].Hits)
	assert.Equal(t, int64(1), stats["b"].Misses)

	assert.True(t, m.ClearAll(ctx))
	_, ok := a.Get(ctx, "k")
	assert.False(t, ok)
}

type failingClearStore struct {
	NopStore
	cleared bool
}

func (f *failingClearStore) Clear(context.Context) bool {
	f.cleared = true
	return false
}

func TestManager_ClearAllContinuesPastFailure(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(ManagerConfig{Enabled: true})
	require.NoError(t, err)

	bad := &failingClearStore{NopStore: NopStore{name: "bad"}}
	m.stores["bad"] = bad
	good := m.Store("good", time.Hour, 10)
	good.Set(ctx, "k", 1, 0)

	assert.False(t, m.ClearAll(ctx))
	assert.True(t, bad.cleared)
	assert.Equal(t, 0, good.(*MemoryStore).Len())
}

func TestManager_DisabledHandsOutNopStores(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(ManagerConfig{Enabled: false, Backend: BackendRedis})
	require.NoError(t, err)

	store := m.Store("entity", time.Hour, 10)
	assert.IsType(t, &NopStore{}, store)
	assert.False(t, store.Set(ctx, "k", 1, 0))
	_, ok := store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestNewManager_RejectsMisconfiguration(t *testing.T) {
	_, err := NewManager(ManagerConfig{Enabled: true, Backend: BackendRedis})
	assert.Error(t, err)

	_, err = NewManager(ManagerConfig{Enabled: true, Backend: "memcached"})
	assert.Error(t, err)
}

func TestManager_RedisBackend(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	m, err := NewManager(ManagerConfig{Enabled: true, Backend: BackendRedis, Redis: client})
	require.NoError(t, err)

	store := m.Store("web_fetch", time.Hour, 10)
	assert.IsType(t, &RedisStore{}, store)
	assert.True(t, store.Set(ctx, "k", "v", 0))
	value, ok := store.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", value)
}

func TestManager_ExportsPrometheusCounters(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := NewManager(ManagerConfig{Enabled: true, Registerer: reg})
	require.NoError(t, err)

	store := m.Store("entity", time.Hour, 10)
	store.Set(ctx, "k", 1, 0)
	store.Get(ctx, "k")
	store.Get(ctx, "k")
	store.Get(ctx, "missing")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.hits.WithLabelValues("entity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.misses.WithLabelValues("entity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.sets.WithLabelValues("entity")))

	// a second manager on the same registry reuses the collectors
	_, err = NewManager(ManagerConfig{Enabled: true, Registerer: reg})
	assert.NoError(t, err)
}
