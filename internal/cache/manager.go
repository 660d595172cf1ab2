package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"agreegraph/internal/logger"
)

// ManagerConfig fixes the backend for every store the manager creates
type ManagerConfig struct {
	Enabled bool
	Backend Backend
	// Redis is required when Backend is BackendRedis
	Redis redis.UniversalClient
	// Registerer enables Prometheus counters when set
	Registerer prometheus.Registerer
}

// Manager is a registry of named stores. Store creation is idempotent per
// name: the first caller's ttl and maxSize win.
type Manager struct {
	config  ManagerConfig
	metrics *Metrics

	mu     sync.Mutex
	stores map[string]Store
}

// NewManager validates the configuration and creates an empty registry
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.Backend == "" {
		config.Backend = BackendMemory
	}

	switch config.Backend {
	case BackendMemory:
	case BackendRedis:
		if config.Enabled && config.Redis == nil {
			return nil, fmt.Errorf("cache backend %q requires a redis client", config.Backend)
		}
	default:
		return nil, fmt.Errorf("unknown cache backend %q", config.Backend)
	}

	m := &Manager{
		config: config,
		stores: make(map[string]Store),
	}

	if config.Registerer != nil {
		metrics, err := NewMetrics(config.Registerer)
		if err != nil {
			return nil, err
		}
		m.metrics = metrics
	}

	logger.Info().
		Bool("enabled", config.Enabled).
		Str("backend", string(config.Backend)).
		Msg("Cache manager initialized")

	return m, nil
}

// Enabled reports whether stores actually cache
func (m *Manager) Enabled() bool {
	return m.config.Enabled
}

// Backend returns the configured backend
func (m *Manager) Backend() Backend {
	return m.config.Backend
}

// Store returns the named store, creating it on first use
func (m *Manager) Store(name string, ttl time.Duration, maxSize int) Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	if store, ok := m.stores[name]; ok {
		return store
	}

	var store Store
	switch {
	case !m.config.Enabled:
		store = NewNopStore(name)
	case m.config.Backend == BackendRedis:
		rs := NewRedisStore(name, ttl, m.config.Redis)
		rs.stats.metrics = m.metrics.forStore(name)
		store = rs
	default:
		ms := NewMemoryStore(name, ttl, maxSize)
		ms.stats.metrics = m.metrics.forStore(name)
		store = ms
	}

	m.stores[name] = store
	logger.Debug().Str("cache", name).Dur("ttl", ttl).Int("max_size", maxSize).Msg("Cache store created")
	return store
}

// Names returns the registered store names in sorted order
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.stores))
	for name := range m.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllStats returns a snapshot of every registered store
func (m *Manager) AllStats() map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make(map[string]Stats, len(m.stores))
	for name, store := range m.stores {
		stats[name] = store.Stats()
	}
	return stats
}

// ClearAll clears every store, continuing past failures. It reports
// false if any store failed to clear.
func (m *Manager) ClearAll(ctx context.Context) bool {
	m.mu.Lock()
	stores := make([]Store, 0, len(m.stores))
	for _, store := range m.stores {
		stores = append(stores, store)
	}
	m.mu.Unlock()

	ok := true
	for _, store := range stores {
		if !store.Clear(ctx) {
			logger.Warn().Str("cache", store.Name()).Msg("Failed to clear cache store")
			ok = false
		}
	}
	return ok
}
