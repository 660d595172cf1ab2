package cache

import (
	"context"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"agreegraph/internal/logger"
)

type memoryEntry struct {
	value     any
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// MemoryStore is an in-process cache bounded by maxSize. On overflow it
// evicts the oldest inserted entry (FIFO); expiry is checked lazily on Get.
type MemoryStore struct {
	name    string
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	mu      sync.Mutex
	entries *orderedmap.OrderedMap[string, *memoryEntry]
	stats   statistics
}

// NewMemoryStore creates an in-process store. maxSize <= 0 means unbounded.
func NewMemoryStore(name string, ttl time.Duration, maxSize int) *MemoryStore {
	return &MemoryStore{
		name:    name,
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		entries: orderedmap.New[string, *memoryEntry](),
	}
}

func (m *MemoryStore) Name() string {
	return m.name
}

// Len returns the number of stored entries, expired ones included
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Len()
}

func (m *MemoryStore) Get(ctx context.Context, key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries.Get(key)
	if ok && entry.expired(m.now()) {
		m.entries.Delete(key)
		ok = false
	}
	if !ok {
		m.stats.miss()
		logger.Debug().Str("cache", m.name).Bool("cache_hit", false).Str("key", truncateKey(key)).Msg("Cache miss")
		return nil, false
	}

	m.stats.hit()
	logger.Debug().Str("cache", m.name).Bool("cache_hit", true).Str("key", truncateKey(key)).Msg("Cache hit")
	return entry.value, true
}

func (m *MemoryStore) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = m.ttl
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry := &memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	if _, exists := m.entries.Get(key); exists {
		// updating keeps the original insertion position
		m.entries.Set(key, entry)
		m.stats.set()
		return true
	}

	if m.maxSize > 0 && m.entries.Len() >= m.maxSize {
		if oldest := m.entries.Oldest(); oldest != nil {
			m.entries.Delete(oldest.Key)
			logger.Debug().Str("cache", m.name).Str("key", truncateKey(oldest.Key)).Msg("Cache evicted oldest entry")
		}
	}
	m.entries.Set(key, entry)
	m.stats.set()
	return true
}

func (m *MemoryStore) Delete(ctx context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, present := m.entries.Delete(key)
	return present
}

func (m *MemoryStore) Clear(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = orderedmap.New[string, *memoryEntry]()
	return true
}

func (m *MemoryStore) Stats() Stats {
	return m.stats.snapshot()
}

func truncateKey(key string) string {
	if len(key) > 50 {
		return key[:50] + "..."
	}
	return key
}
