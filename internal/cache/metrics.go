package cache

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes store counters as Prometheus collectors, labelled by store name
type Metrics struct {
	hits   *prometheus.CounterVec
	misses *prometheus.CounterVec
	sets   *prometheus.CounterVec
	errors *prometheus.CounterVec
}

// NewMetrics creates the cache collectors and registers them on reg.
// Collectors that are already registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	newVec := func(name, help string) (*prometheus.CounterVec, error) {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agreegraph",
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, []string{"store"})
		if err := reg.Register(vec); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					return existing, nil
				}
			}
			return nil, fmt.Errorf("failed to register cache metric %s: %w", name, err)
		}
		return vec, nil
	}

	m := &Metrics{}
	var err error
	if m.hits, err = newVec("hits_total", "Cache lookups that found a live entry."); err != nil {
		return nil, err
	}
	if m.misses, err = newVec("misses_total", "Cache lookups that found nothing or an expired entry."); err != nil {
		return nil, err
	}
	if m.sets, err = newVec("sets_total", "Successful cache writes."); err != nil {
		return nil, err
	}
	if m.errors, err = newVec("errors_total", "Cache backend failures."); err != nil {
		return nil, err
	}
	return m, nil
}

// forStore binds the collectors to one store label
func (m *Metrics) forStore(name string) *storeMetrics {
	if m == nil {
		return nil
	}
	return &storeMetrics{
		hits:   m.hits.WithLabelValues(name),
		misses: m.misses.WithLabelValues(name),
		sets:   m.sets.WithLabelValues(name),
		errors: m.errors.WithLabelValues(name),
	}
}

// storeMetrics is nil-safe so stores without metrics skip the calls
type storeMetrics struct {
	hits   prometheus.Counter
	misses prometheus.Counter
	sets   prometheus.Counter
	errors prometheus.Counter
}

func (m *storeMetrics) hit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *storeMetrics) miss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *storeMetrics) set() {
	if m != nil {
		m.sets.Inc()
	}
}

func (m *storeMetrics) error() {
	if m != nil {
		m.errors.Inc()
	}
}
