package cache

import "sync/atomic"

// Stats is a point-in-time snapshot of a store's counters
type Stats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Sets          int64   `json:"sets"`
	Errors        int64   `json:"errors"`
	HitRate       float64 `json:"hit_rate"`
	TotalRequests int64   `json:"total_requests"`
}

// statistics tracks counters with atomics; it lives as long as its store
type statistics struct {
	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	errors  atomic.Int64
	metrics *storeMetrics // optional
}

func (s *statistics) hit() {
	s.hits.Add(1)
	s.metrics.hit()
}

func (s *statistics) miss() {
	s.misses.Add(1)
	s.metrics.miss()
}

func (s *statistics) set() {
	s.sets.Add(1)
	s.metrics.set()
}

func (s *statistics) error() {
	s.errors.Add(1)
	s.metrics.error()
}

func (s *statistics) snapshot() Stats {
	st := Stats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
		Sets:   s.sets.Load(),
		Errors: s.errors.Load(),
	}
	st.TotalRequests = st.Hits + st.Misses
	st.HitRate = HitRate(st.Hits, st.Misses)
	return st
}

// HitRate returns hits/(hits+misses), or 0 when there were no requests
func HitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}
