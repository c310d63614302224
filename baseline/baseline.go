// Package baseline maintains online per-event-kind duration statistics used
// by anomaly detection. Baselines are global, not per-trace: the engine
// trusts that an event kind's duration distribution is stable across traces
// and services, per spec.md §4.5.3.
package baseline

import (
	"math"
	"sync"
)

// Metric holds Welford's online mean/variance accumulators for one
// event-kind's durations, in microseconds.
type Metric struct {
	Count   uint64
	Min     float64
	Max     float64
	Mean    float64
	m2      float64 // sum of squared deviations from the running mean
}

// Variance returns the population variance of the observed durations.
func (m Metric) Variance() float64 {
	if m.Count == 0 {
		return 0
	}
	return m.m2 / float64(m.Count)
}

// StdDev returns the population standard deviation of the observed durations.
func (m Metric) StdDev() float64 {
	return math.Sqrt(m.Variance())
}

// Store is a concurrency-safe set of baselines keyed by event kind name.
type Store struct {
	mu       sync.RWMutex
	metrics  map[string]*Metric
	version  uint64
}

// New returns an empty baseline store.
func New() *Store {
	return &Store{metrics: map[string]*Metric{}}
}

// Observe folds one duration observation (in nanoseconds) into the baseline
// for kind, using Welford's online algorithm so that the running mean and
// variance never require revisiting prior samples.
func (s *Store) Observe(kind string, durationNs uint64) {
	durationUs := float64(durationNs) / 1000

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.metrics[kind]
	if !ok {
		m = &Metric{Min: durationUs, Max: durationUs}
		s.metrics[kind] = m
	}

	m.Count++
	delta := durationUs - m.Mean
	m.Mean += delta / float64(m.Count)
	delta2 := durationUs - m.Mean
	m.m2 += delta * delta2

	if durationUs < m.Min {
		m.Min = durationUs
	}
	if durationUs > m.Max {
		m.Max = durationUs
	}

	s.version++
}

// Get returns a copy of the current baseline for kind, and whether any
// observation has been recorded for it.
func (s *Store) Get(kind string) (Metric, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.metrics[kind]
	if !ok {
		return Metric{}, false
	}
	return *m, true
}

// Version returns a monotonically increasing counter bumped on every
// Observe, usable as a coarse memoization key alongside a trace's own
// version (spec.md §4.5.3: "implementations may still memoize under a
// combined (trace_version, baselines_version) key").
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// All returns a snapshot of every tracked kind's baseline.
func (s *Store) All() map[string]Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Metric, len(s.metrics))
	for k, v := range s.metrics {
		out[k] = *v
	}
	return out
}
