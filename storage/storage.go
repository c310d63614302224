// Package storage defines the write-through persistence port the engine
// writes through on every ingest, and the in-memory no-op implementation
// used when no durable backend is configured (spec.md §4.7). The in-memory
// causal graph is authoritative at runtime; storage exists to survive a
// restart, not to answer queries.
package storage

import (
	"context"

	"github.com/Mode7Labs/raceway-sub002"
	"github.com/Mode7Labs/raceway-sub002/baseline"
	"github.com/Mode7Labs/raceway-sub002/graph"
	"github.com/Mode7Labs/raceway-sub002/index"
)

// Store is the abstract write-through persistence port. Every method is
// expected to be cheap to call and safe to call concurrently; the
// ingestion pipeline calls these on the hot path and does not roll back
// in-memory state if a call returns an error (spec.md §4.4 step 6).
type Store interface {
	StoreEvent(ctx context.Context, e raceway.Event) error
	StoreEdge(ctx context.Context, traceId raceway.TraceId, edge graph.CausalEdge) error
	StoreIndexEntry(ctx context.Context, entry index.Entry) error
	StoreBaseline(ctx context.Context, kind string, m baseline.Metric) error

	// LoadAll streams back everything previously stored, for startup
	// rehydration. Implementations that persist nothing return an
	// iterator that yields immediately with io.EOF-equivalent done=true.
	LoadAll(ctx context.Context) (Iterator, error)
}

// Record is one persisted item yielded during startup rehydration. Exactly
// one of the pointer fields is set.
type Record struct {
	Event    *raceway.Event
	Edge     *EdgeRecord
	Index    *index.Entry
	Baseline *BaselineRecord
}

// EdgeRecord pairs a CausalEdge with the trace it belongs to, since
// CausalEdge alone doesn't carry that association.
type EdgeRecord struct {
	TraceId raceway.TraceId
	Edge    graph.CausalEdge
}

// BaselineRecord pairs an event-kind baseline with its key.
type BaselineRecord struct {
	Kind   string
	Metric baseline.Metric
}

// Iterator yields Records one at a time during startup rehydration.
type Iterator interface {
	// Next returns the next record. done is true (with a zero Record and
	// nil error) once the iterator is exhausted.
	Next(ctx context.Context) (rec Record, done bool, err error)
}

// NoopStore is the in-memory Store: every write is a no-op, and LoadAll
// yields nothing, per spec.md §4.7's "implementations may be in-memory
// (no-op for stores, empty iterator on startup)". It exists so the engine
// always has a Store to write through without requiring a durable backend,
// which is explicitly out of this repository's scope.
type NoopStore struct{}

// NewNoopStore returns a Store that discards everything written to it.
func NewNoopStore() *NoopStore { return &NoopStore{} }

func (NoopStore) StoreEvent(context.Context, raceway.Event) error                  { return nil }
func (NoopStore) StoreEdge(context.Context, raceway.TraceId, graph.CausalEdge) error { return nil }
func (NoopStore) StoreIndexEntry(context.Context, index.Entry) error               { return nil }
func (NoopStore) StoreBaseline(context.Context, string, baseline.Metric) error      { return nil }

func (NoopStore) LoadAll(context.Context) (Iterator, error) {
	return emptyIterator{}, nil
}

type emptyIterator struct{}

func (emptyIterator) Next(context.Context) (Record, bool, error) {
	return Record{}, true, nil
}
