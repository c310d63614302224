package analysis

import (
	"sync"

	"github.com/Mode7Labs/raceway-sub002"
	"github.com/Mode7Labs/raceway-sub002/graph"
	"github.com/Mode7Labs/raceway-sub002/vectorclock"
)

// spanKey identifies a DistributedSpan by the (trace, span) pair carried in
// propagation headers.
type spanKey struct {
	TraceId raceway.TraceId
	SpanId  string
}

// distributedSpan tracks the terminal event of a span opened by one
// instance, so a child span in another instance can be stitched to it.
type distributedSpan struct {
	terminalEventId raceway.EventId
}

// pendingEdge records a child event whose parent span hadn't been opened
// yet at ingestion time. It is flushed into a real Distributed edge once
// that span becomes known.
type pendingEdge struct {
	childEventId raceway.EventId
}

// Merger stitches causal edges across process boundaries using the
// parent_span_id/parent_instance_id/parent_vc propagation payload described
// in spec.md §4.5.5. It is safe for concurrent use by the ingestion
// pipeline's worker pool.
type Merger struct {
	mu      sync.Mutex
	spans   map[spanKey]distributedSpan
	pending map[spanKey][]pendingEdge
}

// NewMerger returns an empty distributed-trace merger.
func NewMerger() *Merger {
	return &Merger{
		spans:   map[spanKey]distributedSpan{},
		pending: map[spanKey][]pendingEdge{},
	}
}

// OpenSpan records that spanId in traceId now terminates at eventId — the
// event other instances' children should be stitched to — and flushes any
// edges that were waiting on this span.
func (m *Merger) OpenSpan(g *graph.Graph, traceId raceway.TraceId, spanId string, eventId raceway.EventId) {
	key := spanKey{TraceId: traceId, SpanId: spanId}

	m.mu.Lock()
	m.spans[key] = distributedSpan{terminalEventId: eventId}
	toFlush := m.pending[key]
	delete(m.pending, key)
	m.mu.Unlock()

	for _, p := range toFlush {
		insertDistributedEdge(g, eventId, p.childEventId)
	}
}

// ParentPayload is the per-event propagation payload described by
// spec.md §4.5.5.
type ParentPayload struct {
	ParentSpanId     string
	ParentInstanceId string
	ParentVC         vectorclock.Clock
}

// ReconcileParent merges the payload's vector clock into the event's own
// clock (the caller applies the result before insertion, per §4.4 step 2)
// and either links a Distributed edge immediately, if the parent span is
// already known, or records a pending edge to be flushed later.
//
// Returns the merged clock the caller should stamp onto the event before
// handing it to Graph.Insert.
func (m *Merger) ReconcileParent(g *graph.Graph, traceId raceway.TraceId, eventId raceway.EventId, eventClock vectorclock.Clock, payload ParentPayload) vectorclock.Clock {
	merged := vectorclock.Merge(eventClock, payload.ParentVC)

	if payload.ParentSpanId == "" {
		return merged
	}

	key := spanKey{TraceId: traceId, SpanId: payload.ParentSpanId}

	m.mu.Lock()
	span, known := m.spans[key]
	if !known {
		m.pending[key] = append(m.pending[key], pendingEdge{childEventId: eventId})
	}
	m.mu.Unlock()

	if known {
		insertDistributedEdge(g, span.terminalEventId, eventId)
	}

	return merged
}

// insertDistributedEdge links parent -> child with a Distributed edge,
// bypassing Graph.Insert's own predecessor inference. From ReconcileParent
// the child is not in the graph yet (the pipeline inserts it afterwards);
// from OpenSpan both events are already in the graph.
func insertDistributedEdge(g *graph.Graph, parent, child raceway.EventId) {
	g.AddDistributedEdge(parent, child)
}
