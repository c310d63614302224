// Package graph implements the per-process causal DAG: the authoritative
// in-memory store of events and their happens-before structure, and the
// target of every analysis query.
package graph

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Mode7Labs/raceway-sub002"
	"github.com/Mode7Labs/raceway-sub002/metrics"
	"github.com/Mode7Labs/raceway-sub002/vectorclock"
)

// ErrDuplicateId is returned by Insert when the event id already exists.
// Per spec.md invariant 1, this is treated as a successful no-op by callers
// (at-least-once delivery semantics), not a fatal error.
var ErrDuplicateId = errors.New("duplicate event id")

// CycleWouldFormError is returned by Insert when the event's stated
// causality would introduce a back-edge into the graph. This signals a
// misconfigured sender clock or a reordering pathology; the event is
// dropped and the rest of the batch continues.
type CycleWouldFormError struct {
	EventId raceway.EventId
	Via     raceway.EventId
}

func (e *CycleWouldFormError) Error() string {
	return "insert " + string(e.EventId) + " would form a cycle via " + string(e.Via)
}

// ErrNotFound is returned by GetEvent for an unknown id.
var ErrNotFound = errors.New("event not found")

// Graph is the per-process causal DAG described by spec.md §4.3.
//
// Concurrency discipline: nodes and lockLastRelease use sync.Map for
// insert-if-absent; edges and trace membership are guarded by a single
// process-wide edgesMu (RWMutex), writers exclusive, readers shared, per
// spec.md §5. Caches have their own mutex and are invalidated by version,
// never patched in place.
type Graph struct {
	// Metrics is consulted on every successful Insert if non-nil. Left unset
	// by New so tests and other callers that don't care about Prometheus
	// never have to thread one through.
	Metrics *metrics.Metrics

	nodes      sync.Map // raceway.EventId -> *CausalNode
	eventCount int64    // atomic; approximate total nodes, for Metrics.SetGraphEventsTracked

	edgesMu         sync.RWMutex
	outEdges        map[raceway.EventId][]CausalEdge
	inEdges         map[raceway.EventId][]CausalEdge
	traceRoots      map[raceway.TraceId]map[raceway.EventId]struct{}
	traceEvents     map[raceway.TraceId][]raceway.EventId // insertion order, scanned for predecessor search
	instanceFrontier map[raceway.TraceId]map[string]raceway.EventId // last event per instance, per trace

	lockLastRelease sync.Map // lock id (string) -> raceway.EventId

	versionMu    sync.Mutex
	traceVersion map[raceway.TraceId]uint64

	cacheMu            sync.Mutex
	raceCache          map[raceway.TraceId]cacheEntry
	criticalPathCache  map[raceway.TraceId]cacheEntry
}

type cacheEntry struct {
	version uint64
	value   any
}

// New returns an empty causal graph.
func New() *Graph {
	return &Graph{
		outEdges:         map[raceway.EventId][]CausalEdge{},
		inEdges:          map[raceway.EventId][]CausalEdge{},
		traceRoots:       map[raceway.TraceId]map[raceway.EventId]struct{}{},
		traceEvents:      map[raceway.TraceId][]raceway.EventId{},
		instanceFrontier: map[raceway.TraceId]map[string]raceway.EventId{},
		traceVersion:     map[raceway.TraceId]uint64{},
		raceCache:        map[raceway.TraceId]cacheEntry{},
		criticalPathCache: map[raceway.TraceId]cacheEntry{},
	}
}

// Insert adds an event to the graph. Duplicate ids are a no-op that returns
// ErrDuplicateId; the rest of the batch continues unaffected. Events whose
// stated causality would form a cycle are rejected with CycleWouldFormError
// and are not inserted.
func (g *Graph) Insert(e raceway.Event) error {
	if _, loaded := g.nodes.Load(e.Id); loaded {
		return ErrDuplicateId
	}

	g.edgesMu.Lock()
	defer g.edgesMu.Unlock()

	// Re-check under the write lock: another goroutine may have inserted
	// the same id between the optimistic Load above and acquiring the
	// lock.
	if _, loaded := g.nodes.Load(e.Id); loaded {
		return ErrDuplicateId
	}

	edges, err := g.predecessorEdgesLocked(e)
	if err != nil {
		return err
	}

	// Commit: node, edges, trace-root membership, lock chain, version.
	g.nodes.Store(e.Id, &CausalNode{Event: e})

	for _, edge := range edges {
		g.outEdges[edge.From] = append(g.outEdges[edge.From], edge)
		g.inEdges[edge.To] = append(g.inEdges[edge.To], edge)
	}

	if g.traceRoots[e.TraceId] == nil {
		g.traceRoots[e.TraceId] = map[raceway.EventId]struct{}{}
	}
	if e.ParentId == nil {
		g.traceRoots[e.TraceId][e.Id] = struct{}{}
	}
	g.traceEvents[e.TraceId] = append(g.traceEvents[e.TraceId], e.Id)

	if g.instanceFrontier[e.TraceId] == nil {
		g.instanceFrontier[e.TraceId] = map[string]raceway.EventId{}
	}
	g.instanceFrontier[e.TraceId][string(e.Metadata.InstanceId)] = e.Id

	if e.Kind.IsLockRelease() {
		g.lockLastRelease.Store(e.Kind.LockRelease.LockId, e.Id)
	}

	g.bumpVersionLocked(e.TraceId)

	if g.Metrics != nil {
		n := atomic.AddInt64(&g.eventCount, 1)
		g.Metrics.SetGraphEventsTracked(int(n))
	}

	return nil
}

// predecessorEdgesLocked computes the edges a new event should gain, and
// validates them against the acyclicity invariant. Callers must hold
// edgesMu for writing.
func (g *Graph) predecessorEdgesLocked(e raceway.Event) ([]CausalEdge, error) {
	var edges []CausalEdge

	if e.ParentId != nil {
		parent, ok := g.nodes.Load(*e.ParentId)
		if ok {
			pe := parent.(*CausalNode).Event
			if vectorclock.Compare(pe.Causality, e.Causality) != vectorclock.Less {
				return nil, &CycleWouldFormError{EventId: e.Id, Via: pe.Id}
			}
			edges = append(edges, CausalEdge{From: pe.Id, To: e.Id, Kind: ProgramOrder, Weight: 1})
		}
	}

	// Causal edge from the previous event of the same instance in this
	// trace, inferred from the vector clock frontier (spec.md §4.3 step 3).
	// Only a frontier event whose clock is Less than e's is a predecessor;
	// one that is Equal, Greater or Concurrent (for example an event of the
	// same instance that arrived out of order) gives no edge and no rejection.
	if last, ok := g.instanceFrontier[e.TraceId][string(e.Metadata.InstanceId)]; ok {
		if node, ok := g.nodes.Load(last); ok {
			pe := node.(*CausalNode).Event
			if pe.Id != e.Id && !edgeAlreadyPresent(edges, pe.Id, e.Id) &&
				vectorclock.Compare(pe.Causality, e.Causality) == vectorclock.Less {
				edges = append(edges, CausalEdge{From: pe.Id, To: e.Id, Kind: Causal, Weight: 1})
			}
		}
	}

	// Lock edge from the prior release of the same lock, possibly across
	// traces (spec.md invariant 6).
	if e.Kind.IsLockAcquire() {
		lockId := e.Kind.LockAcquire.LockId
		if prevId, ok := g.lockLastRelease.Load(lockId); ok {
			if node, ok := g.nodes.Load(prevId); ok {
				pe := node.(*CausalNode).Event
				edges = append(edges, CausalEdge{From: pe.Id, To: e.Id, Kind: Lock, Weight: 0})
			}
		}
	}

	return edges, nil
}

func edgeAlreadyPresent(edges []CausalEdge, from, to raceway.EventId) bool {
	for _, edge := range edges {
		if edge.From == from && edge.To == to {
			return true
		}
	}
	return false
}

func (g *Graph) bumpVersionLocked(traceId raceway.TraceId) {
	g.versionMu.Lock()
	g.traceVersion[traceId]++
	g.versionMu.Unlock()

	g.cacheMu.Lock()
	delete(g.raceCache, traceId)
	delete(g.criticalPathCache, traceId)
	g.cacheMu.Unlock()
}

// TraceVersion returns the current cache-validity version for a trace.
func (g *Graph) TraceVersion(traceId raceway.TraceId) uint64 {
	g.versionMu.Lock()
	defer g.versionMu.Unlock()
	return g.traceVersion[traceId]
}

// GetEvent returns the event with the given id.
func (g *Graph) GetEvent(id raceway.EventId) (raceway.Event, error) {
	v, ok := g.nodes.Load(id)
	if !ok {
		return raceway.Event{}, ErrNotFound
	}
	return v.(*CausalNode).Event, nil
}

// TraceEvents returns every event belonging to a trace, in insertion order.
func (g *Graph) TraceEvents(traceId raceway.TraceId) []raceway.Event {
	g.edgesMu.RLock()
	ids := append([]raceway.EventId(nil), g.traceEvents[traceId]...)
	g.edgesMu.RUnlock()

	events := make([]raceway.Event, 0, len(ids))
	for _, id := range ids {
		if v, ok := g.nodes.Load(id); ok {
			events = append(events, v.(*CausalNode).Event)
		}
	}
	return events
}

// TraceIds returns every trace id currently known to the graph.
func (g *Graph) TraceIds() []raceway.TraceId {
	g.edgesMu.RLock()
	defer g.edgesMu.RUnlock()

	ids := make([]raceway.TraceId, 0, len(g.traceEvents))
	for id := range g.traceEvents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// TraceRoots returns the root event ids of a trace: events with no
// intra-trace parent (spec.md invariant 7).
func (g *Graph) TraceRoots(traceId raceway.TraceId) []raceway.EventId {
	g.edgesMu.RLock()
	defer g.edgesMu.RUnlock()

	roots := make([]raceway.EventId, 0, len(g.traceRoots[traceId]))
	for id := range g.traceRoots[traceId] {
		roots = append(roots, id)
	}
	return roots
}

// Successors returns the outgoing edges of an event.
func (g *Graph) Successors(id raceway.EventId) []CausalEdge {
	g.edgesMu.RLock()
	defer g.edgesMu.RUnlock()
	return append([]CausalEdge(nil), g.outEdges[id]...)
}

// Predecessors returns the incoming edges of an event.
func (g *Graph) Predecessors(id raceway.EventId) []CausalEdge {
	g.edgesMu.RLock()
	defer g.edgesMu.RUnlock()
	return append([]CausalEdge(nil), g.inEdges[id]...)
}

// HasPath reports whether to is reachable from from by following any edge
// kind forward. Used for general reachability queries; insert-time cycle
// rejection uses the cheaper vector-clock check in predecessorEdgesLocked.
func (g *Graph) HasPath(from, to raceway.EventId) bool {
	if from == to {
		return true
	}

	g.edgesMu.RLock()
	defer g.edgesMu.RUnlock()

	visited := map[raceway.EventId]bool{from: true}
	queue := []raceway.EventId{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, edge := range g.outEdges[cur] {
			if edge.To == to {
				return true
			}
			if !visited[edge.To] {
				visited[edge.To] = true
				queue = append(queue, edge.To)
			}
		}
	}
	return false
}

// AddDistributedEdge links from -> to with a Distributed edge, used by the
// distributed trace merger once a child span's parent becomes known
// (spec.md §4.5.5). The child need not be inserted yet: when the merger
// already knows the parent span, the edge is added before the child reaches
// Insert, and Insert keeps it. The trace version is bumped only when to is
// already in the graph. Unlike Insert, it performs no cycle check against
// vector clocks: cross-instance propagation headers are trusted.
func (g *Graph) AddDistributedEdge(from, to raceway.EventId) {
	g.edgesMu.Lock()
	defer g.edgesMu.Unlock()

	edge := CausalEdge{From: from, To: to, Kind: Distributed, Weight: 0}
	g.outEdges[from] = append(g.outEdges[from], edge)
	g.inEdges[to] = append(g.inEdges[to], edge)

	if node, ok := g.nodes.Load(to); ok {
		g.bumpVersionLocked(node.(*CausalNode).Event.TraceId)
	}
}

// LockLastRelease returns the event id of the most recent LockRelease seen
// for lockId, if any.
func (g *Graph) LockLastRelease(lockId string) (raceway.EventId, bool) {
	v, ok := g.lockLastRelease.Load(lockId)
	if !ok {
		return "", false
	}
	return v.(raceway.EventId), true
}

// cacheGetRace returns a cached race-detection result if it's still valid
// for the trace's current version.
func (g *Graph) cacheGetRace(traceId raceway.TraceId) (any, bool) {
	return g.cacheGet(g.raceCache, traceId)
}

func (g *Graph) cacheSetRace(traceId raceway.TraceId, value any) {
	g.cacheSet(g.raceCache, traceId, value)
}

func (g *Graph) cacheGetCriticalPath(traceId raceway.TraceId) (any, bool) {
	return g.cacheGet(g.criticalPathCache, traceId)
}

func (g *Graph) cacheSetCriticalPath(traceId raceway.TraceId, value any) {
	g.cacheSet(g.criticalPathCache, traceId, value)
}

func (g *Graph) cacheGet(m map[raceway.TraceId]cacheEntry, traceId raceway.TraceId) (any, bool) {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()

	entry, ok := m[traceId]
	if !ok {
		return nil, false
	}
	if entry.version != g.TraceVersion(traceId) {
		return nil, false
	}
	return entry.value, true
}

func (g *Graph) cacheSet(m map[raceway.TraceId]cacheEntry, traceId raceway.TraceId, value any) {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()
	m[traceId] = cacheEntry{version: g.TraceVersion(traceId), value: value}
}

// RaceCache exposes the race-detection cache to package analysis without
// making cacheEntry or the backing maps public.
func (g *Graph) RaceCache() RaceCacheAccessor { return RaceCacheAccessor{g} }

// CriticalPathCache exposes the critical-path cache to package analysis.
func (g *Graph) CriticalPathCache() CriticalPathCacheAccessor { return CriticalPathCacheAccessor{g} }

// RaceCacheAccessor is a narrow view over the graph's race-detection cache.
type RaceCacheAccessor struct{ g *Graph }

func (a RaceCacheAccessor) Get(traceId raceway.TraceId) (any, bool) { return a.g.cacheGetRace(traceId) }
func (a RaceCacheAccessor) Set(traceId raceway.TraceId, value any)  { a.g.cacheSetRace(traceId, value) }

// CriticalPathCacheAccessor is a narrow view over the graph's
// critical-path cache.
type CriticalPathCacheAccessor struct{ g *Graph }

func (a CriticalPathCacheAccessor) Get(traceId raceway.TraceId) (any, bool) {
	return a.g.cacheGetCriticalPath(traceId)
}
func (a CriticalPathCacheAccessor) Set(traceId raceway.TraceId, value any) {
	a.g.cacheSetCriticalPath(traceId, value)
}
