package graph

import (
	"sort"

	"github.com/Mode7Labs/raceway-sub002"
)

// TopologicallyOrderedEvents returns every event of a trace in a topological
// order consistent with its intra-trace edges (ProgramOrder and Causal).
// Lock and Distributed edges are intentionally excluded from this ordering:
// they connect across traces and would make a single trace's order depend on
// unrelated traces.
//
// Ties — events with no edge relating them — are broken first by timestamp,
// then by event id, so the order is deterministic across calls.
func (g *Graph) TopologicallyOrderedEvents(traceId raceway.TraceId) []raceway.Event {
	events := g.TraceEvents(traceId)
	if len(events) == 0 {
		return nil
	}

	byId := make(map[raceway.EventId]raceway.Event, len(events))
	inTrace := make(map[raceway.EventId]bool, len(events))
	for _, e := range events {
		byId[e.Id] = e
		inTrace[e.Id] = true
	}

	indegree := make(map[raceway.EventId]int, len(events))
	adjacency := make(map[raceway.EventId][]raceway.EventId, len(events))
	for _, e := range events {
		indegree[e.Id] = 0
	}
	for _, e := range events {
		for _, edge := range g.Successors(e.Id) {
			if edge.Kind != ProgramOrder && edge.Kind != Causal {
				continue
			}
			if !inTrace[edge.To] {
				continue
			}
			adjacency[e.Id] = append(adjacency[e.Id], edge.To)
			indegree[edge.To]++
		}
	}

	ready := make([]raceway.EventId, 0, len(events))
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sortByTimestampThenId(ready, byId)

	ordered := make([]raceway.Event, 0, len(events))
	for len(ready) > 0 {
		// Pop the earliest-sorted ready node.
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byId[next])

		var newlyReady []raceway.EventId
		for _, to := range adjacency[next] {
			indegree[to]--
			if indegree[to] == 0 {
				newlyReady = append(newlyReady, to)
			}
		}
		sortByTimestampThenId(newlyReady, byId)
		ready = mergeSortedByTimestamp(ready, newlyReady, byId)
	}

	return ordered
}

func sortByTimestampThenId(ids []raceway.EventId, byId map[raceway.EventId]raceway.Event) {
	sort.Slice(ids, func(i, j int) bool {
		return lessByTimestampThenId(byId[ids[i]], byId[ids[j]])
	})
}

func lessByTimestampThenId(a, b raceway.Event) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Id < b.Id
}

// mergeSortedByTimestamp merges two already-sorted id slices, preserving the
// timestamp/id order.
func mergeSortedByTimestamp(a, b []raceway.EventId, byId map[raceway.EventId]raceway.Event) []raceway.EventId {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	out := make([]raceway.EventId, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if lessByTimestampThenId(byId[a[i]], byId[b[j]]) {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
