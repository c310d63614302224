package analysis

import (
	"github.com/Mode7Labs/raceway-sub002"
	"github.com/Mode7Labs/raceway-sub002/graph"
)

// CriticalPath is the longest chain of causally dependent work in a trace,
// and the share of the trace's wall-clock time it accounts for.
type CriticalPath struct {
	Events             []raceway.Event
	PathDurationMs      float64
	TraceTotalDurationMs float64
	PercentageOfTotal    float64
}

// ComputeCriticalPath implements spec.md §4.5.2: a topological-order dynamic
// program over event durations, with ties broken by earlier timestamp then
// event id, cached per trace version.
func ComputeCriticalPath(g *graph.Graph, traceId raceway.TraceId) CriticalPath {
	if cached, ok := g.CriticalPathCache().Get(traceId); ok {
		return cached.(CriticalPath)
	}

	ordered := g.TopologicallyOrderedEvents(traceId)
	cp := computeCriticalPath(g, traceId, ordered)

	g.CriticalPathCache().Set(traceId, cp)
	return cp
}

func computeCriticalPath(g *graph.Graph, traceId raceway.TraceId, ordered []raceway.Event) CriticalPath {
	if len(ordered) == 0 {
		return CriticalPath{}
	}

	inTrace := make(map[raceway.EventId]raceway.Event, len(ordered))
	for _, e := range ordered {
		inTrace[e.Id] = e
	}

	dist := make(map[raceway.EventId]float64, len(ordered))
	back := make(map[raceway.EventId]raceway.EventId, len(ordered))

	for _, e := range ordered {
		best := 0.0
		var bestPred raceway.EventId
		havePred := false

		for _, edge := range g.Predecessors(e.Id) {
			if edge.Kind != graph.ProgramOrder && edge.Kind != graph.Causal {
				continue
			}
			pred, ok := inTrace[edge.From]
			if !ok {
				continue
			}
			d := dist[pred.Id]
			if !havePred || d > best || (d == best && lessByTimestampThenId(pred, inTrace[bestPred])) {
				best = d
				bestPred = pred.Id
				havePred = true
			}
		}

		dist[e.Id] = best + e.DurationMillis()
		if havePred {
			back[e.Id] = bestPred
		}
	}

	// argmax dist, tiebreak by earlier timestamp then event id.
	var argmax raceway.Event
	first := true
	for _, e := range ordered {
		if first || dist[e.Id] > dist[argmax.Id] || (dist[e.Id] == dist[argmax.Id] && lessByTimestampThenId(e, argmax)) {
			argmax = e
			first = false
		}
	}

	// Walk back from argmax to recover the path, then reverse it.
	var reversed []raceway.Event
	cur := argmax.Id
	for {
		reversed = append(reversed, inTrace[cur])
		prev, ok := back[cur]
		if !ok {
			break
		}
		cur = prev
	}
	path := make([]raceway.Event, len(reversed))
	for i, e := range reversed {
		path[len(reversed)-1-i] = e
	}

	pathDuration := dist[argmax.Id]

	traceTotal := 0.0
	if len(ordered) > 0 {
		first, last := ordered[0].Timestamp, ordered[0].Timestamp
		for _, e := range ordered {
			if e.Timestamp.Before(first) {
				first = e.Timestamp
			}
			if e.Timestamp.After(last) {
				last = e.Timestamp
			}
		}
		traceTotal = last.Sub(first).Seconds() * 1000
	}

	denominator := traceTotal
	if denominator < 1 {
		denominator = 1
	}

	return CriticalPath{
		Events:               path,
		PathDurationMs:       pathDuration,
		TraceTotalDurationMs: traceTotal,
		PercentageOfTotal:    100 * pathDuration / denominator,
	}
}

func lessByTimestampThenId(a, b raceway.Event) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Id < b.Id
}
