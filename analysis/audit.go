package analysis

import (
	"sort"

	"github.com/Mode7Labs/raceway-sub002"
	"github.com/Mode7Labs/raceway-sub002/graph"
	"github.com/Mode7Labs/raceway-sub002/index"
	"github.com/Mode7Labs/raceway-sub002/vectorclock"
)

// VariableAccess is one entry in a variable's audit trail.
type VariableAccess struct {
	EventId    raceway.EventId
	TraceId    raceway.TraceId
	Timestamp  int64
	InstanceId raceway.InstanceId
	AccessType raceway.AccessType
	Value      []byte
	Location   string
	IsRace     bool
}

// AuditTrail returns the causally ordered history of every access to
// variable, per spec.md §4.5.4. If traceId is non-empty, the trail is
// restricted to that trace; otherwise every trace is considered.
//
// Ordering: timestamp ascending. Among same-timestamp accesses, causal
// order wins when the two clocks are comparable (an access that
// happens-before another must still precede it in the trail even if a
// clock is, say, alphabetically later); only genuinely concurrent
// same-timestamp accesses fall back to an instance-id tiebreak, per
// spec.md §4.5.4.
func AuditTrail(g *graph.Graph, idx *index.Index, variable string, traceId raceway.TraceId) []VariableAccess {
	entries := idx.Query(variable)

	var racePairs []RacePair
	if traceId != "" {
		racePairs = DetectRaces(g, traceId)
	} else {
		racePairs = globalRacePairs(g, idx)
	}

	var accesses []VariableAccess
	for _, entry := range entries {
		if traceId != "" && entry.TraceId != traceId {
			continue
		}

		var value []byte
		if event, err := g.GetEvent(entry.EventId); err == nil && event.Kind.StateChange != nil {
			value = event.Kind.StateChange.NewValue
		}

		accesses = append(accesses, VariableAccess{
			EventId:    entry.EventId,
			TraceId:    entry.TraceId,
			Timestamp:  entry.Timestamp,
			InstanceId: entry.InstanceId,
			AccessType: entry.AccessType,
			Value:      value,
			Location:   entry.Location,
			IsRace:     ParticipatesInRace(racePairs, entry.EventId),
		})
	}

	sort.SliceStable(accesses, func(i, j int) bool {
		a, b := accesses[i], accesses[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}

		switch vectorclock.Compare(clockOf(g, a), clockOf(g, b)) {
		case vectorclock.Less:
			return true
		case vectorclock.Greater:
			return false
		default:
			return a.InstanceId < b.InstanceId
		}
	})

	return accesses
}

func clockOf(g *graph.Graph, a VariableAccess) vectorclock.Clock {
	event, err := g.GetEvent(a.EventId)
	if err != nil {
		return nil
	}
	return event.Causality
}

// globalRacePairs merges every trace's race pairs together for a
// trace-agnostic audit trail, since DetectRaces is scoped to one trace.
func globalRacePairs(g *graph.Graph, idx *index.Index) []RacePair {
	seen := map[raceway.TraceId]bool{}
	var all []RacePair
	for _, variable := range idx.Variables() {
		for _, entry := range idx.Query(variable) {
			if seen[entry.TraceId] {
				continue
			}
			seen[entry.TraceId] = true
			all = append(all, DetectRaces(g, entry.TraceId)...)
		}
	}
	return all
}
