// Package analysis implements the four query classes the engine answers
// over the causal graph: race detection, critical-path analysis, anomaly
// detection, and audit trails, plus the distributed-trace merger.
package analysis

import (
	"sort"

	"github.com/Mode7Labs/raceway-sub002"
	"github.com/Mode7Labs/raceway-sub002/graph"
	"github.com/Mode7Labs/raceway-sub002/index"
	"github.com/Mode7Labs/raceway-sub002/vectorclock"
)

// Severity classifies a detected race by how certain it is to be a genuine
// data hazard.
type Severity string

const (
	// Critical: both accesses in the pair are writes.
	Critical Severity = "Critical"
	// Warning: exactly one access in the pair is a write.
	Warning Severity = "Warning"
)

// RacePair is one qualifying concurrent, conflicting pair of StateChange
// accesses to the same variable.
type RacePair struct {
	Variable string
	A        raceway.Event
	B        raceway.Event
	Severity Severity
}

// DetectRaces returns every racing pair within a single trace, per
// spec.md §4.5.1. Results are served from g's race cache when the trace's
// version hasn't changed since the last call.
func DetectRaces(g *graph.Graph, traceId raceway.TraceId) []RacePair {
	if cached, ok := g.RaceCache().Get(traceId); ok {
		return cached.([]RacePair)
	}

	events := g.TraceEvents(traceId)
	byVariable := groupStateChangesByVariable(events)

	var pairs []RacePair
	for variable, group := range byVariable {
		pairs = append(pairs, racingPairsInGroup(variable, group)...)
	}
	sortRacePairs(pairs)

	g.RaceCache().Set(traceId, pairs)
	return pairs
}

// GlobalRaceDetail is one potentially racing pair spanning two different
// traces, found via the cross-trace index rather than the per-trace graph.
type GlobalRaceDetail struct {
	Variable string
	A        index.Entry
	B        index.Entry
	Severity Severity
}

// DetectGlobalRaces enumerates pairs of StateChange events across different
// traces that touch the same variable, per spec.md §4.5.1's cross-trace
// races note. No intra-graph edge connects events in different traces, so
// every write-involving pair from distinct traces is conservatively flagged
// — lock-set suppression is a noted future refinement, not implemented here.
func DetectGlobalRaces(idx *index.Index) []GlobalRaceDetail {
	var out []GlobalRaceDetail
	for _, variable := range idx.Variables() {
		entries := idx.Query(variable)
		for i := 0; i < len(entries); i++ {
			for j := i + 1; j < len(entries); j++ {
				a, b := entries[i], entries[j]
				if a.TraceId == b.TraceId {
					continue
				}
				if !a.AccessType.IsWrite() && !b.AccessType.IsWrite() {
					continue
				}
				sev := Warning
				if a.AccessType.IsWrite() && b.AccessType.IsWrite() {
					sev = Critical
				}
				out = append(out, GlobalRaceDetail{Variable: variable, A: a, B: b, Severity: sev})
			}
		}
	}
	return out
}

func groupStateChangesByVariable(events []raceway.Event) map[string][]raceway.Event {
	groups := map[string][]raceway.Event{}
	for _, e := range events {
		if !e.Kind.IsStateChange() {
			continue
		}
		variable := e.Kind.StateChange.Variable
		groups[variable] = append(groups[variable], e)
	}
	return groups
}

func racingPairsInGroup(variable string, group []raceway.Event) []RacePair {
	var pairs []RacePair
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			a, b := group[i], group[j]
			aWrite := a.Kind.StateChange.AccessType.IsWrite()
			bWrite := b.Kind.StateChange.AccessType.IsWrite()
			if !aWrite && !bWrite {
				continue
			}
			if !vectorclock.AreConcurrent(a.Causality, b.Causality) {
				continue
			}
			sev := Warning
			if aWrite && bWrite {
				sev = Critical
			}
			pairs = append(pairs, RacePair{Variable: variable, A: a, B: b, Severity: sev})
		}
	}
	return pairs
}

func sortRacePairs(pairs []RacePair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Variable != pairs[j].Variable {
			return pairs[i].Variable < pairs[j].Variable
		}
		if pairs[i].A.Id != pairs[j].A.Id {
			return pairs[i].A.Id < pairs[j].A.Id
		}
		return pairs[i].B.Id < pairs[j].B.Id
	})
}

// ParticipatesInRace reports whether eventId appears as either side of any
// race pair, for the audit trail's is_race flag (spec.md §4.5.4).
func ParticipatesInRace(pairs []RacePair, eventId raceway.EventId) bool {
	for _, p := range pairs {
		if p.A.Id == eventId || p.B.Id == eventId {
			return true
		}
	}
	return false
}
