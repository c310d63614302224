package analysis

import (
	"testing"
	"time"

	"github.com/Mode7Labs/raceway-sub002"
	"github.com/Mode7Labs/raceway-sub002/graph"
	"github.com/Mode7Labs/raceway-sub002/index"
	"github.com/Mode7Labs/raceway-sub002/vectorclock"
)

func stateChange(id raceway.EventId, traceId raceway.TraceId, instance string, vc vectorclock.Clock, variable string, access raceway.AccessType, ts time.Time) raceway.Event {
	return raceway.Event{
		Id:        id,
		TraceId:   traceId,
		Timestamp: ts,
		Kind: raceway.EventKind{StateChange: &raceway.StateChangeData{
			Variable:   variable,
			AccessType: access,
		}},
		Metadata:  raceway.EventMetadata{InstanceId: raceway.InstanceId(instance)},
		Causality: vc,
	}
}

// TestDetectRacesIntraTraceNoRace ensures a single trace with no concurrent
// conflicting access (the S1 scenario's "no intra-trace race" expectation)
// reports nothing, since A and A' are causally ordered (same instance,
// monotonically increasing clock).
func TestDetectRacesIntraTraceNoRace(t *testing.T) {
	g := graph.New()
	trace := raceway.NewTraceId()
	base := time.Now()

	a := stateChange("A", trace, "svc", vectorclock.Clock{"svc": 1}, "alice.balance", raceway.AccessRead, base)
	aPrime := stateChange("Aprime", trace, "svc", vectorclock.Clock{"svc": 2}, "alice.balance", raceway.AccessWrite, base.Add(time.Millisecond))

	if err := g.Insert(a); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := g.Insert(aPrime); err != nil {
		t.Fatalf("insert aPrime: %v", err)
	}

	pairs := DetectRaces(g, trace)
	if len(pairs) != 0 {
		t.Errorf("expected no intra-trace race, got %+v", pairs)
	}
}

// TestDetectGlobalRacesBankTransfer implements spec.md's S1 scenario.
func TestDetectGlobalRacesBankTransfer(t *testing.T) {
	idx := index.New()
	base := time.Now()

	t1 := raceway.TraceId("t1")
	t2 := raceway.TraceId("t2")

	a := index.Entry{Variable: "alice.balance", EventId: "A", TraceId: t1, Timestamp: base.UnixNano(), AccessType: raceway.AccessRead}
	b := index.Entry{Variable: "alice.balance", EventId: "B", TraceId: t2, Timestamp: base.Add(time.Millisecond).UnixNano(), AccessType: raceway.AccessRead}
	aPrime := index.Entry{Variable: "alice.balance", EventId: "Aprime", TraceId: t1, Timestamp: base.Add(2 * time.Millisecond).UnixNano(), AccessType: raceway.AccessWrite}
	bPrime := index.Entry{Variable: "alice.balance", EventId: "Bprime", TraceId: t2, Timestamp: base.Add(3 * time.Millisecond).UnixNano(), AccessType: raceway.AccessWrite}

	idx.Add(a)
	idx.Add(b)
	idx.Add(aPrime)
	idx.Add(bPrime)

	pairs := DetectGlobalRaces(idx)

	var criticals, warnings int
	for _, p := range pairs {
		switch p.Severity {
		case Critical:
			criticals++
		case Warning:
			warnings++
		}
	}

	// Read-read (A,B) is correctly excluded since neither is a write.
	if criticals != 1 {
		t.Errorf("expected exactly 1 Critical pair, got %d (%+v)", criticals, pairs)
	}
	if warnings != 2 {
		t.Errorf("expected exactly 2 Warning pairs (A,B') and (B,A'), got %d (%+v)", warnings, pairs)
	}
	if len(pairs) != 3 {
		t.Errorf("expected 3 total qualifying pairs, got %d: %+v", len(pairs), pairs)
	}
}

func TestDetectRacesCachesUntilVersionChanges(t *testing.T) {
	g := graph.New()
	trace := raceway.NewTraceId()
	base := time.Now()

	a := stateChange("A", trace, "svc-a", vectorclock.Clock{"svc-a": 1}, "x", raceway.AccessWrite, base)
	b := stateChange("B", trace, "svc-b", vectorclock.Clock{"svc-b": 1}, "x", raceway.AccessWrite, base.Add(time.Millisecond))
	if err := g.Insert(a); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := g.Insert(b); err != nil {
		t.Fatalf("insert b: %v", err)
	}

	first := DetectRaces(g, trace)
	second := DetectRaces(g, trace)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected 1 racing pair both times, got %d then %d", len(first), len(second))
	}
	if first[0].A.Id != second[0].A.Id || first[0].B.Id != second[0].B.Id {
		t.Error("expected the cached call to return the same pair")
	}

	c := stateChange("C", trace, "svc-c", vectorclock.Clock{"svc-c": 1}, "x", raceway.AccessWrite, base.Add(2*time.Millisecond))
	if err := g.Insert(c); err != nil {
		t.Fatalf("insert c: %v", err)
	}
	if third := DetectRaces(g, trace); len(third) != 3 {
		t.Errorf("expected 3 racing pairs after the insert changed the version, got %d", len(third))
	}
}
