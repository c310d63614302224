package graph

import (
	"testing"
	"time"

	"github.com/Mode7Labs/raceway-sub002"
	"github.com/Mode7Labs/raceway-sub002/vectorclock"
)

func TestTopologicallyOrderedEventsRespectsProgramOrder(t *testing.T) {
	g := New()
	trace := raceway.NewTraceId()
	base := time.Now()

	aId := raceway.NewEventId()
	a := stateChangeEvent(aId, trace, nil, "i1", vectorclock.Clock{"i1": 1}, base)
	bId := raceway.NewEventId()
	b := stateChangeEvent(bId, trace, &aId, "i1", vectorclock.Clock{"i1": 2}, base.Add(time.Millisecond))
	cId := raceway.NewEventId()
	c := stateChangeEvent(cId, trace, &bId, "i1", vectorclock.Clock{"i1": 3}, base.Add(2*time.Millisecond))

	// Insert out of causal order to verify the topo sort, not insertion order.
	for _, e := range []raceway.Event{c, a, b} {
		if err := g.Insert(e); err != nil {
			t.Fatalf("insert %v: %v", e.Id, err)
		}
	}

	ordered := g.TopologicallyOrderedEvents(trace)
	if len(ordered) != 3 {
		t.Fatalf("expected 3 events, got %d", len(ordered))
	}
	gotIds := []raceway.EventId{ordered[0].Id, ordered[1].Id, ordered[2].Id}
	wantIds := []raceway.EventId{aId, bId, cId}
	for i := range wantIds {
		if gotIds[i] != wantIds[i] {
			t.Errorf("position %d: got %v, want %v (full order %v)", i, gotIds[i], wantIds[i], gotIds)
		}
	}
}

func TestTopologicallyOrderedEventsTiebreaksByTimestampThenId(t *testing.T) {
	g := New()
	trace := raceway.NewTraceId()
	base := time.Now()

	// Two independent roots (no edges between them) at the same timestamp;
	// tiebreak must fall to event id ordering, deterministically.
	var first, second raceway.EventId
	e1 := stateChangeEvent(raceway.NewEventId(), trace, nil, "i1", vectorclock.Clock{"i1": 1}, base)
	e2 := stateChangeEvent(raceway.NewEventId(), trace, nil, "i2", vectorclock.Clock{"i2": 1}, base)
	if e1.Id < e2.Id {
		first, second = e1.Id, e2.Id
	} else {
		first, second = e2.Id, e1.Id
	}

	if err := g.Insert(e1); err != nil {
		t.Fatalf("insert e1: %v", err)
	}
	if err := g.Insert(e2); err != nil {
		t.Fatalf("insert e2: %v", err)
	}

	ordered := g.TopologicallyOrderedEvents(trace)
	if len(ordered) != 2 {
		t.Fatalf("expected 2 events, got %d", len(ordered))
	}
	if ordered[0].Id != first || ordered[1].Id != second {
		t.Errorf("got order [%v %v], want [%v %v]", ordered[0].Id, ordered[1].Id, first, second)
	}
}

func TestTopologicallyOrderedEventsEmptyTrace(t *testing.T) {
	g := New()
	if got := g.TopologicallyOrderedEvents(raceway.NewTraceId()); got != nil {
		t.Errorf("expected nil for unknown trace, got %v", got)
	}
}
