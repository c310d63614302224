package analysis

import (
	"testing"
	"time"

	"github.com/Mode7Labs/raceway-sub002"
	"github.com/Mode7Labs/raceway-sub002/baseline"
	"github.com/Mode7Labs/raceway-sub002/graph"
	"github.com/Mode7Labs/raceway-sub002/vectorclock"
)

// TestAnomalyHighSeverityWithZeroStdDev implements spec.md's S4 scenario:
// ten identical 50ms samples establish a baseline with std_dev == 0, then an
// eleventh 500ms sample (10x the mean) must be flagged High via the
// minimum-sigma floor rule, not a divide-by-zero sigma count.
func TestAnomalyHighSeverityWithZeroStdDev(t *testing.T) {
	b := baseline.New()
	for i := 0; i < 10; i++ {
		b.Observe("FunctionCall", 50_000_000)
	}

	g := graph.New()
	trace := raceway.NewTraceId()
	ns := uint64(500_000_000)
	outlier := raceway.Event{
		Id:        "outlier",
		TraceId:   trace,
		Timestamp: time.Now(),
		Kind:      raceway.EventKind{FunctionCall: &raceway.FunctionCallData{FunctionName: "slow"}},
		Metadata:  raceway.EventMetadata{InstanceId: "svc", DurationNs: &ns},
		Causality: vectorclock.Clock{"svc": 1},
	}
	if err := g.Insert(outlier); err != nil {
		t.Fatalf("insert: %v", err)
	}

	anomalies := Anomalies(g, b, trace, 0)
	if len(anomalies) != 1 {
		t.Fatalf("expected exactly 1 anomaly, got %d: %+v", len(anomalies), anomalies)
	}
	if anomalies[0].Severity != High {
		t.Errorf("Severity = %v, want High", anomalies[0].Severity)
	}
}

func TestAnomalyNoBaselineBelowMinCount(t *testing.T) {
	b := baseline.New()
	for i := 0; i < 3; i++ {
		b.Observe("FunctionCall", 50_000_000)
	}

	g := graph.New()
	trace := raceway.NewTraceId()
	ns := uint64(500_000_000)
	if err := g.Insert(raceway.Event{
		Id:        "e1",
		TraceId:   trace,
		Timestamp: time.Now(),
		Kind:      raceway.EventKind{FunctionCall: &raceway.FunctionCallData{FunctionName: "x"}},
		Metadata:  raceway.EventMetadata{InstanceId: "svc", DurationNs: &ns},
		Causality: vectorclock.Clock{"svc": 1},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	anomalies := Anomalies(g, b, trace, 0)
	if len(anomalies) != 0 {
		t.Errorf("expected no anomalies with baseline count < 5, got %+v", anomalies)
	}
}

func TestAnomalySkipsEventsWithoutDuration(t *testing.T) {
	b := baseline.New()
	for i := 0; i < 5; i++ {
		b.Observe("FunctionCall", 50_000_000)
	}

	g := graph.New()
	trace := raceway.NewTraceId()
	if err := g.Insert(raceway.Event{
		Id:        "e1",
		TraceId:   trace,
		Timestamp: time.Now(),
		Kind:      raceway.EventKind{FunctionCall: &raceway.FunctionCallData{FunctionName: "x"}},
		Metadata:  raceway.EventMetadata{InstanceId: "svc"},
		Causality: vectorclock.Clock{"svc": 1},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if anomalies := Anomalies(g, b, trace, 0); len(anomalies) != 0 {
		t.Errorf("expected no anomalies for durationless events, got %+v", anomalies)
	}
}
