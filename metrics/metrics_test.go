package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return New(prometheus.NewRegistry())
}

func TestObserveIngestedIncrementsByKind(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveIngested("StateChange")
	m.ObserveIngested("StateChange")
	m.ObserveIngested("LockAcquire")

	if got := testutil.ToFloat64(m.eventsIngestedTotal.WithLabelValues("StateChange")); got != 2 {
		t.Errorf("StateChange count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.eventsIngestedTotal.WithLabelValues("LockAcquire")); got != 1 {
		t.Errorf("LockAcquire count = %v, want 1", got)
	}
}

func TestObserveRejectedTracksReason(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveRejected("Validation")

	if got := testutil.ToFloat64(m.eventsRejectedTotal.WithLabelValues("Validation")); got != 1 {
		t.Errorf("Validation rejection count = %v, want 1", got)
	}
}

func TestObserveOverloadedIncrementsCounter(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveOverloaded()
	m.ObserveOverloaded()

	if got := testutil.ToFloat64(m.batchesOverloaded); got != 2 {
		t.Errorf("overloaded count = %v, want 2", got)
	}
}

func TestObserveRacesSplitsBySeverity(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveRaces(1, 2)

	if got := testutil.ToFloat64(m.racesDetectedTotal.WithLabelValues("Critical")); got != 1 {
		t.Errorf("Critical count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.racesDetectedTotal.WithLabelValues("Warning")); got != 2 {
		t.Errorf("Warning count = %v, want 2", got)
	}
}

func TestSetGraphEventsTrackedOverwrites(t *testing.T) {
	m := newTestMetrics(t)
	m.SetGraphEventsTracked(10)
	m.SetGraphEventsTracked(7)

	if got := testutil.ToFloat64(m.graphEventsTracked); got != 7 {
		t.Errorf("graph events tracked = %v, want 7", got)
	}
}
