package analysis

import (
	"github.com/Mode7Labs/raceway-sub002"
	"github.com/Mode7Labs/raceway-sub002/baseline"
	"github.com/Mode7Labs/raceway-sub002/graph"
)

// AnomalySeverity classifies how far an event's duration deviates from its
// kind's baseline.
type AnomalySeverity string

const (
	High   AnomalySeverity = "High"
	Medium AnomalySeverity = "Medium"
	Low    AnomalySeverity = "Low"
)

// Anomaly is one event whose duration is a statistical outlier relative to
// its event kind's baseline.
type Anomaly struct {
	Event        raceway.Event
	ActualUs     float64
	ExpectedUs   float64
	DeviationSigmas float64
	Severity     AnomalySeverity
}

// defaultSigmaThreshold is the engine default when a caller doesn't specify
// one, per spec.md §4.5.3's contract signature.
const defaultSigmaThreshold = 2.0

// minBaselineCount is the smallest sample size a baseline must have before
// it's trusted to judge outliers.
const minBaselineCount = 5

// stdDevFloorUs guards against a near-zero std_dev (e.g. identical samples)
// producing an infinite or meaningless sigma count. Below this floor the
// threshold falls back to 2x the mean, per spec.md's S4 scenario.
const stdDevFloorUs = 1.0

// Anomalies returns every anomalous event in a trace, per spec.md §4.5.3.
// Baselines are global and continuously updated, so results aren't cached —
// callers who need stability across repeated calls should dedupe with
// baselines.Version() themselves.
func Anomalies(g *graph.Graph, b *baseline.Store, traceId raceway.TraceId, sigmaThreshold float64) []Anomaly {
	if sigmaThreshold <= 0 {
		sigmaThreshold = defaultSigmaThreshold
	}

	var anomalies []Anomaly
	for _, e := range g.TraceEvents(traceId) {
		if e.Metadata.DurationNs == nil {
			continue
		}
		kind := e.Kind.Name()
		m, ok := b.Get(kind)
		if !ok || m.Count < minBaselineCount {
			continue
		}

		actualUs := float64(*e.Metadata.DurationNs) / 1000
		stdDev := m.StdDev()

		var threshold float64
		var sigmas float64
		if stdDev < stdDevFloorUs {
			threshold = m.Mean * 2
			if m.Mean > 0 {
				sigmas = actualUs / m.Mean
			}
		} else {
			threshold = m.Mean + sigmaThreshold*stdDev
			sigmas = (actualUs - m.Mean) / stdDev
		}

		if actualUs <= threshold {
			continue
		}

		anomalies = append(anomalies, Anomaly{
			Event:           e,
			ActualUs:        actualUs,
			ExpectedUs:      m.Mean,
			DeviationSigmas: sigmas,
			Severity:        severityFor(sigmas),
		})
	}
	return anomalies
}

func severityFor(sigmas float64) AnomalySeverity {
	switch {
	case sigmas >= 3:
		return High
	case sigmas >= 2.5:
		return Medium
	default:
		return Low
	}
}
