// Package metrics holds the engine's Prometheus instrumentation: ingestion
// throughput/latency and query-surface latency. Observability isn't part of
// the causality-analysis core itself, but every component that sits on the
// hot path reports through here.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the engine registers. A Metrics
// value is constructed against a specific registry so tests can use a
// throwaway prometheus.NewRegistry() instead of colliding on the global
// default registry.
type Metrics struct {
	eventsIngestedTotal  *prometheus.CounterVec
	eventsRejectedTotal  *prometheus.CounterVec
	batchesOverloaded    prometheus.Counter
	ingestDuration       prometheus.Histogram
	queryDuration        *prometheus.HistogramVec
	racesDetectedTotal   *prometheus.CounterVec
	anomaliesTotal       prometheus.Counter
	graphEventsTracked   prometheus.Gauge
}

// New registers and returns the engine's metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		eventsIngestedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "raceway_events_ingested_total",
			Help: "Total number of events successfully ingested into the causal graph.",
		}, []string{"kind"}),

		eventsRejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "raceway_events_rejected_total",
			Help: "Total number of events rejected during ingestion, by reason.",
		}, []string{"reason"}),

		batchesOverloaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "raceway_ingest_overloaded_total",
			Help: "Total number of batches rejected because the ingestion queue was full.",
		}),

		ingestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "raceway_ingest_batch_duration_seconds",
			Help:    "Time spent processing one ingestion batch end to end.",
			Buckets: prometheus.DefBuckets,
		}),

		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "raceway_query_duration_seconds",
			Help:    "Time spent answering one query-surface operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		racesDetectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "raceway_races_detected_total",
			Help: "Total number of race pairs returned by detectRaces, by severity.",
		}, []string{"severity"}),

		anomaliesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "raceway_anomalies_detected_total",
			Help: "Total number of anomalies returned across all anomaly queries.",
		}),

		graphEventsTracked: factory.NewGauge(prometheus.GaugeOpts{
			Name: "raceway_graph_events_tracked",
			Help: "Approximate number of events currently held in the causal graph.",
		}),
	}
}

// ObserveIngested records a successfully ingested event of the given kind.
func (m *Metrics) ObserveIngested(kind string) {
	m.eventsIngestedTotal.WithLabelValues(kind).Inc()
}

// ObserveRejected records a rejected event with its rejection reason.
func (m *Metrics) ObserveRejected(reason string) {
	m.eventsRejectedTotal.WithLabelValues(reason).Inc()
}

// ObserveOverloaded records a batch refused for backpressure.
func (m *Metrics) ObserveOverloaded() {
	m.batchesOverloaded.Inc()
}

// ObserveIngestDuration records how long one batch took to process, in
// seconds.
func (m *Metrics) ObserveIngestDuration(seconds float64) {
	m.ingestDuration.Observe(seconds)
}

// ObserveQueryDuration records how long a named query-surface operation
// took, in seconds.
func (m *Metrics) ObserveQueryDuration(operation string, seconds float64) {
	m.queryDuration.WithLabelValues(operation).Observe(seconds)
}

// ObserveRaces records the severities of a detectRaces result.
func (m *Metrics) ObserveRaces(critical, warning int) {
	if critical > 0 {
		m.racesDetectedTotal.WithLabelValues("Critical").Add(float64(critical))
	}
	if warning > 0 {
		m.racesDetectedTotal.WithLabelValues("Warning").Add(float64(warning))
	}
}

// ObserveAnomalies records the count of anomalies returned by one query.
func (m *Metrics) ObserveAnomalies(n int) {
	m.anomaliesTotal.Add(float64(n))
}

// SetGraphEventsTracked sets the current approximate event count.
func (m *Metrics) SetGraphEventsTracked(n int) {
	m.graphEventsTracked.Set(float64(n))
}
