// Package queryhttp implements the HTTP query surface of spec.md §4.6: the
// small set of JSON operations front-ends use to ingest events and query
// the causal graph. Building a web or terminal UI on top of this surface is
// explicitly out of scope; this package only answers requests.
package queryhttp

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Mode7Labs/raceway-sub002/baseline"
	"github.com/Mode7Labs/raceway-sub002/graph"
	"github.com/Mode7Labs/raceway-sub002/index"
	"github.com/Mode7Labs/raceway-sub002/ingest"
	"github.com/Mode7Labs/raceway-sub002/internal/broker"
	"github.com/Mode7Labs/raceway-sub002/internal/ring"
	"github.com/Mode7Labs/raceway-sub002/internal/util"
	"github.com/Mode7Labs/raceway-sub002/metrics"
)

// maxRequestBodySizeBytes bounds a single ingestion request body.
const maxRequestBodySizeBytes = 64 << 20 // 64MiB

// Server wires the causal graph and its collaborators to a gorilla/mux
// router, exposing spec.md §4.6's query surface plus the ambient
// /healthz, /metrics, and /events/stream endpoints.
type Server struct {
	Graph     *graph.Graph
	Index     *index.Index
	Baselines *baseline.Store
	Pipeline  *ingest.Pipeline
	Metrics   *metrics.Metrics
	Log       *logrus.Logger

	replay   *ring.Buffer[streamEvent]
	feed     *broker.Broker[streamEvent]
	draining *util.Atomic[bool]

	router *mux.Router
}

// NewServer constructs a query-surface server and registers its routes.
// replayBuffer bounds how many recent events a new SSE subscriber replays
// before switching to the live feed.
func NewServer(g *graph.Graph, idx *index.Index, baselines *baseline.Store, pipeline *ingest.Pipeline, m *metrics.Metrics, log *logrus.Logger, replayBuffer int) *Server {
	if log == nil {
		log = logrus.New()
	}

	s := &Server{
		Graph:     g,
		Index:     idx,
		Baselines: baselines,
		Pipeline:  pipeline,
		Metrics:   m,
		Log:       log,
		replay:    ring.New[streamEvent](replayBuffer),
		feed:      broker.New[streamEvent](nil),
		draining:  util.NewAtomic(false),
	}

	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/events", s.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/events/stream", s.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/traces", s.handleListTraces).Methods(http.MethodGet)
	r.HandleFunc("/traces/{id}", s.handleGetTrace).Methods(http.MethodGet)
	r.HandleFunc("/services", s.handleGetServices).Methods(http.MethodGet)
	r.HandleFunc("/services/{name}/dependencies", s.handleServiceDependencies).Methods(http.MethodGet)
	r.HandleFunc("/variables/{name}/audit", s.handleAuditTrail).Methods(http.MethodGet)
	r.HandleFunc("/races", s.handleGlobalRaces).Methods(http.MethodGet)
	r.HandleFunc("/hotspots", s.handleSystemHotspots).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Drain marks the server as shutting down, so `/healthz` starts reporting
// unhealthy ahead of the listener actually closing — giving a load balancer
// time to stop routing new requests here before the process exits.
func (s *Server) Drain() {
	s.draining.Set(true)
}

// publishIngested fans an accepted event out to SSE subscribers and the
// replay buffer, called once per accepted event after a batch completes.
func (s *Server) publishIngested(se streamEvent) {
	s.replay.Add(se)
	s.feed.Publish(se)
}
