package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/unixtransport/unixproxy"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Mode7Labs/raceway-sub002/analysis"
	"github.com/Mode7Labs/raceway-sub002/baseline"
	"github.com/Mode7Labs/raceway-sub002/graph"
	"github.com/Mode7Labs/raceway-sub002/index"
	"github.com/Mode7Labs/raceway-sub002/ingest"
	"github.com/Mode7Labs/raceway-sub002/metrics"
	"github.com/Mode7Labs/raceway-sub002/queryhttp"
	"github.com/Mode7Labs/raceway-sub002/storage"
)

// serveConfig holds the `racewayd serve` flags: where to listen, and the
// bounds on the ingestion queue and SSE replay buffer (spec.md §5's
// backpressure and §4.6's stream convenience, respectively).
type serveConfig struct {
	*rootConfig

	ListenAddr          string `ff:" short: a | long: listen-addr           | default: localhost:7070 | placeholder: ADDR | usage: HTTP listen address, or unix:///path/to.sock "`
	MaxInFlightBatches  int    `ff:"            long: max-inflight-batches | default: 256             | placeholder: N    | usage: bounded ingestion queue depth before Overloaded "`
	ReplayBufferSize    int    `ff:"            long: replay-buffer        | default: 1000            | placeholder: N    | usage: recent-event history replayed to new SSE subscribers "`
}

func (cfg *serveConfig) register(fs *ff.FlagSet) {
	if err := fs.AddStruct(cfg); err != nil {
		panic(fmt.Errorf("invalid struct config: %w", err))
	}
}

// Exec wires the causal graph and its collaborators, then serves the query
// surface until the process receives an interrupt, per spec.md §5's process
// lifecycle.
func (cfg *serveConfig) Exec(ctx context.Context, args []string) error {
	log, err := cfg.newLogger()
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	g := graph.New()
	idx := index.New()
	baselines := baseline.New()
	store := storage.NewNoopStore()
	merger := analysis.NewMerger()
	m := metrics.New(prometheus.DefaultRegisterer)
	g.Metrics = m

	pipeline := ingest.New(g, idx, baselines, store, merger, log, cfg.MaxInFlightBatches)
	pipeline.Metrics = m
	server := queryhttp.NewServer(g, idx, baselines, pipeline, m, log, cfg.ReplayBufferSize)

	ln, err := unixproxy.ListenURI(ctx, cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	log.WithField("addr", ln.Addr().String()).Info("racewayd listening")

	httpServer := &http.Server{Handler: server}

	var g2 run.Group
	g2.Add(func() error {
		return httpServer.Serve(ln)
	}, func(error) {
		server.Drain()
		ln.Close()
	})
	g2.Add(run.SignalHandler(ctx, os.Interrupt, os.Kill))

	return g2.Run()
}
