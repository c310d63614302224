package queryhttp

import (
	"testing"

	"github.com/sirupsen/logrus"
	"go.uber.org/goleak"

	"github.com/Mode7Labs/raceway-sub002/analysis"
	"github.com/Mode7Labs/raceway-sub002/baseline"
	"github.com/Mode7Labs/raceway-sub002/graph"
	"github.com/Mode7Labs/raceway-sub002/index"
	"github.com/Mode7Labs/raceway-sub002/ingest"
	"github.com/Mode7Labs/raceway-sub002/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer() *Server {
	g := graph.New()
	idx := index.New()
	baselines := baseline.New()
	pipeline := ingest.New(g, idx, baselines, storage.NewNoopStore(), analysis.NewMerger(), silentLogger(), 0)
	return NewServer(g, idx, baselines, pipeline, nil, silentLogger(), 16)
}

func silentLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(nopWriter{})
	return log
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
