// Package idgen mints request ids for query-surface diagnostics: the value
// stamped onto every HTTP response and log line so a single request can be
// traced through logs even without a full distributed trace attached to it.
// This is deliberately distinct from raceway.EventId/TraceId, which are
// UUIDs minted by instrumented clients, not by the engine.
package idgen

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// requestIDEntropy is a single shared, mutex-guarded entropy source. ulid's
// default entropy reader is not safe for concurrent use, and the query
// surface mints ids from many request-handling goroutines at once.
var (
	entropyMu sync.Mutex
	entropy   = ulid.DefaultEntropy()
)

// NewRequestId mints a new lexicographically-sortable request id.
func NewRequestId() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
