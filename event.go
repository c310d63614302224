package raceway

import (
	"time"

	"github.com/Mode7Labs/raceway-sub002/vectorclock"
)

// Event is a single capture emitted by an instrumented process. Once
// ingested, an Event is never mutated; all derived state (graph edges,
// index entries, baselines) is computed from it but never writes back into
// it.
type Event struct {
	Id       EventId
	TraceId  TraceId
	ParentId *EventId // optional; must reference an event in the same trace

	Timestamp time.Time // nanosecond precision, ideally UTC
	Kind      EventKind
	Metadata  EventMetadata

	// Causality is the sender's vector clock snapshot, merged with the
	// engine's local view of the sending instance during ingestion (see
	// Pipeline.Ingest). After ingestion it is the authoritative causal
	// position of the event in the graph.
	Causality vectorclock.Clock

	// LockSet is the set of lock ids held by the sender at capture time.
	// Reserved for future lock-aware race suppression; see spec.md's open
	// questions. Not consulted by detectGlobalRaces today.
	LockSet []string
}

// EventMetadata carries descriptive fields that are never used as causality
// signals. In particular ThreadId is informational only: per the SDK
// contract, vector clocks are trace-local and follow the logical request
// across thread and goroutine migrations.
type EventMetadata struct {
	ThreadId    string
	InstanceId  InstanceId
	ServiceName string
	Environment string
	Tags        map[string]string
	DurationNs  *uint64
	Location    string

	// DistributedSpanId, if set, declares this event as the terminus of a
	// span: the point a remote call stitches back onto once the callee's
	// events arrive. UpstreamSpanId, if set, is the span id this event's
	// call arrived from, used to stitch it onto that span's terminus even
	// when the transport didn't carry a propagation header.
	DistributedSpanId string
	UpstreamSpanId    string
}

// DurationMillis returns the event's duration in milliseconds, or 0 if the
// event carries no duration. Used by critical-path accumulation (spec.md
// §4.5.2 step 4).
func (e *Event) DurationMillis() float64 {
	if e.Metadata.DurationNs == nil {
		return 0
	}
	return float64(*e.Metadata.DurationNs) / 1_000_000
}
