// Package ingest implements the ingestion pipeline described by spec.md
// §4.4: the bridge between a decoded wire batch and durable, well-formed
// graph state. It validates each event, reconciles its vector clock against
// the engine's local view of the sending instance, inserts it into the
// causal graph, feeds the cross-trace index and baselines, and writes
// through to storage — all without letting one bad event in a batch sink
// the rest.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Mode7Labs/raceway-sub002"
	"github.com/Mode7Labs/raceway-sub002/analysis"
	"github.com/Mode7Labs/raceway-sub002/baseline"
	"github.com/Mode7Labs/raceway-sub002/graph"
	"github.com/Mode7Labs/raceway-sub002/index"
	"github.com/Mode7Labs/raceway-sub002/metrics"
	"github.com/Mode7Labs/raceway-sub002/propagation"
	"github.com/Mode7Labs/raceway-sub002/storage"
	"github.com/Mode7Labs/raceway-sub002/vectorclock"
)

// RejectReason enumerates why a single event within an otherwise-accepted
// batch was not ingested.
type RejectReason string

const (
	// ReasonValidation corresponds to spec.md §4.4 step 1's Validation(reason).
	ReasonValidation RejectReason = "Validation"
	// ReasonCycle is reported when the graph refused the event's stated
	// causality because it would form a cycle (spec.md invariant 3).
	ReasonCycle RejectReason = "CycleWouldForm"
)

// Rejection is one entry of the batch response's `rejected` list
// (spec.md §4.6: `ingest(batch) -> {accepted, rejected: [{index, reason}]}`).
type Rejection struct {
	Index  int
	Reason RejectReason
	Detail string
}

// Result is the outcome of ingesting one batch. DuplicateId events count
// toward Accepted per spec.md step 3's at-least-once semantics; they are
// not rejections.
type Result struct {
	Accepted int
	Rejected []Rejection
}

// ErrOverloaded is returned by Ingest when the bounded ingestion queue is
// full, per spec.md §5's backpressure policy. Callers translate this to a
// 503 with Retry-After; SDKs are expected to retry with jittered backoff.
var ErrOverloaded = fmt.Errorf("ingest: queue overloaded")

// Propagation carries the per-event distributed-trace payload an HTTP
// handler extracts from request headers or an inline event field, keyed by
// the event's position in the batch. Events without an entry are treated
// as having no propagated parent.
type Propagation map[int]analysis.ParentPayload

// Pipeline is the engine's ingestion entry point. A Pipeline owns a bounded
// semaphore limiting how many batches may be mid-flight at once; beyond
// that capacity Ingest returns ErrOverloaded immediately rather than
// queuing unboundedly, per spec.md §5.
type Pipeline struct {
	Graph     *graph.Graph
	Index     *index.Index
	Baselines *baseline.Store
	Store     storage.Store
	Merger    *analysis.Merger
	Log       *logrus.Logger
	// Metrics is consulted if non-nil; left unset by New so callers that
	// don't care about Prometheus never have to thread one through.
	Metrics *metrics.Metrics

	localClocks *instanceClocks
	inFlight    chan struct{}
}

// New returns a Pipeline wired to the given collaborators. maxInFlight
// bounds the number of batches processed concurrently before Ingest starts
// returning ErrOverloaded; a value <= 0 means unbounded.
func New(g *graph.Graph, idx *index.Index, baselines *baseline.Store, store storage.Store, merger *analysis.Merger, log *logrus.Logger, maxInFlight int) *Pipeline {
	if log == nil {
		log = logrus.New()
	}
	p := &Pipeline{
		Graph:       g,
		Index:       idx,
		Baselines:   baselines,
		Store:       store,
		Merger:      merger,
		Log:         log,
		localClocks: newInstanceClocks(),
	}
	if maxInFlight > 0 {
		p.inFlight = make(chan struct{}, maxInFlight)
	}
	return p
}

// Ingest runs the 7-step algorithm of spec.md §4.4 over every event in the
// batch, in arrival order. The algorithm is idempotent under reordering
// because vector-clock merging is commutative and associative, so arrival
// order only affects which duplicate wins, never correctness.
func (p *Pipeline) Ingest(ctx context.Context, events []*raceway.Event, prop Propagation) (Result, error) {
	if p.inFlight != nil {
		select {
		case p.inFlight <- struct{}{}:
			defer func() { <-p.inFlight }()
		default:
			return Result{}, ErrOverloaded
		}
	}

	begin := time.Now()
	if p.Metrics != nil {
		defer func() { p.Metrics.ObserveIngestDuration(time.Since(begin).Seconds()) }()
	}

	var res Result
	for i, e := range events {
		if err := ctx.Err(); err != nil {
			// Cancellation before the graph write lock is acquired drops
			// the rest of the batch (spec.md §5's cancellation rule).
			break
		}

		reason, detail, err := p.ingestOne(ctx, e, prop[i])
		if err != nil {
			res.Rejected = append(res.Rejected, Rejection{Index: i, Reason: reason, Detail: detail})
			p.Log.WithFields(logrus.Fields{
				"event_id": e.Id,
				"trace_id": e.TraceId,
				"reason":   reason,
			}).WithError(err).Warn("ingest: event rejected")
			continue
		}
		res.Accepted++
	}

	return res, nil
}

// ingestOne runs steps 1-7 for a single event. A non-nil error means the
// event was not inserted; reason/detail describe why for the batch
// response.
func (p *Pipeline) ingestOne(ctx context.Context, e *raceway.Event, payload analysis.ParentPayload) (RejectReason, string, error) {
	// Step 1: validate.
	if reason, detail, err := validate(e); err != nil {
		return reason, detail, err
	}

	// Step 2: clock reconciliation. An event that didn't arrive with a
	// batch-level propagation header can still declare its own upstream
	// span inline; fall back to that before deciding whether this event
	// has a distributed parent to reconcile against.
	if payload.ParentSpanId == "" && e.Metadata.UpstreamSpanId != "" {
		payload.ParentSpanId = e.Metadata.UpstreamSpanId
	}

	instance := string(e.Metadata.InstanceId)
	reconciled := p.localClocks.reconcile(instance, e.Causality)
	if payload.ParentSpanId != "" || len(payload.ParentVC) > 0 {
		reconciled = p.Merger.ReconcileParent(p.Graph, e.TraceId, e.Id, reconciled, payload)
	}
	e.Causality = reconciled

	// Step 3: insert into graph. DuplicateId is success (at-least-once
	// delivery), not a rejection.
	if err := p.Graph.Insert(*e); err != nil {
		if err == graph.ErrDuplicateId {
			p.Log.WithField("event_id", e.Id).Debug("ingest: duplicate event id")
			return "", "", nil
		}
		if cycleErr, ok := err.(*graph.CycleWouldFormError); ok {
			return ReasonCycle, cycleErr.Error(), cycleErr
		}
		return ReasonCycle, err.Error(), err
	}

	// An event that declares itself as a span terminus registers that span
	// as open, so a remote child arriving later (by UpstreamSpanId or a
	// propagation header naming this span) can be stitched on immediately
	// instead of waiting in Merger.pending.
	if e.Metadata.DistributedSpanId != "" {
		p.Merger.OpenSpan(p.Graph, e.TraceId, e.Metadata.DistributedSpanId, e.Id)
	}

	// Step 4: index StateChange events.
	var entry *index.Entry
	if e.Kind.IsStateChange() {
		entry = &index.Entry{
			Variable:   e.Kind.StateChange.Variable,
			EventId:    e.Id,
			TraceId:    e.TraceId,
			Timestamp:  e.Timestamp.UnixNano(),
			InstanceId: e.Metadata.InstanceId,
			AccessType: e.Kind.StateChange.AccessType,
			Location:   e.Kind.StateChange.Location,
		}
		p.Index.Add(*entry)
	}

	// Step 5: update baselines.
	if e.Metadata.DurationNs != nil {
		p.Baselines.Observe(e.Kind.Name(), *e.Metadata.DurationNs)
	}

	// Step 6: persist. Storage errors are logged, not rolled back — lossy
	// on persistence is accepted, lossy in-memory is not (spec.md step 6).
	if err := p.persist(ctx, e, entry); err != nil {
		p.Log.WithFields(logrus.Fields{"event_id": e.Id}).WithError(err).Error("ingest: storage write failed")
	}

	// Step 7: invalidation is handled inside Graph.Insert itself, which
	// bumps trace_version and drops both caches for the trace as part of
	// the same write-lock critical section.

	return "", "", nil
}

// persist writes the event, the edges Insert just gave it, the StateChange
// index entry (if any), and the refreshed baseline metric (if the event
// carried a duration) through to the Store. Graph.Predecessors(e.Id) returns
// the edges Insert just added for it, plus any Distributed edge that
// Merger.ReconcileParent attached to it just before the insert.
func (p *Pipeline) persist(ctx context.Context, e *raceway.Event, entry *index.Entry) error {
	if p.Store == nil {
		return nil
	}

	var errs []error

	if err := p.Store.StoreEvent(ctx, *e); err != nil {
		errs = append(errs, fmt.Errorf("store event: %w", err))
	}

	for _, edge := range p.Graph.Predecessors(e.Id) {
		if err := p.Store.StoreEdge(ctx, e.TraceId, edge); err != nil {
			errs = append(errs, fmt.Errorf("store edge: %w", err))
		}
	}

	if entry != nil {
		if err := p.Store.StoreIndexEntry(ctx, *entry); err != nil {
			errs = append(errs, fmt.Errorf("store index entry: %w", err))
		}
	}

	if e.Metadata.DurationNs != nil {
		if metric, ok := p.Baselines.Get(e.Kind.Name()); ok {
			if err := p.Store.StoreBaseline(ctx, e.Kind.Name(), metric); err != nil {
				errs = append(errs, fmt.Errorf("store baseline: %w", err))
			}
		}
	}

	return errors.Join(errs...)
}

// validate implements spec.md §4.4 step 1's structural checks beyond the
// wire-codec decode that already happened in §4.1.
func validate(e *raceway.Event) (RejectReason, string, error) {
	if e.TraceId == "" {
		return ReasonValidation, "trace_id", fmt.Errorf("ingest: missing trace_id")
	}
	if e.Metadata.InstanceId == "" {
		return ReasonValidation, "metadata.instance_id", fmt.Errorf("ingest: missing metadata.instance_id")
	}
	if e.Timestamp.IsZero() {
		return ReasonValidation, "timestamp", fmt.Errorf("ingest: invalid timestamp")
	}
	return "", "", nil
}

// instanceClocks tracks the engine's local view of each instance's
// per-instance vector-clock counter, so concurrent ingestions from the same
// instance observe it monotonically (spec.md §5's ordering guarantee).
type instanceClocks struct {
	mu      chan struct{} // 1-buffered mutex; see lock/unlock below
	counter map[string]uint64
}

func newInstanceClocks() *instanceClocks {
	c := &instanceClocks{mu: make(chan struct{}, 1), counter: map[string]uint64{}}
	c.mu <- struct{}{}
	return c
}

func (c *instanceClocks) lock()   { <-c.mu }
func (c *instanceClocks) unlock() { c.mu <- struct{}{} }

// reconcile applies spec.md §4.4 step 2: synthesize {instance: 1} if vc is
// absent; otherwise ensure vc[instance] >= 1 and advance the engine's local
// view of that instance's counter to max(local, vc[instance]). Timestamps
// are never forced monotonic; only the named instance's own component is
// touched.
func (c *instanceClocks) reconcile(instance string, vc vectorclock.Clock) vectorclock.Clock {
	c.lock()
	defer c.unlock()

	out := vc.Clone()
	if len(out) == 0 {
		out = vectorclock.Clock{instance: 1}
	} else if out[instance] == 0 {
		out[instance] = 1
	}

	if local := c.counter[instance]; out[instance] < local {
		out[instance] = local
	}
	c.counter[instance] = out[instance]

	return out
}
