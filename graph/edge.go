package graph

import "github.com/Mode7Labs/raceway-sub002"

// EdgeKind classifies a CausalEdge.
type EdgeKind string

const (
	// ProgramOrder connects an event to its explicit parent_id.
	ProgramOrder EdgeKind = "ProgramOrder"
	// Causal connects an event to the previous event from the same
	// instance within a trace, inferred from vector clocks.
	Causal EdgeKind = "Causal"
	// Lock connects a LockRelease to the next LockAcquire of the same
	// lock id, possibly across traces.
	Lock EdgeKind = "Lock"
	// Async connects an AsyncSpawn to the event it spawned.
	Async EdgeKind = "Async"
	// Distributed connects a span's terminal event in one instance to the
	// first event of a child span in another instance (spec.md §4.5.5).
	Distributed EdgeKind = "Distributed"
)

// CausalEdge is a directed happens-before edge from one event to another.
// Edges are created during insertion and never mutated afterward.
type CausalEdge struct {
	From   raceway.EventId
	To     raceway.EventId
	Kind   EdgeKind
	Weight float64
}
