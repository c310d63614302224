package graph

import "github.com/Mode7Labs/raceway-sub002"

// CausalNode is the stored Event plus derived fields maintained by the graph.
type CausalNode struct {
	Event raceway.Event

	// InCount and OutCount are not filled in by the graph: Insert stores
	// the node with both at zero. Edges live in a separate adjacency
	// structure guarded by its own lock (see Graph.edgesMu) and are read
	// through Graph.Predecessors and Graph.Successors.
	InCount  int
	OutCount int
}
