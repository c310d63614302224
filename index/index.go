// Package index maintains the cross-trace variable index: a secondary index
// from variable name to every StateChange event touching it, across every
// trace the engine has seen. It is what makes audit trails and cross-trace
// race detection possible without scanning the whole graph.
package index

import (
	"sort"
	"sync"

	"github.com/Mode7Labs/raceway-sub002"
)

// Entry is one StateChange observation of a variable. It holds only the
// event id plus denormalized fields needed to sort and filter — never a
// reference into graph memory (spec.md §3.3's storage-layering rule).
type Entry struct {
	Variable   string
	EventId    raceway.EventId
	TraceId    raceway.TraceId
	Timestamp  int64 // UnixNano, denormalized for sort-free comparisons
	InstanceId raceway.InstanceId
	AccessType raceway.AccessType
	Location   string
}

// Index is a concurrency-safe variable -> []Entry map. Entries for a
// variable are appended in insertion order; Query sorts by timestamp (then
// event id) at read time rather than maintaining a sorted structure, since
// writes vastly outnumber reads in the ingestion-heavy path.
type Index struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// New returns an empty cross-trace index.
func New() *Index {
	return &Index{entries: map[string][]Entry{}}
}

// Add appends one entry for a variable. Exactly one entry is created per
// StateChange event (spec.md invariant 8); callers are responsible for not
// calling Add twice for the same event id.
func (idx *Index) Add(e Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries[e.Variable] = append(idx.entries[e.Variable], e)
}

// Query returns every entry recorded for a variable, ordered by timestamp
// ascending, then by event id for ties.
func (idx *Index) Query(variable string) []Entry {
	idx.mu.RLock()
	entries := append([]Entry(nil), idx.entries[variable]...)
	idx.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp < entries[j].Timestamp
		}
		return entries[i].EventId < entries[j].EventId
	})
	return entries
}

// Variables returns every variable name currently indexed.
func (idx *Index) Variables() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	names := make([]string, 0, len(idx.entries))
	for name := range idx.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of entries recorded for a variable.
func (idx *Index) Count(variable string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries[variable])
}
