package storage

import (
	"context"
	"testing"

	"github.com/Mode7Labs/raceway-sub002"
	"github.com/Mode7Labs/raceway-sub002/index"
)

func TestNoopStoreWritesAreNoOps(t *testing.T) {
	var s Store = NewNoopStore()
	ctx := context.Background()

	if err := s.StoreEvent(ctx, raceway.Event{Id: "e1"}); err != nil {
		t.Errorf("StoreEvent: %v", err)
	}
	if err := s.StoreIndexEntry(ctx, index.Entry{Variable: "x"}); err != nil {
		t.Errorf("StoreIndexEntry: %v", err)
	}
}

func TestNoopStoreLoadAllYieldsNothing(t *testing.T) {
	s := NewNoopStore()
	it, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	rec, done, err := it.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !done {
		t.Errorf("expected done=true immediately, got rec=%+v", rec)
	}
}
