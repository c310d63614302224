package ring

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func assertEqual[T any](t *testing.T, have, want T) {
	t.Helper()
	if !cmp.Equal(have, want) {
		t.Fatal(cmp.Diff(have, want))
	}
}

func TestBufferWalkMostRecentFirst(t *testing.T) {
	rb := New[int](3)

	top := func(k int) []int {
		res := []int{}
		rb.Walk(func(i int) error {
			if k >= 0 && len(res) >= k {
				return errors.New("done")
			}
			res = append(res, i)
			return nil
		})
		return res
	}

	assertEqual(t, top(-1), []int{})

	rb.Add(1)
	assertEqual(t, top(-1), []int{1})

	rb.Add(2)
	rb.Add(3)
	assertEqual(t, top(-1), []int{3, 2, 1})

	// Overwrite the oldest value.
	dropped, ok := rb.Add(4)
	if !ok || dropped != 1 {
		t.Fatalf("Add(4) dropped=%v ok=%v, want 1,true", dropped, ok)
	}
	assertEqual(t, top(-1), []int{4, 3, 2})
}

func TestBufferAddReturnsNoDropUntilFull(t *testing.T) {
	rb := New[int](2)
	if _, ok := rb.Add(1); ok {
		t.Error("expected no drop on first add")
	}
	if _, ok := rb.Add(2); ok {
		t.Error("expected no drop on second add")
	}
	if _, ok := rb.Add(3); !ok {
		t.Error("expected a drop once the buffer is full")
	}
}

func TestRecentReturnsOldestFirst(t *testing.T) {
	rb := New[int](5)
	rb.Add(1)
	rb.Add(2)
	rb.Add(3)

	got := rb.Recent(2)
	assertEqual(t, got, []int{2, 3})
}

func TestZeroCapacityBuffer(t *testing.T) {
	rb := New[int](0)
	if _, ok := rb.Add(1); ok {
		t.Error("expected no-op Add on a zero-capacity buffer")
	}
	if got := rb.Recent(5); len(got) != 0 {
		t.Errorf("expected empty Recent, got %v", got)
	}
}
