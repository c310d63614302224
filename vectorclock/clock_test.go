package vectorclock

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCompare(t *testing.T) {
	for _, test := range []struct {
		name string
		a, b Clock
		want Order
	}{
		{"empty vs empty", Clock{}, Clock{}, Equal},
		{"empty vs non-empty", Clock{}, Clock{"x": 1}, Less},
		{"non-empty vs empty", Clock{"x": 1}, Clock{}, Greater},
		{"identical", Clock{"x": 2, "y": 1}, Clock{"x": 2, "y": 1}, Equal},
		{"strictly less", Clock{"x": 1, "y": 1}, Clock{"x": 2, "y": 2}, Less},
		{"strictly greater", Clock{"x": 2, "y": 2}, Clock{"x": 1, "y": 1}, Greater},
		// S2: vc_a = {x:2, y:1}, vc_b = {x:1, y:2} -> Concurrent.
		{"concurrent", Clock{"x": 2, "y": 1}, Clock{"x": 1, "y": 2}, Concurrent},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := Compare(test.a, test.b); got != test.want {
				t.Errorf("Compare(%v, %v) = %v, want %v", test.a, test.b, got, test.want)
			}
		})
	}
}

func TestCompareBothLessThanMerge(t *testing.T) {
	// S2: vc_c = {x:2, y:2} -> both vc_a and vc_b are Less than vc_c.
	a := Clock{"x": 2, "y": 1}
	b := Clock{"x": 1, "y": 2}
	c := Clock{"x": 2, "y": 2}

	if got := Compare(a, c); got != Less {
		t.Errorf("Compare(a, c) = %v, want Less", got)
	}
	if got := Compare(b, c); got != Less {
		t.Errorf("Compare(b, c) = %v, want Less", got)
	}
}

func TestTick(t *testing.T) {
	base := Clock{"x": 1}
	ticked := Tick(base, "x")

	if diff := cmp.Diff(Clock{"x": 1}, base); diff != "" {
		t.Errorf("Tick must not mutate its argument (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Clock{"x": 2}, ticked); diff != "" {
		t.Errorf("Tick(x) (-want +got):\n%s", diff)
	}

	fresh := Tick(Clock{}, "y")
	if diff := cmp.Diff(Clock{"y": 1}, fresh); diff != "" {
		t.Errorf("Tick on empty clock (-want +got):\n%s", diff)
	}
}

func TestMerge(t *testing.T) {
	a := Clock{"x": 2, "y": 1}
	b := Clock{"x": 1, "y": 3, "z": 1}

	got := Merge(a, b)
	want := Clock{"x": 2, "y": 3, "z": 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge (-want +got):\n%s", diff)
	}

	// Merge must not mutate its inputs.
	if diff := cmp.Diff(Clock{"x": 2, "y": 1}, a); diff != "" {
		t.Errorf("Merge mutated a (-want +got):\n%s", diff)
	}
}

func TestMergeIdentity(t *testing.T) {
	a := Clock{"x": 1}
	if diff := cmp.Diff(a, Merge(a, Clock{})); diff != "" {
		t.Errorf("empty clock is not identity for Merge (-want +got):\n%s", diff)
	}
}

func TestHappensBeforeAndConcurrent(t *testing.T) {
	a := Clock{"x": 1}
	b := Clock{"x": 2}
	c := Clock{"y": 1}

	if !HappensBefore(a, b) {
		t.Error("expected a happens-before b")
	}
	if HappensBefore(b, a) {
		t.Error("did not expect b happens-before a")
	}
	if !AreConcurrent(a, c) {
		t.Error("expected a and c to be concurrent")
	}
	if AreConcurrent(a, b) {
		t.Error("a and b are ordered, not concurrent")
	}
}
