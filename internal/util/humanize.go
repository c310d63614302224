package util

import (
	"fmt"
	"strings"
	"time"
)

// TruncateDuration truncates d to a precision appropriate for its
// magnitude, so logged request durations don't carry spurious
// sub-microsecond noise.
func TruncateDuration(d time.Duration) time.Duration {
	switch {
	case d >= 10*24*time.Hour:
		return d.Truncate(24 * time.Hour)
	case d >= 24*time.Hour:
		return d.Truncate(time.Hour)
	case d >= time.Hour:
		return d.Truncate(time.Minute)
	case d >= time.Minute:
		return d.Truncate(time.Second)
	case d >= time.Second:
		return d.Truncate(100 * time.Millisecond)
	case d >= 10*time.Millisecond:
		return d.Truncate(1000 * time.Microsecond)
	case d >= 1*time.Millisecond:
		return d.Truncate(100 * time.Microsecond)
	case d >= 1*time.Microsecond:
		return d.Truncate(1 * time.Microsecond)
	default:
		return d
	}
}

// HumanizeDuration truncates d and renders it as a string.
func HumanizeDuration(d time.Duration) string {
	dd := TruncateDuration(d)
	ds := dd.String()

	if dd >= time.Hour && strings.HasSuffix(ds, "0s") {
		ds = strings.TrimSuffix(ds, "0s")
	}

	return ds
}

// HumanizeFloat renders f compactly, using K for thousands. Used for
// hotspot access counts in systemHotspots responses.
func HumanizeFloat(f float64) (s string) {
	defer func() {
		if s == "0.0" {
			s = "0"
		}
	}()
	switch {
	case f > 1_000_000:
		return "1M+"
	case f > 10_000:
		return fmt.Sprintf("%.0fK", f/1000)
	case f > 1_000:
		return fmt.Sprintf("%.1fK", f/1000)
	case f >= 1:
		return fmt.Sprintf("%.0f", f)
	case f == 0:
		return "0"
	default:
		return fmt.Sprintf("%0.01f", f)
	}
}

// HumanizeBytes renders n bytes compactly, using KB/MB units.
func HumanizeBytes[T interface {
	~int | ~uint | ~int64 | ~uint64
}](n T) string {
	var (
		kib = float64(1024)
		mib = float64(1024 * kib)
		fn  = float64(n)
	)
	switch {
	case fn < 1*kib:
		return fmt.Sprintf("%0.1fB", fn)
	case fn < 100*kib:
		return fmt.Sprintf("%.1fKB", fn/kib)
	case fn < 1*mib:
		return fmt.Sprintf("%.0fKB", fn/kib)
	case fn < 100*mib:
		return fmt.Sprintf("%.1fMB", fn/mib)
	default:
		return fmt.Sprintf("%.0fMB", fn/mib)
	}
}
