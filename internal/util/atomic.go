// Package util collects small generic helpers shared across the engine's
// internal packages: a mutex-backed atomic value box, error flattening and
// duration/byte humanizers for log lines, and a count humanizer for HTTP
// output.
package util

import "sync"

// Atomic is a mutex-guarded box around a value of any type, used for
// process-wide state like the server's draining flag that's written
// rarely and read often.
type Atomic[T any] struct {
	mtx sync.Mutex
	val T
}

// NewAtomic returns a new atomic wrapper around val.
func NewAtomic[T any](val T) *Atomic[T] {
	return &Atomic[T]{val: val}
}

// Set the value to val.
func (a *Atomic[T]) Set(val T) { a.mtx.Lock(); defer a.mtx.Unlock(); a.val = val }

// Get the current value.
func (a *Atomic[T]) Get() T { a.mtx.Lock(); defer a.mtx.Unlock(); return a.val }
