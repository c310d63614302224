// Package broker implements the publish/subscribe fan-out backing the
// engine's live event stream: every ingested event is published once, and
// each SSE subscriber receives the subset it asked for.
package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Broker provides publish and subscribe semantics for values of any type T.
type Broker[T any] struct {
	mtx         sync.Mutex
	transform   func(T) T
	subscribers map[chan<- T]*subscriber[T]
	active      atomic.Bool
}

type subscriber[T any] struct {
	allow func(T) bool
	ch    chan<- T
	stats Stats
}

// New returns a new broker for type T. If transform is non-nil, it is
// applied to every published value before it reaches subscribers — the
// query surface uses this to redact or reshape an event before it goes out
// over SSE.
func New[T any](transform func(T) T) *Broker[T] {
	return &Broker[T]{
		transform:   transform,
		subscribers: map[chan<- T]*subscriber[T]{},
	}
}

// IsActive reports whether any subscriber is currently attached.
func (b *Broker[T]) IsActive() bool {
	return b.active.Load()
}

// Publish sends val to every active subscriber whose allow predicate
// accepts it. Publish never blocks on a slow subscriber: a full channel
// drops the value for that subscriber rather than stalling ingestion.
func (b *Broker[T]) Publish(val T) {
	if !b.active.Load() {
		return
	}

	if b.transform != nil {
		val = b.transform(val)
	}

	b.mtx.Lock()
	defer b.mtx.Unlock()

	if len(b.subscribers) == 0 {
		return
	}

	for _, sub := range b.subscribers {
		if !sub.allow(val) {
			sub.stats.Skips++
			continue
		}
		select {
		case sub.ch <- val:
			sub.stats.Sends++
		default:
			sub.stats.Drops++
		}
	}
}

// Subscribe registers ch to receive every published value accepted by
// allow, and blocks until ctx is done, at which point it unregisters and
// returns the subscription's final stats.
func (b *Broker[T]) Subscribe(ctx context.Context, allow func(T) bool, ch chan<- T) (Stats, error) {
	if err := func() error {
		b.mtx.Lock()
		defer b.mtx.Unlock()

		if _, ok := b.subscribers[ch]; ok {
			return fmt.Errorf("broker: already subscribed")
		}

		b.subscribers[ch] = &subscriber[T]{allow: allow, ch: ch}
		b.active.Store(len(b.subscribers) > 0)
		return nil
	}(); err != nil {
		return Stats{}, err
	}

	<-ctx.Done()

	sub := func() *subscriber[T] {
		b.mtx.Lock()
		defer b.mtx.Unlock()

		sub := b.subscribers[ch]
		delete(b.subscribers, ch)
		b.active.Store(len(b.subscribers) > 0)
		return sub
	}()
	if sub == nil {
		return Stats{}, fmt.Errorf("broker: not subscribed (programmer error)")
	}

	return sub.stats, ctx.Err()
}

// Stats returns the running counters for the subscription represented by ch.
func (b *Broker[T]) Stats(ch chan<- T) (Stats, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	sub, ok := b.subscribers[ch]
	if !ok {
		return Stats{}, fmt.Errorf("broker: not subscribed")
	}
	return sub.stats, nil
}

// Stats counts how a subscription's published values were handled.
type Stats struct {
	Skips uint64 `json:"skips"`
	Sends uint64 `json:"sends"`
	Drops uint64 `json:"drops"`
}

func (s Stats) String() string {
	return fmt.Sprintf("skips=%d sends=%d drops=%d", s.Skips, s.Sends, s.Drops)
}
