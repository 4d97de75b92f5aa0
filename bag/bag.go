package bag

import (
	"context"
	"sync"
	"time"

	"github.com/ardnew/softexec/pkg"
)

// DefaultCapacity is the number of unclaimed entries a bag holds before it
// starts evicting the oldest.
const DefaultCapacity = 1024

// Forever makes TryRemove wait without a deadline.
const Forever time.Duration = -1

// entry is one deposited item plus its arrival order.
type entry[T any] struct {
	seq  uint64
	item T
}

// Bag is a thread-safe collection of items that waiters remove by predicate.
// The zero value is not usable; create bags with [New].
type Bag[T any] struct {
	mutex   sync.Mutex
	entries []entry[T]

	// signal is closed and replaced on every Add to wake parked waiters.
	signal chan struct{}

	capacity int
	onEvict  func(T)
	nextSeq  uint64
	evicted  uint64
}

// Option configures a Bag.
type Option[T any] func(*Bag[T])

// WithCapacity bounds the number of unclaimed entries. Values < 1 select
// [DefaultCapacity].
func WithCapacity[T any](n int) Option[T] {
	return func(b *Bag[T]) {
		if n < 1 {
			n = DefaultCapacity
		}
		b.capacity = n
	}
}

// WithOnEvict registers a callback invoked (outside the lock) for every
// entry evicted because the bag was full.
func WithOnEvict[T any](fn func(T)) Option[T] {
	return func(b *Bag[T]) {
		b.onEvict = fn
	}
}

// New creates an empty bag.
func New[T any](opts ...Option[T]) *Bag[T] {
	b := &Bag[T]{
		signal:   make(chan struct{}),
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add deposits an item and wakes every parked waiter. It never blocks.
func (b *Bag[T]) Add(item T) {
	var victim T
	evicted := false

	b.mutex.Lock()
	if len(b.entries) >= b.capacity {
		victim = b.entries[0].item
		b.entries[0] = entry[T]{}
		b.entries = b.entries[1:]
		b.evicted++
		evicted = true
	}
	b.nextSeq++
	b.entries = append(b.entries, entry[T]{seq: b.nextSeq, item: item})
	close(b.signal)
	b.signal = make(chan struct{})
	cb := b.onEvict
	b.mutex.Unlock()

	if evicted {
		pkg.LogWarn(pkg.ComponentBag, "bag full, evicted oldest entry", "capacity", b.capacity)
		if cb != nil {
			cb(victim)
		}
	}
}

// TryRemove removes and returns the oldest item matching pred.
//
// If no item matches it waits until one is added, or until timeout
// elapses. A zero timeout checks once without waiting; a negative timeout
// ([Forever]) waits indefinitely. ok is false on timeout, and nothing is
// consumed in that case.
func (b *Bag[T]) TryRemove(pred func(T) bool, timeout time.Duration) (item T, ok bool) {
	item, signal, ok := b.take(pred)
	if ok || timeout == 0 {
		return item, ok
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-signal:
		case <-expired:
			return item, false
		}
		if item, signal, ok = b.take(pred); ok {
			return item, true
		}
	}
}

// Remove is like TryRemove but bounded by ctx instead of a timeout.
// It returns ctx.Err() if the context ends first.
func (b *Bag[T]) Remove(ctx context.Context, pred func(T) bool) (T, error) {
	for {
		item, signal, ok := b.take(pred)
		if ok {
			return item, nil
		}
		select {
		case <-signal:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// take removes the oldest matching entry. When nothing matches it returns
// the channel that the next Add will close.
func (b *Bag[T]) take(pred func(T) bool) (T, <-chan struct{}, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for i := range b.entries {
		if pred(b.entries[i].item) {
			item := b.entries[i].item
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return item, nil, true
		}
	}
	var zero T
	return zero, b.signal, false
}

// RemoveAll removes every item matching pred and returns how many were removed.
func (b *Bag[T]) RemoveAll(pred func(T) bool) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	kept := b.entries[:0]
	removed := 0
	for _, e := range b.entries {
		if pred(e.item) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	clear(b.entries[len(kept):])
	b.entries = kept
	return removed
}

// Clear removes every item and returns how many were removed.
func (b *Bag[T]) Clear() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	n := len(b.entries)
	b.entries = nil
	return n
}

// Len returns the number of unclaimed items.
func (b *Bag[T]) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.entries)
}

// Evicted returns how many items were dropped because the bag was full.
func (b *Bag[T]) Evicted() uint64 {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.evicted
}

// Snapshot returns the unclaimed items in arrival order without removing them.
func (b *Bag[T]) Snapshot() []T {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	out := make([]T, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.item
	}
	return out
}
