// Package ring implements a bounded, single-producer/single-consumer
// hand-off queue. It is the sole hand-off mechanism between the pipeline
// stages: no locked queue, no condition variable, no unbounded channel.
package ring

import (
	"sync/atomic"
)

// cacheLinePad is sized to push neighboring fields onto separate cache
// lines on common 64-byte-cacheline hardware, preventing false sharing
// between the producer's tail and the consumer's head.
type cacheLinePad [64]byte

// Ring is a fixed-capacity SPSC queue holding values of type T. Capacity
// must be a power of two; usable capacity is N-1 (one slot is always kept
// empty to distinguish full from empty without a separate counter).
//
// Exactly one goroutine may call TryPush. TryPop is normally
// single-consumer too, but a producer-side drop-oldest eviction (the
// compute stage's Ring-B overrun policy) needs to pop concurrently with
// the real consumer; TryPop's head advance is therefore a CAS loop so it
// tolerates being called from more than one goroutine at once, with the
// loser of a race retrying rather than returning a stale item. TryPush
// remains strictly single-producer. Len/IsEmpty/IsFull may be called by
// either side and are advisory under concurrent access.
type Ring[T any] struct {
	mask uint64
	buf  []T

	_    cacheLinePad
	head atomic.Uint64 // consumer-owned read cursor

	_    cacheLinePad
	tail atomic.Uint64 // producer-owned write cursor

	_ cacheLinePad
}

// New constructs a Ring with the given capacity, which must be a power of
// two greater than zero. It panics otherwise, matching the teacher's
// static_assert-style fail-fast construction contract.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two greater than zero")
	}
	return &Ring[T]{
		mask: uint64(capacity - 1),
		buf:  make([]T, capacity),
	}
}

// TryPush attempts to enqueue item. It is producer-only, never blocks, and
// never allocates. It returns false without modifying the ring if full.
func (r *Ring[T]) TryPush(item T) bool {
	tail := r.tail.Load()
	nextTail := (tail + 1) & r.mask
	if nextTail == r.head.Load() {
		return false // full
	}
	r.buf[tail] = item
	r.tail.Store(nextTail)
	return true
}

// TryPop attempts to dequeue the oldest item. It never blocks and never
// allocates. It reports false if the ring is empty. Safe to call from more
// than one goroutine concurrently (see the CAS loop below); only the
// caller that wins the race on a given slot receives its item.
func (r *Ring[T]) TryPop() (item T, ok bool) {
	for {
		head := r.head.Load()
		if head == r.tail.Load() {
			return item, false // empty
		}
		item = r.buf[head]
		next := (head + 1) & r.mask
		if r.head.CompareAndSwap(head, next) {
			var zero T
			r.buf[head] = zero // drop the reference so the consumer doesn't pin memory
			return item, true
		}
		// lost the race to another concurrent popper; retry with the
		// now-current head instead of returning a value we don't own.
	}
}

// Len returns an approximate occupancy count, self-consistent for the
// owning side but advisory under contention from the other side.
func (r *Ring[T]) Len() int {
	tail := r.tail.Load()
	head := r.head.Load()
	return int((tail - head) & r.mask)
}

// Cap returns the usable capacity (N-1).
func (r *Ring[T]) Cap() int {
	return int(r.mask)
}

// IsEmpty reports whether the ring currently holds no items.
func (r *Ring[T]) IsEmpty() bool {
	return r.head.Load() == r.tail.Load()
}

// IsFull reports whether the ring is at usable capacity.
func (r *Ring[T]) IsFull() bool {
	tail := r.tail.Load()
	nextTail := (tail + 1) & r.mask
	return nextTail == r.head.Load()
}
