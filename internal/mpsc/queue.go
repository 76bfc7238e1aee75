// Package mpsc implements multi-producer, single-consumer buffers: an
// unbounded queue and a bounded lossy ring.
//
// Producers never block and never take a lock. The consumer must be
// serialized externally (the cache drains its buffers while holding a
// segment's write lock).
package mpsc

import "sync/atomic"

type node[T any] struct {
	next atomic.Pointer[node[T]]
	val  T
}

// Queue is an intrusive-free Vyukov style MPSC queue.
// The zero value is not usable; construct with New.
type Queue[T any] struct {
	head atomic.Pointer[node[T]] // producers swap here
	tail *node[T]                // consumer side, guarded by the caller
	size atomic.Int64
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	stub := &node[T]{}
	q.head.Store(stub)
	q.tail = stub
	return q
}

// Push appends v. Safe for concurrent use by any number of goroutines.
func (q *Queue[T]) Push(v T) {
	n := &node[T]{val: v}
	prev := q.head.Swap(n)
	prev.next.Store(n)
	q.size.Add(1)
}

// Pop removes the oldest element. It returns false when the queue is empty
// or when a producer has swapped in a node but not yet linked it; in that
// case the element becomes visible to a later Pop.
//
// Pop must not be called concurrently with another Pop.
func (q *Queue[T]) Pop() (T, bool) {
	next := q.tail.next.Load()
	if next == nil {
		var zero T
		return zero, false
	}
	q.tail = next
	v := next.val
	var zero T
	next.val = zero // let the GC reclaim the element
	q.size.Add(-1)
	return v, true
}

// Len returns an approximate element count.
func (q *Queue[T]) Len() int { return int(q.size.Load()) }
