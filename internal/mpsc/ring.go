package mpsc

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/IvanBrykalov/segcache/internal/util"
)

// Status is the outcome of Ring.Push.
type Status int

const (
	// Success means the element was buffered.
	Success Status = iota
	// Full means the ring had no free slot and the element was dropped.
	Full
	// Contended means another producer won the slot and the element was
	// dropped.
	Contended
)

// Ring is a bounded, lossy multi-producer buffer of pointers. Producers
// never block and never allocate; when the ring is full the element is
// dropped and Full tells the caller a drain is due.
//
// Drain must be serialized externally, like Queue.Pop.
type Ring[T any] struct {
	head  atomic.Uint64 // next slot to drain
	_     cpu.CacheLinePad
	tail  atomic.Uint64 // next slot to fill
	_     cpu.CacheLinePad
	mask  uint64
	slots []atomic.Pointer[T]
}

// NewRing returns a ring with capacity rounded up to a power of two.
func NewRing[T any](capacity int) *Ring[T] {
	n := util.NextPow2(uint64(capacity))
	return &Ring[T]{
		mask:  n - 1,
		slots: make([]atomic.Pointer[T], n),
	}
}

// Push offers v. Safe for concurrent use by any number of goroutines.
func (r *Ring[T]) Push(v *T) Status {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail-head > r.mask {
		return Full
	}
	if !r.tail.CompareAndSwap(tail, tail+1) {
		return Contended
	}
	r.slots[tail&r.mask].Store(v)
	return Success
}

// Drain hands every published element to fn, oldest first, and frees the
// slots. A slot reserved by a producer that has not stored yet ends the
// pass; its element is picked up by the next Drain.
func (r *Ring[T]) Drain(fn func(*T)) {
	head := r.head.Load()
	tail := r.tail.Load()
	for ; head != tail; head++ {
		slot := &r.slots[head&r.mask]
		v := slot.Load()
		if v == nil {
			break
		}
		slot.Store(nil)
		fn(v)
	}
	r.head.Store(head)
}

// Len returns an approximate element count.
func (r *Ring[T]) Len() int {
	head := r.head.Load()
	return int(r.tail.Load() - head)
}

// Cap returns the number of slots.
func (r *Ring[T]) Cap() int { return len(r.slots) }

// Full reports whether a Push would currently be rejected.
func (r *Ring[T]) Full() bool {
	head := r.head.Load()
	return r.tail.Load()-head > r.mask
}
