// Package future provides a write-once result that many goroutines can wait on.
package future

import (
	"context"
	"sync/atomic"
)

// Future holds the outcome of a single computation. The goroutine that
// performs the work completes it with Set or SetError; any number of
// followers block in Wait until that happens.
//
// Concurrency notes:
//   - Only the first completion wins; later Set/SetError calls report false.
//   - Publishing (val, err) happens-before close(done), so reads after
//     <-done observe the final values.
//   - Cancelling ctx in a follower unblocks only that follower.
type Future[V any] struct {
	done  chan struct{} // closed when val/err are published
	state atomic.Bool   // true once a completion has been claimed
	val   V
	err   error
}

// New returns an incomplete Future.
func New[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

// Set completes the future with v. It returns false if the future was
// already completed.
func (f *Future[V]) Set(v V) bool {
	if !f.state.CompareAndSwap(false, true) {
		return false
	}
	f.val = v
	close(f.done)
	return true
}

// SetError completes the future with err.
func (f *Future[V]) SetError(err error) bool {
	if !f.state.CompareAndSwap(false, true) {
		return false
	}
	f.err = err
	close(f.done)
	return true
}

// Done returns a channel closed once the future is complete.
func (f *Future[V]) Done() <-chan struct{} { return f.done }

// IsDone reports whether the future has been completed.
func (f *Future[V]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future completes or ctx is done. If ctx ends first,
// Wait returns ctx.Err() and the computation keeps running.
func (f *Future[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
	}
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}
