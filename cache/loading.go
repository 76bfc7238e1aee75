package cache

import (
	"context"
	"fmt"

	"github.com/IvanBrykalov/segcache/internal/future"
)

// loadingValue marks an entry whose value is being computed. It carries the
// previous value while a refresh is in flight, so readers keep being served.
// Goroutines that need the new value wait on fut.
type loadingValue[V any] struct {
	old   valueRef[V] // nil for an initial load
	fut   *future.Future[V]
	start int64

	// discard is set when the entry is removed mid-load; the result is then
	// handed to waiters but not stored. Guarded by the segment lock, like old.
	discard bool
}

func newLoadingValue[V any](old valueRef[V], start int64) *loadingValue[V] {
	return &loadingValue[V]{old: old, fut: future.New[V](), start: start}
}

func (r *loadingValue[V]) get() (V, bool) {
	if r.old == nil {
		var zero V
		return zero, false
	}
	return r.old.get()
}

func (r *loadingValue[V]) weight() int {
	if r.old == nil {
		return 0
	}
	return r.old.weight()
}

func (r *loadingValue[V]) isLoading() bool { return true }
func (r *loadingValue[V]) isActive() bool  { return r.old != nil && r.old.isActive() }

// notifyNewValue hands a concurrently put value to the waiters.
func (r *loadingValue[V]) notifyNewValue(v V) { r.fut.Set(v) }

func (r *loadingValue[V]) release() {
	if r.old != nil {
		r.old.release()
	}
}

// wait blocks until the load completes or ctx ends.
func (r *loadingValue[V]) wait(ctx context.Context) (V, error) {
	return r.fut.Wait(ctx)
}

// invoke calls fn, converting a panic into an error. When ctx can be
// cancelled fn runs on its own goroutine and invoke returns ctx.Err() as
// soon as ctx ends; fn's eventual result is then dropped.
func invoke[V any](ctx context.Context, fn func(context.Context) (V, error)) (V, error) {
	if ctx.Done() == nil {
		return safeCall(ctx, fn)
	}
	type result struct {
		v   V
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := safeCall(ctx, fn)
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func safeCall[V any](ctx context.Context, fn func(context.Context) (V, error)) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("loader panicked", "panic", r)
			err = fmt.Errorf("%w: %v", ErrLoaderPanic, r)
		}
	}()
	return fn(ctx)
}
