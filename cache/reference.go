package cache

import (
	"math"
	"reflect"
	"runtime"
	"runtime/metrics"
	"sync/atomic"
	"time"
	"unsafe"
	"weak"
)

// valueRef is what an entry holds in place of a bare value: a strong,
// weak or soft reference, or a loading placeholder.
type valueRef[V any] interface {
	// get returns the value, or false if it was collected or has not been
	// loaded yet.
	get() (V, bool)
	weight() int
	isLoading() bool
	// isActive is false only for a loading placeholder with no previous
	// value. A collected weak value is still active until the entry is
	// cleaned up.
	isActive() bool
	// notifyNewValue is called when a put overwrites this reference.
	notifyNewValue(v V)
	// release stops any runtime cleanup registered for the referent.
	release()
}

type strongValue[V any] struct {
	v V
	w int
}

func (r *strongValue[V]) get() (V, bool)  { return r.v, true }
func (r *strongValue[V]) weight() int     { return r.w }
func (r *strongValue[V]) isLoading() bool { return false }
func (r *strongValue[V]) isActive() bool  { return true }
func (r *strongValue[V]) notifyNewValue(V) {}
func (r *strongValue[V]) release()         {}

type weakValue[V any] struct {
	p       weak.Pointer[byte]
	w       int
	cleanup runtime.Cleanup
}

func (r *weakValue[V]) get() (V, bool) {
	p := r.p.Value()
	if p == nil {
		var zero V
		return zero, false
	}
	return fromPointer[V](unsafe.Pointer(p)), true
}

func (r *weakValue[V]) weight() int     { return r.w }
func (r *weakValue[V]) isLoading() bool { return false }
func (r *weakValue[V]) isActive() bool  { return true }
func (r *weakValue[V]) notifyNewValue(V) {}
func (r *weakValue[V]) release()         { r.cleanup.Stop() }

// softValue pins its referent until soften is called, then behaves like a
// weakValue. strong is guarded by the segment lock.
type softValue[V any] struct {
	strong  unsafe.Pointer
	p       weak.Pointer[byte]
	w       int
	cleanup runtime.Cleanup
}

func (r *softValue[V]) get() (V, bool) {
	if r.strong != nil {
		return fromPointer[V](r.strong), true
	}
	p := r.p.Value()
	if p == nil {
		var zero V
		return zero, false
	}
	return fromPointer[V](unsafe.Pointer(p)), true
}

// soften drops the strong pointer. It reports whether anything changed.
func (r *softValue[V]) soften() bool {
	if r.strong == nil {
		return false
	}
	r.strong = nil
	return true
}

func (r *softValue[V]) weight() int     { return r.w }
func (r *softValue[V]) isLoading() bool { return false }
func (r *softValue[V]) isActive() bool  { return true }
func (r *softValue[V]) notifyNewValue(V) {}
func (r *softValue[V]) release()         { r.cleanup.Stop() }

// reclaimTask is the argument of the runtime cleanup attached to a weakly
// held key or value. It must not reference the object itself.
type reclaimTask[K comparable, V any] struct {
	s *segment[K, V]
	e *entry[K, V]
}

// enqueueReclaimed runs on the runtime's cleanup goroutine.
func enqueueReclaimed[K comparable, V any](t reclaimTask[K, V]) {
	t.s.reclaimed.Push(t.e)
}

// watch arranges for e to be pushed onto s's reclaim queue once p becomes
// unreachable. A nil p is treated as already collected.
func watch[K comparable, V any](s *segment[K, V], e *entry[K, V], p unsafe.Pointer) runtime.Cleanup {
	if p == nil {
		s.reclaimed.Push(e)
		return runtime.Cleanup{}
	}
	return runtime.AddCleanup((*byte)(p), enqueueReclaimed[K, V], reclaimTask[K, V]{s: s, e: e})
}

func newWeakValue[K comparable, V any](s *segment[K, V], e *entry[K, V], v V, w int) *weakValue[V] {
	p := pointerOf(v)
	return &weakValue[V]{
		p:       weakBytes(p),
		w:       w,
		cleanup: watch(s, e, p),
	}
}

func newSoftValue[K comparable, V any](s *segment[K, V], e *entry[K, V], v V, w int) *softValue[V] {
	p := pointerOf(v)
	return &softValue[V]{
		strong:  p,
		p:       weakBytes(p),
		w:       w,
		cleanup: watch(s, e, p),
	}
}

func weakBytes(p unsafe.Pointer) weak.Pointer[byte] {
	return weak.Make((*byte)(p))
}

// isPointerType reports whether T can be held weakly. Only pointer kinds
// qualify; interfaces, slices and maps do not.
func isPointerType[T any]() bool {
	return reflect.TypeFor[T]().Kind() == reflect.Pointer
}

// pointerOf reinterprets a pointer-kinded T as unsafe.Pointer.
func pointerOf[T any](v T) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&v))
}

// fromPointer is the inverse of pointerOf.
func fromPointer[T any](p unsafe.Pointer) T {
	return *(*T)(unsafe.Pointer(&p))
}

// nilChecker returns a predicate reporting whether a V is a nil pointer,
// interface, func, chan or unsafe pointer. Nil slices and maps are ordinary
// empty values and are accepted.
func nilChecker[V any]() func(V) bool {
	t := reflect.TypeFor[V]()
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Chan, reflect.Func:
		return func(v V) bool { return reflect.ValueOf(&v).Elem().IsNil() }
	case reflect.Interface:
		return func(v V) bool { return any(v) == nil }
	default:
		return func(V) bool { return false }
	}
}

// ---- memory pressure ----

const (
	pressureSampleInterval = 100 * time.Millisecond
	pressureThreshold      = 0.9
)

var heapPressure struct {
	last  atomic.Int64
	state atomic.Bool
}

// HeapPressure is the default soft-value pressure signal: it reports true
// when live heap objects reach 90% of the runtime memory limit (GOMEMLIMIT).
// Without a memory limit it always reports false. The runtime is sampled at
// most every 100ms.
func HeapPressure() bool {
	now := time.Now().UnixNano()
	last := heapPressure.last.Load()
	if now-last < int64(pressureSampleInterval) || !heapPressure.last.CompareAndSwap(last, now) {
		return heapPressure.state.Load()
	}
	v := sampleHeapPressure()
	heapPressure.state.Store(v)
	return v
}

func sampleHeapPressure() bool {
	samples := []metrics.Sample{
		{Name: "/gc/gomemlimit:bytes"},
		{Name: "/memory/classes/heap/objects:bytes"},
	}
	metrics.Read(samples)
	if samples[0].Value.Kind() != metrics.KindUint64 || samples[1].Value.Kind() != metrics.KindUint64 {
		return false
	}
	limit := samples[0].Value.Uint64()
	if limit == 0 || limit >= math.MaxInt64 {
		return false
	}
	return float64(samples[1].Value.Uint64()) >= pressureThreshold*float64(limit)
}
