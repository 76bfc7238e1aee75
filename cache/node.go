package cache

import (
	"runtime"
	"sync/atomic"
	"weak"
)

// entry is a bucket-chain element owned by a segment. It stores the key
// (strongly or weakly), the current value reference and the links for the
// segment's access-order and write-order queues.
//
// All fields except accessTime are guarded by the segment lock. accessTime
// is stored by readers holding only the read lock.
type entry[K comparable, V any] struct {
	key  K                  // zero when keys are weak
	wkey weak.Pointer[byte] // set when keys are weak
	hash uint64
	next *entry[K, V] // bucket chain

	value valueRef[V]

	// Ticker readings in nanoseconds.
	writeTime  int64
	accessTime atomic.Int64

	// Intrusive queue links. nil while the entry is not queued.
	accessPrev, accessNext *entry[K, V]
	writePrev, writeNext   *entry[K, V]

	keyCleanup runtime.Cleanup
}

// release detaches the runtime cleanups of a removed entry.
func (e *entry[K, V]) release() {
	e.keyCleanup.Stop()
	if e.value != nil {
		e.value.release()
	}
}
