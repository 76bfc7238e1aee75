package cache

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/IvanBrykalov/segcache/internal/mpsc"
	"github.com/IvanBrykalov/segcache/internal/util"
)

const (
	// drainThreshold: reads between opportunistic cleanups (mask, 64 reads).
	drainThreshold = 0x3F
	// drainMax bounds reclaim-queue entries processed per cleanup pass.
	drainMax = 16
	// recencyCapacity is the size of each segment's read buffer. Reads
	// recorded while it is full are dropped.
	recencyCapacity = 128
)

// segment is an independent partition of the cache with its own lock,
// bucket table and LRU bookkeeping.
//
// Writers take mu exclusively. Readers take it shared and never touch the
// queues directly: they record accesses in a bounded, lossy recency buffer,
// which the next writer, or the reader that finds it full, replays into the
// access queue.
type segment[K comparable, V any] struct {
	c *localCache[K, V]

	// ---- guarded by mu ----
	mu          sync.RWMutex
	table       []*entry[K, V]
	threshold   int   // resize when count exceeds this
	count       int   // live entries, loading placeholders excluded
	totalWeight int64 // sum of weights of live entries
	maxWeight   int64 // Unset when unbounded
	accessQ     accessQueue[K, V]
	writeQ      writeQueue[K, V]

	// ---- lock-free ----
	_         cpu.CacheLinePad
	recency   *mpsc.Ring[entry[K, V]]
	reclaimed *mpsc.Queue[*entry[K, V]]
	readCount atomic.Int32
	draining  atomic.Bool
}

func newSegment[K comparable, V any](c *localCache[K, V], tableSize int, maxWeight int64) *segment[K, V] {
	s := &segment[K, V]{
		c:         c,
		maxWeight: maxWeight,
		recency:   mpsc.NewRing[entry[K, V]](recencyCapacity),
		reclaimed: mpsc.New[*entry[K, V]](),
	}
	s.initTable(tableSize)
	s.accessQ.init()
	s.writeQ.init()
	return s
}

func (s *segment[K, V]) initTable(n int) {
	s.table = make([]*entry[K, V], n)
	s.threshold = n * 3 / 4
	if s.maxWeight >= 0 && int64(s.threshold) == s.maxWeight {
		// A full segment should not trigger a resize.
		s.threshold++
	}
}

func (s *segment[K, V]) bucket(hash uint64) int {
	return int(hash & uint64(len(s.table)-1))
}

// getEntry finds the entry for key. Entries whose weak key was collected
// are skipped. Caller holds mu (shared or exclusive).
func (s *segment[K, V]) getEntry(key K, hash uint64) *entry[K, V] {
	for e := s.table[s.bucket(hash)]; e != nil; e = e.next {
		if e.hash != hash {
			continue
		}
		if k, ok := s.c.entryKey(e); ok && k == key {
			return e
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// readResult is what a lock-free-ish lookup observed.
type readResult[V any] struct {
	value   V
	hit     bool
	loading *loadingValue[V] // in-flight load with no live value to serve
	expired bool
	refresh bool // hit, and the entry is due for refresh
}

// read looks key up under the shared lock. It records the access on a hit.
func (s *segment[K, V]) read(key K, hash uint64, now int64) readResult[V] {
	var r readResult[V]
	s.mu.RLock()
	e := s.getEntry(key, hash)
	if e != nil {
		ref := e.value
		if v, ok := ref.get(); ok {
			if s.c.isExpired(e, now) {
				r.expired = true
			} else {
				r.value, r.hit = v, true
				s.recordRead(e, now)
				r.refresh = s.c.needsRefresh(e, now)
			}
		}
		if !r.hit {
			if lv, ok := ref.(*loadingValue[V]); ok {
				r.loading = lv
			}
		}
	}
	s.mu.RUnlock()
	if r.expired {
		s.tryExpireEntries(now)
	}
	return r
}

// recordRead notes an access by a reader holding only the shared lock.
func (s *segment[K, V]) recordRead(e *entry[K, V], now int64) {
	if s.c.recordsAccess() {
		e.accessTime.Store(now)
	}
	if s.c.usesAccessQueue() {
		s.recency.Push(e)
	}
}

// recordLockedRead notes an access while mu is held exclusively, bypassing
// the recency buffer.
func (s *segment[K, V]) recordLockedRead(e *entry[K, V], now int64) {
	if s.c.recordsAccess() {
		e.accessTime.Store(now)
	}
	s.accessQ.offer(e)
}

func (s *segment[K, V]) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

type pair[K comparable, V any] struct {
	key   K
	value V
}

// snapshot collects the live, unexpired entries. It does not record access.
func (s *segment[K, V]) snapshot(now int64) []pair[K, V] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pair[K, V], 0, s.count)
	for _, head := range s.table {
		for e := head; e != nil; e = e.next {
			k, ok := s.c.entryKey(e)
			if !ok {
				continue
			}
			v, ok := e.value.get()
			if !ok || s.c.isExpired(e, now) {
				continue
			}
			out = append(out, pair[K, V]{key: k, value: v})
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// put stores value under key. With onlyIfAbsent a live value is left in
// place and returned. The previous live value is returned, if any.
func (s *segment[K, V]) put(key K, hash uint64, value V, onlyIfAbsent bool) (V, bool) {
	var zero V
	s.mu.Lock()
	defer s.postWriteCleanup()
	defer s.mu.Unlock()

	now := s.c.ticker.Read()
	s.preWriteCleanup(now)
	if s.count+1 > s.threshold {
		s.expand()
	}

	idx := s.bucket(hash)
	for e := s.table[idx]; e != nil; e = e.next {
		if e.hash != hash {
			continue
		}
		if k, ok := s.c.entryKey(e); !ok || k != key {
			continue
		}
		ref := e.value
		cur, ok := ref.get()
		if !ok {
			if ref.isActive() {
				s.enqueueNotification(key, zero, ref.weight(), RemovalCollected)
			} else {
				// Placeholder of an initial load; the put completes it.
				s.count++
			}
			s.setValue(e, key, value, now)
			s.evictEntries(e)
			return zero, false
		}
		if onlyIfAbsent {
			s.recordLockedRead(e, now)
			return cur, true
		}
		s.enqueueNotification(key, cur, ref.weight(), RemovalReplaced)
		s.setValue(e, key, value, now)
		s.evictEntries(e)
		return cur, true
	}

	e := s.newEntry(key, hash, s.table[idx])
	s.setValue(e, key, value, now)
	s.table[idx] = e
	s.count++
	s.evictEntries(e)
	return zero, false
}

// replace overwrites the value for key only if a live value is present.
func (s *segment[K, V]) replace(key K, hash uint64, value V) (V, bool) {
	var zero V
	s.mu.Lock()
	defer s.postWriteCleanup()
	defer s.mu.Unlock()

	now := s.c.ticker.Read()
	s.preWriteCleanup(now)
	e := s.getEntry(key, hash)
	if e == nil {
		return zero, false
	}
	ref := e.value
	cur, ok := ref.get()
	if !ok {
		if ref.isActive() && !ref.isLoading() {
			s.removeEntry(e, RemovalCollected)
		}
		return zero, false
	}
	s.enqueueNotification(key, cur, ref.weight(), RemovalReplaced)
	s.setValue(e, key, value, now)
	s.evictEntries(e)
	return cur, true
}

// replaceIf overwrites the value for key only if the current value equals old.
func (s *segment[K, V]) replaceIf(key K, hash uint64, old, value V) bool {
	s.mu.Lock()
	defer s.postWriteCleanup()
	defer s.mu.Unlock()

	now := s.c.ticker.Read()
	s.preWriteCleanup(now)
	e := s.getEntry(key, hash)
	if e == nil {
		return false
	}
	ref := e.value
	cur, ok := ref.get()
	if !ok {
		if ref.isActive() && !ref.isLoading() {
			s.removeEntry(e, RemovalCollected)
		}
		return false
	}
	if !s.c.valueEqual(cur, old) {
		s.recordLockedRead(e, now)
		return false
	}
	s.enqueueNotification(key, cur, ref.weight(), RemovalReplaced)
	s.setValue(e, key, value, now)
	s.evictEntries(e)
	return true
}

// remove deletes key. An in-flight load for key keeps running for its
// callers, but its result will not be stored.
func (s *segment[K, V]) remove(key K, hash uint64) (V, bool) {
	var zero V
	s.mu.Lock()
	defer s.postWriteCleanup()
	defer s.mu.Unlock()

	s.preWriteCleanup(s.c.ticker.Read())
	e := s.getEntry(key, hash)
	if e == nil {
		return zero, false
	}
	cur, ok := e.value.get()
	cause := RemovalExplicit
	if !ok {
		cause = RemovalCollected
	}
	s.removeEntry(e, cause)
	return cur, ok
}

// removeIf deletes key only if its current value equals value.
func (s *segment[K, V]) removeIf(key K, hash uint64, value V) bool {
	s.mu.Lock()
	defer s.postWriteCleanup()
	defer s.mu.Unlock()

	s.preWriteCleanup(s.c.ticker.Read())
	e := s.getEntry(key, hash)
	if e == nil {
		return false
	}
	ref := e.value
	cur, ok := ref.get()
	switch {
	case ok && s.c.valueEqual(cur, value):
		s.removeEntry(e, RemovalExplicit)
		return true
	case !ok && ref.isActive() && !ref.isLoading():
		s.removeEntry(e, RemovalCollected)
	}
	return false
}

// clear removes every entry. In-flight loads are marked so that their
// results are dropped.
func (s *segment[K, V]) clear() {
	s.mu.Lock()
	defer s.postWriteCleanup()
	defer s.mu.Unlock()

	s.drainRecency()
	for i, head := range s.table {
		var loading *entry[K, V]
		for e := head; e != nil; {
			next := e.next
			k, kok := s.c.entryKey(e)
			v, vok := e.value.get()
			cause := RemovalExplicit
			if !kok || !vok {
				cause = RemovalCollected
			}
			if lv, ok := e.value.(*loadingValue[V]); ok && kok {
				// Keep the placeholder so the running load is not duplicated.
				s.discardLoad(e, lv, cause)
				e.next = loading
				loading = e
			} else {
				if e.value.isActive() {
					s.enqueueNotification(k, v, e.value.weight(), cause)
				}
				e.release()
			}
			e = next
		}
		s.table[i] = loading
	}
	// Pending reclaims now point at unlinked entries and are skipped.
	s.accessQ.clear()
	s.writeQ.clear()
	s.count = 0
	s.totalWeight = 0
	s.readCount.Store(0)
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// lockedGetOrLoad is the slow path of a loading get. It either returns a
// live value (hit), an in-flight load to wait on, or a fresh placeholder
// that the caller now owns and must complete.
func (s *segment[K, V]) lockedGetOrLoad(key K, hash uint64) (v V, hit bool, lv *loadingValue[V], owner bool) {
	s.mu.Lock()
	defer s.postWriteCleanup()
	defer s.mu.Unlock()

	now := s.c.ticker.Read()
	s.preWriteCleanup(now)

	idx := s.bucket(hash)
	if e := s.getEntry(key, hash); e != nil {
		ref := e.value
		if pending, ok := ref.(*loadingValue[V]); ok {
			return v, false, pending, false
		}
		cur, ok := ref.get()
		switch {
		case !ok:
			s.enqueueNotification(key, cur, ref.weight(), RemovalCollected)
		case s.c.isExpired(e, now):
			s.enqueueNotification(key, cur, ref.weight(), RemovalExpired)
		default:
			s.recordLockedRead(e, now)
			s.c.stats.RecordHits(1)
			return cur, true, nil, false
		}
		// The dead entry becomes the placeholder.
		s.accessQ.remove(e)
		s.writeQ.remove(e)
		s.count--
		ref.release()
		lv = newLoadingValue[V](nil, now)
		e.value = lv
		return v, false, lv, true
	}

	lv = newLoadingValue[V](nil, now)
	e := s.newEntry(key, hash, s.table[idx])
	e.value = lv
	s.table[idx] = e
	return v, false, lv, true
}

// insertLoadingValueReference installs a refresh placeholder over the
// current value of key, creating the entry if absent, and returns it with
// the value being refreshed. It returns nil when a load is already running
// or, with checkTime, when the entry was written too recently to need a
// refresh.
func (s *segment[K, V]) insertLoadingValueReference(key K, hash uint64, checkTime bool) (lv *loadingValue[V], old V, hasOld bool) {
	s.mu.Lock()
	defer s.postWriteCleanup()
	defer s.mu.Unlock()

	now := s.c.ticker.Read()
	s.preWriteCleanup(now)

	if e := s.getEntry(key, hash); e != nil {
		ref := e.value
		if ref.isLoading() || (checkTime && now-e.writeTime < s.c.refreshAfterWrite) {
			return nil, old, false
		}
		old, hasOld = ref.get()
		lv = newLoadingValue(ref, now)
		e.value = lv
		return lv, old, hasOld
	}

	lv = newLoadingValue[V](nil, now)
	idx := s.bucket(hash)
	e := s.newEntry(key, hash, s.table[idx])
	e.value = lv
	s.table[idx] = e
	return lv, old, false
}

// storeLoadedValue publishes the result of lv. The value is discarded if
// the entry was removed during the load (dropped silently) or overwritten by
// a put (reported as Replaced).
func (s *segment[K, V]) storeLoadedValue(key K, hash uint64, lv *loadingValue[V], value V) bool {
	s.mu.Lock()
	defer s.postWriteCleanup()
	defer s.mu.Unlock()

	now := s.c.ticker.Read()
	s.preWriteCleanup(now)

	newCount := s.count + 1
	if newCount > s.threshold {
		s.expand()
	}

	e := s.getEntry(key, hash)
	if e == nil {
		return false
	}
	if e.value != valueRef[V](lv) {
		s.enqueueNotification(key, value, 0, RemovalReplaced)
		return false
	}
	if lv.discard {
		s.unlink(e)
		e.release()
		return false
	}
	if lv.isActive() {
		cur, ok := lv.get()
		cause := RemovalReplaced
		if !ok {
			cause = RemovalCollected
		}
		s.enqueueNotification(key, cur, lv.weight(), cause)
		newCount--
	}
	s.setValue(e, key, value, now)
	s.count = newCount
	s.evictEntries(e)
	return true
}

// removeLoadingValue undoes a failed load: a refresh placeholder reverts to
// the previous value, an initial placeholder is unlinked.
func (s *segment[K, V]) removeLoadingValue(key K, hash uint64, lv *loadingValue[V]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getEntry(key, hash)
	if e == nil || e.value != valueRef[V](lv) {
		return false
	}
	if lv.isActive() {
		e.value = lv.old
	} else {
		s.unlink(e)
		e.release()
	}
	return true
}

// ---------------------------------------------------------------------------
// Maintenance (mu held)
// ---------------------------------------------------------------------------

func (s *segment[K, V]) newEntry(key K, hash uint64, next *entry[K, V]) *entry[K, V] {
	e := &entry[K, V]{hash: hash, next: next}
	if s.c.weakKeys {
		p := pointerOf(key)
		e.wkey = weakBytes(p)
		e.keyCleanup = watch(s, e, p)
	} else {
		e.key = key
	}
	return e
}

// setValue installs value on e and queues it as the most recent write.
func (s *segment[K, V]) setValue(e *entry[K, V], key K, value V, now int64) {
	prev := e.value
	w := s.c.weigh(key, value)
	e.value = s.c.newValueRef(s, e, value, w)
	s.recordWrite(e, w, now)
	if prev != nil {
		prev.notifyNewValue(value)
		prev.release()
	}
}

func (s *segment[K, V]) recordWrite(e *entry[K, V], weight int, now int64) {
	s.drainRecency()
	s.totalWeight += int64(weight)
	if s.c.recordsAccess() {
		e.accessTime.Store(now)
	}
	e.writeTime = now
	s.accessQ.offer(e)
	s.writeQ.offer(e)
}

// enqueueNotification accounts for a value leaving the segment and queues
// the listener callback.
func (s *segment[K, V]) enqueueNotification(key K, value V, weight int, cause RemovalCause) {
	s.totalWeight -= int64(weight)
	if s.totalWeight < 0 {
		panic("cache: segment weight became negative")
	}
	if cause.WasEvicted() {
		s.c.stats.RecordEviction(cause)
	}
	s.c.enqueue(RemovalNotification[K, V]{Key: key, Value: value, Cause: cause})
}

// removeEntry unlinks e completely and reports it with cause. An entry
// that is loading stays linked as a discarded placeholder, see discardLoad.
func (s *segment[K, V]) removeEntry(e *entry[K, V], cause RemovalCause) {
	if lv, ok := e.value.(*loadingValue[V]); ok {
		s.discardLoad(e, lv, cause)
		return
	}
	ref := e.value
	if ref.isActive() {
		k, _ := s.c.entryKey(e)
		v, _ := ref.get()
		s.enqueueNotification(k, v, ref.weight(), cause)
		s.count--
	}
	s.accessQ.remove(e)
	s.writeQ.remove(e)
	s.unlink(e)
	e.release()
}

// discardLoad removes the value an in-flight load would replace and marks
// the load so that storeLoadedValue drops its result. The placeholder stays
// in the table: callers arriving meanwhile wait for the running load
// instead of starting a second one.
func (s *segment[K, V]) discardLoad(e *entry[K, V], lv *loadingValue[V], cause RemovalCause) {
	if lv.isActive() {
		k, _ := s.c.entryKey(e)
		v, _ := lv.get()
		s.enqueueNotification(k, v, lv.weight(), cause)
		s.count--
		s.accessQ.remove(e)
		s.writeQ.remove(e)
		lv.old.release()
		lv.old = nil
	}
	lv.discard = true
}

// unlink removes e from its bucket chain.
func (s *segment[K, V]) unlink(e *entry[K, V]) {
	idx := s.bucket(e.hash)
	if s.table[idx] == e {
		s.table[idx] = e.next
		e.next = nil
		return
	}
	for p := s.table[idx]; p != nil; p = p.next {
		if p.next == e {
			p.next = e.next
			e.next = nil
			return
		}
	}
}

// contains reports whether e is still linked into the table.
func (s *segment[K, V]) contains(e *entry[K, V]) bool {
	for p := s.table[s.bucket(e.hash)]; p != nil; p = p.next {
		if p == e {
			return true
		}
	}
	return false
}

// expand doubles the bucket table, up to util.MaxTableCapacity.
func (s *segment[K, V]) expand() {
	old := s.table
	if len(old) >= util.MaxTableCapacity {
		return
	}
	nt := make([]*entry[K, V], len(old)*2)
	mask := uint64(len(nt) - 1)
	for _, head := range old {
		for e := head; e != nil; {
			next := e.next
			idx := e.hash & mask
			e.next = nt[idx]
			nt[idx] = e
			e = next
		}
	}
	s.table = nt
	s.threshold = len(nt) * 3 / 4
}

// evictEntries removes least recently used entries until the segment is
// within its weight budget. newest is the entry just written.
func (s *segment[K, V]) evictEntries(newest *entry[K, V]) {
	if s.maxWeight < 0 {
		return
	}
	s.drainRecency()

	if int64(newest.value.weight()) > s.maxWeight {
		s.removeEntry(newest, RemovalSize)
	}
	for s.totalWeight > s.maxWeight {
		e := s.nextEvictable()
		if e == nil {
			panic("cache: segment over weight with nothing to evict")
		}
		s.removeEntry(e, RemovalSize)
	}
}

// nextEvictable is the least recently used entry with non-zero weight.
func (s *segment[K, V]) nextEvictable() *entry[K, V] {
	for e := s.accessQ.peek(); e != nil; e = s.accessQ.after(e) {
		if e.value.weight() > 0 {
			return e
		}
	}
	return nil
}

// drainRecency replays buffered reads into the access queue. Entries that
// were removed meanwhile are no longer queued and are skipped.
func (s *segment[K, V]) drainRecency() {
	s.recency.Drain(func(e *entry[K, V]) {
		if s.accessQ.contains(e) {
			s.accessQ.offer(e)
		}
	})
}

// expireEntries removes entries whose write or access deadline has passed.
// Both queues are ordered by the timestamp they expire on, so only the
// heads need inspecting.
func (s *segment[K, V]) expireEntries(now int64) {
	s.drainRecency()
	if !s.c.expires() {
		return
	}
	if s.c.expireAfterWrite >= 0 {
		for e := s.writeQ.peek(); e != nil && s.c.isExpired(e, now); e = s.writeQ.peek() {
			s.removeEntry(e, RemovalExpired)
		}
	}
	if s.c.expireAfterAccess >= 0 {
		for e := s.accessQ.peek(); e != nil && s.c.isExpired(e, now); e = s.accessQ.peek() {
			s.removeEntry(e, RemovalExpired)
		}
	}
}

// drainReclaimed removes entries whose weak key or value was collected.
// limit < 0 drains everything queued.
func (s *segment[K, V]) drainReclaimed(limit int) {
	for i := 0; limit < 0 || i < limit; i++ {
		e, ok := s.reclaimed.Pop()
		if !ok {
			return
		}
		if !s.contains(e) || e.value.isLoading() {
			continue
		}
		_, kok := s.c.entryKey(e)
		_, vok := e.value.get()
		if !kok || !vok {
			s.removeEntry(e, RemovalCollected)
		}
	}
}

// relieveMemoryPressure softens every soft value when the pressure signal
// is raised, leaving them to the garbage collector.
func (s *segment[K, V]) relieveMemoryPressure() {
	if s.c.valueStrength != Soft || !s.c.pressure() {
		return
	}
	n := 0
	for e := s.accessQ.peek(); e != nil; e = s.accessQ.after(e) {
		if sv, ok := e.value.(*softValue[V]); ok && sv.soften() {
			n++
		}
	}
	if n > 0 {
		log.Debugw("released soft values under memory pressure", "count", n)
	}
}

func (s *segment[K, V]) runLockedCleanup(now int64, limit int) {
	s.drainReclaimed(limit)
	s.relieveMemoryPressure()
	s.expireEntries(now)
	s.readCount.Store(0)
}

func (s *segment[K, V]) preWriteCleanup(now int64) { s.runLockedCleanup(now, drainMax) }

// postWriteCleanup runs after mu is released.
func (s *segment[K, V]) postWriteCleanup() { s.c.processPendingNotifications() }

// postReadCleanup performs maintenance every drainThreshold+1 reads, if the
// lock is free. A full recency buffer is drained even if that means waiting
// for concurrent readers; one reader at a time does so.
func (s *segment[K, V]) postReadCleanup() {
	if s.recency.Full() && s.draining.CompareAndSwap(false, true) {
		s.cleanUp(true)
		s.draining.Store(false)
		return
	}
	if s.readCount.Add(1)&drainThreshold == 0 {
		s.cleanUp(false)
	}
}

// tryExpireEntries is called by a reader that observed an expired entry.
func (s *segment[K, V]) tryExpireEntries(now int64) {
	if !s.mu.TryLock() {
		return
	}
	s.expireEntries(now)
	s.mu.Unlock()
	s.c.processPendingNotifications()
}

// cleanUp runs all pending maintenance. With force it waits for the lock
// and drains the reclaim queue completely.
func (s *segment[K, V]) cleanUp(force bool) {
	limit := drainMax
	if force {
		s.mu.Lock()
		limit = -1
	} else if !s.mu.TryLock() {
		return
	}
	s.runLockedCleanup(s.c.ticker.Read(), limit)
	s.mu.Unlock()
	s.c.processPendingNotifications()
}
