package cache

// accessQueue orders entries from least to most recently accessed. It is a
// circular list around a sentinel, so offer/remove never branch on empty.
// Not safe for concurrent use; the owning segment holds its lock.
type accessQueue[K comparable, V any] struct {
	head entry[K, V]
}

func (q *accessQueue[K, V]) init() {
	q.head.accessNext = &q.head
	q.head.accessPrev = &q.head
}

func (q *accessQueue[K, V]) contains(e *entry[K, V]) bool { return e.accessNext != nil }

// offer links e at the tail (most recent), unlinking it first if queued.
func (q *accessQueue[K, V]) offer(e *entry[K, V]) {
	if e.accessNext != nil {
		e.accessPrev.accessNext = e.accessNext
		e.accessNext.accessPrev = e.accessPrev
	}
	tail := q.head.accessPrev
	tail.accessNext = e
	e.accessPrev = tail
	e.accessNext = &q.head
	q.head.accessPrev = e
}

func (q *accessQueue[K, V]) remove(e *entry[K, V]) bool {
	if e.accessNext == nil {
		return false
	}
	e.accessPrev.accessNext = e.accessNext
	e.accessNext.accessPrev = e.accessPrev
	e.accessPrev, e.accessNext = nil, nil
	return true
}

// peek returns the least recently accessed entry, or nil.
func (q *accessQueue[K, V]) peek() *entry[K, V] {
	if e := q.head.accessNext; e != &q.head {
		return e
	}
	return nil
}

// after returns the entry following e, or nil at the tail.
func (q *accessQueue[K, V]) after(e *entry[K, V]) *entry[K, V] {
	if n := e.accessNext; n != &q.head {
		return n
	}
	return nil
}

func (q *accessQueue[K, V]) clear() {
	for e := q.head.accessNext; e != &q.head; {
		next := e.accessNext
		e.accessPrev, e.accessNext = nil, nil
		e = next
	}
	q.init()
}

// writeQueue orders entries from oldest to newest write. Same shape as
// accessQueue over the write links.
type writeQueue[K comparable, V any] struct {
	head entry[K, V]
}

func (q *writeQueue[K, V]) init() {
	q.head.writeNext = &q.head
	q.head.writePrev = &q.head
}

func (q *writeQueue[K, V]) offer(e *entry[K, V]) {
	if e.writeNext != nil {
		e.writePrev.writeNext = e.writeNext
		e.writeNext.writePrev = e.writePrev
	}
	tail := q.head.writePrev
	tail.writeNext = e
	e.writePrev = tail
	e.writeNext = &q.head
	q.head.writePrev = e
}

func (q *writeQueue[K, V]) remove(e *entry[K, V]) bool {
	if e.writeNext == nil {
		return false
	}
	e.writePrev.writeNext = e.writeNext
	e.writeNext.writePrev = e.writePrev
	e.writePrev, e.writeNext = nil, nil
	return true
}

func (q *writeQueue[K, V]) peek() *entry[K, V] {
	if e := q.head.writeNext; e != &q.head {
		return e
	}
	return nil
}

func (q *writeQueue[K, V]) clear() {
	for e := q.head.writeNext; e != &q.head; {
		next := e.writeNext
		e.writePrev, e.writeNext = nil, nil
		e = next
	}
	q.init()
}
