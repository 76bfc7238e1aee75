package cache

import "iter"

// Map is a live map-like view of a cache. Writes through the view are
// writes to the cache; reads do not load and do not record statistics.
//
// Iteration is weakly consistent: each segment is copied under its read
// lock and then yielded, so concurrent updates may or may not be seen, and
// the callback may freely call back into the cache.
type Map[K comparable, V any] struct {
	c *localCache[K, V]
}

// Get returns the live value for k.
func (m *Map[K, V]) Get(k K) (V, bool) { return m.c.getIfPresent(k) }

func (m *Map[K, V]) ContainsKey(k K) bool {
	_, ok := m.c.getIfPresent(k)
	return ok
}

// ContainsValue scans the cache for v. Values are compared by identity for
// weak or soft values and with reflect.DeepEqual otherwise.
func (m *Map[K, V]) ContainsValue(v V) bool {
	for _, cur := range m.All() {
		if m.c.valueEqual(cur, v) {
			return true
		}
	}
	return false
}

// Put stores v and returns the previous value, if there was one.
func (m *Map[K, V]) Put(k K, v V) (V, bool) {
	h := m.c.hash(k)
	return m.c.segmentFor(h).put(k, h, v, false)
}

// PutIfAbsent stores v only if k has no live value. It returns the existing
// value and true when nothing was stored.
func (m *Map[K, V]) PutIfAbsent(k K, v V) (V, bool) {
	h := m.c.hash(k)
	return m.c.segmentFor(h).put(k, h, v, true)
}

// Remove deletes k and returns the value it held.
func (m *Map[K, V]) Remove(k K) (V, bool) {
	h := m.c.hash(k)
	return m.c.segmentFor(h).remove(k, h)
}

// RemoveIf deletes k only if it currently maps to v.
func (m *Map[K, V]) RemoveIf(k K, v V) bool {
	h := m.c.hash(k)
	return m.c.segmentFor(h).removeIf(k, h, v)
}

// Replace overwrites the value of k only if k is present.
func (m *Map[K, V]) Replace(k K, v V) (V, bool) {
	h := m.c.hash(k)
	return m.c.segmentFor(h).replace(k, h, v)
}

// ReplaceIf overwrites the value of k only if it currently maps to old.
func (m *Map[K, V]) ReplaceIf(k K, old, v V) bool {
	h := m.c.hash(k)
	return m.c.segmentFor(h).replaceIf(k, h, old, v)
}

func (m *Map[K, V]) Len() int { return int(m.c.Size()) }

func (m *Map[K, V]) Clear() { m.c.InvalidateAll() }

// Range calls fn for each live entry until fn returns false.
func (m *Map[K, V]) Range(fn func(k K, v V) bool) {
	for k, v := range m.All() {
		if !fn(k, v) {
			return
		}
	}
}

// All iterates over the live entries.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, s := range m.c.segments {
			for _, p := range s.snapshot(m.c.ticker.Read()) {
				if !yield(p.key, p.value) {
					return
				}
			}
		}
	}
}

func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range m.All() {
			if !yield(k) {
				return
			}
		}
	}
}

func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, v := range m.All() {
			if !yield(v) {
				return
			}
		}
	}
}
