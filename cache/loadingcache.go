package cache

import (
	"context"
	"time"
)

// GetOrLoad returns the value for k, loading it with the cache's Loader on
// a miss. Without a Loader it returns ErrNoLoader.
func (c *localCache[K, V]) GetOrLoad(ctx context.Context, k K) (V, error) {
	if c.loader == nil {
		var zero V
		return zero, ErrNoLoader
	}
	return c.getOrLoad(ctx, k, func(ctx context.Context) (V, error) {
		return c.loader.Load(ctx, k)
	})
}

// GetAll returns a value for each of keys, loading misses. Values already
// cached are served as they are; if any load fails the whole call fails.
func (c *localCache[K, V]) GetAll(ctx context.Context, keys []K) (map[K]V, error) {
	if c.loader == nil {
		return nil, ErrNoLoader
	}
	out := make(map[K]V, len(keys))
	var missing []K
	seen := make(map[K]struct{}, len(keys))
	hits := 0
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if v, ok := c.getIfPresent(k); ok {
			out[k] = v
			hits++
		} else {
			missing = append(missing, k)
		}
	}
	c.stats.RecordHits(hits)
	if len(missing) == 0 {
		return out, nil
	}

	bl, ok := c.loader.(BulkLoader[K, V])
	if !ok {
		// One at a time; getOrLoad records each miss itself.
		for _, k := range missing {
			v, err := c.GetOrLoad(ctx, k)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}

	// Claim a placeholder for every miss. Keys another caller is already
	// loading are waited for instead of loaded again.
	var owned, pending []claim[K, V]
	for _, k := range missing {
		h := c.hash(k)
		s := c.segmentFor(h)
		v, hit, lv, owner := s.lockedGetOrLoad(k, h)
		cl := claim[K, V]{key: k, hash: h, seg: s, lv: lv}
		switch {
		case hit:
			out[k] = v
		case owner:
			owned = append(owned, cl)
		default:
			pending = append(pending, cl)
		}
	}
	if len(owned) > 0 {
		c.stats.RecordMisses(len(owned))
		if err := c.loadAll(ctx, bl, owned, seen, out); err != nil {
			return nil, err
		}
	}
	for _, cl := range pending {
		v, err := c.waitForLoadingValue(ctx, cl.lv)
		if err != nil {
			return nil, err
		}
		out[cl.key] = v
	}
	return out, nil
}

// claim is a loading placeholder held by a GetAll call.
type claim[K comparable, V any] struct {
	key  K
	hash uint64
	seg  *segment[K, V]
	lv   *loadingValue[V]
}

// loadAll runs one bulk load for the owned placeholders and publishes the
// results through them, so a key invalidated meanwhile is not stored.
// Extra keys the loader returned are cached unless they were requested;
// nil extras are ignored.
func (c *localCache[K, V]) loadAll(ctx context.Context, bl BulkLoader[K, V], owned []claim[K, V], requested map[K]struct{}, out map[K]V) error {
	keys := make([]K, len(owned))
	for i, cl := range owned {
		keys[i] = cl.key
	}
	start := c.ticker.Read()
	loaded, err := invoke(ctx, func(ctx context.Context) (map[K]V, error) {
		return bl.LoadAll(ctx, keys)
	})
	elapsed := time.Duration(c.ticker.Read() - start)
	if err == nil {
		for _, k := range keys {
			if v, ok := loaded[k]; !ok || c.isNil(v) {
				log.Warnw("bulk load omitted a requested key", "key", k)
				err = ErrInvalidLoad
				break
			}
		}
	}
	if err != nil {
		c.stats.RecordLoadException(elapsed)
		for _, cl := range owned {
			cl.seg.removeLoadingValue(cl.key, cl.hash, cl.lv)
			cl.lv.fut.SetError(err)
		}
		return &LoadError{Err: err}
	}

	c.stats.RecordLoadSuccess(elapsed)
	for _, cl := range owned {
		v := loaded[cl.key]
		cl.seg.storeLoadedValue(cl.key, cl.hash, cl.lv, v)
		cl.lv.fut.Set(v)
		out[cl.key] = v
	}
	for k, v := range loaded {
		if _, ok := requested[k]; ok || c.isNil(v) {
			continue
		}
		c.Put(k, v)
	}
	return nil
}

// Refresh reloads k asynchronously through the executor, keeping any
// current value visible until the new one is stored.
func (c *localCache[K, V]) Refresh(ctx context.Context, k K) {
	if c.loader == nil {
		return
	}
	h := c.hash(k)
	c.refresh(ctx, c.segmentFor(h), k, h, false)
}

// getOrLoad is the shared read-through path for Get and GetOrLoad.
func (c *localCache[K, V]) getOrLoad(ctx context.Context, k K, fn func(context.Context) (V, error)) (V, error) {
	h := c.hash(k)
	s := c.segmentFor(h)
	defer s.postReadCleanup()

	now := c.ticker.Read()
	r := s.read(k, h, now)
	if r.hit {
		c.stats.RecordHits(1)
		if r.refresh {
			c.scheduleRefresh(s, k, h)
		}
		return r.value, nil
	}
	if r.loading != nil {
		return c.waitForLoadingValue(ctx, r.loading)
	}

	v, hit, lv, owner := s.lockedGetOrLoad(k, h)
	switch {
	case hit:
		return v, nil
	case !owner:
		return c.waitForLoadingValue(ctx, lv)
	}
	c.stats.RecordMisses(1)
	v, err := c.load(ctx, s, k, h, lv, fn)
	if err != nil {
		return v, &LoadError{Err: err}
	}
	return v, nil
}

// waitForLoadingValue blocks on another goroutine's load.
func (c *localCache[K, V]) waitForLoadingValue(ctx context.Context, lv *loadingValue[V]) (V, error) {
	c.stats.RecordMisses(1)
	v, err := lv.wait(ctx)
	if err == nil {
		return v, nil
	}
	if ctx.Err() != nil {
		return v, &LoadError{Err: ctx.Err()}
	}
	return v, &LoadError{Err: err, Shared: true}
}

// load runs fn for the placeholder lv and publishes the outcome: the value
// is stored and handed to waiters, or the placeholder is withdrawn and the
// error handed to waiters.
func (c *localCache[K, V]) load(ctx context.Context, s *segment[K, V], k K, h uint64, lv *loadingValue[V], fn func(context.Context) (V, error)) (V, error) {
	v, err := invoke(ctx, fn)
	elapsed := time.Duration(c.ticker.Read() - lv.start)
	if err == nil && c.isNil(v) {
		err = ErrInvalidLoad
	}
	if err != nil {
		c.stats.RecordLoadException(elapsed)
		s.removeLoadingValue(k, h, lv)
		lv.fut.SetError(err)
		var zero V
		return zero, err
	}
	c.stats.RecordLoadSuccess(elapsed)
	s.storeLoadedValue(k, h, lv, v)
	lv.fut.Set(v)
	return v, nil
}

// scheduleRefresh starts a background reload of a stale entry.
func (c *localCache[K, V]) scheduleRefresh(s *segment[K, V], k K, h uint64) {
	if c.loader == nil {
		return
	}
	c.refresh(context.Background(), s, k, h, true)
}

func (c *localCache[K, V]) refresh(ctx context.Context, s *segment[K, V], k K, h uint64, checkTime bool) {
	lv, old, hasOld := s.insertLoadingValueReference(k, h, checkTime)
	if lv == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	c.executor(func() {
		_, err := c.load(ctx, s, k, h, lv, func(ctx context.Context) (V, error) {
			if r, ok := c.loader.(Reloader[K, V]); ok && hasOld {
				return r.Reload(ctx, k, old)
			}
			return c.loader.Load(ctx, k)
		})
		if err != nil {
			log.Warnw("refresh failed, keeping previous value", "key", k, "error", err)
		}
	})
}
