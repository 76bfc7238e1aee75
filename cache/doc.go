// Package cache provides a generic, segmented, in-memory cache with
// size- and weight-bounded LRU eviction, write and access expiration,
// weak and soft references, read-through loading, asynchronous refresh,
// removal notifications and statistics.
//
// Design
//
//   - Concurrency: the cache is split into a power-of-two number of
//     segments chosen from the concurrency level. Each segment has an
//     RWMutex, its own bucket table and its own share of the size budget.
//     Keys are routed by the high bits of a spread hash and bucketed by the
//     low bits.
//
//   - Reads: a hit takes only the segment read lock. The access is pushed
//     onto a small lock-free recency buffer that the next writer replays into
//     the LRU queue; when it is full further accesses are dropped and the
//     reader drains it. Every 64th read attempts a cleanup.
//
//   - Eviction: a bounded segment evicts its least recently used entries
//     (skipping zero-weight ones) until it is within budget. An entry heavier
//     than the whole segment budget is evicted on insertion.
//
//   - Expiration: entries expire lazily. A write, or a read that observes an
//     expired entry, removes expired entries from the head of the write and
//     access queues.
//
//   - Loading: concurrent loads of one key run the loader once; the other
//     callers wait for its result. A refresh keeps serving the old value
//     until the reload finishes.
//
//   - References: with weak keys or values the garbage collector may
//     reclaim entries; reclaimed entries are reported with RemovalCollected.
//     Soft values are held strongly until the MemoryPressure signal fires.
//
//   - Notifications: removal listeners run after the segment lock is
//     released.
//
// Basic usage
//
//	c := cache.NewBuilder[string, []byte]().
//	    MaximumSize(10_000).
//	    MustBuild()
//	c.Put("a", []byte("1"))
//	if v, ok := c.GetIfPresent("a"); ok {
//	    _ = v
//	}
//	c.Invalidate("a")
//
// Loading
//
//	users := cache.NewBuilder[int64, *User]().
//	    MaximumSize(50_000).
//	    ExpireAfterWrite(10 * time.Minute).
//	    RefreshAfterWrite(time.Minute).
//	    RecordStats().
//	    MustBuildLoading(cache.LoaderFunc[int64, *User](db.FetchUser))
//	u, err := users.GetOrLoad(ctx, 42)
//
// From a spec string
//
//	spec, err := cache.ParseSpec("maximumSize=1000,expireAfterAccess=5m")
//	c, err := cache.NewBuilderFromSpec[string, string](spec).Build()
//
// Exporting statistics
//
//	a := prom.New(nil, "cachex", "demo", nil) // implements StatsCounter
//	c := cache.NewBuilder[string, []byte]().StatsCounter(a).MustBuild()
package cache
