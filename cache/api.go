package cache

import "context"

// Cache is a segmented, in-memory key/value cache.
// All methods are safe for concurrent use by multiple goroutines.
//
// Reads take a segment's read lock; writes take its write lock. Expiration,
// size eviction and reclamation of collected references happen lazily
// during writes and periodically during reads, so a cache with no activity
// does no work.
type Cache[K comparable, V any] interface {
	// GetIfPresent returns the value for k without loading it.
	GetIfPresent(k K) (V, bool)

	// Get returns the value for k, computing it with loader on a miss.
	// Concurrent calls for the same key share one loader invocation.
	// A failed load returns a *LoadError and leaves nothing cached.
	Get(ctx context.Context, k K, loader func(context.Context) (V, error)) (V, error)

	// GetAllPresent returns the cached values for keys. Absent keys are
	// omitted from the result.
	GetAllPresent(keys []K) map[K]V

	// Put associates v with k, replacing any cached value. A load in flight
	// for k completes with v.
	Put(k K, v V)

	// PutAll is Put for every pair in m.
	PutAll(m map[K]V)

	// Invalidate discards k. A load in flight for k still completes for its
	// callers, but its result is not cached.
	Invalidate(k K)

	// InvalidateKeys discards each of keys.
	InvalidateKeys(keys ...K)

	// InvalidateAll discards every entry.
	InvalidateAll()

	// Size returns the approximate number of entries. It may count entries
	// that are expired or collected but not yet cleaned up.
	Size() int64

	// Stats returns a snapshot of the statistics. All zero unless stats
	// recording was enabled.
	Stats() Stats

	// AsMap returns a live, map-like view of the cache.
	AsMap() *Map[K, V]

	// CleanUp performs any pending maintenance.
	CleanUp()
}

// LoadingCache is a Cache that computes missing values with the Loader it
// was built with.
type LoadingCache[K comparable, V any] interface {
	Cache[K, V]

	// GetOrLoad returns the value for k, loading it on a miss. Concurrent
	// loads of one key are coalesced; waiters see a *LoadError with Shared
	// set if the load fails. If ctx ends first the caller gets ctx.Err()
	// wrapped in a *LoadError and, when it owned the load, the in-flight
	// entry is abandoned.
	GetOrLoad(ctx context.Context, k K) (V, error)

	// GetAll returns values for every key, loading the missing ones. If the
	// Loader implements BulkLoader, all misses are loaded in one call.
	GetAll(ctx context.Context, keys []K) (map[K]V, error)

	// Refresh reloads k asynchronously. The current value, if any, keeps
	// being served until the reload succeeds; a failed reload is logged and
	// the current value is kept.
	Refresh(ctx context.Context, k K)
}

// Loader computes a value for a key.
type Loader[K comparable, V any] interface {
	Load(ctx context.Context, key K) (V, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

func (f LoaderFunc[K, V]) Load(ctx context.Context, key K) (V, error) { return f(ctx, key) }

// Reloader is an optional Loader extension used by refreshes. Reload
// receives the value being replaced.
type Reloader[K comparable, V any] interface {
	Reload(ctx context.Context, key K, old V) (V, error)
}

// BulkLoader is an optional Loader extension used by GetAll. The result may
// hold extra keys; those are cached too.
type BulkLoader[K comparable, V any] interface {
	LoadAll(ctx context.Context, keys []K) (map[K]V, error)
}
