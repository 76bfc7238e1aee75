package cache

import (
	"time"

	"github.com/hashicorp/go-multierror"
)

// Builder configures and constructs caches. Setters return the builder so
// calls can be chained; misuse (a negative size, a setting given twice) is
// recorded and reported by Build, together with any conflicts between
// settings.
//
//	c, err := cache.NewBuilder[string, *User]().
//	    MaximumSize(10_000).
//	    ExpireAfterWrite(10 * time.Minute).
//	    RecordStats().
//	    BuildLoading(cache.LoaderFunc[string, *User](fetchUser))
//
// A Builder is not safe for concurrent use. It may build several caches.
type Builder[K comparable, V any] struct {
	cfg Config

	weigher  Weigher[K, V]
	listener RemovalListener[K, V]
	ticker   Ticker
	stats    StatsCounter
	executor func(func())
	pressure func() bool
	hasher   func(K) uint64

	errs []error
}

// NewBuilder returns a builder with every setting at its default: unbounded,
// no expiration, strong keys and values, no statistics.
func NewBuilder[K comparable, V any]() *Builder[K, V] {
	return &Builder[K, V]{cfg: UnsetConfig()}
}

// NewBuilderFromSpec returns a builder preloaded with a parsed spec. Setters
// for settings the spec already made are recorded as duplicates.
func NewBuilderFromSpec[K comparable, V any](spec Spec) *Builder[K, V] {
	return &Builder[K, V]{cfg: spec.cfg}
}

// Config returns the declarative settings accumulated so far.
func (b *Builder[K, V]) Config() Config { return b.cfg }

func (b *Builder[K, V]) fail(kind error, key, format string, args ...any) *Builder[K, V] {
	b.errs = append(b.errs, configErrorf(kind, key, format, args...))
	return b
}

// InitialCapacity sizes the internal tables. Default 16.
func (b *Builder[K, V]) InitialCapacity(n int) *Builder[K, V] {
	switch {
	case b.cfg.InitialCapacity != Unset:
		return b.fail(ErrDuplicateKey, "initialCapacity", "initialCapacity was already set to %d", b.cfg.InitialCapacity)
	case n < 0:
		return b.fail(ErrMalformedValue, "initialCapacity", "initialCapacity must not be negative, got %d", n)
	}
	b.cfg.InitialCapacity = n
	return b
}

// ConcurrencyLevel hints at the number of goroutines expected to update the
// cache at once; it sets the segment count (rounded up to a power of two).
// Default 4.
func (b *Builder[K, V]) ConcurrencyLevel(n int) *Builder[K, V] {
	switch {
	case b.cfg.ConcurrencyLevel != Unset:
		return b.fail(ErrDuplicateKey, "concurrencyLevel", "concurrencyLevel was already set to %d", b.cfg.ConcurrencyLevel)
	case n <= 0:
		return b.fail(ErrMalformedValue, "concurrencyLevel", "concurrencyLevel must be positive, got %d", n)
	}
	b.cfg.ConcurrencyLevel = n
	return b
}

// MaximumSize bounds the number of entries. Eviction is LRU within each
// segment, so it can begin before the cache as a whole is full. Zero
// disables caching.
func (b *Builder[K, V]) MaximumSize(n int64) *Builder[K, V] {
	switch {
	case b.cfg.MaximumSize != Unset:
		return b.fail(ErrDuplicateKey, "maximumSize", "maximumSize was already set to %d", b.cfg.MaximumSize)
	case n < 0:
		return b.fail(ErrMalformedValue, "maximumSize", "maximumSize must not be negative, got %d", n)
	}
	b.cfg.MaximumSize = n
	return b
}

// MaximumWeight bounds the total weight of the entries, as computed by the
// Weigher (each entry weighs 1 without one).
func (b *Builder[K, V]) MaximumWeight(n int64) *Builder[K, V] {
	switch {
	case b.cfg.MaximumWeight != Unset:
		return b.fail(ErrDuplicateKey, "maximumWeight", "maximumWeight was already set to %d", b.cfg.MaximumWeight)
	case n < 0:
		return b.fail(ErrMalformedValue, "maximumWeight", "maximumWeight must not be negative, got %d", n)
	}
	b.cfg.MaximumWeight = n
	return b
}

// Weigher sets the entry weigher used with MaximumWeight.
func (b *Builder[K, V]) Weigher(w Weigher[K, V]) *Builder[K, V] {
	if b.weigher != nil {
		return b.fail(ErrDuplicateKey, "weigher", "weigher was already set")
	}
	b.weigher = w
	return b
}

// WeakKeys holds keys weakly. Keys are then compared by identity, and K must
// be a pointer type.
func (b *Builder[K, V]) WeakKeys() *Builder[K, V] {
	if b.cfg.KeyStrength != Strong {
		return b.fail(ErrDuplicateKey, "weakKeys", "key strength was already set to %s", b.cfg.KeyStrength)
	}
	b.cfg.KeyStrength = Weak
	return b
}

// WeakValues holds values weakly. V must be a pointer type.
func (b *Builder[K, V]) WeakValues() *Builder[K, V] { return b.valueStrength("weakValues", Weak) }

// SoftValues holds values strongly until memory pressure is signalled, then
// weakly. V must be a pointer type.
func (b *Builder[K, V]) SoftValues() *Builder[K, V] { return b.valueStrength("softValues", Soft) }

func (b *Builder[K, V]) valueStrength(key string, s Strength) *Builder[K, V] {
	switch b.cfg.ValueStrength {
	case Strong:
		b.cfg.ValueStrength = s
		return b
	case s:
		return b.fail(ErrDuplicateKey, key, "value strength was already set to %s", s)
	default:
		return b.fail(ErrConflictingKeys, key, "value strength was already set to %s", b.cfg.ValueStrength)
	}
}

// ExpireAfterWrite removes entries d after they were created or last
// replaced. Zero expires entries immediately.
func (b *Builder[K, V]) ExpireAfterWrite(d time.Duration) *Builder[K, V] {
	return b.duration("expireAfterWrite", &b.cfg.ExpireAfterWrite, d)
}

// ExpireAfterAccess removes entries d after their last read or write.
func (b *Builder[K, V]) ExpireAfterAccess(d time.Duration) *Builder[K, V] {
	return b.duration("expireAfterAccess", &b.cfg.ExpireAfterAccess, d)
}

// RefreshAfterWrite makes entries older than d eligible for an asynchronous
// reload on their next read. Requires a loading cache.
func (b *Builder[K, V]) RefreshAfterWrite(d time.Duration) *Builder[K, V] {
	return b.duration("refreshAfterWrite", &b.cfg.RefreshAfterWrite, d)
}

func (b *Builder[K, V]) duration(key string, field *time.Duration, d time.Duration) *Builder[K, V] {
	switch {
	case *field != Unset:
		return b.fail(ErrDuplicateKey, key, "%s was already set to %s", key, *field)
	case d < 0:
		return b.fail(ErrMalformedValue, key, "%s must not be negative, got %s", key, d)
	}
	*field = d
	return b
}

// RecordStats enables statistics with a SimpleStatsCounter.
func (b *Builder[K, V]) RecordStats() *Builder[K, V] {
	b.cfg.RecordStats = true
	return b
}

// StatsCounter enables statistics with a custom counter.
func (b *Builder[K, V]) StatsCounter(sc StatsCounter) *Builder[K, V] {
	b.cfg.RecordStats = true
	b.stats = sc
	return b
}

// RemovalListener registers l for every removal, see RemovalListener.
func (b *Builder[K, V]) RemovalListener(l RemovalListener[K, V]) *Builder[K, V] {
	if b.listener != nil {
		return b.fail(ErrDuplicateKey, "removalListener", "removalListener was already set")
	}
	b.listener = l
	return b
}

// Ticker replaces the monotonic time source. Used by tests.
func (b *Builder[K, V]) Ticker(t Ticker) *Builder[K, V] {
	b.ticker = t
	return b
}

// Executor sets where refreshes run. Default: a new goroutine per refresh.
func (b *Builder[K, V]) Executor(exec func(func())) *Builder[K, V] {
	b.executor = exec
	return b
}

// MemoryPressure sets the signal that releases soft values. Default
// HeapPressure.
func (b *Builder[K, V]) MemoryPressure(fn func() bool) *Builder[K, V] {
	b.pressure = fn
	return b
}

// Hasher replaces the key hash. The cache mixes the result further, so a
// plain function of the key is enough.
func (b *Builder[K, V]) Hasher(fn func(K) uint64) *Builder[K, V] {
	b.hasher = fn
	return b
}

// Build returns a cache without a loader.
func (b *Builder[K, V]) Build() (Cache[K, V], error) {
	if err := b.validate(false); err != nil {
		return nil, err
	}
	return newLocalCache(b, nil), nil
}

// BuildLoading returns a cache that loads misses with loader.
func (b *Builder[K, V]) BuildLoading(loader Loader[K, V]) (LoadingCache[K, V], error) {
	if loader == nil {
		return nil, configErrorf(ErrInvalidConfig, "loader", "loader must not be nil")
	}
	if err := b.validate(true); err != nil {
		return nil, err
	}
	return newLocalCache(b, loader), nil
}

// MustBuild is like Build but panics on a configuration error.
func (b *Builder[K, V]) MustBuild() Cache[K, V] {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

// MustBuildLoading is like BuildLoading but panics on a configuration error.
func (b *Builder[K, V]) MustBuildLoading(loader Loader[K, V]) LoadingCache[K, V] {
	c, err := b.BuildLoading(loader)
	if err != nil {
		panic(err)
	}
	return c
}

// validate reports every recorded setter error and every conflict between
// settings as one multierror.
func (b *Builder[K, V]) validate(loading bool) error {
	var result *multierror.Error
	result = multierror.Append(result, b.errs...)

	cfg := b.cfg
	if cfg.MaximumSize != Unset && cfg.MaximumWeight != Unset {
		result = multierror.Append(result, configErrorf(ErrConflictingKeys, "maximumWeight",
			"maximumSize %d conflicts with maximumWeight %d", cfg.MaximumSize, cfg.MaximumWeight))
	}
	if b.weigher != nil {
		switch {
		case cfg.MaximumSize != Unset:
			result = multierror.Append(result, configErrorf(ErrConflictingKeys, "weigher",
				"weigher cannot be combined with maximumSize"))
		case cfg.MaximumWeight == Unset:
			result = multierror.Append(result, configErrorf(ErrInvalidConfig, "weigher",
				"weigher requires maximumWeight"))
		}
	}
	if cfg.KeyStrength == Soft {
		result = multierror.Append(result, configErrorf(ErrInvalidConfig, "keyStrength",
			"keys cannot be held softly"))
	}
	if cfg.KeyStrength != Strong && !isPointerType[K]() {
		result = multierror.Append(result, configErrorf(ErrInvalidConfig, "weakKeys",
			"weak keys require a pointer key type"))
	}
	if cfg.ValueStrength != Strong && !isPointerType[V]() {
		result = multierror.Append(result, configErrorf(ErrInvalidConfig, "values",
			"%s values require a pointer value type", cfg.ValueStrength))
	}
	if cfg.RefreshAfterWrite == 0 {
		result = multierror.Append(result, configErrorf(ErrMalformedValue, "refreshAfterWrite",
			"refreshAfterWrite must be positive"))
	}
	if cfg.RefreshAfterWrite != Unset && !loading {
		result = multierror.Append(result, configErrorf(ErrInvalidConfig, "refreshAfterWrite",
			"refreshAfterWrite requires a loading cache"))
	}
	return result.ErrorOrNil()
}
