package cache

import (
	"fmt"
	"time"
)

// Unset marks a numeric Config field that was not configured.
const Unset = -1

const (
	defaultInitialCapacity  = 16
	defaultConcurrencyLevel = 4
)

// Strength selects how the cache retains keys or values.
type Strength int

const (
	// Strong holds an ordinary reference; entries are never collected.
	Strong Strength = iota
	// Weak lets the garbage collector reclaim the key or value once nothing
	// outside the cache references it. Requires a pointer type.
	Weak
	// Soft holds values strongly until the cache observes memory pressure,
	// then degrades them to weak references. Values only.
	Soft
)

func (s Strength) String() string {
	switch s {
	case Strong:
		return "STRONG"
	case Weak:
		return "WEAK"
	case Soft:
		return "SOFT"
	default:
		return fmt.Sprintf("Strength(%d)", int(s))
	}
}

// Config is the declarative part of a cache configuration: everything a
// spec string can express. Numeric fields hold Unset when not configured.
// Config is comparable, so two configurations can be checked with ==.
type Config struct {
	InitialCapacity  int
	ConcurrencyLevel int

	// At most one of MaximumSize and MaximumWeight may be set.
	MaximumSize   int64
	MaximumWeight int64

	KeyStrength   Strength
	ValueStrength Strength

	ExpireAfterWrite  time.Duration
	ExpireAfterAccess time.Duration
	RefreshAfterWrite time.Duration

	RecordStats bool
}

// UnsetConfig returns a Config with every numeric field Unset and strong
// references.
func UnsetConfig() Config {
	return Config{
		InitialCapacity:   Unset,
		ConcurrencyLevel:  Unset,
		MaximumSize:       Unset,
		MaximumWeight:     Unset,
		ExpireAfterWrite:  Unset,
		ExpireAfterAccess: Unset,
		RefreshAfterWrite: Unset,
	}
}

// Ticker is a monotonic nanosecond time source. Tests substitute a fake.
type Ticker interface{ Read() int64 }

type systemTicker struct{ start time.Time }

// Read returns nanoseconds elapsed since the ticker was created, using the
// monotonic clock reading carried by time.Time.
func (t systemTicker) Read() int64 { return int64(time.Since(t.start)) }

// SystemTicker returns a Ticker backed by the monotonic clock.
func SystemTicker() Ticker { return systemTicker{start: time.Now()} }

// Weigher computes the non-negative weight of an entry. Weights are taken
// when an entry is written and are static afterwards.
type Weigher[K comparable, V any] func(key K, value V) int

// RemovalCause explains why an entry left the cache.
type RemovalCause int

const (
	// RemovalExplicit: removed by Invalidate, InvalidateAll or a map remove.
	RemovalExplicit RemovalCause = iota
	// RemovalReplaced: the value was overwritten by a put or a reload.
	RemovalReplaced
	// RemovalExpired: expireAfterWrite or expireAfterAccess elapsed.
	RemovalExpired
	// RemovalSize: evicted to keep the cache within its size or weight bound.
	RemovalSize
	// RemovalCollected: the weak or soft key or value was garbage collected.
	RemovalCollected
)

// WasEvicted reports whether the removal was automatic (not Explicit or Replaced).
func (c RemovalCause) WasEvicted() bool {
	return c == RemovalExpired || c == RemovalSize || c == RemovalCollected
}

func (c RemovalCause) String() string {
	switch c {
	case RemovalExplicit:
		return "explicit"
	case RemovalReplaced:
		return "replaced"
	case RemovalExpired:
		return "expired"
	case RemovalSize:
		return "size"
	case RemovalCollected:
		return "collected"
	default:
		return fmt.Sprintf("RemovalCause(%d)", int(c))
	}
}

// RemovalNotification describes a removed entry. Key or Value is the zero
// value when it was garbage collected.
type RemovalNotification[K comparable, V any] struct {
	Key   K
	Value V
	Cause RemovalCause
}

// WasEvicted is shorthand for n.Cause.WasEvicted().
func (n RemovalNotification[K, V]) WasEvicted() bool { return n.Cause.WasEvicted() }

// RemovalListener receives removal notifications. It is called after the
// segment lock is released, on whichever goroutine performs maintenance;
// do not assume it runs on the goroutine that caused the removal.
type RemovalListener[K comparable, V any] func(RemovalNotification[K, V])

// AsyncRemovalListener wraps l so that every notification is handed to exec.
func AsyncRemovalListener[K comparable, V any](l RemovalListener[K, V], exec func(func())) RemovalListener[K, V] {
	return func(n RemovalNotification[K, V]) {
		exec(func() { l(n) })
	}
}

// goExecutor runs fn on a new goroutine.
func goExecutor(fn func()) { go fn() }
