package cache

import (
	"context"
	"reflect"
	"sync"
	"unsafe"

	logging "github.com/ipfs/go-log/v2"

	"github.com/IvanBrykalov/segcache/internal/util"
)

var log = logging.Logger("segcache")

// localCache is the engine behind both Cache and LoadingCache. Keys are
// routed to segments by the high bits of their spread hash; each segment
// owns its share of the size budget.
type localCache[K comparable, V any] struct {
	segments []*segment[K, V]
	shift    uint
	hasher   util.Hasher[K]

	// Nanoseconds; Unset when disabled.
	expireAfterWrite  int64
	expireAfterAccess int64
	refreshAfterWrite int64

	maxWeight     int64 // Unset when unbounded
	weigher       Weigher[K, V]
	weakKeys      bool
	valueStrength Strength

	ticker   Ticker
	stats    StatsCounter
	listener RemovalListener[K, V]
	executor func(func())
	pressure func() bool
	loader   Loader[K, V] // nil for a manual cache
	isNil    func(V) bool

	pendingMu sync.Mutex
	pending   []RemovalNotification[K, V]
	deliverMu sync.Mutex
}

// newLocalCache assembles a cache from a validated builder.
func newLocalCache[K comparable, V any](b *Builder[K, V], loader Loader[K, V]) *localCache[K, V] {
	cfg := b.cfg
	c := &localCache[K, V]{
		hasher:            b.hasher,
		expireAfterWrite:  int64(cfg.ExpireAfterWrite),
		expireAfterAccess: int64(cfg.ExpireAfterAccess),
		refreshAfterWrite: int64(cfg.RefreshAfterWrite),
		maxWeight:         Unset,
		weakKeys:          cfg.KeyStrength == Weak,
		valueStrength:     cfg.ValueStrength,
		ticker:            b.ticker,
		stats:             b.stats,
		listener:          b.listener,
		executor:          b.executor,
		pressure:          b.pressure,
		loader:            loader,
		isNil:             nilChecker[V](),
	}
	if c.hasher == nil {
		c.hasher = util.NewHasher[K]()
	}
	if c.ticker == nil {
		c.ticker = SystemTicker()
	}
	if c.stats == nil {
		if cfg.RecordStats {
			c.stats = NewSimpleStatsCounter()
		} else {
			c.stats = NoopStatsCounter{}
		}
	}
	if c.executor == nil {
		c.executor = goExecutor
	}
	if c.pressure == nil {
		c.pressure = HeapPressure
	}

	switch {
	case cfg.MaximumSize != Unset:
		c.maxWeight = cfg.MaximumSize
	case cfg.MaximumWeight != Unset:
		c.maxWeight = cfg.MaximumWeight
		c.weigher = b.weigher
	}

	level := cfg.ConcurrencyLevel
	if level == Unset {
		level = defaultConcurrencyLevel
	}
	initial := cfg.InitialCapacity
	if initial == Unset {
		initial = defaultInitialCapacity
	}
	if c.maxWeight >= 0 && int64(initial) > c.maxWeight {
		initial = int(c.maxWeight)
	}

	count, shift := util.SegmentCount(level, c.maxWeight)
	c.shift = shift
	c.segments = make([]*segment[K, V], count)
	tableSize := util.SegmentTableSize(initial, count)
	if c.maxWeight >= 0 {
		for i, w := range util.SegmentWeights(c.maxWeight, count) {
			c.segments[i] = newSegment(c, tableSize, w)
		}
	} else {
		for i := range c.segments {
			c.segments[i] = newSegment(c, tableSize, Unset)
		}
	}

	log.Debugw("cache created",
		"segments", count,
		"maxWeight", c.maxWeight,
		"expireAfterWrite", cfg.ExpireAfterWrite,
		"expireAfterAccess", cfg.ExpireAfterAccess,
		"refreshAfterWrite", cfg.RefreshAfterWrite,
		"keys", cfg.KeyStrength,
		"values", cfg.ValueStrength,
	)
	return c
}

// ---- Cache[K,V] implementation ----

func (c *localCache[K, V]) GetIfPresent(k K) (V, bool) {
	v, ok := c.getIfPresent(k)
	if ok {
		c.stats.RecordHits(1)
	} else {
		c.stats.RecordMisses(1)
	}
	return v, ok
}

func (c *localCache[K, V]) Get(ctx context.Context, k K, loader func(context.Context) (V, error)) (V, error) {
	return c.getOrLoad(ctx, k, loader)
}

func (c *localCache[K, V]) GetAllPresent(keys []K) map[K]V {
	out := make(map[K]V, len(keys))
	hits, misses := 0, 0
	for _, k := range keys {
		if v, ok := c.getIfPresent(k); ok {
			out[k] = v
			hits++
		} else {
			misses++
		}
	}
	c.stats.RecordHits(hits)
	c.stats.RecordMisses(misses)
	return out
}

func (c *localCache[K, V]) Put(k K, v V) {
	h := c.hash(k)
	c.segmentFor(h).put(k, h, v, false)
}

func (c *localCache[K, V]) PutAll(m map[K]V) {
	for k, v := range m {
		c.Put(k, v)
	}
}

func (c *localCache[K, V]) Invalidate(k K) {
	h := c.hash(k)
	c.segmentFor(h).remove(k, h)
}

func (c *localCache[K, V]) InvalidateKeys(keys ...K) {
	for _, k := range keys {
		c.Invalidate(k)
	}
}

func (c *localCache[K, V]) InvalidateAll() {
	for _, s := range c.segments {
		s.clear()
	}
}

func (c *localCache[K, V]) Size() int64 {
	var n int64
	for _, s := range c.segments {
		n += int64(s.size())
	}
	return n
}

func (c *localCache[K, V]) Stats() Stats { return c.stats.Snapshot() }

func (c *localCache[K, V]) AsMap() *Map[K, V] { return &Map[K, V]{c: c} }

func (c *localCache[K, V]) CleanUp() {
	for _, s := range c.segments {
		s.cleanUp(true)
	}
}

// ---- helpers ----

func (c *localCache[K, V]) hash(k K) uint64 { return util.Spread(c.hasher(k)) }

// segmentFor picks a segment with the high bits of a spread hash.
// len(c.segments) is a power of two.
func (c *localCache[K, V]) segmentFor(h uint64) *segment[K, V] {
	return c.segments[util.SegmentIndex(h, c.shift, len(c.segments))]
}

// getIfPresent is a lookup without stats.
func (c *localCache[K, V]) getIfPresent(k K) (V, bool) {
	h := c.hash(k)
	s := c.segmentFor(h)
	now := c.ticker.Read()
	r := s.read(k, h, now)
	if r.hit && r.refresh {
		c.scheduleRefresh(s, k, h)
	}
	s.postReadCleanup()
	return r.value, r.hit
}

func (c *localCache[K, V]) entryKey(e *entry[K, V]) (K, bool) {
	if !c.weakKeys {
		return e.key, true
	}
	p := e.wkey.Value()
	if p == nil {
		var zero K
		return zero, false
	}
	return fromPointer[K](unsafe.Pointer(p)), true
}

func (c *localCache[K, V]) newValueRef(s *segment[K, V], e *entry[K, V], v V, w int) valueRef[V] {
	switch c.valueStrength {
	case Weak:
		return newWeakValue(s, e, v, w)
	case Soft:
		return newSoftValue(s, e, v, w)
	default:
		return &strongValue[V]{v: v, w: w}
	}
}

// weigh returns the entry weight. A negative weight is a programming error.
func (c *localCache[K, V]) weigh(k K, v V) int {
	if c.weigher == nil {
		return 1
	}
	w := c.weigher(k, v)
	if w < 0 {
		panic("cache: weigher returned a negative weight")
	}
	return w
}

// valueEqual compares values for the conditional map operations: identity
// for weakly or softly held values, deep equality otherwise.
func (c *localCache[K, V]) valueEqual(a, b V) bool {
	if c.valueStrength != Strong {
		return pointerOf(a) == pointerOf(b)
	}
	return reflect.DeepEqual(a, b)
}

func (c *localCache[K, V]) expires() bool {
	return c.expireAfterWrite >= 0 || c.expireAfterAccess >= 0
}

func (c *localCache[K, V]) recordsAccess() bool { return c.expireAfterAccess >= 0 }

func (c *localCache[K, V]) usesAccessQueue() bool {
	return c.maxWeight >= 0 || c.expireAfterAccess >= 0
}

func (c *localCache[K, V]) isExpired(e *entry[K, V], now int64) bool {
	if c.expireAfterAccess >= 0 && now-e.accessTime.Load() >= c.expireAfterAccess {
		return true
	}
	if c.expireAfterWrite >= 0 && now-e.writeTime >= c.expireAfterWrite {
		return true
	}
	return false
}

func (c *localCache[K, V]) needsRefresh(e *entry[K, V], now int64) bool {
	return c.refreshAfterWrite > 0 && now-e.writeTime >= c.refreshAfterWrite && !e.value.isLoading()
}

// ---- removal notifications ----

// enqueue records a notification; called with a segment lock held.
func (c *localCache[K, V]) enqueue(n RemovalNotification[K, V]) {
	if c.listener == nil {
		return
	}
	c.pendingMu.Lock()
	c.pending = append(c.pending, n)
	c.pendingMu.Unlock()
}

// processPendingNotifications delivers queued notifications. It runs with
// no segment lock held. Only one goroutine delivers at a time; the others
// return at once and leave their notifications to it.
func (c *localCache[K, V]) processPendingNotifications() {
	if c.listener == nil {
		return
	}
	for {
		if !c.deliverMu.TryLock() {
			return
		}
		c.pendingMu.Lock()
		batch := c.pending
		c.pending = nil
		c.pendingMu.Unlock()

		for _, n := range batch {
			c.deliver(n)
		}
		c.deliverMu.Unlock()

		// A notification may have been queued after the swap but before
		// the unlock, while another goroutine's TryLock failed.
		c.pendingMu.Lock()
		more := len(c.pending) > 0
		c.pendingMu.Unlock()
		if !more {
			return
		}
	}
}

func (c *localCache[K, V]) deliver(n RemovalNotification[K, V]) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("removal listener panicked", "cause", n.Cause, "panic", r)
		}
	}()
	c.listener(n)
}

// Ensure localCache implements both interfaces at compile time.
var (
	_ Cache[string, int]        = (*localCache[string, int])(nil)
	_ LoadingCache[string, int] = (*localCache[string, int])(nil)
)
