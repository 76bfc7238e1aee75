package cache

import (
	"time"

	"github.com/IvanBrykalov/segcache/internal/striped"
)

// StatsCounter accumulates statistics as the cache operates. Implementations
// are called on hot paths and must be safe for concurrent use.
type StatsCounter interface {
	RecordHits(n int)
	RecordMisses(n int)
	RecordLoadSuccess(loadTime time.Duration)
	RecordLoadException(loadTime time.Duration)
	// RecordEviction is called for every automatic removal (see
	// RemovalCause.WasEvicted).
	RecordEviction(cause RemovalCause)
	Snapshot() Stats
}

// NoopStatsCounter discards everything. It is the default when stats
// recording is not enabled.
type NoopStatsCounter struct{}

func (NoopStatsCounter) RecordHits(int)                    {}
func (NoopStatsCounter) RecordMisses(int)                  {}
func (NoopStatsCounter) RecordLoadSuccess(time.Duration)   {}
func (NoopStatsCounter) RecordLoadException(time.Duration) {}
func (NoopStatsCounter) RecordEviction(RemovalCause)       {}
func (NoopStatsCounter) Snapshot() Stats                   { return Stats{} }

// SimpleStatsCounter keeps every count in a striped counter, so that hits
// recorded by many goroutines at once do not serialize on one cache line.
type SimpleStatsCounter struct {
	hits          striped.Counter
	misses        striped.Counter
	loadSuccess   striped.Counter
	loadException striped.Counter
	totalLoadTime striped.Counter
	evictions     striped.Counter
}

// NewSimpleStatsCounter returns a zeroed counter.
func NewSimpleStatsCounter() *SimpleStatsCounter { return &SimpleStatsCounter{} }

func (c *SimpleStatsCounter) RecordHits(n int)   { c.hits.Add(int64(n)) }
func (c *SimpleStatsCounter) RecordMisses(n int) { c.misses.Add(int64(n)) }

func (c *SimpleStatsCounter) RecordLoadSuccess(d time.Duration) {
	c.loadSuccess.Inc()
	c.totalLoadTime.Add(int64(d))
}

func (c *SimpleStatsCounter) RecordLoadException(d time.Duration) {
	c.loadException.Inc()
	c.totalLoadTime.Add(int64(d))
}

func (c *SimpleStatsCounter) RecordEviction(RemovalCause) { c.evictions.Inc() }

// Snapshot sums every counter. Counts recorded concurrently may be partially
// included.
func (c *SimpleStatsCounter) Snapshot() Stats {
	return Stats{
		HitCount:           c.hits.Sum(),
		MissCount:          c.misses.Sum(),
		LoadSuccessCount:   c.loadSuccess.Sum(),
		LoadExceptionCount: c.loadException.Sum(),
		TotalLoadTime:      time.Duration(c.totalLoadTime.Sum()),
		EvictionCount:      c.evictions.Sum(),
	}
}

// IncrementBy adds other's current snapshot to c.
func (c *SimpleStatsCounter) IncrementBy(other StatsCounter) {
	s := other.Snapshot()
	c.hits.Add(s.HitCount)
	c.misses.Add(s.MissCount)
	c.loadSuccess.Add(s.LoadSuccessCount)
	c.loadException.Add(s.LoadExceptionCount)
	c.totalLoadTime.Add(int64(s.TotalLoadTime))
	c.evictions.Add(s.EvictionCount)
}

// Ensure both implementations satisfy StatsCounter at compile time.
var (
	_ StatsCounter = NoopStatsCounter{}
	_ StatsCounter = (*SimpleStatsCounter)(nil)
)
