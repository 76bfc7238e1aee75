package cache

import (
	"fmt"
	"time"
)

// Stats is an immutable snapshot of cache statistics. All counts are
// monotonic for the life of the cache, so two snapshots can be subtracted
// with Minus to get the activity in between.
type Stats struct {
	HitCount           int64
	MissCount          int64
	LoadSuccessCount   int64
	LoadExceptionCount int64
	TotalLoadTime      time.Duration
	EvictionCount      int64
}

// RequestCount is HitCount + MissCount.
func (s Stats) RequestCount() int64 { return s.HitCount + s.MissCount }

// HitRate is the ratio of hits to requests, 1.0 when there were none.
func (s Stats) HitRate() float64 {
	rc := s.RequestCount()
	if rc == 0 {
		return 1.0
	}
	return float64(s.HitCount) / float64(rc)
}

// MissRate is the ratio of misses to requests, 0.0 when there were none.
func (s Stats) MissRate() float64 {
	rc := s.RequestCount()
	if rc == 0 {
		return 0.0
	}
	return float64(s.MissCount) / float64(rc)
}

// LoadCount is the number of loads attempted, successful or not.
func (s Stats) LoadCount() int64 { return s.LoadSuccessCount + s.LoadExceptionCount }

// LoadExceptionRate is the fraction of loads that failed.
func (s Stats) LoadExceptionRate() float64 {
	lc := s.LoadCount()
	if lc == 0 {
		return 0.0
	}
	return float64(s.LoadExceptionCount) / float64(lc)
}

// AverageLoadPenalty is the mean time spent loading.
func (s Stats) AverageLoadPenalty() time.Duration {
	lc := s.LoadCount()
	if lc == 0 {
		return 0
	}
	return s.TotalLoadTime / time.Duration(lc)
}

// Minus returns s - o, clamping each field at zero.
func (s Stats) Minus(o Stats) Stats {
	return Stats{
		HitCount:           max(0, s.HitCount-o.HitCount),
		MissCount:          max(0, s.MissCount-o.MissCount),
		LoadSuccessCount:   max(0, s.LoadSuccessCount-o.LoadSuccessCount),
		LoadExceptionCount: max(0, s.LoadExceptionCount-o.LoadExceptionCount),
		TotalLoadTime:      max(0, s.TotalLoadTime-o.TotalLoadTime),
		EvictionCount:      max(0, s.EvictionCount-o.EvictionCount),
	}
}

// Plus returns s + o.
func (s Stats) Plus(o Stats) Stats {
	return Stats{
		HitCount:           s.HitCount + o.HitCount,
		MissCount:          s.MissCount + o.MissCount,
		LoadSuccessCount:   s.LoadSuccessCount + o.LoadSuccessCount,
		LoadExceptionCount: s.LoadExceptionCount + o.LoadExceptionCount,
		TotalLoadTime:      s.TotalLoadTime + o.TotalLoadTime,
		EvictionCount:      s.EvictionCount + o.EvictionCount,
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("Stats{hits=%d, misses=%d, loadSuccess=%d, loadException=%d, totalLoadTime=%s, evictions=%d}",
		s.HitCount, s.MissCount, s.LoadSuccessCount, s.LoadExceptionCount, s.TotalLoadTime, s.EvictionCount)
}
