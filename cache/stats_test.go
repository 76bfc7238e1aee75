package cache

import (
	"testing"
	"time"
)

func TestStats_Derived(t *testing.T) {
	t.Parallel()

	var zero Stats
	if zero.HitRate() != 1 || zero.MissRate() != 0 || zero.LoadExceptionRate() != 0 || zero.AverageLoadPenalty() != 0 {
		t.Fatalf("zero stats: hit=%v miss=%v", zero.HitRate(), zero.MissRate())
	}

	s := Stats{
		HitCount:           3,
		MissCount:          1,
		LoadSuccessCount:   3,
		LoadExceptionCount: 1,
		TotalLoadTime:      8 * time.Millisecond,
		EvictionCount:      2,
	}
	if s.RequestCount() != 4 || s.HitRate() != 0.75 || s.MissRate() != 0.25 {
		t.Fatalf("request rates: %v", s)
	}
	if s.LoadCount() != 4 || s.LoadExceptionRate() != 0.25 || s.AverageLoadPenalty() != 2*time.Millisecond {
		t.Fatalf("load rates: %v", s)
	}
}

// Minus clamps at zero; Plus and Minus round trip otherwise.
func TestStats_PlusMinus(t *testing.T) {
	t.Parallel()

	a := Stats{HitCount: 5, MissCount: 2, TotalLoadTime: time.Second, EvictionCount: 1}
	b := Stats{HitCount: 2, MissCount: 3, TotalLoadTime: 2 * time.Second}

	d := a.Minus(b)
	if d.HitCount != 3 || d.MissCount != 0 || d.TotalLoadTime != 0 || d.EvictionCount != 1 {
		t.Fatalf("Minus: %v", d)
	}
	if got := a.Plus(b).Minus(b); got != a {
		t.Fatalf("Plus/Minus: %v", got)
	}
}

func TestSimpleStatsCounter(t *testing.T) {
	t.Parallel()

	c := NewSimpleStatsCounter()
	c.RecordHits(2)
	c.RecordMisses(1)
	c.RecordLoadSuccess(time.Millisecond)
	c.RecordLoadException(3 * time.Millisecond)
	c.RecordEviction(RemovalSize)
	c.RecordEviction(RemovalExpired)

	want := Stats{
		HitCount:           2,
		MissCount:          1,
		LoadSuccessCount:   1,
		LoadExceptionCount: 1,
		TotalLoadTime:      4 * time.Millisecond,
		EvictionCount:      2,
	}
	if got := c.Snapshot(); got != want {
		t.Fatalf("Snapshot: got %v want %v", got, want)
	}

	agg := NewSimpleStatsCounter()
	agg.IncrementBy(c)
	agg.IncrementBy(c)
	if got := agg.Snapshot(); got != want.Plus(want) {
		t.Fatalf("IncrementBy: %v", got)
	}

	if (NoopStatsCounter{}).Snapshot() != (Stats{}) {
		t.Fatal("noop counter must stay empty")
	}
}

func TestRemovalCause(t *testing.T) {
	t.Parallel()

	evicted := map[RemovalCause]bool{
		RemovalExplicit:  false,
		RemovalReplaced:  false,
		RemovalExpired:   true,
		RemovalSize:      true,
		RemovalCollected: true,
	}
	for cause, want := range evicted {
		if cause.WasEvicted() != want {
			t.Fatalf("%v.WasEvicted() = %v", cause, !want)
		}
	}
}
