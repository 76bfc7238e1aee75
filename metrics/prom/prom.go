// Package prom exports cache statistics as Prometheus metrics.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/segcache/cache"
)

// Adapter implements cache.StatsCounter and exports Prometheus counters
// alongside the in-process snapshot returned by cache.Cache.Stats.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	local *cache.SimpleStatsCounter

	reg       prometheus.Registerer
	ns, sub   string
	constLbls prometheus.Labels

	hits     prometheus.Counter
	misses   prometheus.Counter
	loads    *prometheus.CounterVec
	loadTime prometheus.Histogram
	evicts   *prometheus.CounterVec
}

// New constructs a Prometheus stats adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		local:     cache.NewSimpleStatsCounter(),
		reg:       reg,
		ns:        ns,
		sub:       sub,
		constLbls: constLabels,
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses",
			ConstLabels: constLabels,
		}),
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "loads_total",
				Help:        "Loader invocations by result",
				ConstLabels: constLabels,
			},
			[]string{"result"},
		),
		loadTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "load_duration_seconds",
			Help:        "Time spent in the loader",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by cause",
				ConstLabels: constLabels,
			},
			[]string{"cause"},
		),
	}
	reg.MustRegister(a.hits, a.misses, a.loads, a.loadTime, a.evicts)
	return a
}

// RecordHits adds n to the hit counter.
func (a *Adapter) RecordHits(n int) {
	a.local.RecordHits(n)
	a.hits.Add(float64(n))
}

// RecordMisses adds n to the miss counter.
func (a *Adapter) RecordMisses(n int) {
	a.local.RecordMisses(n)
	a.misses.Add(float64(n))
}

func (a *Adapter) RecordLoadSuccess(d time.Duration) {
	a.local.RecordLoadSuccess(d)
	a.loads.WithLabelValues("success").Inc()
	a.loadTime.Observe(d.Seconds())
}

func (a *Adapter) RecordLoadException(d time.Duration) {
	a.local.RecordLoadException(d)
	a.loads.WithLabelValues("exception").Inc()
	a.loadTime.Observe(d.Seconds())
}

// RecordEviction increments the eviction counter labelled with the cause.
func (a *Adapter) RecordEviction(c cache.RemovalCause) {
	a.local.RecordEviction(c)
	a.evicts.WithLabelValues(c.String()).Inc()
}

// Snapshot returns the counts recorded so far.
func (a *Adapter) Snapshot() cache.Stats { return a.local.Snapshot() }

// WatchSize registers a size_entries gauge that reads fn on every scrape,
// typically a cache's Size method.
func (a *Adapter) WatchSize(fn func() int64) {
	a.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   a.ns,
		Subsystem:   a.sub,
		Name:        "size_entries",
		Help:        "Number of resident entries",
		ConstLabels: a.constLbls,
	}, func() float64 { return float64(fn()) }))
}

// Compile-time check: ensure Adapter implements cache.StatsCounter.
var _ cache.StatsCounter = (*Adapter)(nil)
