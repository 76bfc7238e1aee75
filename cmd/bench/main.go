// Command bench runs a synthetic workload against the cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	pmet "github.com/IvanBrykalov/segcache/metrics/prom"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bench:", err)
		os.Exit(1)
	}
}

// counters are shared by all workers.
type counters struct {
	reads, writes, hits, misses, total atomic.Uint64
}

func run() error {
	cfg := newConfig()

	// ---- Flags ----
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	configFile := fs.String("config", "", "TOML configuration file; explicit flags override it")
	fs.StringVar(&cfg.Impl, "impl", cfg.Impl, "cache implementation: segcache | lru")
	fs.StringVar(&cfg.Spec, "spec", cfg.Spec, "segcache spec string")
	fs.IntVar(&cfg.Capacity, "cap", cfg.Capacity, "lru baseline capacity (entries)")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of worker goroutines")
	fs.StringVar(&cfg.Duration, "duration", cfg.Duration, "benchmark duration")
	fs.IntVar(&cfg.ReadPct, "reads", cfg.ReadPct, "read percentage [0..100]")
	fs.IntVar(&cfg.Keys, "keys", cfg.Keys, "keyspace size")
	fs.Float64Var(&cfg.ZipfS, "zipf_s", cfg.ZipfS, "Zipf s > 1 (skew)")
	fs.Float64Var(&cfg.ZipfV, "zipf_v", cfg.ZipfV, "Zipf v")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	fs.IntVar(&cfg.Preload, "preload", cfg.Preload, "preload entries (0 = cap/2)")
	fs.StringVar(&cfg.LoadLatency, "load_latency", cfg.LoadLatency, "read through a loader with this latency (segcache only)")
	fs.StringVar(&cfg.PprofAddr, "pprof", cfg.PprofAddr, "serve pprof at addr (e.g. :6060); empty = disabled")
	fs.StringVar(&cfg.MetricsAddr, "http", cfg.MetricsAddr, "serve Prometheus metrics at addr")
	fs.StringVar(&cfg.LogFile, "logfile", cfg.LogFile, "write logs to a rotating file instead of stderr")
	fs.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "log level: debug | info | warn | error")
	_ = fs.Parse(os.Args[1:])

	if *configFile != "" {
		// The file supplies defaults; re-apply the flags the user typed.
		explicit := map[string]string{}
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = f.Value.String() })
		if err := loadConfigFile(*configFile, &cfg); err != nil {
			return err
		}
		for name, v := range explicit {
			if err := fs.Set(name, v); err != nil {
				return err
			}
		}
	}
	s, err := cfg.validate()
	if err != nil {
		return err
	}
	if err := setupLogging(s); err != nil {
		return err
	}

	// ---- pprof server (on DefaultServeMux) ----
	if s.PprofAddr != "" {
		go func() {
			log.Infow("pprof: serving", "addr", s.PprofAddr)
			log.Warn(http.ListenAndServe(s.PprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	stats := pmet.New(nil, "segcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Infow("metrics: serving", "addr", s.MetricsAddr)
		log.Warn(http.ListenAndServe(s.MetricsAddr, nil))
	}()

	// ---- Build cache ----
	var c target
	switch s.Impl {
	case "segcache":
		st, err := newSegTarget(s, stats)
		if err != nil {
			return err
		}
		c = st
	case "lru":
		lt, err := newLRUTarget(s.Capacity)
		if err != nil {
			return err
		}
		c = lt
	}
	stats.WatchSize(c.size)

	// ---- Preload to get a realistic hit-rate ----
	for i := 0; i < s.Preload; i++ {
		c.put("k:"+strconv.Itoa(i), "v"+strconv.Itoa(i))
	}

	// ---- Load generation ----
	var n counters
	ctx, cancel := context.WithTimeout(context.Background(), s.duration)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reportThroughput(gctx, &n)
		return nil
	})
	keysMax := uint64(s.Keys - 1)
	for w := 0; w < s.Workers; w++ {
		id := w
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			r := rand.New(rand.NewSource(s.Seed + int64(id)*9973))
			zipf := rand.NewZipf(r, s.ZipfS, s.ZipfV, keysMax)
			key := func() string { return "k:" + strconv.FormatUint(zipf.Uint64(), 10) }

			for gctx.Err() == nil {
				n.total.Add(1)
				if int(r.Int31n(100)) < s.ReadPct {
					n.reads.Add(1)
					if _, ok := c.get(gctx, key()); ok {
						n.hits.Add(1)
					} else {
						n.misses.Add(1)
					}
				} else {
					n.writes.Add(1)
					c.put(key(), "v"+strconv.Itoa(r.Int()))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	// ---- Report ----
	ops, reads, hits := n.total.Load(), n.reads.Load(), n.hits.Load()
	hitRate := 0.0
	if reads > 0 {
		hitRate = float64(hits) / float64(reads) * 100
	}

	fmt.Printf("impl=%s spec=%q workers=%d keys=%d dur=%v seed=%d\n",
		s.Impl, s.Spec, s.Workers, s.Keys, elapsed, s.Seed)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), reads, n.writes.Load())
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hits, n.misses.Load(), hitRate)
	fmt.Printf("size=%d\n", c.size())
	if s.Impl == "segcache" {
		fmt.Printf("stats=%v\n", stats.Snapshot())
	}
	return nil
}

// reportThroughput logs a smoothed ops/s figure every second until ctx ends.
func reportThroughput(ctx context.Context, n *counters) {
	avg := ewma.NewMovingAverage()
	t := time.NewTicker(time.Second)
	defer t.Stop()
	last := n.total.Load()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cur := n.total.Load()
			avg.Add(float64(cur - last))
			last = cur
			log.Infow("throughput", "ops_per_sec", int64(avg.Value()), "hits", n.hits.Load(), "misses", n.misses.Load())
		}
	}
}
