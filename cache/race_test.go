package cache

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// A mixed workload of concurrent Put/GetIfPresent/GetOrLoad/Invalidate on
// random keys, with size eviction and expiration both active.
// Should pass under `-race` without detector reports.
func TestRace_Basic(t *testing.T) {
	var removed atomic.Int64
	c := NewBuilder[string, []byte]().
		MaximumSize(8_192).
		ConcurrencyLevel(32).
		ExpireAfterWrite(20 * time.Millisecond).
		RecordStats().
		RemovalListener(func(RemovalNotification[string, []byte]) { removed.Add(1) }).
		MustBuildLoading(LoaderFunc[string, []byte](func(context.Context, string) ([]byte, error) {
			return []byte("l"), nil
		}))

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 50_000
	deadline := time.Now().Add(2 * time.Second)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch n := r.Intn(100); {
				case n < 5:
					c.Invalidate(k)
				case n < 10:
					_, _ = c.GetOrLoad(context.Background(), k)
				case n < 20:
					c.Put(k, []byte("x"))
				case n < 21:
					c.CleanUp()
				default:
					c.GetIfPresent(k)
				}
			}
		}(w)
	}
	wg.Wait()

	if n := c.Size(); n > 8_192 {
		t.Fatalf("Size %d exceeds maximumSize", n)
	}
	if removed.Load() == 0 {
		t.Fatal("expected some removals")
	}
}

// One hundred goroutines call GetOrLoad on the same key concurrently.
// The Loader should run exactly once, and no two loads for the key may
// ever overlap.
func TestRace_GetOrLoad(t *testing.T) {
	var calls, inFlight, overlap int64

	c := NewBuilder[string, string]().
		MaximumSize(1024).
		MustBuildLoading(LoaderFunc[string, string](func(_ context.Context, k string) (string, error) {
			atomic.AddInt64(&calls, 1)
			if atomic.AddInt64(&inFlight, 1) > 1 {
				atomic.AddInt64(&overlap, 1)
			}
			time.Sleep(2 * time.Millisecond) // simulate I/O
			atomic.AddInt64(&inFlight, -1)
			return "v:" + k, nil
		}))

	const goroutines = 100
	key := "same-key"

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := c.GetOrLoad(context.Background(), key)
			if err != nil {
				t.Errorf("GetOrLoad error: %v", err)
				return
			}
			if v != "v:"+key {
				t.Errorf("unexpected value: %q", v)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("loader should run once, got %d", got)
	}
	if atomic.LoadInt64(&overlap) != 0 {
		t.Fatal("overlapping loads for one key")
	}

	// Subsequent call should be a pure cache hit.
	if v, err := c.GetOrLoad(context.Background(), key); err != nil || v != "v:"+key {
		t.Fatalf("second GetOrLoad failed: v=%q err=%v", v, err)
	}
}

// Concurrent refreshes of hot keys with an asynchronous executor. Readers
// must always see some value once the key is loaded.
func TestRace_Refresh(t *testing.T) {
	var version atomic.Int64
	c := NewBuilder[int, int64]().
		RefreshAfterWrite(time.Millisecond).
		MustBuildLoading(LoaderFunc[int, int64](func(context.Context, int) (int64, error) {
			return version.Add(1), nil
		}))

	for k := 0; k < 8; k++ {
		if _, err := c.GetOrLoad(context.Background(), k); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	var wg sync.WaitGroup
	for w := 0; w < runtime.GOMAXPROCS(0); w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := id; time.Now().Before(deadline); i++ {
				if _, ok := c.GetIfPresent(i % 8); !ok {
					t.Errorf("key %d vanished during refresh", i%8)
					return
				}
			}
		}(w)
	}
	wg.Wait()
}

// Loads racing with Invalidate and InvalidateAll on one key. Invalidation
// drops a running load's result but never lets a second load start beside it.
func TestRace_LoadInvalidate(t *testing.T) {
	var inFlight, overlap atomic.Int64
	c := NewBuilder[string, int]().
		MustBuildLoading(LoaderFunc[string, int](func(context.Context, string) (int, error) {
			if inFlight.Add(1) > 1 {
				overlap.Add(1)
			}
			time.Sleep(100 * time.Microsecond)
			inFlight.Add(-1)
			return 1, nil
		}))

	deadline := time.Now().Add(300 * time.Millisecond)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; time.Now().Before(deadline); i++ {
				switch {
				case id == 0 && i%2 == 0:
					c.Invalidate("k")
				case id == 0:
					c.InvalidateAll()
				default:
					if _, err := c.GetOrLoad(context.Background(), "k"); err != nil {
						t.Errorf("GetOrLoad: %v", err)
						return
					}
				}
			}
		}(w)
	}
	wg.Wait()

	if n := overlap.Load(); n != 0 {
		t.Fatalf("%d overlapping loads", n)
	}
}

// Read-only traffic must not grow the recency buffer past its capacity,
// and the reads it records still steer LRU eviction.
func TestRace_ReadOnlyRecencyBounded(t *testing.T) {
	c := NewBuilder[int, int]().
		MaximumSize(100).
		ConcurrencyLevel(1).
		MustBuild().(*localCache[int, int])
	for i := 0; i < 100; i++ {
		c.Put(i, i)
	}
	s := c.segments[0]

	deadline := time.Now().Add(300 * time.Millisecond)
	var wg sync.WaitGroup
	for w := 0; w < 2*runtime.GOMAXPROCS(0); w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := id; time.Now().Before(deadline); i++ {
				if _, ok := c.GetIfPresent(i % 50); !ok {
					t.Errorf("key %d missing", i%50)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if n := s.recency.Len(); n > s.recency.Cap() || s.recency.Cap() != recencyCapacity {
		t.Fatalf("recency buffer holds %d of %d after reads", n, s.recency.Cap())
	}

	// Keys 0..49 were read, 50..99 were not: new entries push out the latter.
	for i := 100; i < 150; i++ {
		c.Put(i, i)
	}
	for i := 0; i < 50; i++ {
		if _, ok := c.AsMap().Get(i); !ok {
			t.Fatalf("recently read key %d was evicted", i)
		}
	}
}
