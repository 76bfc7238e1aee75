package mpsc

import (
	"sync"
	"testing"
)

func TestRing_FullDrops(t *testing.T) {
	t.Parallel()

	r := NewRing[int](3) // rounds up to 4
	if r.Cap() != 4 {
		t.Fatalf("Cap want 4, got %d", r.Cap())
	}
	vals := make([]int, 6)
	for i := range vals {
		vals[i] = i
	}
	for i := 0; i < 4; i++ {
		if st := r.Push(&vals[i]); st != Success {
			t.Fatalf("Push #%d: status %d", i, st)
		}
	}
	if !r.Full() {
		t.Fatal("ring must report full")
	}
	if st := r.Push(&vals[4]); st != Full {
		t.Fatalf("Push into a full ring: status %d", st)
	}

	var got []int
	r.Drain(func(v *int) { got = append(got, *v) })
	if len(got) != 4 || got[0] != 0 || got[3] != 3 {
		t.Fatalf("Drain: %v", got)
	}
	if r.Len() != 0 || r.Full() {
		t.Fatalf("drained ring: len %d", r.Len())
	}

	// Slots are reusable after a drain.
	if st := r.Push(&vals[5]); st != Success {
		t.Fatalf("Push after drain: status %d", st)
	}
	got = got[:0]
	r.Drain(func(v *int) { got = append(got, *v) })
	if len(got) != 1 || got[0] != 5 {
		t.Fatalf("second Drain: %v", got)
	}
}

// Concurrent producers with a concurrent (serialized) consumer: the ring
// ends within its capacity and nothing is delivered twice.
func TestRing_ConcurrentProducers(t *testing.T) {
	t.Parallel()

	const producers, perProducer = 8, 5000
	r := NewRing[int](64)
	vals := make([]int, producers*perProducer)
	for i := range vals {
		vals[i] = i
	}

	seen := make(map[int]bool, len(vals))
	var mu sync.Mutex
	drain := func() {
		mu.Lock()
		defer mu.Unlock()
		r.Drain(func(v *int) {
			if seen[*v] {
				t.Errorf("duplicate element %d", *v)
			}
			seen[*v] = true
		})
	}

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if r.Push(&vals[base+i]) == Full {
					drain()
				}
			}
		}(p * perProducer)
	}
	wg.Wait()
	if n := r.Len(); n > r.Cap() {
		t.Fatalf("ring holds %d > %d", n, r.Cap())
	}
	drain()

	if len(seen) == 0 || len(seen) > len(vals) {
		t.Fatalf("delivered %d elements", len(seen))
	}
}
