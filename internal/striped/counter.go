// Package striped implements a contention-adaptive int64 accumulator.
//
// Counter starts as a single atomic base value. The first time a
// compare-and-swap on the base fails, it lazily creates a small table of
// cache-line padded cells and spreads contending goroutines across them.
// The table doubles on repeated collisions up to the number of CPUs.
// Sum adds base and all cells and is not an atomic snapshot.
package striped

import (
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// maxCells bounds table growth; more cells than CPUs cannot reduce contention.
var maxCells = runtime.NumCPU()

// cell is a single padded slot. The padding keeps neighbouring cells in
// different cache lines so that goroutines updating them do not false-share.
type cell struct {
	_     cpu.CacheLinePad
	value atomic.Int64
	_     cpu.CacheLinePad
}

type table struct {
	cells []atomic.Pointer[cell]
}

// Counter is safe for concurrent use. The zero value is ready to use.
type Counter struct {
	base  atomic.Int64
	busy  atomic.Int32 // spinlock for table init, resize and cell creation
	table atomic.Pointer[table]
}

// probe is a per-goroutine-ish hash used to pick a cell. Go has no thread
// locals; a sync.Pool keeps probes mostly affine to a P, which is what
// matters for contention.
type probe struct{ h uint32 }

var probes = sync.Pool{
	New: func() any {
		h := rand.Uint32()
		if h == 0 {
			h = 1 // xorshift needs a non-zero seed
		}
		return &probe{h: h}
	},
}

// Add adds delta to the counter.
func (c *Counter) Add(delta int64) {
	t := c.table.Load()
	if t == nil {
		b := c.base.Load()
		if c.base.CompareAndSwap(b, b+delta) {
			return
		}
	}

	p := probes.Get().(*probe)
	defer probes.Put(p)

	uncontended := true
	if t != nil {
		n := uint32(len(t.cells))
		if cl := t.cells[p.h&(n-1)].Load(); cl != nil {
			v := cl.value.Load()
			if uncontended = cl.value.CompareAndSwap(v, v+delta); uncontended {
				return
			}
		}
	}
	c.retryUpdate(delta, p, uncontended)
}

// Inc adds one.
func (c *Counter) Inc() { c.Add(1) }

// Dec subtracts one.
func (c *Counter) Dec() { c.Add(-1) }

// Sum returns the current total. Concurrent updates may or may not be
// reflected.
func (c *Counter) Sum() int64 {
	sum := c.base.Load()
	if t := c.table.Load(); t != nil {
		for i := range t.cells {
			if cl := t.cells[i].Load(); cl != nil {
				sum += cl.value.Load()
			}
		}
	}
	return sum
}

// Reset sets every slot to zero. Only meaningful when no updates are in
// flight.
func (c *Counter) Reset() {
	c.base.Store(0)
	if t := c.table.Load(); t != nil {
		for i := range t.cells {
			if cl := t.cells[i].Load(); cl != nil {
				cl.value.Store(0)
			}
		}
	}
}

// SumThenReset is Sum followed by Reset, swapping each slot individually.
func (c *Counter) SumThenReset() int64 {
	sum := c.base.Swap(0)
	if t := c.table.Load(); t != nil {
		for i := range t.cells {
			if cl := t.cells[i].Load(); cl != nil {
				sum += cl.value.Swap(0)
			}
		}
	}
	return sum
}

// Cells returns the current table size, zero while uncontended.
func (c *Counter) Cells() int {
	if t := c.table.Load(); t != nil {
		return len(t.cells)
	}
	return 0
}

func (c *Counter) lock() bool   { return c.busy.Load() == 0 && c.busy.CompareAndSwap(0, 1) }
func (c *Counter) unlock()      { c.busy.Store(0) }
func (c *Counter) isBusy() bool { return c.busy.Load() != 0 }

// retryUpdate handles table initialization, cell creation, table growth and
// contention by rehashing the probe.
func (c *Counter) retryUpdate(delta int64, p *probe, uncontended bool) {
	h := p.h
	collide := false
	for {
		t := c.table.Load()
		if t != nil {
			n := uint32(len(t.cells))
			slot := &t.cells[h&(n-1)]
			cl := slot.Load()
			switch {
			case cl == nil:
				if !c.isBusy() {
					r := &cell{}
					r.value.Store(delta)
					if c.lock() {
						created := false
						// Recheck under the lock.
						if cur := c.table.Load(); cur != nil {
							s := &cur.cells[h&uint32(len(cur.cells)-1)]
							if s.Load() == nil {
								s.Store(r)
								created = true
							}
						}
						c.unlock()
						if created {
							p.h = h
							return
						}
						continue // slot is now non-empty
					}
				}
				collide = false
			case !uncontended:
				uncontended = true // CAS already known to fail; rehash first
			default:
				v := cl.value.Load()
				if cl.value.CompareAndSwap(v, v+delta) {
					p.h = h
					return
				}
				if int(n) >= maxCells || c.table.Load() != t {
					collide = false // at max size or stale
				} else if !collide {
					collide = true
				} else if c.lock() {
					if c.table.Load() == t {
						grown := &table{cells: make([]atomic.Pointer[cell], n<<1)}
						for i := range t.cells {
							grown.cells[i].Store(t.cells[i].Load())
						}
						c.table.Store(grown)
					}
					c.unlock()
					collide = false
					continue // retry with the expanded table
				}
			}
			h ^= h << 13
			h ^= h >> 17
			h ^= h << 5
			continue
		}

		if !c.isBusy() && c.table.Load() == nil && c.lock() {
			initialized := false
			if c.table.Load() == nil {
				nt := &table{cells: make([]atomic.Pointer[cell], 2)}
				r := &cell{}
				r.value.Store(delta)
				nt.cells[h&1].Store(r)
				c.table.Store(nt)
				initialized = true
			}
			c.unlock()
			if initialized {
				p.h = h
				return
			}
			continue
		}

		// Fall back on the base.
		b := c.base.Load()
		if c.base.CompareAndSwap(b, b+delta) {
			p.h = h
			return
		}
	}
}
