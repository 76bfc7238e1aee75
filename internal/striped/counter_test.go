package striped

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCounter_AddSumReset(t *testing.T) {
	t.Parallel()

	var c Counter
	require.Zero(t, c.Sum())
	require.Zero(t, c.Cells(), "uncontended counter must not allocate cells")

	c.Add(5)
	c.Inc()
	c.Dec()
	c.Add(-2)
	require.EqualValues(t, 3, c.Sum())

	c.Reset()
	require.Zero(t, c.Sum())

	c.Add(10)
	require.EqualValues(t, 10, c.SumThenReset())
	require.Zero(t, c.Sum())
}

// Hammering the counter from many goroutines must lose no updates, and the
// quiescent sum equals the number of increments.
func TestCounter_ConcurrentSum(t *testing.T) {
	t.Parallel()

	var c Counter
	workers := 4 * runtime.GOMAXPROCS(0)
	const perWorker = 20_000

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, workers*perWorker, c.Sum())
	if n := c.Cells(); n != 0 {
		require.LessOrEqual(t, n, 2*maxCells, "table grows at most one doubling past NumCPU")
		require.Zero(t, n&(n-1), "table size must stay a power of two")
	}
}

// retryUpdate is exercised directly so the table path runs even on a
// single-CPU machine where real contention is unlikely.
func TestCounter_RetryUpdateInitializesTable(t *testing.T) {
	t.Parallel()

	var c Counter
	p := &probe{h: 3}
	c.retryUpdate(7, p, true)
	require.Equal(t, 2, c.Cells())
	require.EqualValues(t, 7, c.Sum())

	// A second update through the same probe lands in the existing cell.
	c.retryUpdate(1, p, true)
	require.EqualValues(t, 8, c.Sum())

	// Plain Add now goes through the table.
	c.Add(2)
	require.EqualValues(t, 10, c.Sum())
}

func BenchmarkCounter_Parallel(b *testing.B) {
	var c Counter
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c.Inc()
		}
	})
}
