package util

import "math/bits"

const (
	// MaxSegments caps the number of segments regardless of concurrency level.
	MaxSegments = 1 << 16
	// MaxTableCapacity caps a segment's bucket table.
	MaxTableCapacity = 1 << 30
	// minSegmentWeight keeps bounded segments from getting so small that
	// per-segment LRU degenerates.
	minSegmentWeight = 20
)

// SegmentCount picks the power-of-two segment count for a concurrency level.
// When the cache is bounded (maxWeight >= 0) the count stops growing once a
// segment would hold fewer than 20 weight units. shift is the right shift
// that moves the top log2(count) bits of a 64-bit hash into the low bits.
func SegmentCount(concurrencyLevel int, maxWeight int64) (count int, shift uint) {
	if concurrencyLevel > MaxSegments {
		concurrencyLevel = MaxSegments
	}
	count = 1
	for count < concurrencyLevel && (maxWeight < 0 || int64(count)*minSegmentWeight <= maxWeight) {
		count <<= 1
	}
	return count, uint(64 - bits.TrailingZeros(uint(count)))
}

// SegmentIndex selects a segment with the high bits of hash.
// count must be a power of two.
func SegmentIndex(hash uint64, shift uint, count int) int {
	if count == 1 {
		return 0
	}
	return int(hash>>shift) & (count - 1)
}

// SegmentWeights splits maxWeight across count segments so that the budgets
// sum to exactly maxWeight; the first maxWeight%count segments get one extra
// unit.
func SegmentWeights(maxWeight int64, count int) []int64 {
	out := make([]int64, count)
	base := maxWeight / int64(count)
	rem := maxWeight % int64(count)
	for i := range out {
		out[i] = base
		if int64(i) < rem {
			out[i]++
		}
	}
	return out
}

// SegmentTableSize returns the initial bucket-table size for a segment,
// given the cache-wide initial capacity.
func SegmentTableSize(initialCapacity, count int) int {
	if initialCapacity > MaxTableCapacity {
		initialCapacity = MaxTableCapacity
	}
	per := (initialCapacity + count - 1) / count
	if per < 1 {
		per = 1
	}
	return int(NextPow2(uint64(per)))
}
