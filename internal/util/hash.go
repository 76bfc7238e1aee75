// Package util contains internal helpers (hashing, segment sizing).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"hash/maphash"

	"github.com/cespare/xxhash/v2"
)

// Hasher computes the base hash of a key. The cache applies Spread on top,
// so implementations do not need good avalanche behaviour.
type Hasher[K comparable] func(K) uint64

// NewHasher returns the default hasher for K.
// Strings and byte arrays go through xxhash; integers hash to their own
// value (Spread mixes them); every other comparable type, including
// pointers, uses maphash.Comparable with a per-hasher seed.
func NewHasher[K comparable]() Hasher[K] {
	seed := maphash.MakeSeed()
	return func(k K) uint64 {
		switch v := any(k).(type) {
		case string:
			return xxhash.Sum64String(v)
		case [16]byte:
			return xxhash.Sum64(v[:])
		case [32]byte:
			return xxhash.Sum64(v[:])
		case [64]byte:
			return xxhash.Sum64(v[:])

		case uint8:
			return uint64(v)
		case uint16:
			return uint64(v)
		case uint32:
			return uint64(v)
		case uint64:
			return v
		case uint:
			return uint64(v)
		case uintptr:
			return uint64(v)
		case int8:
			return uint64(uint8(v))
		case int16:
			return uint64(uint16(v))
		case int32:
			return uint64(uint32(v))
		case int64:
			return uint64(v)
		case int:
			return uint64(v)

		default:
			return maphash.Comparable(seed, k)
		}
	}
}

// Spread applies a supplemental hash (the murmur3 64-bit finalizer) to h.
// This defends against base hashes that differ only in their low or high
// bits: the cache picks segments with the high bits and buckets with the low
// bits, so both ends must be well mixed.
func Spread(h uint64) uint64 {
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}
