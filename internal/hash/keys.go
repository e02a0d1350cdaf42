package hash

import "github.com/cespare/xxhash/v2"

// Int64 hashes a fixed-width key with the murmur3 64-bit finalizer.
// Every input bit affects every output bit, so both the high bits (shard
// selection) and the low bits (slot selection) are well mixed.
func Int64(k int64) uint64 {
	h := uint64(k)
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}

// String hashes a string key with xxhash64.
func String(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Bytes hashes a byte key with xxhash64. Bytes(b) == String(string(b)).
func Bytes(b []byte) uint64 {
	return xxhash.Sum64(b)
}
