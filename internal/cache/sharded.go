package cache

import "github.com/hupe1980/graphstore/internal/resource"

const numShards = 16

// Sharded spreads pages over independent LRU shards to reduce lock
// contention between concurrent scans.
type Sharded struct {
	shards [numShards]*LRU
}

// NewSharded creates a sharded cache; capacity is divided evenly across shards.
func NewSharded(capacity int64, rc *resource.Controller) *Sharded {
	shardCapacity := max(capacity/numShards, 1)
	s := &Sharded{}
	for i := range numShards {
		s.shards[i] = NewLRU(shardCapacity, rc)
	}
	return s
}

func (s *Sharded) shard(key Key) *LRU {
	h := uint64(key.File)<<32 | uint64(key.Page)
	// splitmix64 finalizer
	h ^= h >> 30
	h *= 0xbf58476d1ce4e5b9
	h ^= h >> 27
	h *= 0x94d049bb133111eb
	h ^= h >> 31
	return s.shards[h%numShards]
}

func (s *Sharded) Get(key Key) ([]byte, bool) { return s.shard(key).Get(key) }
func (s *Sharded) Set(key Key, b []byte)      { s.shard(key).Set(key, b) }
func (s *Sharded) Invalidate(key Key)         { s.shard(key).Invalidate(key) }

func (s *Sharded) InvalidateFile(file uint32) {
	for _, sh := range s.shards {
		sh.InvalidateFile(file)
	}
}

func (s *Sharded) Stats() (hits, misses int64) {
	for _, sh := range s.shards {
		h, m := sh.Stats()
		hits += h
		misses += m
	}
	return hits, misses
}

// Size returns the total cached bytes.
func (s *Sharded) Size() int64 {
	var n int64
	for _, sh := range s.shards {
		n += sh.Size()
	}
	return n
}
