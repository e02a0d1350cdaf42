package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/hupe1980/graphstore/internal/types"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Int63n returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Int63n(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Int63n(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float64 returns, as a float64, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Bytes returns n pseudo-random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	_, _ = r.rand.Read(b)
	return b
}

// Value returns a random non-NULL value of type t covering its full range.
func (r *RNG) Value(t types.PhysicalType) types.Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.valueLocked(t)
}

func (r *RNG) valueLocked(t types.PhysicalType) types.Value {
	u := r.rand.Uint64()
	switch t {
	case types.Bool:
		return types.NewBool(u&1 == 1)
	case types.Int8:
		return types.NewInt8(int8(u))
	case types.Int16:
		return types.NewInt16(int16(u))
	case types.Int32:
		return types.NewInt32(int32(u))
	case types.Int64:
		return types.NewInt64(int64(u))
	case types.Uint8:
		return types.NewUint8(uint8(u))
	case types.Uint16:
		return types.NewUint16(uint16(u))
	case types.Uint32:
		return types.NewUint32(uint32(u))
	case types.Uint64:
		return types.NewUint64(u)
	case types.Float:
		return types.NewFloat(float32(r.rand.NormFloat64() * 1000))
	case types.Double:
		return types.NewDouble(r.rand.NormFloat64() * 1e6)
	case types.String:
		return types.NewString(r.stringLocked(int(u % 40)))
	}
	panic(fmt.Sprintf("testutil: no generator for %s", t))
}

// IntRange returns n random int64 values in [lo, hi].
func (r *RNG) IntRange(n int, lo, hi int64) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := uint64(hi - lo)
	out := make([]int64, n)
	for i := range out {
		if span == math.MaxUint64 {
			out[i] = int64(r.rand.Uint64())
			continue
		}
		out[i] = lo + int64(r.rand.Uint64()%(span+1))
	}
	return out
}

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// String returns a random alphanumeric string of length n.
func (r *RNG) String(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stringLocked(n)
}

func (r *RNG) stringLocked(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[r.rand.Intn(len(letters))]
	}
	return string(b)
}

// UniqueStrings returns n distinct strings with lengths in [minLen, maxLen].
// The lengths straddle the inline threshold of string keys when maxLen > 12.
func (r *RNG) UniqueStrings(n, minLen, maxLen int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for len(out) < n {
		l := minLen
		if maxLen > minLen {
			l += r.rand.Intn(maxLen - minLen + 1)
		}
		s := r.stringLocked(l)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// UniqueInt64s returns n distinct random int64 values.
func (r *RNG) UniqueInt64s(n int) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[int64]struct{}, n)
	out := make([]int64, 0, n)
	for len(out) < n {
		v := int64(r.rand.Uint64())
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Perm returns a random permutation of [0, n).
func (r *RNG) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Perm(n)
}

// NullRate returns a slice where each entry is true with probability rate.
func (r *RNG) NullRate(n int, rate float64) []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, n)
	for i := range out {
		out[i] = r.rand.Float64() < rate
	}
	return out
}
