package testutil

import (
	"testing"

	"github.com/hupe1980/graphstore/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestUniqueStrings(t *testing.T) {
	rng := NewRNG(4711)

	s := rng.UniqueStrings(500, 1, 30)

	assert.Len(t, s, 500)
	seen := map[string]bool{}
	for _, v := range s {
		assert.False(t, seen[v])
		seen[v] = true
		assert.GreaterOrEqual(t, len(v), 1)
		assert.LessOrEqual(t, len(v), 30)
	}
}

func TestIntRange(t *testing.T) {
	rng := NewRNG(4711)

	for _, v := range rng.IntRange(1000, -5, 5) {
		assert.GreaterOrEqual(t, v, int64(-5))
		assert.LessOrEqual(t, v, int64(5))
	}
}

func TestValueTypes(t *testing.T) {
	rng := NewRNG(1)

	for _, typ := range []types.PhysicalType{types.Bool, types.Int8, types.Uint32, types.Double, types.String} {
		v := rng.Value(typ)
		assert.Equal(t, typ, v.Type())
		assert.False(t, v.IsNull())
	}
}

func TestReset(t *testing.T) {
	rng := NewRNG(99)
	a := rng.Uint64()
	rng.Reset()
	assert.Equal(t, a, rng.Uint64())
	assert.Equal(t, int64(99), rng.Seed())
}
