package predicate

import (
	"testing"

	"github.com/hupe1980/graphstore/internal/compression"
	"github.com/hupe1980/graphstore/internal/types"
	"github.com/hupe1980/graphstore/testutil"
	"github.com/stretchr/testify/assert"
)

func TestConstantPredicateBounds(t *testing.T) {
	m := compression.Metadata{Min: 10, Max: 20, Encoding: compression.IntegerBitpacking}

	cases := []struct {
		op   Op
		v    int64
		want bool
	}{
		{Equal, 15, true},
		{Equal, 21, false},
		{Equal, 9, false},
		{NotEqual, 10, true},
		{Less, 10, false},
		{Less, 11, true},
		{LessEqual, 10, true},
		{Greater, 20, false},
		{Greater, 19, true},
		{GreaterEqual, 20, true},
		{GreaterEqual, 21, false},
	}
	for _, tc := range cases {
		p := NewConstant(tc.op, types.NewInt64(tc.v))
		assert.Equal(t, tc.want, p.CheckCompressionMetadata(m), "%s", p)
	}
}

func TestNotEqualPrunesConstantChunk(t *testing.T) {
	m := compression.Metadata{Min: 4, Max: 4, Encoding: compression.Constant}
	assert.False(t, NewConstant(NotEqual, types.NewInt64(4)).CheckCompressionMetadata(m))
	assert.True(t, NewConstant(NotEqual, types.NewInt64(5)).CheckCompressionMetadata(m))
}

func TestSignedBounds(t *testing.T) {
	m := compression.GetMetadata(types.Int32, []uint64{types.NewInt32(-50).Bits(), types.NewInt32(-10).Bits()}, nil, true)
	assert.True(t, NewConstant(Less, types.NewInt32(0)).CheckCompressionMetadata(m))
	assert.False(t, NewConstant(Greater, types.NewInt32(0)).CheckCompressionMetadata(m))
}

func TestStringPredicateIsConservative(t *testing.T) {
	m := compression.Metadata{Min: 0, Max: 0, Encoding: compression.Constant}
	assert.True(t, NewConstant(Equal, types.NewString("x")).CheckCompressionMetadata(m))
	assert.True(t, NewConstant(Equal, types.NewString("x")).Matches(types.NewString("x")))
}

// Brute force: whenever a chunk holds a matching value the metadata check
// must not prune it.
func TestPruningIsSound(t *testing.T) {
	rng := testutil.NewRNG(42)
	ops := []Op{Equal, NotEqual, Less, LessEqual, Greater, GreaterEqual}

	for _, typ := range []types.PhysicalType{types.Int64, types.Int8, types.Uint32, types.Double} {
		for range 300 {
			n := 1 + rng.Intn(50)
			values := make([]uint64, n)
			narrow := rng.Intn(2) == 0
			for i := range values {
				v := rng.Value(typ)
				if narrow && typ.IsInteger() {
					v, _ = types.Cast(types.NewInt64(int64(rng.Intn(16))), typ)
				}
				values[i] = v.Bits()
			}
			m := compression.GetMetadata(typ, values, nil, rng.Intn(4) != 0)

			target := types.FromBits(typ, values[rng.Intn(n)])
			if rng.Intn(2) == 0 {
				target = rng.Value(typ)
			}
			p := NewConstant(ops[rng.Intn(len(ops))], target)

			anyMatch := false
			for _, b := range values {
				if p.Matches(types.FromBits(typ, b)) {
					anyMatch = true
					break
				}
			}
			if anyMatch {
				assert.True(t, p.CheckCompressionMetadata(m), "%s pruned %s chunk with a match (meta %+v)", p, typ, m)
			}
		}
	}
}

func TestSet(t *testing.T) {
	s := NewSet(NewConstant(GreaterEqual, types.NewInt64(5)), NewConstant(Less, types.NewInt64(8)))
	assert.True(t, s.Matches(types.NewInt64(5)))
	assert.False(t, s.Matches(types.NewInt64(8)))
	assert.False(t, s.Matches(types.Null(types.Int64)))
	assert.False(t, s.CheckCompressionMetadata(compression.Metadata{Min: 8, Max: 9}))
	assert.Equal(t, ">= 5 AND < 8", s.String())

	var empty *Set
	assert.True(t, empty.IsEmpty())
	assert.True(t, empty.Matches(types.NewInt64(1)))
}
