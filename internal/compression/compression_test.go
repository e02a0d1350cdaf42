package compression

import (
	"math"
	"testing"

	"github.com/hupe1980/graphstore/internal/types"
	"github.com/hupe1980/graphstore/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bitsOf(vals ...int64) []uint64 {
	out := make([]uint64, len(vals))
	for i, v := range vals {
		out[i] = uint64(v)
	}
	return out
}

func roundTrip(t *testing.T, typ types.PhysicalType, m Metadata, values []uint64) []uint64 {
	t.Helper()
	pages := Compress(typ, m, values, nil)
	require.Len(t, pages, int(m.NumPages(typ, uint64(len(values))))*PageSize)

	out := make([]uint64, len(values))
	vpp := m.ValuesPerPage(typ)
	for i := range values {
		if m.IsConstant() {
			Decompress(typ, m, nil, 0, out[i:i+1])
			continue
		}
		page := uint64(i) / vpp
		Decompress(typ, m, pages[page*PageSize:(page+1)*PageSize], uint64(i)%vpp, out[i:i+1])
	}
	return out
}

func TestGetMetadataChoosesEncoding(t *testing.T) {
	m := GetMetadata(types.Int64, bitsOf(7, 7, 7), nil, true)
	assert.Equal(t, Constant, m.Encoding)
	assert.Equal(t, uint32(0), m.NumPages(types.Int64, 3))

	m = GetMetadata(types.Int64, bitsOf(-3, 10, 4), nil, true)
	assert.Equal(t, IntegerBitpacking, m.Encoding)
	assert.Equal(t, uint8(4), m.BitWidth(types.Int64))
	assert.Equal(t, int64(-3), int64(m.Min))
	assert.Equal(t, int64(10), int64(m.Max))

	m = GetMetadata(types.Int64, bitsOf(math.MinInt64, math.MaxInt64), nil, true)
	assert.Equal(t, Uncompressed, m.Encoding)

	m = GetMetadata(types.Double, []uint64{types.NewDouble(1).Bits(), types.NewDouble(2).Bits()}, nil, true)
	assert.Equal(t, Uncompressed, m.Encoding)

	m = GetMetadata(types.Int64, bitsOf(1, 2), nil, false)
	assert.Equal(t, Uncompressed, m.Encoding)
	assert.Equal(t, uint64(1), m.Min)
	assert.Equal(t, uint64(2), m.Max)
}

func TestGetMetadataIgnoresNulls(t *testing.T) {
	nulls := types.NewNullMask(3)
	nulls.Set(1, true)
	m := GetMetadata(types.Int32, bitsOf(5, 1000, 9), nulls, true)
	assert.Equal(t, uint64(5), m.Min)
	assert.Equal(t, uint64(9), m.Max)

	all := types.NewNullMask(2)
	all.Set(0, true)
	all.Set(1, true)
	m = GetMetadata(types.Int32, bitsOf(1, 2), all, true)
	assert.True(t, m.IsConstant())
}

func TestGetMetadataKeepsFloatBits(t *testing.T) {
	negZero := math.Float64bits(math.Copysign(0, -1))
	nan1 := math.Float64bits(math.NaN())
	nan2 := nan1 | 1

	tests := []struct {
		name   string
		values []uint64
	}{
		{"signed zeros", []uint64{negZero, 0}},
		{"zeros reversed", []uint64{0, negZero, 0}},
		{"nan payloads", []uint64{nan1, nan2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := GetMetadata(types.Double, tt.values, nil, true)
			assert.NotEqual(t, Constant, m.Encoding)
			assert.Equal(t, tt.values, roundTrip(t, types.Double, m, tt.values))
		})
	}

	m := GetMetadata(types.Double, []uint64{negZero, negZero}, nil, true)
	assert.Equal(t, Constant, m.Encoding)
	assert.Equal(t, []uint64{negZero, negZero}, roundTrip(t, types.Double, m, []uint64{negZero, negZero}))
}

func TestRoundTrip(t *testing.T) {
	rng := testutil.NewRNG(7)

	for _, typ := range []types.PhysicalType{types.Int8, types.Int16, types.Int32, types.Int64, types.Uint16, types.Uint64, types.Bool} {
		values := make([]uint64, 5000)
		for i := range values {
			v := rng.Value(typ)
			values[i] = v.Bits()
		}
		for _, enabled := range []bool{true, false} {
			m := GetMetadata(typ, values, nil, enabled)
			assert.Equal(t, values, roundTrip(t, typ, m, values), "%s enabled=%v", typ, enabled)
		}
	}
}

func TestRoundTripNarrowRange(t *testing.T) {
	values := make([]uint64, 10000)
	for i := range values {
		values[i] = uint64(int64(-500 + i%37))
	}
	m := GetMetadata(types.Int64, values, nil, true)
	require.Equal(t, IntegerBitpacking, m.Encoding)
	assert.Equal(t, uint8(6), m.BitWidth(types.Int64))
	assert.Equal(t, values, roundTrip(t, types.Int64, m, values))
}

func TestCanUpdateInPlace(t *testing.T) {
	m := GetMetadata(types.Int64, bitsOf(10, 13), nil, true)
	require.Equal(t, IntegerBitpacking, m.Encoding)
	assert.True(t, m.CanUpdateInPlace(types.Int64, 12))
	assert.True(t, m.CanUpdateInPlace(types.Int64, 11))
	assert.False(t, m.CanUpdateInPlace(types.Int64, 9))
	assert.False(t, m.CanUpdateInPlace(types.Int64, 14))

	c := GetMetadata(types.Int64, bitsOf(4, 4), nil, true)
	assert.True(t, c.CanUpdateInPlace(types.Int64, 4))
	assert.False(t, c.CanUpdateInPlace(types.Int64, 5))

	u := GetMetadata(types.Double, []uint64{types.NewDouble(1).Bits()}, nil, false)
	assert.True(t, u.CanUpdateInPlace(types.Double, types.NewDouble(-100).Bits()))
}

func TestWidenKeepsBoundsSound(t *testing.T) {
	u := Metadata{Min: uint64(10), Max: uint64(20), Encoding: Uncompressed}
	u = u.Widen(types.Int64, uint64(1<<63))
	assert.Equal(t, int64(math.MinInt64), int64(u.Min))
	assert.Equal(t, uint64(20), u.Max)

	b := GetMetadata(types.Int64, bitsOf(16, 17), nil, true)
	require.True(t, b.CanUpdateInPlace(types.Int64, 16))
	b = b.Widen(types.Int64, 17)
	assert.Equal(t, uint64(16), b.Min)
}

func TestSetValue(t *testing.T) {
	values := bitsOf(100, 101, 102, 103)
	m := GetMetadata(types.Int64, values, nil, true)
	page := Compress(types.Int64, m, values, nil)
	require.True(t, m.CanUpdateInPlace(types.Int64, 100))
	SetValue(types.Int64, m, page, 2, 100)

	out := make([]uint64, 4)
	Decompress(types.Int64, m, page, 0, out)
	assert.Equal(t, bitsOf(100, 101, 100, 103), out)
}

func TestDecompressPanicsAcrossPage(t *testing.T) {
	m := Metadata{Encoding: Uncompressed}
	dst := make([]uint64, 2)
	assert.Panics(t, func() {
		Decompress(types.Int64, m, make([]byte, PageSize), m.ValuesPerPage(types.Int64)-1, dst)
	})
}
