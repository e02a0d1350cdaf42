package types

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareBits(t *testing.T) {
	assert.Equal(t, -1, CompareBits(Int64, NewInt64(-5).Bits(), NewInt64(3).Bits()))
	assert.Equal(t, 1, CompareBits(Uint64, NewUint64(math.MaxUint64).Bits(), NewUint64(3).Bits()))
	assert.Equal(t, -1, CompareBits(Double, NewDouble(-1.5).Bits(), NewDouble(0.25).Bits()))
	assert.Equal(t, 0, CompareBits(Float, NewFloat(2).Bits(), NewFloat(2).Bits()))
}

func TestCompareStrings(t *testing.T) {
	assert.Equal(t, -1, Compare(NewString("alice"), NewString("bob")))
	assert.Panics(t, func() { Compare(NewString("x"), NewInt64(1)) })
}

func TestParseOverflow(t *testing.T) {
	_, err := Parse("300", Int8)
	var oe *OverflowError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, Int8, oe.Target)
	assert.True(t, errors.Is(err, ErrOverflow))

	_, err = Parse("99999999999999999999", Int64)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Parse("-1", Uint32)
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = Parse("abc", Int32)
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.False(t, errors.Is(err, ErrOverflow))

	v, err := Parse(" 42 ", Int16)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int64())
}

func TestCast(t *testing.T) {
	v, err := Cast(NewInt64(-7), Int8)
	require.NoError(t, err)
	assert.Equal(t, int64(-7), v.Int64())

	_, err = Cast(NewInt64(-7), Uint8)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Cast(NewUint64(math.MaxUint64), Int64)
	assert.ErrorIs(t, err, ErrOverflow)

	v, err = Cast(NewInt32(3), Double)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v.Float64())

	_, err = Cast(NewDouble(1.5), Int64)
	assert.ErrorIs(t, err, ErrInvalidValue)

	v, err = Cast(Null(Int64), String)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestVector(t *testing.T) {
	v := NewVector(Int64, 4)
	v.Append(NewInt64(1))
	v.Append(Null(Int64))
	v.Append(NewInt64(-3))

	require.Equal(t, 3, v.Len())
	assert.True(t, v.MayHaveNull())
	assert.True(t, v.IsNull(1))
	assert.Equal(t, int64(-3), v.Get(2).Int64())
	assert.True(t, v.Get(1).IsNull())
	assert.Panics(t, func() { v.Append(NewString("x")) })

	v.Reset()
	assert.Equal(t, 0, v.Len())
	assert.False(t, v.MayHaveNull())
}

func TestNullMask(t *testing.T) {
	m := NewNullMask(10)
	assert.False(t, m.IsNull(500))
	m.Set(130, true)
	m.Set(3, true)
	assert.True(t, m.IsNull(130))
	assert.Equal(t, 2, m.CountNulls())
	m.Set(3, false)
	assert.False(t, m.IsNull(3))
	assert.True(t, m.MayHaveNull())
}

func TestParsePhysicalType(t *testing.T) {
	for _, name := range []string{"INT64", "int64", "String", "bool"} {
		typ, err := ParsePhysicalType(name)
		require.NoError(t, err, name)
		assert.True(t, typ.Valid())
	}
	typ, err := ParsePhysicalType("double")
	require.NoError(t, err)
	assert.Equal(t, Double, typ)

	_, err = ParsePhysicalType("decimal")
	assert.ErrorIs(t, err, ErrInvalidValue)
}
