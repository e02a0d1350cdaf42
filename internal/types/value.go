package types

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
)

// Value is a single, possibly NULL, typed value.
type Value struct {
	typ  PhysicalType
	null bool
	bits uint64
	str  string
}

// Null returns a NULL value of type t.
func Null(t PhysicalType) Value { return Value{typ: t, null: true} }

func NewBool(v bool) Value {
	if v {
		return Value{typ: Bool, bits: 1}
	}
	return Value{typ: Bool}
}

func NewInt8(v int8) Value     { return Value{typ: Int8, bits: uint64(int64(v))} }
func NewInt16(v int16) Value   { return Value{typ: Int16, bits: uint64(int64(v))} }
func NewInt32(v int32) Value   { return Value{typ: Int32, bits: uint64(int64(v))} }
func NewInt64(v int64) Value   { return Value{typ: Int64, bits: uint64(v)} }
func NewUint8(v uint8) Value   { return Value{typ: Uint8, bits: uint64(v)} }
func NewUint16(v uint16) Value { return Value{typ: Uint16, bits: uint64(v)} }
func NewUint32(v uint32) Value { return Value{typ: Uint32, bits: uint64(v)} }
func NewUint64(v uint64) Value { return Value{typ: Uint64, bits: v} }
func NewFloat(v float32) Value { return Value{typ: Float, bits: uint64(math.Float32bits(v))} }
func NewDouble(v float64) Value {
	return Value{typ: Double, bits: math.Float64bits(v)}
}
func NewString(v string) Value { return Value{typ: String, str: v} }

// FromBits builds a non-NULL fixed-width value from its storage bits.
func FromBits(t PhysicalType, bits uint64) Value {
	return Value{typ: t, bits: bits}
}

// Type returns the physical type of v.
func (v Value) Type() PhysicalType { return v.typ }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return v.null }

// Bits returns the storage bits of a fixed-width value.
func (v Value) Bits() uint64 { return v.bits }

func (v Value) Bool() bool       { return v.bits != 0 }
func (v Value) Int64() int64     { return int64(v.bits) }
func (v Value) Uint64() uint64   { return v.bits }
func (v Value) Str() string      { return v.str }
func (v Value) Float64() float64 { return BitsToFloat64(v.typ, v.bits) }

func (v Value) String() string {
	if v.null {
		return "NULL"
	}
	switch {
	case v.typ == String:
		return v.str
	case v.typ == Bool:
		return strconv.FormatBool(v.Bool())
	case v.typ.IsSigned():
		return strconv.FormatInt(v.Int64(), 10)
	case v.typ.IsUnsigned():
		return strconv.FormatUint(v.bits, 10)
	case v.typ.IsFloat():
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	}
	return fmt.Sprintf("<%s>", v.typ)
}

// BitsToFloat64 interprets storage bits of a FLOAT or DOUBLE value.
func BitsToFloat64(t PhysicalType, bits uint64) float64 {
	if t == Float {
		return float64(math.Float32frombits(uint32(bits)))
	}
	return math.Float64frombits(bits)
}

// CompareBits orders two storage values of fixed-width type t.
func CompareBits(t PhysicalType, a, b uint64) int {
	switch {
	case t.IsSigned():
		return cmp.Compare(int64(a), int64(b))
	case t.IsFloat():
		return cmp.Compare(BitsToFloat64(t, a), BitsToFloat64(t, b))
	default:
		return cmp.Compare(a, b)
	}
}

// Compare orders two non-NULL values of the same type.
// It panics on a type mismatch.
func Compare(a, b Value) int {
	if a.typ != b.typ {
		panic(fmt.Sprintf("types: compare %s with %s", a.typ, b.typ))
	}
	if a.typ == String {
		return cmp.Compare(a.str, b.str)
	}
	return CompareBits(a.typ, a.bits, b.bits)
}

// Equal reports whether a and b are the same value, treating NULLs as equal.
func Equal(a, b Value) bool {
	if a.typ != b.typ || a.null != b.null {
		return false
	}
	if a.null {
		return true
	}
	return Compare(a, b) == 0
}
