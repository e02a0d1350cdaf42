package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cast converts v to type t. Narrowing conversions that do not fit return an
// *OverflowError.
func Cast(v Value, t PhysicalType) (Value, error) {
	if v.typ == t {
		return v, nil
	}
	if v.null {
		return Null(t), nil
	}
	switch {
	case t == String:
		return NewString(v.String()), nil
	case v.typ == String:
		return Parse(v.str, t)
	case t.IsFloat():
		var f float64
		switch {
		case v.typ.IsSigned():
			f = float64(v.Int64())
		case v.typ.IsUnsigned():
			f = float64(v.bits)
		default:
			f = v.Float64()
		}
		if t == Float {
			if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
				return Value{}, &OverflowError{Input: v.String(), Target: t}
			}
			return NewFloat(float32(f)), nil
		}
		return NewDouble(f), nil
	case v.typ.IsFloat():
		f := v.Float64()
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return Value{}, fmt.Errorf("%w: %s is not integral", ErrInvalidValue, v)
		}
		if t.IsSigned() {
			if f < math.MinInt64 || f >= math.MaxInt64 {
				return Value{}, &OverflowError{Input: v.String(), Target: t}
			}
			return fromInt64(int64(f), t, v.String())
		}
		if f < 0 || f >= math.MaxUint64 {
			return Value{}, &OverflowError{Input: v.String(), Target: t}
		}
		return fromUint64(uint64(f), t, v.String())
	case v.typ.IsSigned():
		return fromInt64(v.Int64(), t, v.String())
	default:
		return fromUint64(v.bits, t, v.String())
	}
}

// Parse decodes the text form of a value of type t.
func Parse(s string, t PhysicalType) (Value, error) {
	s = strings.TrimSpace(s)
	switch {
	case t == String:
		return NewString(s), nil
	case t == Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q as %s", ErrInvalidValue, s, t)
		}
		return NewBool(b), nil
	case t.IsSigned():
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, parseError(err, s, t)
		}
		return fromInt64(n, t, s)
	case t.IsUnsigned():
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Value{}, parseError(err, s, t)
		}
		return fromUint64(n, t, s)
	case t == Float:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return Value{}, parseError(err, s, t)
		}
		return NewFloat(float32(f)), nil
	case t == Double:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, parseError(err, s, t)
		}
		return NewDouble(f), nil
	}
	return Value{}, fmt.Errorf("%w: unsupported type %s", ErrInvalidValue, t)
}

func parseError(err error, s string, t PhysicalType) error {
	if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
		return &OverflowError{Input: s, Target: t}
	}
	return fmt.Errorf("%w: %q as %s", ErrInvalidValue, s, t)
}

func fromInt64(n int64, t PhysicalType, input string) (Value, error) {
	var lo, hi int64
	switch t {
	case Int8:
		lo, hi = math.MinInt8, math.MaxInt8
	case Int16:
		lo, hi = math.MinInt16, math.MaxInt16
	case Int32:
		lo, hi = math.MinInt32, math.MaxInt32
	case Int64:
		return NewInt64(n), nil
	default:
		if n < 0 {
			return Value{}, &OverflowError{Input: input, Target: t}
		}
		return fromUint64(uint64(n), t, input)
	}
	if n < lo || n > hi {
		return Value{}, &OverflowError{Input: input, Target: t}
	}
	return FromBits(t, uint64(n)), nil
}

func fromUint64(n uint64, t PhysicalType, input string) (Value, error) {
	var hi uint64
	switch t {
	case Bool:
		hi = 1
	case Uint8:
		hi = math.MaxUint8
	case Uint16:
		hi = math.MaxUint16
	case Uint32:
		hi = math.MaxUint32
	case Uint64:
		return NewUint64(n), nil
	case Int8, Int16, Int32, Int64:
		if n > math.MaxInt64 {
			return Value{}, &OverflowError{Input: input, Target: t}
		}
		return fromInt64(int64(n), t, input)
	default:
		return Value{}, fmt.Errorf("%w: unsupported type %s", ErrInvalidValue, t)
	}
	if n > hi {
		return Value{}, &OverflowError{Input: input, Target: t}
	}
	return FromBits(t, n), nil
}
