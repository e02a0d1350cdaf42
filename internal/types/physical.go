package types

import (
	"fmt"
	"strings"
)

// PhysicalType is the storage type of a column.
type PhysicalType uint8

const (
	Bool PhysicalType = iota + 1
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float
	Double
	String
)

var physicalTypeNames = map[PhysicalType]string{
	Bool:   "BOOL",
	Int8:   "INT8",
	Int16:  "INT16",
	Int32:  "INT32",
	Int64:  "INT64",
	Uint8:  "UINT8",
	Uint16: "UINT16",
	Uint32: "UINT32",
	Uint64: "UINT64",
	Float:  "FLOAT",
	Double: "DOUBLE",
	String: "STRING",
}

func (t PhysicalType) String() string {
	if name, ok := physicalTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("PhysicalType(%d)", uint8(t))
}

// Valid reports whether t is a known physical type.
func (t PhysicalType) Valid() bool {
	_, ok := physicalTypeNames[t]
	return ok
}

// ParsePhysicalType returns the type with the given name, ignoring case.
func ParsePhysicalType(name string) (PhysicalType, error) {
	for t, n := range physicalTypeNames {
		if strings.EqualFold(n, name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown type %q", ErrInvalidValue, name)
}

// Size returns the number of bytes one value occupies uncompressed.
// Strings report the size of their dictionary index.
func (t PhysicalType) Size() int {
	switch t {
	case Bool, Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float, String:
		return 4
	case Int64, Uint64, Double:
		return 8
	default:
		panic(fmt.Sprintf("types: size of invalid physical type %d", uint8(t)))
	}
}

// BitWidth returns the number of bits one uncompressed value occupies.
func (t PhysicalType) BitWidth() uint8 {
	if t == Bool {
		return 1
	}
	return uint8(t.Size() * 8)
}

// IsSigned reports whether t is a signed integer type.
func (t PhysicalType) IsSigned() bool {
	switch t {
	case Int8, Int16, Int32, Int64:
		return true
	}
	return false
}

// IsUnsigned reports whether t is an unsigned integer type or BOOL.
func (t PhysicalType) IsUnsigned() bool {
	switch t {
	case Bool, Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

// IsInteger reports whether values of t can be frame-of-reference encoded.
func (t PhysicalType) IsInteger() bool {
	return t.IsSigned() || t.IsUnsigned()
}

// IsFloat reports whether t is FLOAT or DOUBLE.
func (t PhysicalType) IsFloat() bool {
	return t == Float || t == Double
}
