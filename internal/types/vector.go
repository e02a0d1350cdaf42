package types

import "fmt"

// Vector is a column-at-a-time batch of values of one physical type.
// Scans fill vectors and inserts consume them.
type Vector struct {
	typ   PhysicalType
	bits  []uint64
	strs  []string
	nulls NullMask
}

// NewVector allocates an empty vector for type t with room for capacity rows.
func NewVector(t PhysicalType, capacity int) *Vector {
	v := &Vector{typ: t}
	if t == String {
		v.strs = make([]string, 0, capacity)
	} else {
		v.bits = make([]uint64, 0, capacity)
	}
	return v
}

// VectorOf builds a vector from values; every value must have type t.
func VectorOf(t PhysicalType, values ...Value) *Vector {
	v := NewVector(t, len(values))
	for _, val := range values {
		v.Append(val)
	}
	return v
}

func (v *Vector) Type() PhysicalType { return v.typ }

func (v *Vector) Len() int {
	if v.typ == String {
		return len(v.strs)
	}
	return len(v.bits)
}

// Append adds a value. It panics if the value type does not match.
func (v *Vector) Append(val Value) {
	if val.typ != v.typ {
		panic(fmt.Sprintf("types: append %s to %s vector", val.typ, v.typ))
	}
	if v.typ == String {
		v.AppendString(val.str, val.null)
		return
	}
	v.AppendBits(val.bits, val.null)
}

// AppendBits adds a fixed-width value by its storage bits.
func (v *Vector) AppendBits(bits uint64, null bool) {
	i := len(v.bits)
	v.bits = append(v.bits, bits)
	if null {
		v.nulls.Set(i, true)
	}
}

// AppendString adds a string value.
func (v *Vector) AppendString(s string, null bool) {
	i := len(v.strs)
	v.strs = append(v.strs, s)
	if null {
		v.nulls.Set(i, true)
	}
}

// Get returns row i as a Value.
func (v *Vector) Get(i int) Value {
	if v.nulls.IsNull(i) {
		return Null(v.typ)
	}
	if v.typ == String {
		return NewString(v.strs[i])
	}
	return FromBits(v.typ, v.bits[i])
}

func (v *Vector) IsNull(i int) bool { return v.nulls.IsNull(i) }
func (v *Vector) Bits(i int) uint64 { return v.bits[i] }
func (v *Vector) Str(i int) string  { return v.strs[i] }

// MayHaveNull reports whether any row of v may be NULL.
func (v *Vector) MayHaveNull() bool { return v.nulls.MayHaveNull() }

// Reset empties the vector, keeping its buffers.
func (v *Vector) Reset() {
	v.bits = v.bits[:0]
	v.strs = v.strs[:0]
	v.nulls.Reset()
}
