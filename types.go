package graphstore

import (
	"fmt"

	"github.com/hupe1980/graphstore/internal/predicate"
	"github.com/hupe1980/graphstore/internal/types"
)

type (
	// Value is a single, possibly NULL, typed value.
	Value = types.Value
	// DataType is the storage type of a property.
	DataType = types.PhysicalType
	// Offset is the position of a node inside its table.
	Offset = types.Offset
	// TableID identifies a table.
	TableID = types.TableID
	// PropertyID identifies a property of a table.
	PropertyID = types.PropertyID
	// Op is a comparison operator of a scan filter.
	Op = predicate.Op
)

const (
	Bool   = types.Bool
	Int8   = types.Int8
	Int16  = types.Int16
	Int32  = types.Int32
	Int64  = types.Int64
	Uint8  = types.Uint8
	Uint16 = types.Uint16
	Uint32 = types.Uint32
	Uint64 = types.Uint64
	Float  = types.Float
	Double = types.Double
	String = types.String
)

const (
	Eq = predicate.Equal
	Ne = predicate.NotEqual
	Lt = predicate.Less
	Le = predicate.LessEqual
	Gt = predicate.Greater
	Ge = predicate.GreaterEqual
)

// Null returns a NULL value of type t.
func Null(t DataType) Value { return types.Null(t) }

func NewBool(v bool) Value      { return types.NewBool(v) }
func NewInt8(v int8) Value      { return types.NewInt8(v) }
func NewInt16(v int16) Value    { return types.NewInt16(v) }
func NewInt32(v int32) Value    { return types.NewInt32(v) }
func NewInt64(v int64) Value    { return types.NewInt64(v) }
func NewUint8(v uint8) Value    { return types.NewUint8(v) }
func NewUint16(v uint16) Value  { return types.NewUint16(v) }
func NewUint32(v uint32) Value  { return types.NewUint32(v) }
func NewUint64(v uint64) Value  { return types.NewUint64(v) }
func NewFloat(v float32) Value  { return types.NewFloat(v) }
func NewDouble(v float64) Value { return types.NewDouble(v) }
func NewString(v string) Value  { return types.NewString(v) }

// ErrOverflow is wrapped by parse errors of out-of-range input.
var ErrOverflow = types.ErrOverflow

// ParseValue parses s as a value of type t.
func ParseValue(s string, t DataType) (Value, error) { return types.Parse(s, t) }

// ParseDataType returns the data type named name ("INT64", "string", ...).
func ParseDataType(name string) (DataType, error) {
	t, err := types.ParsePhysicalType(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return t, nil
}

// Property describes one property of a table.
type Property struct {
	Name string
	Type DataType
}

// Row is one node produced by Get or Scan. Values is keyed by property name.
type Row struct {
	Offset Offset
	Values map[string]Value
}
