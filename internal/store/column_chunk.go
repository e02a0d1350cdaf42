package store

import (
	"fmt"

	"github.com/hupe1980/graphstore/internal/compression"
	"github.com/hupe1980/graphstore/internal/types"
)

// ColumnChunk buffers the values of one property for one node group.
type ColumnChunk struct {
	typ      types.PhysicalType
	capacity uint64
	values   []uint64
	strs     []string
	nulls    *types.NullMask
}

// NewColumnChunk returns an empty chunk holding up to capacity values.
func NewColumnChunk(t types.PhysicalType, capacity uint64) *ColumnChunk {
	c := &ColumnChunk{typ: t, capacity: capacity, nulls: types.NewNullMask(0)}
	if t == types.String {
		c.strs = make([]string, 0, min(capacity, 1024))
	} else {
		c.values = make([]uint64, 0, min(capacity, 1024))
	}
	return c
}

func (c *ColumnChunk) DataType() types.PhysicalType { return c.typ }
func (c *ColumnChunk) Capacity() uint64             { return c.capacity }
func (c *ColumnChunk) IsFull() bool                 { return c.NumValues() >= c.capacity }

// NumValues returns the number of buffered values.
func (c *ColumnChunk) NumValues() uint64 {
	if c.typ == types.String {
		return uint64(len(c.strs))
	}
	return uint64(len(c.values))
}

// Append adds v. It panics if the chunk is full or v has the wrong type.
func (c *ColumnChunk) Append(v types.Value) {
	if v.Type() != c.typ {
		panic(fmt.Sprintf("store: append %s value to %s chunk", v.Type(), c.typ))
	}
	n := c.NumValues()
	if n >= c.capacity {
		panic(fmt.Sprintf("store: chunk full at %d values", n))
	}
	if c.typ == types.String {
		c.strs = append(c.strs, v.Str())
	} else {
		c.values = append(c.values, v.Bits())
	}
	if v.IsNull() {
		c.nulls.Set(int(n), true)
	}
}

// Set overwrites position pos, growing the chunk with NULLs if needed.
func (c *ColumnChunk) Set(pos uint64, v types.Value) {
	for c.NumValues() <= pos {
		c.Append(types.Null(c.typ))
	}
	if c.typ == types.String {
		c.strs[pos] = v.Str()
	} else {
		c.values[pos] = v.Bits()
	}
	c.nulls.Set(int(pos), v.IsNull())
}

// Get returns the value at pos.
func (c *ColumnChunk) Get(pos uint64) types.Value {
	if c.nulls.IsNull(int(pos)) {
		return types.Null(c.typ)
	}
	if c.typ == types.String {
		return types.NewString(c.strs[pos])
	}
	return types.FromBits(c.typ, c.values[pos])
}

func (c *ColumnChunk) IsNull(pos uint64) bool { return c.nulls.IsNull(int(pos)) }

// Nulls returns the chunk's null mask.
func (c *ColumnChunk) Nulls() *types.NullMask { return c.nulls }

// Metadata computes the compression metadata of the buffered values.
func (c *ColumnChunk) Metadata(enabled bool) compression.Metadata {
	return compression.GetMetadata(c.typ, c.values, c.nulls, enabled)
}

// Reset empties the chunk.
func (c *ColumnChunk) Reset() {
	c.values = c.values[:0]
	c.strs = c.strs[:0]
	c.nulls.Reset()
}
