package store

import (
	"fmt"

	"github.com/hupe1980/graphstore/internal/types"
)

// NodeGroup buffers full rows of a table for one node group before they are
// appended to the table's columns.
type NodeGroup struct {
	chunks []*ColumnChunk
}

// NewNodeGroup returns an empty node group for columns of the given types.
func NewNodeGroup(columnTypes []types.PhysicalType, capacity uint64) *NodeGroup {
	g := &NodeGroup{chunks: make([]*ColumnChunk, len(columnTypes))}
	for i, t := range columnTypes {
		g.chunks[i] = NewColumnChunk(t, capacity)
	}
	return g
}

func (g *NodeGroup) NumRows() uint64 {
	if len(g.chunks) == 0 {
		return 0
	}
	return g.chunks[0].NumValues()
}

func (g *NodeGroup) Capacity() uint64 { return g.chunks[0].Capacity() }
func (g *NodeGroup) IsFull() bool     { return g.NumRows() >= g.Capacity() }

// Chunk returns the chunk of column i.
func (g *NodeGroup) Chunk(i int) *ColumnChunk { return g.chunks[i] }

// AppendRow adds one row. It panics if the group is full or the row has the
// wrong arity.
func (g *NodeGroup) AppendRow(row []types.Value) {
	if len(row) != len(g.chunks) {
		panic(fmt.Sprintf("store: row of %d values for %d columns", len(row), len(g.chunks)))
	}
	for i, v := range row {
		g.chunks[i].Append(v)
	}
}

// Row returns row pos.
func (g *NodeGroup) Row(pos uint64) []types.Value {
	row := make([]types.Value, len(g.chunks))
	for i, c := range g.chunks {
		row[i] = c.Get(pos)
	}
	return row
}

// Merge moves rows from src, starting at row start, until g is full or src is
// exhausted. It returns the number of rows moved.
func (g *NodeGroup) Merge(src *NodeGroup, start uint64) uint64 {
	n := min(g.Capacity()-g.NumRows(), src.NumRows()-start)
	for pos := start; pos < start+n; pos++ {
		g.AppendRow(src.Row(pos))
	}
	return n
}

// Reset empties the group.
func (g *NodeGroup) Reset() {
	for _, c := range g.chunks {
		c.Reset()
	}
}
