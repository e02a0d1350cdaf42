package types

import "math"

// Offset is the position of a node inside its table.
type Offset = uint64

// NodeGroupIdx identifies a node group of a table.
type NodeGroupIdx = uint64

// TableID identifies a table in the catalog.
type TableID uint64

// PropertyID identifies a property of a table.
type PropertyID uint32

// ColumnID identifies a column inside a table's data.
type ColumnID uint32

const (
	// InvalidOffset marks an absent node offset.
	InvalidOffset Offset = math.MaxUint64
	// InvalidTableID marks an absent table.
	InvalidTableID TableID = math.MaxUint64
	// InvalidColumnID marks an absent column.
	InvalidColumnID ColumnID = math.MaxUint32
)

// NodeID is the internal id of a node: its table and its offset.
type NodeID struct {
	Table  TableID
	Offset Offset
}
