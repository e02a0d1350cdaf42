package store

import (
	"maps"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/graphstore/internal/types"
)

// LocalNodeGroup holds the uncommitted changes to one node group.
type LocalNodeGroup struct {
	// inserted holds positions of rows created by the transaction.
	inserted *roaring.Bitmap
	// deleted holds positions of rows deleted by the transaction.
	deleted *roaring.Bitmap
	// updates maps column id to row position to new value.
	updates map[types.ColumnID]map[uint64]types.Value
}

func newLocalNodeGroup() *LocalNodeGroup {
	return &LocalNodeGroup{
		inserted: roaring.New(),
		deleted:  roaring.New(),
		updates:  make(map[types.ColumnID]map[uint64]types.Value),
	}
}

func (g *LocalNodeGroup) set(col types.ColumnID, pos uint64, v types.Value) {
	m, ok := g.updates[col]
	if !ok {
		m = make(map[uint64]types.Value)
		g.updates[col] = m
	}
	m[pos] = v
}

// Updates returns the changed rows of column col.
func (g *LocalNodeGroup) Updates(col types.ColumnID) map[uint64]types.Value { return g.updates[col] }

// Deleted returns the deleted row positions.
func (g *LocalNodeGroup) Deleted() *roaring.Bitmap { return g.deleted }

// IsInserted reports whether the row at pos was created by the transaction.
func (g *LocalNodeGroup) IsInserted(pos uint64) bool { return g.inserted.Contains(uint32(pos)) }

// LocalTable holds the write transaction's changes to one node table,
// keyed by node group and row position.
type LocalTable struct {
	cfg    Config
	groups map[types.NodeGroupIdx]*LocalNodeGroup
}

// NewLocalTable returns an empty local table.
func NewLocalTable(cfg Config) *LocalTable {
	return &LocalTable{cfg: cfg, groups: make(map[types.NodeGroupIdx]*LocalNodeGroup)}
}

func (l *LocalTable) group(ngIdx types.NodeGroupIdx) *LocalNodeGroup {
	g, ok := l.groups[ngIdx]
	if !ok {
		g = newLocalNodeGroup()
		l.groups[ngIdx] = g
	}
	return g
}

// Insert records a new row at off with one value per column.
func (l *LocalTable) Insert(off types.Offset, values map[types.ColumnID]types.Value) {
	ngIdx, pos := l.cfg.Split(off)
	g := l.group(ngIdx)
	g.inserted.Add(uint32(pos))
	g.deleted.Remove(uint32(pos))
	for col, v := range values {
		g.set(col, pos, v)
	}
}

// Update records a new value for column col of the row at off.
func (l *LocalTable) Update(off types.Offset, col types.ColumnID, v types.Value) {
	ngIdx, pos := l.cfg.Split(off)
	l.group(ngIdx).set(col, pos, v)
}

// Delete records the deletion of the row at off.
func (l *LocalTable) Delete(off types.Offset) {
	ngIdx, pos := l.cfg.Split(off)
	g := l.group(ngIdx)
	g.inserted.Remove(uint32(pos))
	for _, m := range g.updates {
		delete(m, pos)
	}
	g.deleted.Add(uint32(pos))
}

// Get returns the uncommitted value of column col at off, if any.
func (l *LocalTable) Get(off types.Offset, col types.ColumnID) (types.Value, bool) {
	ngIdx, pos := l.cfg.Split(off)
	g, ok := l.groups[ngIdx]
	if !ok {
		return types.Value{}, false
	}
	v, ok := g.updates[col][pos]
	return v, ok
}

// DropColumn forgets the changes to column col.
func (l *LocalTable) DropColumn(col types.ColumnID) {
	for _, g := range l.groups {
		delete(g.updates, col)
	}
}

// Group returns the changes to node group ngIdx, or nil.
func (l *LocalTable) Group(ngIdx types.NodeGroupIdx) *LocalNodeGroup { return l.groups[ngIdx] }

// NodeGroups returns the touched node groups in ascending order.
func (l *LocalTable) NodeGroups() []types.NodeGroupIdx {
	return slices.Sorted(maps.Keys(l.groups))
}

// IsEmpty reports whether no change was recorded.
func (l *LocalTable) IsEmpty() bool { return len(l.groups) == 0 }

// Clear drops all recorded changes.
func (l *LocalTable) Clear() { clear(l.groups) }
