package store

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/graphstore/internal/transaction"
	"github.com/hupe1980/graphstore/internal/types"
)

// CommitResult counts how the touched column chunks were committed.
type CommitResult struct {
	InPlace   int
	Rewritten int
}

// TableData holds the columns of one table, keyed by column id.
type TableData struct {
	cfg     Config
	columns map[types.ColumnID]PropertyColumn
}

// NewTableData returns table data without columns.
func NewTableData(cfg Config) *TableData {
	return &TableData{cfg: cfg, columns: make(map[types.ColumnID]PropertyColumn)}
}

// AddColumn creates an empty column of type t.
func (d *TableData) AddColumn(id types.ColumnID, t types.PhysicalType) PropertyColumn {
	col := NewPropertyColumn(t, d.cfg)
	d.columns[id] = col
	return col
}

// SetColumn installs a loaded column.
func (d *TableData) SetColumn(id types.ColumnID, col PropertyColumn) { d.columns[id] = col }

// DropColumn removes a column. Its pages are not reclaimed.
func (d *TableData) DropColumn(id types.ColumnID) { delete(d.columns, id) }

// Column returns column id.
func (d *TableData) Column(id types.ColumnID) (PropertyColumn, bool) {
	col, ok := d.columns[id]
	return col, ok
}

// ColumnIDs returns the column ids in ascending order.
func (d *TableData) ColumnIDs() []types.ColumnID {
	return slices.Sorted(maps.Keys(d.columns))
}

// AppendNodeGroup writes chunk i of group to column ids[i] as node group ngIdx.
func (d *TableData) AppendNodeGroup(ctx context.Context, ngIdx types.NodeGroupIdx, ids []types.ColumnID, group *NodeGroup) error {
	for i, id := range ids {
		col, ok := d.columns[id]
		if !ok {
			return fmt.Errorf("store: append to unknown column %d", id)
		}
		if err := col.Append(ctx, group.Chunk(i), ngIdx); err != nil {
			return fmt.Errorf("store: append column %d node group %d: %w", id, ngIdx, err)
		}
	}
	return nil
}

// PrepareCommit applies local to the write version of every column.
// On error the caller must call RollbackInMemory.
func (d *TableData) PrepareCommit(ctx context.Context, tx *transaction.Transaction, local *LocalTable) (CommitResult, error) {
	var res CommitResult
	ids := d.ColumnIDs()
	for _, ngIdx := range local.NodeGroups() {
		g := local.Group(ngIdx)
		for _, id := range ids {
			updates := g.Updates(id)
			if len(updates) == 0 && g.Deleted().IsEmpty() {
				continue
			}
			inPlace, err := d.columns[id].CommitLocalChunk(ctx, tx, ngIdx, updates, g.Deleted())
			if err != nil {
				return res, fmt.Errorf("store: commit column %d node group %d: %w", id, ngIdx, err)
			}
			if inPlace {
				res.InPlace++
			} else {
				res.Rewritten++
			}
		}
	}
	return res, nil
}

// HasUpdates reports whether any column has a write version.
func (d *TableData) HasUpdates() bool {
	for _, col := range d.columns {
		if col.HasUpdates() {
			return true
		}
	}
	return false
}

func (d *TableData) CheckpointInMemory() {
	for _, col := range d.columns {
		col.CheckpointInMemory()
	}
}

func (d *TableData) RollbackInMemory() {
	for _, col := range d.columns {
		col.RollbackInMemory()
	}
}

// Flush persists the metadata arrays of all columns.
func (d *TableData) Flush(ctx context.Context) (map[types.ColumnID]ColumnHeader, error) {
	out := make(map[types.ColumnID]ColumnHeader, len(d.columns))
	for _, id := range d.ColumnIDs() {
		hdr, err := d.columns[id].Flush(ctx)
		if err != nil {
			return nil, fmt.Errorf("store: flush column %d: %w", id, err)
		}
		out[id] = hdr
	}
	return out, nil
}
