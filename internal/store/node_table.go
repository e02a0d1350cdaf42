package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/graphstore/internal/predicate"
	"github.com/hupe1980/graphstore/internal/stats"
	"github.com/hupe1980/graphstore/internal/transaction"
	"github.com/hupe1980/graphstore/internal/types"
)

var (
	ErrReadOnlyTransaction = errors.New("store: write in read-only transaction")
	ErrPropertyNotFound    = errors.New("store: property not found")
	ErrNodeNotFound        = errors.New("store: node not found")
	ErrNullPrimaryKey      = errors.New("store: primary key must not be NULL")
	ErrDuplicateKey        = errors.New("store: duplicate primary key")
	ErrPrimaryKeyUpdate    = errors.New("store: primary key cannot be updated")
	ErrDropPrimaryKey      = errors.New("store: primary key cannot be dropped")
)

// PrimaryKeyIndex maps primary key values to node offsets.
type PrimaryKeyIndex interface {
	Lookup(key types.Value) (types.Offset, bool)
	Append(key types.Value, off types.Offset) (bool, error)
	Delete(key types.Value) bool
}

// InsertState carries one row into NodeTable.Insert. Missing properties are
// NULL. Offset is set on success.
type InsertState struct {
	Values map[types.PropertyID]types.Value
	Offset types.Offset
}

// UpdateState carries one property update into NodeTable.Update.
type UpdateState struct {
	Offset     types.Offset
	PropertyID types.PropertyID
	Value      types.Value
}

// DeleteState carries one deletion into NodeTable.Delete.
type DeleteState struct {
	Offset types.Offset
}

// ScanState drives NodeTable.Scan one node group at a time.
type ScanState struct {
	PropertyIDs []types.PropertyID
	Predicates  map[types.PropertyID]*predicate.Set

	// NodeGroupIdx is the next node group to read.
	NodeGroupIdx types.NodeGroupIdx

	// Offsets and Vectors hold the rows produced by the last call.
	Offsets []types.Offset
	Vectors []*types.Vector

	// PrunedGroups counts node groups skipped through compression metadata.
	PrunedGroups int
}

// NodeTable stores the nodes of one label.
type NodeTable struct {
	id    types.TableID
	name  string
	cfg   Config
	stats *stats.TablesStatistics
	index PrimaryKeyIndex

	mu    sync.RWMutex
	props []types.Property
	pk    types.PropertyID
	data  *TableData

	// Write transaction state.
	local        *LocalTable
	insertedKeys map[types.Value]types.Offset
	deletedKeys  map[types.Value]struct{}
}

// NewNodeTable returns an empty node table. The caller registers the table
// with st.
func NewNodeTable(id types.TableID, name string, props []types.Property, pk types.PropertyID, cfg Config, st *stats.TablesStatistics, index PrimaryKeyIndex) *NodeTable {
	t := newNodeTable(id, name, props, pk, cfg, st, index)
	for _, p := range props {
		t.data.AddColumn(types.ColumnID(p.PropertyID), p.DataType)
	}
	return t
}

// LoadNodeTable returns a node table over flushed columns.
func LoadNodeTable(id types.TableID, name string, props []types.Property, pk types.PropertyID, cfg Config, st *stats.TablesStatistics, index PrimaryKeyIndex, headers map[types.PropertyID]ColumnHeader) (*NodeTable, error) {
	t := newNodeTable(id, name, props, pk, cfg, st, index)
	for _, p := range props {
		hdr, ok := headers[p.PropertyID]
		if !ok {
			return nil, fmt.Errorf("store: table %s: no column header for property %s", name, p.Name)
		}
		col, err := LoadPropertyColumn(p.DataType, cfg, hdr)
		if err != nil {
			return nil, fmt.Errorf("store: table %s property %s: %w", name, p.Name, err)
		}
		t.data.SetColumn(types.ColumnID(p.PropertyID), col)
	}
	return t, nil
}

func newNodeTable(id types.TableID, name string, props []types.Property, pk types.PropertyID, cfg Config, st *stats.TablesStatistics, index PrimaryKeyIndex) *NodeTable {
	return &NodeTable{
		id:           id,
		name:         name,
		cfg:          cfg,
		stats:        st,
		index:        index,
		props:        slices.Clone(props),
		pk:           pk,
		data:         NewTableData(cfg),
		local:        NewLocalTable(cfg),
		insertedKeys: make(map[types.Value]types.Offset),
		deletedKeys:  make(map[types.Value]struct{}),
	}
}

func (t *NodeTable) ID() types.TableID { return t.id }
func (t *NodeTable) Name() string      { return t.name }
func (t *NodeTable) Kind() TableKind   { return NodeTableKind }

// Properties returns the table's properties.
func (t *NodeTable) Properties() []types.Property {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.props)
}

// PrimaryKey returns the primary key property.
func (t *NodeTable) PrimaryKey() types.Property {
	p, _ := t.property(t.pk)
	return p
}

// Data returns the table's columns.
func (t *NodeTable) Data() *TableData { return t.data }

func (t *NodeTable) property(id types.PropertyID) (types.Property, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.props {
		if p.PropertyID == id {
			return p, true
		}
	}
	return types.Property{}, false
}

func (t *NodeTable) column(id types.PropertyID) (PropertyColumn, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	col, ok := t.data.Column(types.ColumnID(id))
	if !ok {
		return nil, fmt.Errorf("%w: table %s property %d", ErrPropertyNotFound, t.name, id)
	}
	return col, nil
}

// NumNodes returns the number of live nodes visible to tx.
func (t *NodeTable) NumNodes(tx *transaction.Transaction) (uint64, error) {
	return t.stats.GetNumTuples(tx, t.id)
}

func (t *NodeTable) checkType(p types.Property, v types.Value) error {
	if v.Type() != p.DataType {
		return fmt.Errorf("%w: property %s is %s, got %s", ErrTypeMismatch, p.Name, p.DataType, v.Type())
	}
	return nil
}

// Exists reports whether off is a live node as seen by tx.
func (t *NodeTable) Exists(tx *transaction.Transaction, off types.Offset) (bool, error) {
	maxOff, err := t.stats.GetMaxNodeOffset(tx, t.id)
	if err != nil {
		return false, err
	}
	if maxOff == types.InvalidOffset || off > maxOff {
		return false, nil
	}
	return !t.stats.IsDeleted(tx, t.id, off), nil
}

// Insert adds a node. The primary key is checked for NULL and uniqueness
// before anything is recorded.
func (t *NodeTable) Insert(tx *transaction.Transaction, state *InsertState) error {
	if !tx.IsWrite() {
		return ErrReadOnlyTransaction
	}
	props := t.Properties()
	row := make(map[types.ColumnID]types.Value, len(props))
	var key types.Value
	for _, p := range props {
		v, ok := state.Values[p.PropertyID]
		if !ok {
			v = types.Null(p.DataType)
		}
		if err := t.checkType(p, v); err != nil {
			return err
		}
		if p.PropertyID == t.pk {
			key = v
		}
		row[types.ColumnID(p.PropertyID)] = v
	}
	for id := range state.Values {
		if _, ok := row[types.ColumnID(id)]; !ok {
			return fmt.Errorf("%w: table %s property %d", ErrPropertyNotFound, t.name, id)
		}
	}
	if err := t.checkNonNullConstraint(key); err != nil {
		return err
	}
	if _, found, err := t.LookupPK(tx, key); err != nil {
		return err
	} else if found {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}

	off, _, err := t.stats.AddNode(t.id)
	if err != nil {
		return err
	}
	t.local.Insert(off, row)
	t.insertedKeys[key] = off
	state.Offset = off
	return nil
}

func (t *NodeTable) checkNonNullConstraint(key types.Value) error {
	if key.IsNull() {
		return fmt.Errorf("%w: table %s", ErrNullPrimaryKey, t.name)
	}
	return nil
}

// Update sets one property of an existing node.
func (t *NodeTable) Update(tx *transaction.Transaction, state *UpdateState) error {
	if !tx.IsWrite() {
		return ErrReadOnlyTransaction
	}
	if state.PropertyID == t.pk {
		return ErrPrimaryKeyUpdate
	}
	p, ok := t.property(state.PropertyID)
	if !ok {
		return fmt.Errorf("%w: table %s property %d", ErrPropertyNotFound, t.name, state.PropertyID)
	}
	if err := t.checkType(p, state.Value); err != nil {
		return err
	}
	ok, err := t.Exists(tx, state.Offset)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: table %s offset %d", ErrNodeNotFound, t.name, state.Offset)
	}
	t.local.Update(state.Offset, types.ColumnID(state.PropertyID), state.Value)
	return nil
}

// Delete removes a node.
func (t *NodeTable) Delete(tx *transaction.Transaction, state *DeleteState) error {
	if !tx.IsWrite() {
		return ErrReadOnlyTransaction
	}
	ok, err := t.Exists(tx, state.Offset)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: table %s offset %d", ErrNodeNotFound, t.name, state.Offset)
	}
	keys, err := t.Lookup(tx, []types.Offset{state.Offset}, []types.PropertyID{t.pk})
	if err != nil {
		return err
	}
	key := keys[0].Get(0)
	if err := t.stats.DeleteNode(t.id, state.Offset); err != nil {
		return err
	}
	t.local.Delete(state.Offset)
	if _, ok := t.insertedKeys[key]; ok {
		delete(t.insertedKeys, key)
	} else {
		t.deletedKeys[key] = struct{}{}
	}
	return nil
}

// LookupPK resolves a primary key to the offset of a live node.
func (t *NodeTable) LookupPK(tx *transaction.Transaction, key types.Value) (types.Offset, bool, error) {
	if key.IsNull() {
		return types.InvalidOffset, false, nil
	}
	if tx.IsWrite() {
		if off, ok := t.insertedKeys[key]; ok {
			return off, true, nil
		}
		if _, ok := t.deletedKeys[key]; ok {
			return types.InvalidOffset, false, nil
		}
	}
	if t.index == nil {
		return types.InvalidOffset, false, nil
	}
	off, ok := t.index.Lookup(key)
	if !ok {
		return types.InvalidOffset, false, nil
	}
	// The index can run ahead of the snapshot visible to tx.
	live, err := t.Exists(tx, off)
	if err != nil || !live {
		return types.InvalidOffset, false, err
	}
	return off, true, nil
}

// readGroup reads committed rows [0, numRows) of property id in node group
// ngIdx. Rows past the committed chunk read as NULL.
func (t *NodeTable) readGroup(tx *transaction.Transaction, col PropertyColumn, ngIdx types.NodeGroupIdx, numRows uint64) (*types.Vector, error) {
	out := types.NewVector(col.DataType(), int(numRows))
	committed := min(numRows, col.ChunkMetadata(tx, ngIdx).NumValues)
	if err := col.Scan(tx, ngIdx, 0, committed, out); err != nil {
		return nil, err
	}
	for range numRows - committed {
		out.Append(types.Null(col.DataType()))
	}
	return out, nil
}

// Lookup returns one vector per property with the values of the given nodes.
// The write transaction sees its own changes.
func (t *NodeTable) Lookup(tx *transaction.Transaction, offsets []types.Offset, ids []types.PropertyID) ([]*types.Vector, error) {
	out := make([]*types.Vector, len(ids))
	for i, id := range ids {
		col, err := t.column(id)
		if err != nil {
			return nil, err
		}
		vec := types.NewVector(col.DataType(), len(offsets))
		for _, off := range offsets {
			if tx.IsWrite() {
				if v, ok := t.local.Get(off, types.ColumnID(id)); ok {
					vec.Append(v)
					continue
				}
			}
			ngIdx, pos := t.cfg.Split(off)
			if pos >= col.ChunkMetadata(tx, ngIdx).NumValues {
				vec.Append(types.Null(col.DataType()))
				continue
			}
			if err := col.Scan(tx, ngIdx, pos, pos+1, vec); err != nil {
				return nil, err
			}
		}
		out[i] = vec
	}
	return out, nil
}

// prune reports whether the compression metadata of node group ngIdx rules
// out every predicate match.
func (t *NodeTable) prune(tx *transaction.Transaction, ngIdx types.NodeGroupIdx, preds map[types.PropertyID]*predicate.Set) (bool, error) {
	for id, set := range preds {
		col, err := t.column(id)
		if err != nil {
			return false, err
		}
		m := col.ChunkMetadata(tx, ngIdx)
		if m.NumValues > 0 && !set.CheckCompressionMetadata(m.Compression) {
			return true, nil
		}
	}
	return false, nil
}

// Scan reads the next node group with at least one matching live row into
// state. It returns false when the table is exhausted.
func (t *NodeTable) Scan(tx *transaction.Transaction, state *ScanState) (bool, error) {
	maxOff, err := t.stats.GetMaxNodeOffset(tx, t.id)
	if err != nil {
		return false, err
	}
	if maxOff == types.InvalidOffset {
		return false, nil
	}
	numGroups := maxOff>>t.cfg.NodeGroupSizeLog2 + 1
	deleted := t.stats.DeletedOffsets(tx, t.id)

	needed := slices.Clone(state.PropertyIDs)
	for id := range state.Predicates {
		if !slices.Contains(needed, id) {
			needed = append(needed, id)
		}
	}
	cols := make([]PropertyColumn, len(needed))
	for i, id := range needed {
		if cols[i], err = t.column(id); err != nil {
			return false, err
		}
	}

	for state.NodeGroupIdx < numGroups {
		ngIdx := state.NodeGroupIdx
		state.NodeGroupIdx++

		var local *LocalNodeGroup
		if tx.IsWrite() {
			local = t.local.Group(ngIdx)
		}
		if local == nil && len(state.Predicates) > 0 {
			pruned, err := t.prune(tx, ngIdx, state.Predicates)
			if err != nil {
				return false, err
			}
			if pruned {
				state.PrunedGroups++
				continue
			}
		}

		start := ngIdx << t.cfg.NodeGroupSizeLog2
		numRows := min(t.cfg.NodeGroupSize(), maxOff+1-start)
		vecs := make([]*types.Vector, len(cols))
		for i, col := range cols {
			if vecs[i], err = t.readGroup(tx, col, ngIdx, numRows); err != nil {
				return false, err
			}
		}

		state.Offsets = state.Offsets[:0]
		state.Vectors = make([]*types.Vector, len(state.PropertyIDs))
		for i, col := range cols[:len(state.PropertyIDs)] {
			state.Vectors[i] = types.NewVector(col.DataType(), int(numRows))
		}
		row := make([]types.Value, len(cols))
	rows:
		for pos := range numRows {
			off := start + pos
			if deleted.Contains(off) {
				continue
			}
			for i, id := range needed {
				row[i] = vecs[i].Get(int(pos))
				if local != nil {
					if v, ok := local.Updates(types.ColumnID(id))[pos]; ok {
						row[i] = v
					}
				}
			}
			for i, id := range needed {
				if set, ok := state.Predicates[id]; ok && !set.Matches(row[i]) {
					continue rows
				}
			}
			state.Offsets = append(state.Offsets, off)
			for i := range state.PropertyIDs {
				state.Vectors[i].Append(row[i])
			}
		}
		if len(state.Offsets) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// AppendNodeGroup writes a full set of chunks, one per property in
// Properties order, as node group ngIdx.
func (t *NodeTable) AppendNodeGroup(ctx context.Context, ngIdx types.NodeGroupIdx, group *NodeGroup) error {
	props := t.Properties()
	ids := make([]types.ColumnID, len(props))
	for i, p := range props {
		ids[i] = types.ColumnID(p.PropertyID)
	}
	return t.data.AppendNodeGroup(ctx, ngIdx, ids, group)
}

// ColumnTypes returns the physical types of the properties in order.
func (t *NodeTable) ColumnTypes() []types.PhysicalType {
	props := t.Properties()
	out := make([]types.PhysicalType, len(props))
	for i, p := range props {
		out[i] = p.DataType
	}
	return out
}

// AddProperty adds a column and fills every existing row with def.
func (t *NodeTable) AddProperty(ctx context.Context, tx *transaction.Transaction, p types.Property, def types.Value) error {
	if !tx.IsWrite() {
		return ErrReadOnlyTransaction
	}
	if err := t.checkType(p, def); err != nil {
		return err
	}
	pkCol, err := t.column(t.pk)
	if err != nil {
		return err
	}
	t.mu.Lock()
	col := t.data.AddColumn(types.ColumnID(p.PropertyID), p.DataType)
	t.props = append(t.props, p)
	t.mu.Unlock()

	for ngIdx := range pkCol.NumNodeGroups(tx) {
		n := pkCol.ChunkMetadata(tx, ngIdx).NumValues
		chunk := NewColumnChunk(p.DataType, n)
		for range n {
			chunk.Append(def)
		}
		if err := col.Append(ctx, chunk, ngIdx); err != nil {
			return err
		}
	}
	for _, ngIdx := range t.local.NodeGroups() {
		g := t.local.Group(ngIdx)
		it := g.inserted.Iterator()
		for it.HasNext() {
			g.set(types.ColumnID(p.PropertyID), uint64(it.Next()), def)
		}
	}
	return nil
}

// DropProperty removes a property and its column.
func (t *NodeTable) DropProperty(id types.PropertyID) error {
	if id == t.pk {
		return ErrDropPrimaryKey
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	i := slices.IndexFunc(t.props, func(p types.Property) bool { return p.PropertyID == id })
	if i < 0 {
		return fmt.Errorf("%w: table %s property %d", ErrPropertyNotFound, t.name, id)
	}
	t.props = slices.Delete(t.props, i, i+1)
	t.data.DropColumn(types.ColumnID(id))
	t.local.DropColumn(types.ColumnID(id))
	return nil
}

// PrepareCommit writes the local changes to the write version of the
// columns. On error nothing visible to readers has changed and the caller
// must call RollbackInMemory.
func (t *NodeTable) PrepareCommit(ctx context.Context, tx *transaction.Transaction) (CommitResult, error) {
	if err := t.checkIndex(); err != nil {
		return CommitResult{}, err
	}
	if t.local.IsEmpty() {
		return CommitResult{}, nil
	}
	return t.data.PrepareCommit(ctx, tx, t.local)
}

// checkIndex fails if CommitIndex would reject an inserted key. It runs
// before any page is written.
func (t *NodeTable) checkIndex() error {
	if t.index == nil {
		return nil
	}
	for key := range t.insertedKeys {
		if _, deleted := t.deletedKeys[key]; deleted {
			continue
		}
		if _, ok := t.index.Lookup(key); ok {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
		}
	}
	return nil
}

// CommitIndex applies the transaction's key changes to the primary key index.
func (t *NodeTable) CommitIndex() error {
	defer func() {
		clear(t.insertedKeys)
		clear(t.deletedKeys)
	}()
	if t.index == nil {
		return nil
	}
	for key := range t.deletedKeys {
		t.index.Delete(key)
	}
	for key, off := range t.insertedKeys {
		ok, err := t.index.Append(key, off)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
		}
	}
	return nil
}

// PrepareRollback discards the local changes.
func (t *NodeTable) PrepareRollback() {
	t.local.Clear()
	clear(t.insertedKeys)
	clear(t.deletedKeys)
}

func (t *NodeTable) HasUpdates() bool { return t.data.HasUpdates() }

// CheckpointInMemory publishes the write version of the columns and clears
// the local changes. It is safe to call when nothing changed.
func (t *NodeTable) CheckpointInMemory() {
	t.data.CheckpointInMemory()
	t.local.Clear()
}

// RollbackInMemory drops the write version of the columns and the local
// changes.
func (t *NodeTable) RollbackInMemory() {
	t.data.RollbackInMemory()
	t.PrepareRollback()
}

// Flush persists the metadata arrays of all columns.
func (t *NodeTable) Flush(ctx context.Context) (map[types.PropertyID]ColumnHeader, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	hdrs, err := t.data.Flush(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[types.PropertyID]ColumnHeader, len(hdrs))
	for id, hdr := range hdrs {
		out[types.PropertyID(id)] = hdr
	}
	return out, nil
}
