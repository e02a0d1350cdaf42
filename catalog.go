package graphstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/hupe1980/graphstore/internal/hashindex"
	"github.com/hupe1980/graphstore/internal/store"
	"github.com/hupe1980/graphstore/internal/transaction"
	"github.com/hupe1980/graphstore/internal/types"
)

// TableKind distinguishes node tables from relationship tables.
type TableKind = store.TableKind

const (
	NodeTableKind = store.NodeTableKind
	RelTableKind  = store.RelTableKind
)

// TableInfo describes a table of the catalog.
type TableInfo struct {
	ID         TableID
	Name       string
	Kind       TableKind
	Properties []Property
	// PrimaryKey is set for node tables.
	PrimaryKey string
	// Src and Dst name the endpoint tables of a relationship table.
	Src string
	Dst string
}

// Tables returns the catalog ordered by table id.
func (db *DB) Tables() []TableInfo {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]TableInfo, 0, len(db.tables))
	for _, t := range db.tables {
		out = append(out, db.tableInfoLocked(t))
	}
	slices.SortFunc(out, func(a, b TableInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Table returns the catalog entry of the named table.
func (db *DB) Table(name string) (TableInfo, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	id, ok := db.names[name]
	if !ok {
		return TableInfo{}, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return db.tableInfoLocked(db.tables[id]), nil
}

func (db *DB) tableInfoLocked(t store.Table) TableInfo {
	info := TableInfo{ID: t.ID(), Name: t.Name(), Kind: t.Kind()}
	for _, p := range t.Properties() {
		info.Properties = append(info.Properties, Property{Name: p.Name, Type: p.DataType})
	}
	switch t := t.(type) {
	case *store.NodeTable:
		info.PrimaryKey = t.PrimaryKey().Name
	case *store.RelTable:
		info.Src = db.tables[t.SrcTableID()].Name()
		info.Dst = db.tables[t.DstTableID()].Name()
	}
	return info
}

func validateProperties(props []Property) error {
	seen := make(map[string]struct{}, len(props))
	for _, p := range props {
		if p.Name == "" {
			return fmt.Errorf("%w: empty property name", ErrInvalidArgument)
		}
		if !p.Type.Valid() {
			return fmt.Errorf("%w: property %s has invalid type %d", ErrInvalidArgument, p.Name, p.Type)
		}
		if _, ok := seen[p.Name]; ok {
			return fmt.Errorf("%w: %s", ErrPropertyExists, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// newTableIDLocked checks that name is free and returns the next table id.
func (db *DB) newTableIDLocked(name string) (types.TableID, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: empty table name", ErrInvalidArgument)
	}
	if _, ok := db.names[name]; ok {
		return 0, fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	return db.nextTableID, nil
}

// logDDL writes a schema change to the WAL as its own transaction.
func (db *DB) logDDL(records ...func() error) error {
	for _, rec := range records {
		if err := rec(); err != nil {
			return err
		}
	}
	return db.wal.LogCommit(db.nextTxID.Add(1) - 1)
}

// CreateNodeTable creates a node table keyed by primaryKey.
//
// Schema changes commit on their own and must not be issued while the caller
// holds a write transaction.
func (db *DB) CreateNodeTable(ctx context.Context, name string, props []Property, primaryKey string) (TableID, error) {
	if err := db.lockWriter(ctx); err != nil {
		return 0, err
	}
	defer db.unlockWriter()

	if len(props) == 0 {
		return 0, fmt.Errorf("%w: table %s has no properties", ErrInvalidArgument, name)
	}
	if err := validateProperties(props); err != nil {
		return 0, err
	}
	pk := slices.IndexFunc(props, func(p Property) bool { return p.Name == primaryKey })
	if pk < 0 {
		return 0, fmt.Errorf("%w: primary key %s is not a property of %s", ErrInvalidArgument, primaryKey, name)
	}
	db.mu.RLock()
	id, err := db.newTableIDLocked(name)
	db.mu.RUnlock()
	if err != nil {
		return 0, err
	}

	tprops := make([]types.Property, len(props))
	for i, p := range props {
		tprops[i] = types.Property{Name: p.Name, DataType: p.Type, PropertyID: types.PropertyID(i + 1), TableID: id}
	}
	idx, err := hashindex.New(db.fs, props[pk].Type, hashindex.Options{
		NumShards: db.opts.numIndexShards,
		Logger:    db.logger.Logger,
	})
	if err != nil {
		return 0, translateError(err)
	}
	if err := db.logDDL(func() error { return db.wal.LogNodeTableRecord(id) }); err != nil {
		_ = idx.Drop()
		return 0, err
	}
	db.stats.AddTable(id)
	db.stats.Checkpoint()
	t := store.NewNodeTable(id, name, tprops, tprops[pk].PropertyID, db.cfg, db.stats, idx)

	db.mu.Lock()
	db.register(t)
	db.indexes[id] = idx
	db.nextTableID++
	db.dirty = true
	db.mu.Unlock()

	db.logger.WithTable(name).InfoContext(ctx, "node table created", "id", id, "properties", len(props), "primary_key", primaryKey)
	return id, nil
}

// CreateRelTable creates a relationship table between two node tables.
// Only its schema is stored.
func (db *DB) CreateRelTable(ctx context.Context, name, src, dst string, props []Property) (TableID, error) {
	if err := db.lockWriter(ctx); err != nil {
		return 0, err
	}
	defer db.unlockWriter()

	if err := validateProperties(props); err != nil {
		return 0, err
	}
	db.mu.RLock()
	id, err := db.newTableIDLocked(name)
	var srcID, dstID types.TableID
	if err == nil {
		srcID, err = db.nodeTableIDLocked(src)
	}
	if err == nil {
		dstID, err = db.nodeTableIDLocked(dst)
	}
	db.mu.RUnlock()
	if err != nil {
		return 0, err
	}

	tprops := make([]types.Property, len(props))
	for i, p := range props {
		tprops[i] = types.Property{Name: p.Name, DataType: p.Type, PropertyID: types.PropertyID(i + 1), TableID: id}
	}
	if err := db.logDDL(func() error { return db.wal.LogRelTableRecord(id) }); err != nil {
		return 0, err
	}

	db.mu.Lock()
	db.register(store.NewRelTable(id, name, srcID, dstID, tprops))
	db.nextTableID++
	db.dirty = true
	db.mu.Unlock()

	db.logger.WithTable(name).InfoContext(ctx, "rel table created", "id", id, "src", src, "dst", dst)
	return id, nil
}

func (db *DB) nodeTableIDLocked(name string) (types.TableID, error) {
	id, ok := db.names[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	if db.tables[id].Kind() != store.NodeTableKind {
		return 0, fmt.Errorf("%w: %s is not a node table", ErrInvalidArgument, name)
	}
	return id, nil
}

// DropTable removes a table. A node table referenced by a relationship table
// cannot be dropped.
func (db *DB) DropTable(ctx context.Context, name string) error {
	if err := db.lockWriter(ctx); err != nil {
		return err
	}
	defer db.unlockWriter()

	db.mu.RLock()
	id, ok := db.names[name]
	var referencedBy string
	if ok {
		for _, t := range db.tables {
			if rt, isRel := t.(*store.RelTable); isRel && (rt.SrcTableID() == id || rt.DstTableID() == id) {
				referencedBy = rt.Name()
				break
			}
		}
	}
	db.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	if referencedBy != "" {
		return constraintViolation(ConstraintReferenced, fmt.Errorf("table %s is referenced by %s", name, referencedBy))
	}
	if err := db.logDDL(func() error { return db.wal.LogDropTableRecord(id) }); err != nil {
		return err
	}

	db.publish.Lock()
	db.mu.Lock()
	t := db.tables[id]
	delete(db.tables, id)
	delete(db.names, name)
	if idx, ok := db.indexes[id]; ok {
		delete(db.indexes, id)
		db.dropped = append(db.dropped, idx)
	}
	db.dirty = true
	db.mu.Unlock()
	if t.Kind() == store.NodeTableKind {
		db.stats.RemoveTable(id)
		db.stats.Checkpoint()
	}
	db.publish.Unlock()

	db.logger.WithTable(name).InfoContext(ctx, "table dropped", "id", id)
	return nil
}

// AddProperty adds a property to a table. Existing nodes get def, or NULL
// when def is the zero Value.
func (db *DB) AddProperty(ctx context.Context, table string, p Property, def Value) error {
	if err := db.lockWriter(ctx); err != nil {
		return err
	}
	defer db.unlockWriter()

	db.mu.RLock()
	id, ok := db.names[table]
	t := db.tables[id]
	db.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	existing := t.Properties()
	all := make([]Property, 0, len(existing)+1)
	for _, e := range existing {
		all = append(all, Property{Name: e.Name, Type: e.DataType})
	}
	if err := validateProperties(append(all, p)); err != nil {
		return err
	}
	if def.Type() == 0 {
		def = types.Null(p.Type)
	}
	if def.Type() != p.Type {
		return fmt.Errorf("%w: default for %s is %s, want %s", ErrTypeMismatch, p.Name, def.Type(), p.Type)
	}
	var next types.PropertyID
	for _, e := range existing {
		next = max(next, e.PropertyID)
	}
	prop := types.Property{Name: p.Name, DataType: p.Type, PropertyID: next + 1, TableID: id}

	switch t := t.(type) {
	case *store.NodeTable:
		tx := &transaction.Transaction{ID: db.nextTxID.Add(1) - 1, Type: transaction.Write}
		if err := t.AddProperty(ctx, tx, prop, def); err != nil {
			_ = t.DropProperty(prop.PropertyID)
			t.RollbackInMemory()
			db.file.RollbackShadow()
			return translateError(err)
		}
		if err := db.logDDL(func() error { return db.wal.LogNodeTableRecord(id) }); err != nil {
			_ = t.DropProperty(prop.PropertyID)
			t.RollbackInMemory()
			db.file.RollbackShadow()
			return err
		}
		db.publish.Lock()
		err := db.file.CheckpointShadow(ctx)
		if err == nil {
			t.CheckpointInMemory()
		}
		db.publish.Unlock()
		if err != nil {
			return err
		}
	case *store.RelTable:
		if err := db.logDDL(func() error { return db.wal.LogRelTableRecord(id) }); err != nil {
			return err
		}
		db.mu.Lock()
		t.AddProperty(prop)
		db.mu.Unlock()
	}
	db.markDirty()
	db.logger.WithTable(table).InfoContext(ctx, "property added", "property", p.Name, "type", p.Type)
	return nil
}

// DropProperty removes a property from a table. The primary key cannot be
// dropped.
func (db *DB) DropProperty(ctx context.Context, table, property string) error {
	if err := db.lockWriter(ctx); err != nil {
		return err
	}
	defer db.unlockWriter()

	db.mu.RLock()
	id, ok := db.names[table]
	t := db.tables[id]
	db.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	p, err := findProperty(t.Properties(), property)
	if err != nil {
		return err
	}
	if nt, ok := t.(*store.NodeTable); ok && nt.PrimaryKey().PropertyID == p.PropertyID {
		return constraintViolation(ConstraintPrimaryKey, store.ErrDropPrimaryKey)
	}
	if err := db.logDDL(func() error { return db.wal.LogDropPropertyRecord(id, p.PropertyID) }); err != nil {
		return err
	}

	switch t := t.(type) {
	case *store.NodeTable:
		if err := t.DropProperty(p.PropertyID); err != nil {
			return translateError(err)
		}
	case *store.RelTable:
		db.mu.Lock()
		t.DropProperty(p.PropertyID)
		db.mu.Unlock()
	}
	db.markDirty()
	db.logger.WithTable(table).InfoContext(ctx, "property dropped", "property", property)
	return nil
}
