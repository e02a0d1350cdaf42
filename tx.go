package graphstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/hupe1980/graphstore/internal/store"
	"github.com/hupe1980/graphstore/internal/transaction"
	"github.com/hupe1980/graphstore/internal/types"
)

// Tx is a transaction. A Tx must not be used from more than one goroutine.
//
// A read-only Tx sees the state of the last commit published before each of
// its reads. A write Tx sees its own uncommitted changes and holds the
// database's single writer slot until Commit or Rollback.
type Tx struct {
	db      *DB
	tx      *transaction.Transaction
	touched map[types.TableID]*store.NodeTable
	done    bool
}

// Begin starts a transaction. A write transaction waits for the active
// writer to finish.
func (db *DB) Begin(ctx context.Context, writable bool) (*Tx, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if !writable {
		return &Tx{db: db, tx: &transaction.Transaction{Type: transaction.ReadOnly}}, nil
	}
	if err := db.lockWriter(ctx); err != nil {
		return nil, err
	}
	return &Tx{
		db:      db,
		tx:      &transaction.Transaction{ID: db.nextTxID.Add(1) - 1, Type: transaction.Write},
		touched: make(map[types.TableID]*store.NodeTable),
	}, nil
}

// View runs fn in a read-only transaction.
func (db *DB) View(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.Begin(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}

// Update runs fn in a write transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
//
// Example:
//
//	err := db.Update(ctx, func(tx *graphstore.Tx) error {
//	    _, err := tx.Insert("Person", map[string]graphstore.Value{
//	        "name": graphstore.NewString("alice"),
//	        "age":  graphstore.NewInt64(42),
//	    })
//	    return err
//	})
func (db *DB) Update(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.Begin(ctx, true)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit(ctx)
}

// ID returns the transaction id. Read-only transactions have id zero.
func (tx *Tx) ID() uint64 { return tx.tx.ID }

// Writable reports whether tx is a write transaction.
func (tx *Tx) Writable() bool { return tx.tx.IsWrite() }

// Commit publishes the changes of a write transaction. When Commit fails the
// transaction is rolled back and readers keep seeing the previous state.
// Committed changes become durable at the next checkpoint.
func (tx *Tx) Commit(ctx context.Context) (err error) {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	if !tx.tx.IsWrite() {
		return nil
	}
	db := tx.db
	defer db.unlockWriter()

	start := time.Now()
	tables := tx.touchedTables()
	var inPlace, rewritten int
	defer func() {
		err = translateError(err)
		db.metrics.RecordCommit(time.Since(start), err)
		db.logger.LogCommit(ctx, tx.tx.ID, len(tables), inPlace, rewritten, err)
	}()
	if len(tables) == 0 && !db.stats.HasUpdates() {
		return nil
	}

	for _, t := range tables {
		res, err := t.PrepareCommit(ctx, tx.tx)
		if err != nil {
			tx.rollback()
			return fmt.Errorf("commit table %s: %w", t.Name(), err)
		}
		inPlace += res.InPlace
		rewritten += res.Rewritten
	}
	for _, t := range tables {
		if err := db.wal.LogNodeTableRecord(t.ID()); err != nil {
			tx.rollback()
			return err
		}
	}
	if err := db.wal.LogCommit(tx.tx.ID); err != nil {
		tx.rollback()
		return err
	}

	db.publish.Lock()
	defer db.publish.Unlock()
	if err := db.file.CheckpointShadow(ctx); err != nil {
		tx.rollback()
		return err
	}
	// PrepareCommit checked every key against the index, so CommitIndex only
	// fails on corruption.
	for _, t := range tables {
		if err := t.CommitIndex(); err != nil {
			tx.rollback()
			return fmt.Errorf("commit index of %s: %w", t.Name(), err)
		}
	}
	for _, t := range tables {
		t.CheckpointInMemory()
	}
	db.stats.Checkpoint()
	db.markDirty()
	return nil
}

// Rollback discards the changes of tx. It is a no-op for a finished
// read-only transaction.
func (tx *Tx) Rollback() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	if !tx.tx.IsWrite() {
		return nil
	}
	defer tx.db.unlockWriter()
	tx.rollback()
	return nil
}

func (tx *Tx) rollback() {
	db := tx.db
	for _, t := range tx.touchedTables() {
		t.RollbackInMemory()
	}
	db.stats.Rollback()
	db.file.RollbackShadow()
	if err := db.wal.LogRollback(tx.tx.ID); err != nil {
		db.logger.Warn("failed to log rollback", "tx", tx.tx.ID, "error", err)
	}
	db.metrics.RecordRollback()
	db.logger.Debug("transaction rolled back", "tx", tx.tx.ID)
}

func (tx *Tx) touchedTables() []*store.NodeTable {
	ids := slices.Sorted(maps.Keys(tx.touched))
	out := make([]*store.NodeTable, len(ids))
	for i, id := range ids {
		out[i] = tx.touched[id]
	}
	return out
}

func (tx *Tx) checkActive() error {
	if tx.done {
		return ErrTxDone
	}
	return tx.db.checkOpen()
}

func (tx *Tx) checkWrite() error {
	if err := tx.checkActive(); err != nil {
		return err
	}
	if !tx.tx.IsWrite() {
		return ErrReadOnly
	}
	return nil
}

// read runs fn under the publish lock for read-only transactions. The write
// transaction is the only one that publishes and needs no lock.
func (tx *Tx) read(fn func() error) error {
	if !tx.tx.IsWrite() {
		tx.db.publish.RLock()
		defer tx.db.publish.RUnlock()
	}
	return fn()
}

func (db *DB) nodeTable(name string) (*store.NodeTable, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	id, ok := db.names[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	t, ok := db.tables[id].(*store.NodeTable)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a relationship table", ErrInvalidArgument, name)
	}
	return t, nil
}

func findProperty(props []types.Property, name string) (types.Property, error) {
	i := slices.IndexFunc(props, func(p types.Property) bool { return p.Name == name })
	if i < 0 {
		return types.Property{}, fmt.Errorf("%w: %s", ErrPropertyNotFound, name)
	}
	return props[i], nil
}

// Insert adds a node to table and returns its offset. Missing properties
// are NULL. The primary key must be set and unique.
func (tx *Tx) Insert(table string, values map[string]Value) (Offset, error) {
	if err := tx.checkWrite(); err != nil {
		return types.InvalidOffset, err
	}
	t, err := tx.db.nodeTable(table)
	if err != nil {
		return types.InvalidOffset, err
	}
	props := t.Properties()
	state := &store.InsertState{Values: make(map[types.PropertyID]types.Value, len(values))}
	for name, v := range values {
		p, err := findProperty(props, name)
		if err != nil {
			return types.InvalidOffset, err
		}
		state.Values[p.PropertyID] = v
	}
	if err := t.Insert(tx.tx, state); err != nil {
		return types.InvalidOffset, translateError(err)
	}
	tx.touched[t.ID()] = t
	return state.Offset, nil
}

// Update sets one property of the node at off.
func (tx *Tx) Update(table string, off Offset, property string, v Value) error {
	if err := tx.checkWrite(); err != nil {
		return err
	}
	t, err := tx.db.nodeTable(table)
	if err != nil {
		return err
	}
	p, err := findProperty(t.Properties(), property)
	if err != nil {
		return err
	}
	if err := t.Update(tx.tx, &store.UpdateState{Offset: off, PropertyID: p.PropertyID, Value: v}); err != nil {
		return translateError(err)
	}
	tx.touched[t.ID()] = t
	return nil
}

// Delete removes the node at off. Its offset may be reused by a later insert.
func (tx *Tx) Delete(table string, off Offset) error {
	if err := tx.checkWrite(); err != nil {
		return err
	}
	t, err := tx.db.nodeTable(table)
	if err != nil {
		return err
	}
	if err := t.Delete(tx.tx, &store.DeleteState{Offset: off}); err != nil {
		return translateError(err)
	}
	tx.touched[t.ID()] = t
	return nil
}

// LookupPK returns the offset of the node with primary key key.
// It returns ErrNotFound when no live node has that key.
func (tx *Tx) LookupPK(table string, key Value) (Offset, error) {
	if err := tx.checkActive(); err != nil {
		return types.InvalidOffset, err
	}
	t, err := tx.db.nodeTable(table)
	if err != nil {
		return types.InvalidOffset, err
	}
	if pk := t.PrimaryKey(); key.Type() != pk.DataType {
		return types.InvalidOffset, fmt.Errorf("%w: primary key %s is %s, got %s", ErrTypeMismatch, pk.Name, pk.DataType, key.Type())
	}
	off := types.InvalidOffset
	var found bool
	err = tx.read(func() (err error) {
		off, found, err = t.LookupPK(tx.tx, key)
		return err
	})
	if err != nil {
		return types.InvalidOffset, translateError(err)
	}
	if !found {
		return types.InvalidOffset, fmt.Errorf("%w: %s key %s", ErrNotFound, table, key)
	}
	return off, nil
}

// Get returns the node at off. Without properties every property is read.
func (tx *Tx) Get(table string, off Offset, properties ...string) (Row, error) {
	if err := tx.checkActive(); err != nil {
		return Row{}, err
	}
	t, err := tx.db.nodeTable(table)
	if err != nil {
		return Row{}, err
	}
	props, err := selectProperties(t.Properties(), properties)
	if err != nil {
		return Row{}, err
	}
	ids := make([]types.PropertyID, len(props))
	for i, p := range props {
		ids[i] = p.PropertyID
	}

	var vecs []*types.Vector
	err = tx.read(func() error {
		if ok, err := t.Exists(tx.tx, off); err != nil || !ok {
			if err == nil {
				err = fmt.Errorf("%w: %s offset %d", ErrNotFound, table, off)
			}
			return err
		}
		vecs, err = t.Lookup(tx.tx, []types.Offset{off}, ids)
		return err
	})
	if err != nil {
		return Row{}, translateError(err)
	}
	row := Row{Offset: off, Values: make(map[string]Value, len(props))}
	for i, p := range props {
		row.Values[p.Name] = vecs[i].Get(0)
	}
	return row, nil
}

// Count returns the number of live nodes of table.
func (tx *Tx) Count(table string) (uint64, error) {
	if err := tx.checkActive(); err != nil {
		return 0, err
	}
	t, err := tx.db.nodeTable(table)
	if err != nil {
		return 0, err
	}
	var n uint64
	err = tx.read(func() (err error) {
		n, err = t.NumNodes(tx.tx)
		return err
	})
	return n, translateError(err)
}

func selectProperties(props []types.Property, names []string) ([]types.Property, error) {
	if len(names) == 0 {
		return props, nil
	}
	out := make([]types.Property, len(names))
	for i, name := range names {
		p, err := findProperty(props, name)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}
