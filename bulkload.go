package graphstore

import (
	"context"
	"fmt"
	"iter"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/graphstore/internal/indexbuilder"
	"github.com/hupe1980/graphstore/internal/store"
	"github.com/hupe1980/graphstore/internal/transaction"
	"github.com/hupe1980/graphstore/internal/types"
	"golang.org/x/sync/errgroup"
)

// RowSource yields rows with one value per property, in the table's
// property order.
type RowSource = iter.Seq2[[]Value, error]

// BulkLoadOptions configures BulkLoad.
type BulkLoadOptions struct {
	// IndexWorkers is the number of goroutines inserting primary keys into
	// the index. Producers drain the queues themselves when it is zero.
	IndexWorkers int
	// IndexQueueSize is the number of key buffers each index shard queues.
	IndexQueueSize int
	// IndexBufferSize is the number of keys a producer buffers per shard.
	IndexBufferSize int
	// ExpectedRows sizes the primary key index before loading. When zero the
	// index grows by one node group at a time as groups are appended.
	ExpectedRows uint64
}

// DefaultBulkLoadOptions returns the defaults used by BulkLoad.
func DefaultBulkLoadOptions() BulkLoadOptions {
	return BulkLoadOptions{
		IndexWorkers:    runtime.GOMAXPROCS(0),
		IndexQueueSize:  16,
		IndexBufferSize: 1024,
	}
}

// BulkLoadResult summarizes a bulk load.
type BulkLoadResult struct {
	Rows       uint64
	NodeGroups int
	Duration   time.Duration
}

// BulkLoad fills an empty node table from sources, one producer goroutine per
// source. Rows of one source keep their relative order; rows of different
// sources interleave by node group.
//
// The load is all or nothing: on error the table stays empty. Duplicate
// primary keys are only detected once every row is read.
//
// Example:
//
//	rows := func(yield func([]graphstore.Value, error) bool) {
//	    for i := range 1000 {
//	        if !yield([]graphstore.Value{graphstore.NewInt64(int64(i))}, nil) {
//	            return
//	        }
//	    }
//	}
//	res, err := db.BulkLoad(ctx, "Person", []graphstore.RowSource{rows})
func (db *DB) BulkLoad(ctx context.Context, table string, sources []RowSource, optFns ...func(o *BulkLoadOptions)) (res BulkLoadResult, err error) {
	opts := DefaultBulkLoadOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := db.lockWriter(ctx); err != nil {
		return BulkLoadResult{}, err
	}
	defer db.unlockWriter()

	start := time.Now()
	defer func() {
		err = translateError(err)
		res.Duration = time.Since(start)
		db.metrics.RecordBulkLoad(res.Rows, res.Duration, err)
		db.logger.LogBulkLoad(ctx, table, res.Rows, res.NodeGroups, res.Duration, err)
	}()

	t, err := db.nodeTable(table)
	if err != nil {
		return BulkLoadResult{}, err
	}
	maxOff, err := db.stats.GetMaxNodeOffset(transaction.DummyRead, t.ID())
	if err != nil {
		return BulkLoadResult{}, err
	}
	if maxOff != types.InvalidOffset {
		return BulkLoadResult{}, fmt.Errorf("%w: %s", ErrTableNotEmpty, table)
	}

	db.mu.RLock()
	idx := db.indexes[t.ID()]
	db.mu.RUnlock()

	l := &bulkLoader{
		db:       db,
		table:    t,
		colTypes: t.ColumnTypes(),
		pkPos:    pkPosition(t),
		capacity: db.cfg.NodeGroupSize(),
	}
	if opts.ExpectedRows > 0 {
		idx.BulkReserve(opts.ExpectedRows)
	} else {
		l.reserve = idx
	}

	ib := indexbuilder.New(idx, func(o *indexbuilder.Options) {
		o.NumWorkers = opts.IndexWorkers
		o.QueueSize = opts.IndexQueueSize
		o.BufferSize = opts.IndexBufferSize
		o.Resource = db.rc
		o.Logger = db.logger.Logger
	})
	ib.Start(ctx)

	err = l.run(ctx, ib, sources)
	if ferr := ib.Finalize(ctx); err == nil {
		err = ferr
	}
	if err == nil {
		err = l.commit(ctx)
	}
	if err != nil {
		t.RollbackInMemory()
		idx.Reset()
		db.stats.Rollback()
		return BulkLoadResult{}, err
	}
	return BulkLoadResult{Rows: l.rows.Load(), NodeGroups: int(l.nextGroup.Load())}, nil
}

func pkPosition(t *store.NodeTable) int {
	pk := t.PrimaryKey().PropertyID
	for i, p := range t.Properties() {
		if p.PropertyID == pk {
			return i
		}
	}
	panic(fmt.Sprintf("graphstore: table %s has no primary key column", t.Name()))
}

type bulkLoader struct {
	db       *DB
	table    *store.NodeTable
	colTypes []types.PhysicalType
	pkPos    int
	capacity uint64
	// reserve grows the index ahead of each appended group when no row
	// count was given.
	reserve interface{ BulkReserve(n uint64) }

	nextGroup atomic.Uint64
	rows      atomic.Uint64

	mu        sync.Mutex
	leftovers []*store.NodeGroup
}

// groupBytes estimates the memory of one node group buffer.
func (l *bulkLoader) groupBytes() int64 {
	var rowBytes int64
	for _, t := range l.colTypes {
		if size := t.Size(); size > 0 {
			rowBytes += int64(size)
		} else {
			rowBytes += 16
		}
	}
	return rowBytes * int64(l.capacity)
}

func (l *bulkLoader) run(ctx context.Context, ib *indexbuilder.IndexBuilder, sources []RowSource) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error { return l.produce(gctx, ib, src) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Partial groups are merged so that only the last node group is partial.
	lb := ib.NewLocalBuffers()
	shared := store.NewNodeGroup(l.colTypes, l.capacity)
	for _, lo := range l.leftovers {
		for pos := uint64(0); pos < lo.NumRows(); {
			pos += shared.Merge(lo, pos)
			if shared.IsFull() {
				if err := l.appendGroup(ctx, lb, shared); err != nil {
					return err
				}
			}
		}
	}
	if shared.NumRows() > 0 {
		if err := l.appendGroup(ctx, lb, shared); err != nil {
			return err
		}
	}
	return ib.FinishedProducing(ctx, lb)
}

func (l *bulkLoader) produce(ctx context.Context, ib *indexbuilder.IndexBuilder, src RowSource) error {
	n := l.groupBytes()
	if err := l.db.rc.WaitMemory(ctx, n); err != nil {
		return err
	}
	defer l.db.rc.ReleaseMemory(n)

	lb := ib.NewLocalBuffers()
	group := store.NewNodeGroup(l.colTypes, l.capacity)
	for row, err := range src {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.checkRow(row); err != nil {
			return err
		}
		group.AppendRow(row)
		if group.IsFull() {
			if err := l.appendGroup(ctx, lb, group); err != nil {
				return err
			}
		}
	}
	if group.NumRows() > 0 {
		l.mu.Lock()
		l.leftovers = append(l.leftovers, group)
		l.mu.Unlock()
	}
	return ib.FinishedProducing(ctx, lb)
}

func (l *bulkLoader) checkRow(row []Value) error {
	if len(row) != len(l.colTypes) {
		return fmt.Errorf("%w: row has %d values, table %s has %d properties", ErrInvalidArgument, len(row), l.table.Name(), len(l.colTypes))
	}
	for i, v := range row {
		if v.Type() != l.colTypes[i] {
			return fmt.Errorf("%w: value %d is %s, want %s", ErrTypeMismatch, i, v.Type(), l.colTypes[i])
		}
	}
	if row[l.pkPos].IsNull() {
		return constraintViolation(ConstraintNotNull, fmt.Errorf("primary key of table %s", l.table.Name()))
	}
	return nil
}

// appendGroup writes group as the next node group, routes its keys to the
// index and empties it.
func (l *bulkLoader) appendGroup(ctx context.Context, lb *indexbuilder.LocalBuffers, group *store.NodeGroup) error {
	ngIdx := l.nextGroup.Add(1) - 1
	base := ngIdx * l.capacity
	if l.reserve != nil {
		l.reserve.BulkReserve(group.NumRows())
	}
	keys := group.Chunk(l.pkPos)
	for pos := range group.NumRows() {
		if err := lb.Insert(ctx, keys.Get(pos), base+pos); err != nil {
			return err
		}
	}
	if err := l.table.AppendNodeGroup(ctx, ngIdx, group); err != nil {
		return err
	}
	l.rows.Add(group.NumRows())
	group.Reset()
	return nil
}

func (l *bulkLoader) commit(ctx context.Context) error {
	db := l.db
	id := l.table.ID()
	if _, err := db.stats.AddNodes(id, l.rows.Load()); err != nil {
		return err
	}
	if err := db.logDDL(func() error { return db.wal.LogNodeTableRecord(id) }); err != nil {
		return err
	}
	db.publish.Lock()
	l.table.CheckpointInMemory()
	db.stats.Checkpoint()
	db.publish.Unlock()
	db.markDirty()
	db.logger.WithTable(l.table.Name()).DebugContext(ctx, "bulk load published", "rows", l.rows.Load())
	return nil
}
