package graphstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/graphstore/internal/cache"
	"github.com/hupe1980/graphstore/internal/hashindex"
	"github.com/hupe1980/graphstore/internal/manifest"
	"github.com/hupe1980/graphstore/internal/pagefile"
	"github.com/hupe1980/graphstore/internal/resource"
	"github.com/hupe1980/graphstore/internal/stats"
	"github.com/hupe1980/graphstore/internal/store"
	"github.com/hupe1980/graphstore/internal/types"
	"github.com/hupe1980/graphstore/internal/wal"
	"golang.org/x/sync/semaphore"
)

const (
	dataFileName = "data.gs"
	walFileName  = "wal.log"
	// keepManifests is the number of manifest versions kept on disk.
	keepManifests = 2
)

// pkIndexFileName names the primary key index of table id written for
// manifest version. Every checkpoint writes a new file, so the file named by
// the current manifest is never modified.
func pkIndexFileName(id types.TableID, version uint64) string {
	return fmt.Sprintf("pk-%06d-%06d.idx", id, version)
}

// DB is an embedded graph store.
//
// DB admits one writer at a time: a write transaction, a schema change, a
// bulk load or a checkpoint. Read-only transactions run concurrently with the
// writer and see the state of the last commit.
type DB struct {
	dir     string
	opts    options
	logger  *Logger
	metrics MetricsCollector
	fs      FileSystem
	rc      *resource.Controller
	cache   *cache.Sharded

	file      *pagefile.FileHandle
	wal       *wal.WAL
	manifests *manifest.Store
	stats     *stats.TablesStatistics
	cfg       store.Config

	writer *semaphore.Weighted
	// publish is held exclusively while committed changes become visible.
	publish sync.RWMutex

	mu          sync.RWMutex
	tables      map[types.TableID]store.Table
	names       map[string]types.TableID
	indexes     map[types.TableID]*hashindex.PrimaryKeyIndexBuilder
	nextTableID types.TableID
	// dropped indexes lose their files at the next checkpoint.
	dropped    []*hashindex.PrimaryKeyIndexBuilder
	manifestID uint64
	dirty      bool

	nextTxID atomic.Uint64
	closed   atomic.Bool
}

// Open opens the database in dir, creating it if it does not exist.
//
// Example:
//
//	db, err := graphstore.Open(ctx, "./data", graphstore.WithLogLevel(slog.LevelInfo))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(ctx context.Context, dir string, optFns ...Option) (_ *DB, err error) {
	o := applyOptions(optFns)
	if o.nodeGroupSizeLog2 < minNodeGroupSizeLog2 || o.nodeGroupSizeLog2 > maxNodeGroupSizeLog2 {
		return nil, fmt.Errorf("%w: node group size 2^%d outside [2^%d, 2^%d]", ErrInvalidArgument, o.nodeGroupSizeLog2, minNodeGroupSizeLog2, maxNodeGroupSizeLog2)
	}
	if o.numIndexShards <= 0 || o.numIndexShards&(o.numIndexShards-1) != 0 {
		return nil, fmt.Errorf("%w: %d index shards is not a power of two", ErrInvalidArgument, o.numIndexShards)
	}
	if !o.readOnly {
		if err := o.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db := &DB{
		dir:       dir,
		opts:      o,
		logger:    o.logger,
		metrics:   o.metricsCollector,
		fs:        o.fs,
		rc:        resource.NewController(o.limits),
		manifests: manifest.NewStore(o.fs, dir),
		stats:     stats.New(),
		writer:    semaphore.NewWeighted(1),
		tables:    make(map[types.TableID]store.Table),
		names:     make(map[string]types.TableID),
		indexes:   make(map[types.TableID]*hashindex.PrimaryKeyIndexBuilder),
	}
	defer func() {
		if err != nil {
			_ = db.closeFiles()
		}
	}()

	m, err := db.manifests.Load()
	switch {
	case errors.Is(err, manifest.ErrNotFound):
		m = manifest.New(o.nodeGroupSizeLog2)
	case err != nil:
		return nil, translateError(fmt.Errorf("load manifest: %w", err))
	case m.NodeGroupSizeLog2 != o.nodeGroupSizeLog2:
		db.logger.WarnContext(ctx, "node group size differs from the existing database, keeping the existing one",
			"requested", o.nodeGroupSizeLog2,
			"existing", m.NodeGroupSizeLog2,
		)
	}
	db.manifestID = m.ID
	db.nextTableID = m.NextTableID
	db.nextTxID.Store(max(m.NextTxID, 1))

	if o.pageCacheBytes > 0 {
		db.cache = cache.NewSharded(o.pageCacheBytes, db.rc)
	}
	pfOpts := pagefile.Options{Resource: db.rc, Logger: db.logger.Logger}
	if db.cache != nil {
		pfOpts.Cache = db.cache
	}
	if db.file, err = pagefile.Open(db.fs, filepath.Join(dir, dataFileName), pfOpts); err != nil {
		return nil, err
	}
	// Pages reserved but never written do not exist in the file.
	if n := db.file.NumPages(); n < m.NumDataPages {
		db.file.AddNewPages(m.NumDataPages - n)
	}
	db.cfg = store.Config{
		File:              db.file,
		NodeGroupSizeLog2: m.NodeGroupSizeLog2,
		EnableCompression: o.compression,
		Logger:            db.logger.Logger,
	}

	if len(m.Stats) > 0 {
		if err := db.stats.UnmarshalBinary(m.Stats); err != nil {
			return nil, translateError(err)
		}
	}
	if err := db.loadTables(m); err != nil {
		return nil, translateError(err)
	}
	if !o.readOnly {
		db.removeOrphanIndexes(ctx, m)
	}

	if !o.readOnly {
		if db.wal, err = wal.Open(db.fs, filepath.Join(dir, walFileName), func(wo *wal.Options) {
			wo.CompressionLevel = o.walCompression
			wo.Logger = db.logger.Logger
			if !o.walSync {
				wo.Durability = wal.DurabilityAsync
			}
		}); err != nil {
			return nil, translateError(err)
		}
		if err := db.inspectWAL(ctx); err != nil {
			return nil, translateError(err)
		}
	}

	db.logger.InfoContext(ctx, "database opened",
		"dir", dir,
		"manifest", m.ID,
		"tables", len(m.Tables),
		"read_only", o.readOnly,
	)
	return db, nil
}

func (db *DB) loadTables(m *manifest.Manifest) error {
	for _, info := range m.Tables {
		switch info.Kind {
		case manifest.NodeTable:
			i := slices.IndexFunc(info.Properties, func(p types.Property) bool { return p.PropertyID == info.PrimaryKey })
			if i < 0 {
				return fmt.Errorf("%w: table %s has no primary key property", ErrCorrupt, info.Name)
			}
			idx, err := hashindex.Open(db.fs, filepath.Join(db.dir, info.PKIndexPath), info.Properties[i].DataType, hashindex.Options{Logger: db.logger.Logger})
			if err != nil {
				return fmt.Errorf("table %s: open primary key index: %w", info.Name, err)
			}
			headers := make(map[types.PropertyID]store.ColumnHeader, len(info.Columns))
			for _, c := range info.Columns {
				headers[c.PropertyID] = store.ColumnHeader{
					Metadata:    c.Metadata,
					Nulls:       c.Nulls,
					Dictionary:  c.Dictionary,
					MayHaveNull: c.MayHaveNull,
				}
			}
			t, err := store.LoadNodeTable(info.ID, info.Name, info.Properties, info.PrimaryKey, db.cfg, db.stats, idx, headers)
			if err != nil {
				_ = idx.Close()
				return err
			}
			db.indexes[info.ID] = idx
			db.register(t)
		case manifest.RelTable:
			db.register(store.NewRelTable(info.ID, info.Name, info.SrcTableID, info.DstTableID, info.Properties))
		default:
			return fmt.Errorf("%w: table %s has kind %d", ErrCorrupt, info.Name, info.Kind)
		}
	}
	return nil
}

// removeOrphanIndexes deletes index files no table of m points at. They are
// left behind by a crash during a checkpoint or before the first checkpoint
// of a table.
func (db *DB) removeOrphanIndexes(ctx context.Context, m *manifest.Manifest) {
	entries, err := db.fs.ReadDir(db.dir)
	if err != nil {
		db.logger.WarnContext(ctx, "failed to list index files", "error", err)
		return
	}
	live := make(map[string]struct{}, len(m.Tables))
	for _, info := range m.Tables {
		if info.PKIndexPath != "" {
			live[info.PKIndexPath] = struct{}{}
		}
	}
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".ovf")
		if !strings.HasPrefix(name, "pk-") || !strings.HasSuffix(name, ".idx") {
			continue
		}
		if _, ok := live[name]; ok {
			continue
		}
		if err := db.fs.Remove(filepath.Join(db.dir, e.Name())); err != nil {
			db.logger.WarnContext(ctx, "failed to delete orphaned index file", "file", e.Name(), "error", err)
			continue
		}
		db.logger.DebugContext(ctx, "deleted orphaned index file", "file", e.Name())
	}
}

func (db *DB) register(t store.Table) {
	db.tables[t.ID()] = t
	db.names[t.Name()] = t.ID()
}

// inspectWAL reports transactions the last checkpoint does not cover and
// truncates the log. Committed changes only reach disk through a checkpoint,
// so they cannot be replayed.
func (db *DB) inspectWAL(ctx context.Context) error {
	var records, commits int
	for rec, err := range db.wal.Records() {
		if err != nil {
			db.logger.WarnContext(ctx, "ignoring torn WAL tail", "records", records, "error", err)
			break
		}
		records++
		switch rec.Type {
		case wal.RecordTypeCommit:
			commits++
		case wal.RecordTypeCheckpoint:
			commits = 0
		}
	}
	db.logger.LogRecovery(ctx, records, commits, nil)
	if records == 0 {
		return nil
	}
	return db.wal.Checkpoint()
}

// Dir returns the database directory.
func (db *DB) Dir() string { return db.dir }

// ManifestID returns the id of the last checkpoint. It is zero before the
// first checkpoint.
func (db *DB) ManifestID() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.manifestID
}

func (db *DB) checkOpen() error {
	if db.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (db *DB) checkWritable() error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if db.opts.readOnly {
		return ErrReadOnly
	}
	return nil
}

// lockWriter waits for the writer slot of a writable, open database.
func (db *DB) lockWriter(ctx context.Context) error {
	if err := db.checkWritable(); err != nil {
		return err
	}
	if err := db.writer.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := db.checkOpen(); err != nil {
		db.writer.Release(1)
		return err
	}
	return nil
}

func (db *DB) unlockWriter() { db.writer.Release(1) }

func (db *DB) markDirty() {
	db.mu.Lock()
	db.dirty = true
	db.mu.Unlock()
}

// Checkpoint makes every committed change durable: it flushes the column
// metadata and primary key indexes, writes a new manifest and truncates the
// WAL. It waits for the active writer to finish.
func (db *DB) Checkpoint(ctx context.Context) error {
	if err := db.lockWriter(ctx); err != nil {
		return err
	}
	defer db.unlockWriter()
	return db.checkpointLocked(ctx)
}

func (db *DB) checkpointLocked(ctx context.Context) (err error) {
	start := time.Now()
	var manifestID uint64
	defer func() {
		err = translateError(err)
		db.metrics.RecordCheckpoint(time.Since(start), err)
		db.logger.LogCheckpoint(ctx, manifestID, time.Since(start), err)
	}()

	db.mu.RLock()
	m := manifest.New(db.cfg.NodeGroupSizeLog2)
	m.ID = db.manifestID
	m.NextTableID = db.nextTableID
	ids := make([]types.TableID, 0, len(db.tables))
	for id := range db.tables {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	tables := make([]store.Table, len(ids))
	for i, id := range ids {
		tables[i] = db.tables[id]
	}
	db.mu.RUnlock()

	// Indexes are written to files named for the next manifest. The files of
	// the current manifest are removed once the new one is saved.
	version := m.ID + 1
	var replaced []string
	for _, t := range tables {
		info := manifest.TableInfo{ID: t.ID(), Name: t.Name(), Properties: t.Properties()}
		switch t := t.(type) {
		case *store.NodeTable:
			name := pkIndexFileName(t.ID(), version)
			prev, cols, err := db.flushNodeTable(ctx, t, filepath.Join(db.dir, name))
			if err != nil {
				return err
			}
			if prev != "" {
				replaced = append(replaced, prev)
			}
			info.Columns = cols
			info.Kind = manifest.NodeTable
			info.PrimaryKey = t.PrimaryKey().PropertyID
			info.PKIndexPath = name
		case *store.RelTable:
			info.Kind = manifest.RelTable
			info.SrcTableID = t.SrcTableID()
			info.DstTableID = t.DstTableID()
		}
		m.Tables = append(m.Tables, info)
	}
	if m.Stats, err = db.stats.MarshalBinary(); err != nil {
		return err
	}
	if err := db.file.Sync(); err != nil {
		return fmt.Errorf("sync data file: %w", err)
	}
	m.NumDataPages = db.file.NumPages()
	m.NextTxID = db.nextTxID.Load()
	if err := db.manifests.Save(m); err != nil {
		return err
	}
	manifestID = m.ID

	db.mu.Lock()
	db.manifestID = m.ID
	db.dirty = false
	dropped := db.dropped
	db.dropped = nil
	db.mu.Unlock()

	for _, idx := range dropped {
		if err := idx.Drop(); err != nil {
			db.logger.WarnContext(ctx, "failed to delete dropped index", "path", idx.Path(), "error", err)
		}
	}
	for _, path := range replaced {
		if err := hashindex.RemoveFiles(db.fs, path); err != nil {
			db.logger.WarnContext(ctx, "failed to delete replaced index", "path", path, "error", err)
		}
	}
	if err := db.manifests.Prune(keepManifests); err != nil {
		db.logger.WarnContext(ctx, "failed to prune manifests", "error", err)
	}
	return db.wal.Checkpoint()
}

// flushNodeTable flushes the column metadata of t and writes its index to
// indexPath. It returns the index file that indexPath replaces.
func (db *DB) flushNodeTable(ctx context.Context, t *store.NodeTable, indexPath string) (string, []manifest.ColumnInfo, error) {
	hdrs, err := t.Flush(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("flush table %s: %w", t.Name(), err)
	}
	db.mu.RLock()
	idx := db.indexes[t.ID()]
	db.mu.RUnlock()
	prev := idx.Path()
	if err := idx.FlushTo(ctx, indexPath); err != nil {
		return "", nil, fmt.Errorf("flush primary key index of %s: %w", t.Name(), err)
	}
	if prev == indexPath {
		prev = ""
	}
	cols := make([]manifest.ColumnInfo, 0, len(hdrs))
	for _, p := range t.Properties() {
		hdr, ok := hdrs[p.PropertyID]
		if !ok {
			continue
		}
		cols = append(cols, manifest.ColumnInfo{
			PropertyID:  p.PropertyID,
			Metadata:    hdr.Metadata,
			Nulls:       hdr.Nulls,
			Dictionary:  hdr.Dictionary,
			MayHaveNull: hdr.MayHaveNull,
		})
	}
	return prev, cols, nil
}

// Close checkpoints pending changes and releases all files. It waits for the
// active writer to finish.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	ctx := context.Background()
	_ = db.writer.Acquire(ctx, 1)
	defer db.writer.Release(1)

	var errs []error
	db.mu.RLock()
	dirty := db.dirty
	db.mu.RUnlock()
	if !db.opts.readOnly && dirty {
		errs = append(errs, db.checkpointLocked(ctx))
	}
	errs = append(errs, db.closeFiles())
	db.logger.InfoContext(ctx, "database closed", "dir", db.dir)
	return errors.Join(errs...)
}

func (db *DB) closeFiles() error {
	var errs []error
	if db.wal != nil {
		errs = append(errs, db.wal.Close())
	}
	for _, idx := range db.indexes {
		errs = append(errs, idx.Close())
	}
	if db.file != nil {
		errs = append(errs, db.file.Close())
	}
	return errors.Join(errs...)
}
