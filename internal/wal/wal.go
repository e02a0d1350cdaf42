// Package wal implements the write-ahead log the storage layer reports its
// changes to. Tables log which tables and properties a transaction touched;
// the database logs commit, rollback and checkpoint markers.
package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"sync"

	"github.com/hupe1980/graphstore/internal/fs"
	"github.com/hupe1980/graphstore/internal/types"
	"github.com/klauspost/compress/zstd"
)

// Durability controls the durability guarantees of the WAL.
type Durability int

const (
	// DurabilityAsync relies on OS page cache. Fast but risky.
	DurabilityAsync Durability = iota
	// DurabilitySync calls fsync after every write. Slow but safe.
	DurabilitySync
)

const (
	walMagic      = "GRAPHWAL" // 8 bytes
	walVersion    = 1          // 2 bytes
	walHeaderSize = 12

	flagCompressed = 1
)

var (
	ErrIncompatibleVersion = errors.New("wal: incompatible version")
	ErrInvalidHeader       = errors.New("wal: invalid header")
)

type Options struct {
	Durability Durability
	// CompressionLevel enables zstd stream compression of new logs when
	// positive. Existing logs keep the mode recorded in their header.
	CompressionLevel int
	Logger           *slog.Logger
}

func DefaultOptions() Options {
	return Options{Durability: DurabilitySync}
}

// WAL manages the write-ahead log file.
type WAL struct {
	mu   sync.Mutex
	fs   fs.FileSystem
	file fs.File
	cw   *countingWriter
	enc  *zstd.Encoder
	path string
	opts Options

	compressed bool
	level      int
	lsn        uint64
	logger     *slog.Logger

	// Group commit state
	syncedOffset int64      // Offset known to be fsync'd
	syncCond     *sync.Cond // Signals the syncer that there is data to sync
	doneCond     *sync.Cond // Signals waiters that a sync completed
	closed       bool
	lastErr      error // Terminal error encountered by background syncer
	wg           sync.WaitGroup
}

type countingWriter struct {
	w *bufio.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func (cw *countingWriter) Flush() error {
	return cw.w.Flush()
}

func encodeHeader(compressed bool, level int) []byte {
	header := make([]byte, walHeaderSize)
	copy(header[0:8], walMagic)
	binary.LittleEndian.PutUint16(header[8:10], walVersion)
	if compressed {
		header[10] = flagCompressed
		header[11] = uint8(level)
	}
	return header
}

func decodeHeader(header []byte) (compressed bool, level int, err error) {
	if string(header[0:8]) != walMagic {
		return false, 0, fmt.Errorf("%w: invalid magic %q", ErrInvalidHeader, header[0:8])
	}
	if ver := binary.LittleEndian.Uint16(header[8:10]); ver != walVersion {
		return false, 0, fmt.Errorf("%w: version %d (expected %d)", ErrIncompatibleVersion, ver, walVersion)
	}
	return header[10]&flagCompressed != 0, int(header[11]), nil
}

// Open opens or creates a WAL at the given path.
func Open(fsys fs.FileSystem, path string, optFns ...func(o *Options)) (*WAL, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if fsys == nil {
		fsys = fs.Default
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	f, err := fsys.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	offset := stat.Size()

	compressed, level := opts.CompressionLevel > 0, opts.CompressionLevel
	if offset == 0 {
		if _, err := f.Write(encodeHeader(compressed, level)); err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return nil, err
		}
		offset = walHeaderSize
	} else {
		if offset < walHeaderSize {
			_ = f.Close()
			return nil, fmt.Errorf("%w: file too small (%d < %d)", ErrInvalidHeader, offset, walHeaderSize)
		}
		header := make([]byte, walHeaderSize)
		if _, err := f.ReadAt(header, 0); err != nil {
			_ = f.Close()
			return nil, err
		}
		if compressed, level, err = decodeHeader(header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	w := &WAL{
		fs:           fsys,
		file:         f,
		cw:           &countingWriter{w: bufio.NewWriter(f), n: offset},
		path:         path,
		opts:         opts,
		compressed:   compressed,
		level:        level,
		logger:       logger.With("wal", path),
		syncedOffset: offset,
	}
	if compressed {
		enc, err := zstd.NewWriter(w.cw, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("wal: create compressor: %w", err)
		}
		w.enc = enc
	}
	w.syncCond = sync.NewCond(&w.mu)
	w.doneCond = sync.NewCond(&w.mu)

	if opts.Durability == DurabilitySync {
		w.wg.Add(1)
		go w.runSyncer()
	}
	w.logger.Debug("opened wal", "size", offset, "compressed", compressed)
	return w, nil
}

// Size returns the current size of the WAL in bytes.
func (w *WAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cw.n
}

// Compressed reports whether records are zstd compressed.
func (w *WAL) Compressed() bool { return w.compressed }

func (w *WAL) runSyncer() {
	defer w.wg.Done()
	w.mu.Lock()
	defer w.mu.Unlock()

	for {
		for w.cw.n <= w.syncedOffset && !w.closed {
			w.syncCond.Wait()
		}
		if w.closed && w.cw.n <= w.syncedOffset {
			return
		}

		target := w.cw.n
		w.mu.Unlock()
		err := w.file.Sync()
		w.mu.Lock()

		if err != nil {
			w.lastErr = fmt.Errorf("wal: sync failed: %w", err)
			w.doneCond.Broadcast()
			return
		}
		if target > w.syncedOffset {
			w.syncedOffset = target
		}
		w.doneCond.Broadcast()
	}
}

// Append writes a record to the WAL and assigns its LSN.
// It respects the configured durability mode.
func (w *WAL) Append(rec *Record) error {
	offset, err := w.AppendAsync(rec)
	if err != nil {
		return err
	}
	if w.opts.Durability == DurabilitySync {
		return w.WaitFor(offset)
	}
	return nil
}

// AppendAsync writes a record to the WAL buffer but does not wait for sync.
// It returns the file offset of the end of the record.
func (w *WAL) AppendAsync(rec *Record) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}
	if w.lastErr != nil {
		return 0, w.lastErr
	}

	w.lsn++
	rec.LSN = w.lsn
	if err := w.writeLocked(rec); err != nil {
		return 0, err
	}

	endOffset := w.cw.n
	if w.opts.Durability == DurabilitySync {
		w.syncCond.Signal()
	}
	return endOffset, nil
}

func (w *WAL) writeLocked(rec *Record) error {
	if w.enc != nil {
		if err := rec.Encode(w.enc); err != nil {
			return err
		}
		if err := w.enc.Flush(); err != nil {
			return err
		}
	} else if err := rec.Encode(w.cw); err != nil {
		return err
	}
	return w.cw.Flush()
}

// WaitFor waits until the WAL is synced up to the given offset.
func (w *WAL) WaitFor(offset int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for w.syncedOffset < offset && !w.closed && w.lastErr == nil {
		w.doneCond.Wait()
	}
	if w.lastErr != nil {
		return w.lastErr
	}
	if w.closed && w.syncedOffset < offset {
		return os.ErrClosed
	}
	return nil
}

// LogNodeTableRecord records that the current transaction changed a node table.
func (w *WAL) LogNodeTableRecord(tableID types.TableID) error {
	return w.Append(&Record{Type: RecordTypeNodeTable, TableID: tableID})
}

// LogRelTableRecord records that the current transaction changed a rel table.
func (w *WAL) LogRelTableRecord(tableID types.TableID) error {
	return w.Append(&Record{Type: RecordTypeRelTable, TableID: tableID})
}

func (w *WAL) LogDropTableRecord(tableID types.TableID) error {
	return w.Append(&Record{Type: RecordTypeDropTable, TableID: tableID})
}

func (w *WAL) LogDropPropertyRecord(tableID types.TableID, propertyID types.PropertyID) error {
	return w.Append(&Record{Type: RecordTypeDropProperty, TableID: tableID, PropertyID: propertyID})
}

func (w *WAL) LogCommit(txID uint64) error {
	return w.Append(&Record{Type: RecordTypeCommit, TxID: txID})
}

func (w *WAL) LogRollback(txID uint64) error {
	return w.Append(&Record{Type: RecordTypeRollback, TxID: txID})
}

// Checkpoint logs a checkpoint marker, makes it durable and truncates the
// log. Everything before the marker is covered by the checkpointed files.
func (w *WAL) Checkpoint() error {
	if err := w.Append(&Record{Type: RecordTypeCheckpoint}); err != nil {
		return err
	}
	if err := w.Sync(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc != nil {
		if err := w.enc.Close(); err != nil {
			return err
		}
		if err := w.cw.Flush(); err != nil {
			return err
		}
	}
	if err := w.fs.Truncate(w.path, walHeaderSize); err != nil {
		return fmt.Errorf("wal: truncate: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.cw.n = walHeaderSize
	w.syncedOffset = walHeaderSize
	if w.enc != nil {
		w.enc.Reset(w.cw)
	}
	w.logger.Debug("wal truncated", "lsn", w.lsn)
	return nil
}

// Sync ensures all buffered writes are committed to stable storage.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}
	if w.lastErr != nil {
		return w.lastErr
	}
	if err := w.cw.Flush(); err != nil {
		return err
	}

	// The syncer only runs in sync mode.
	if w.opts.Durability == DurabilityAsync {
		return w.file.Sync()
	}

	target := w.cw.n
	w.syncCond.Signal()
	for w.syncedOffset < target && !w.closed && w.lastErr == nil {
		w.doneCond.Wait()
	}
	return w.lastErr
}

// Close closes the WAL file.
func (w *WAL) Close() error {
	w.mu.Lock()

	if w.closed {
		w.mu.Unlock()
		return os.ErrClosed
	}

	var err error
	if w.enc != nil {
		err = w.enc.Close()
	}
	if ferr := w.cw.Flush(); ferr != nil {
		err = errors.Join(err, ferr)
	}

	w.closed = true
	w.syncCond.Signal() // Wake up syncer to exit
	w.mu.Unlock()

	w.wg.Wait()
	if err != nil {
		_ = w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

// Records iterates over the logged records from the start of the file. The
// sequence ends at the end of the log; a torn or corrupt tail is yielded as
// an error.
func (w *WAL) Records() iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		f, err := w.fs.OpenFile(w.path, os.O_RDONLY, 0)
		if err != nil {
			yield(nil, err)
			return
		}
		defer f.Close()
		if _, err := f.Seek(walHeaderSize, io.SeekStart); err != nil {
			yield(nil, err)
			return
		}
		var src io.Reader = bufio.NewReader(f)
		if w.compressed {
			dec, err := zstd.NewReader(src)
			if err != nil {
				yield(nil, fmt.Errorf("wal: create decompressor: %w", err))
				return
			}
			defer dec.Close()
			src = dec
		}
		for {
			rec, _, err := Decode(src)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}
