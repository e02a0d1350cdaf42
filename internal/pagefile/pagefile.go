// Package pagefile provides page-addressed access to a database file.
//
// Pages are PageSize bytes. New pages are reserved with AddNewPages and only
// materialize in the file when written. Writes made by an in-place commit go
// to shadow pages: the write transaction reads through them, read-only
// transactions keep seeing the file, and CheckpointShadow makes them durable.
package pagefile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/graphstore/internal/cache"
	"github.com/hupe1980/graphstore/internal/compression"
	"github.com/hupe1980/graphstore/internal/fs"
	"github.com/hupe1980/graphstore/internal/resource"
	"github.com/hupe1980/graphstore/internal/transaction"
)

// PageSize is the size of a page in bytes.
const PageSize = compression.PageSize

// InvalidPage marks an absent page index.
const InvalidPage = ^uint32(0)

var (
	ErrClosed          = errors.New("pagefile: closed")
	ErrPageOutOfRange  = errors.New("pagefile: page out of range")
	ErrInvalidPageSize = errors.New("pagefile: buffer is not one page")
)

// Options configures a FileHandle.
type Options struct {
	// FileID distinguishes files sharing one page cache.
	FileID   uint32
	Cache    cache.PageCache
	Resource *resource.Controller
	Logger   *slog.Logger
}

// FileHandle is a page-addressed file.
type FileHandle struct {
	path     string
	file     fs.File
	id       uint32
	cache    cache.PageCache
	rc       *resource.Controller
	logger   *slog.Logger
	numPages atomic.Uint32
	closed   atomic.Bool

	mu     sync.Mutex
	shadow map[uint32][]byte
}

// Open opens or creates the page file at path.
func Open(fsys fs.FileSystem, path string, opts Options) (*FileHandle, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.Size()%PageSize != 0 {
		_ = f.Close()
		return nil, fmt.Errorf("pagefile: %s size %d is not page aligned", path, st.Size())
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fh := &FileHandle{
		path:   path,
		file:   f,
		id:     opts.FileID,
		cache:  opts.Cache,
		rc:     opts.Resource,
		logger: logger,
		shadow: make(map[uint32][]byte),
	}
	fh.numPages.Store(uint32(st.Size() / PageSize))
	return fh, nil
}

// Path returns the file path.
func (fh *FileHandle) Path() string { return fh.path }

// NumPages returns the number of reserved pages.
func (fh *FileHandle) NumPages() uint32 { return fh.numPages.Load() }

// AddNewPages reserves n pages and returns the index of the first one.
func (fh *FileHandle) AddNewPages(n uint32) uint32 {
	return fh.numPages.Add(n) - n
}

// ReadPage copies page idx into dst. A write transaction sees its shadow
// pages; everyone else sees the file.
func (fh *FileHandle) ReadPage(tx *transaction.Transaction, idx uint32, dst []byte) error {
	if len(dst) != PageSize {
		return ErrInvalidPageSize
	}
	if fh.closed.Load() {
		return ErrClosed
	}
	if idx >= fh.numPages.Load() {
		return fmt.Errorf("%w: %d >= %d", ErrPageOutOfRange, idx, fh.numPages.Load())
	}
	if tx.IsWrite() {
		fh.mu.Lock()
		page, ok := fh.shadow[idx]
		if ok {
			copy(dst, page)
		}
		fh.mu.Unlock()
		if ok {
			return nil
		}
	}
	return fh.readCommitted(idx, dst)
}

func (fh *FileHandle) readCommitted(idx uint32, dst []byte) error {
	key := cache.Key{File: fh.id, Page: idx}
	if fh.cache != nil {
		if b, ok := fh.cache.Get(key); ok {
			copy(dst, b)
			return nil
		}
	}
	n, err := fh.file.ReadAt(dst, int64(idx)*PageSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	// Reserved but never written pages read as zeros.
	clear(dst[n:])
	if fh.cache != nil {
		fh.cache.Set(key, slices.Clone(dst))
	}
	return nil
}

// WritePage writes a page directly to the file. It is used for freshly
// allocated pages that no reader can reach yet.
func (fh *FileHandle) WritePage(ctx context.Context, idx uint32, data []byte) error {
	if len(data) != PageSize {
		return ErrInvalidPageSize
	}
	if fh.closed.Load() {
		return ErrClosed
	}
	if idx >= fh.numPages.Load() {
		return fmt.Errorf("%w: %d >= %d", ErrPageOutOfRange, idx, fh.numPages.Load())
	}
	if err := fh.rc.AcquireIO(ctx, PageSize); err != nil {
		return err
	}
	if _, err := fh.file.WriteAt(data, int64(idx)*PageSize); err != nil {
		return err
	}
	if fh.cache != nil {
		fh.cache.Invalidate(cache.Key{File: fh.id, Page: idx})
	}
	return nil
}

// WritePages writes consecutive pages starting at idx.
func (fh *FileHandle) WritePages(ctx context.Context, idx uint32, data []byte) error {
	if len(data)%PageSize != 0 {
		return ErrInvalidPageSize
	}
	for i := 0; i < len(data); i += PageSize {
		if err := fh.WritePage(ctx, idx+uint32(i/PageSize), data[i:i+PageSize]); err != nil {
			return err
		}
	}
	return nil
}

// UpdatePage applies fn to a shadow copy of page idx. The change is visible to
// the write transaction only until CheckpointShadow.
func (fh *FileHandle) UpdatePage(idx uint32, fn func(page []byte)) error {
	if fh.closed.Load() {
		return ErrClosed
	}
	if idx >= fh.numPages.Load() {
		return fmt.Errorf("%w: %d >= %d", ErrPageOutOfRange, idx, fh.numPages.Load())
	}
	fh.mu.Lock()
	page, ok := fh.shadow[idx]
	fh.mu.Unlock()
	if !ok {
		page = make([]byte, PageSize)
		if err := fh.readCommitted(idx, page); err != nil {
			return err
		}
	}
	fn(page)
	fh.mu.Lock()
	fh.shadow[idx] = page
	fh.mu.Unlock()
	return nil
}

// NumShadowPages returns the number of pending shadow pages.
func (fh *FileHandle) NumShadowPages() int {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return len(fh.shadow)
}

// CheckpointShadow writes all shadow pages to the file and syncs it.
// On failure the previous page images are written back and the shadow pages
// are kept so the checkpoint can be retried.
func (fh *FileHandle) CheckpointShadow(ctx context.Context) error {
	fh.mu.Lock()
	defer fh.mu.Unlock()

	idxs := make([]uint32, 0, len(fh.shadow))
	for idx := range fh.shadow {
		idxs = append(idxs, idx)
	}
	slices.Sort(idxs)

	before := make([][]byte, len(idxs))
	for i, idx := range idxs {
		before[i] = make([]byte, PageSize)
		if err := fh.readCommitted(idx, before[i]); err != nil {
			return err
		}
	}
	written := 0
	err := func() error {
		for _, idx := range idxs {
			if err := fh.rc.AcquireIO(ctx, PageSize); err != nil {
				return err
			}
			fh.invalidate(idx)
			written++
			if _, err := fh.file.WriteAt(fh.shadow[idx], int64(idx)*PageSize); err != nil {
				return fmt.Errorf("pagefile: checkpoint page %d: %w", idx, err)
			}
		}
		return fh.file.Sync()
	}()
	if err != nil {
		for i, idx := range idxs[:written] {
			if _, rerr := fh.file.WriteAt(before[i], int64(idx)*PageSize); rerr != nil {
				fh.logger.Error("failed to restore page", "file", fh.path, "page", idx, "error", rerr)
			}
			fh.invalidate(idx)
		}
		return err
	}
	if len(idxs) > 0 {
		fh.logger.Debug("checkpointed shadow pages", "file", fh.path, "pages", len(idxs))
	}
	clear(fh.shadow)
	return nil
}

func (fh *FileHandle) invalidate(idx uint32) {
	if fh.cache != nil {
		fh.cache.Invalidate(cache.Key{File: fh.id, Page: idx})
	}
}

// RollbackShadow discards all shadow pages.
func (fh *FileHandle) RollbackShadow() {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	clear(fh.shadow)
}

// Sync flushes the file to stable storage.
func (fh *FileHandle) Sync() error {
	if fh.closed.Load() {
		return ErrClosed
	}
	return fh.file.Sync()
}

// Close closes the file. Pending shadow pages are discarded.
func (fh *FileHandle) Close() error {
	if fh.closed.Swap(true) {
		return nil
	}
	if fh.cache != nil {
		fh.cache.InvalidateFile(fh.id)
	}
	return fh.file.Close()
}
