package hashindex

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"github.com/hupe1980/graphstore/internal/diskarray"
	gsfs "github.com/hupe1980/graphstore/internal/fs"
	"github.com/hupe1980/graphstore/internal/hash"
	"github.com/hupe1980/graphstore/internal/mmap"
	"github.com/hupe1980/graphstore/internal/pagefile"
	"github.com/hupe1980/graphstore/internal/transaction"
	"github.com/hupe1980/graphstore/internal/types"
	"golang.org/x/sync/errgroup"
)

// Root header layout, at page 0 of the index file:
//
//	[0:4]   magic
//	[4:6]   version
//	[6]     key type
//	[7]     shard bits
//	[8:12]  overflow pages
//	[12:20] overflow cursor
//	[20:32] reserved
//	[32:]   one shardRecordSize record per shard, then a CRC32C
const (
	rootMagic       = 0x4b505347 // "GSPK"
	rootVersion     = 1
	rootFixedSize   = 32
	shardRecordSize = 64
)

func rootSize(numShards int) int { return rootFixedSize + numShards*shardRecordSize + 4 }

func rootPages(numShards int) uint32 {
	return uint32((rootSize(numShards) + pagefile.PageSize - 1) / pagefile.PageSize)
}

type rootHeader struct {
	keyType   types.PhysicalType
	shardBits uint
	ovfPages  uint32
	ovfCursor PagePointer
	shards    []shardHeader
}

func putArrayHeader(dst []byte, h diskarray.Header) {
	binary.LittleEndian.PutUint64(dst[0:], h.NumElements)
	binary.LittleEndian.PutUint32(dst[8:], h.FirstPIP)
}

func getArrayHeader(src []byte) diskarray.Header {
	return diskarray.Header{
		NumElements: binary.LittleEndian.Uint64(src[0:]),
		FirstPIP:    binary.LittleEndian.Uint32(src[8:]),
	}
}

func (r *rootHeader) encode() []byte {
	buf := make([]byte, int(rootPages(len(r.shards)))*pagefile.PageSize)
	binary.LittleEndian.PutUint32(buf[0:], rootMagic)
	binary.LittleEndian.PutUint16(buf[4:], rootVersion)
	buf[6] = byte(r.keyType)
	buf[7] = byte(r.shardBits)
	binary.LittleEndian.PutUint32(buf[8:], r.ovfPages)
	binary.LittleEndian.PutUint32(buf[12:], r.ovfCursor.PageIdx)
	binary.LittleEndian.PutUint32(buf[16:], r.ovfCursor.Offset)
	for i, s := range r.shards {
		rec := buf[rootFixedSize+i*shardRecordSize:]
		binary.LittleEndian.PutUint64(rec[0:], s.Index.CurrentLevel)
		binary.LittleEndian.PutUint64(rec[8:], s.Index.NextSplitSlotID)
		binary.LittleEndian.PutUint64(rec[16:], s.Index.NumEntries)
		rec[24] = s.Index.NumBytesPerKey
		rec[25] = s.Index.NumBytesPerEntry
		rec[26] = byte(s.Index.KeyType)
		putArrayHeader(rec[32:], s.PSlots)
		putArrayHeader(rec[44:], s.OSlots)
	}
	end := rootSize(len(r.shards)) - 4
	binary.LittleEndian.PutUint32(buf[end:], hash.CRC32C(buf[:end]))
	return buf
}

func decodeRootHeader(data []byte) (*rootHeader, error) {
	if len(data) < rootFixedSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(data))
	}
	if binary.LittleEndian.Uint32(data[0:]) != rootMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != rootVersion {
		return nil, fmt.Errorf("%w: version %d", ErrCorrupt, v)
	}
	r := &rootHeader{
		keyType:   types.PhysicalType(data[6]),
		shardBits: uint(data[7]),
		ovfPages:  binary.LittleEndian.Uint32(data[8:]),
		ovfCursor: PagePointer{
			PageIdx: binary.LittleEndian.Uint32(data[12:]),
			Offset:  binary.LittleEndian.Uint32(data[16:]),
		},
	}
	if r.shardBits > 16 {
		return nil, fmt.Errorf("%w: %d shard bits", ErrCorrupt, r.shardBits)
	}
	numShards := 1 << r.shardBits
	end := rootSize(numShards) - 4
	if len(data) < end+4 {
		return nil, fmt.Errorf("%w: root header truncated", ErrCorrupt)
	}
	if got, want := hash.CRC32C(data[:end]), binary.LittleEndian.Uint32(data[end:]); got != want {
		return nil, fmt.Errorf("%w: root checksum %08x, want %08x", ErrCorrupt, got, want)
	}
	r.shards = make([]shardHeader, numShards)
	for i := range r.shards {
		rec := data[rootFixedSize+i*shardRecordSize:]
		r.shards[i] = shardHeader{
			Index: HashIndexHeader{
				CurrentLevel:     binary.LittleEndian.Uint64(rec[0:]),
				NextSplitSlotID:  binary.LittleEndian.Uint64(rec[8:]),
				NumEntries:       binary.LittleEndian.Uint64(rec[16:]),
				NumBytesPerKey:   rec[24],
				NumBytesPerEntry: rec[25],
				KeyType:          types.PhysicalType(rec[26]),
			},
			PSlots: getArrayHeader(rec[32:]),
			OSlots: getArrayHeader(rec[44:]),
		}
	}
	return r, nil
}

// New returns an empty in-memory index without files. Its first FlushTo
// creates them.
func New(fsys gsfs.FileSystem, keyType types.PhysicalType, opts Options) (*PrimaryKeyIndexBuilder, error) {
	return newPrimaryKeyIndexBuilder(fsys, "", keyType, opts)
}

// Create creates an empty index at path, replacing existing files.
func Create(fsys gsfs.FileSystem, path string, keyType types.PhysicalType, opts Options) (*PrimaryKeyIndexBuilder, error) {
	p, err := newPrimaryKeyIndexBuilder(fsys, path, keyType, opts)
	if err != nil {
		return nil, err
	}
	if err := RemoveFiles(p.fsys, path); err != nil {
		return nil, err
	}
	if p.file, p.ovfFile, err = p.openFiles(path); err != nil {
		return nil, err
	}
	p.file.AddNewPages(rootPages(len(p.shards)))
	return p, nil
}

// RemoveFiles deletes the files of the index at path. Missing files are
// ignored.
func RemoveFiles(fsys gsfs.FileSystem, path string) error {
	if fsys == nil {
		fsys = gsfs.Default
	}
	for _, name := range []string{path, overflowPath(path)} {
		if err := fsys.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (p *PrimaryKeyIndexBuilder) openFiles(path string) (*pagefile.FileHandle, gsfs.File, error) {
	fh, err := pagefile.Open(p.fsys, path, pagefile.Options{Logger: p.logger})
	if err != nil {
		return nil, nil, err
	}
	ovf, err := p.fsys.OpenFile(overflowPath(path), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		_ = fh.Close()
		return nil, nil, err
	}
	return fh, ovf, nil
}

// mappedPages reads pages of a mapped index file.
type mappedPages struct {
	m *mmap.Mapping
}

func (r mappedPages) ReadPage(_ *transaction.Transaction, idx uint32, dst []byte) error {
	page, err := r.m.Page(idx, pagefile.PageSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	copy(dst, page)
	return nil
}

// Open loads a flushed index. The number of shards comes from the file.
func Open(fsys gsfs.FileSystem, path string, keyType types.PhysicalType, opts Options) (*PrimaryKeyIndexBuilder, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	_ = m.Advise(mmap.Sequential)

	root, err := decodeRootHeader(m.Bytes())
	if err != nil {
		return nil, err
	}
	if root.keyType != keyType {
		return nil, fmt.Errorf("%w: file has %s keys, want %s", ErrKeyType, root.keyType, keyType)
	}
	opts.NumShards = len(root.shards)
	p, err := newPrimaryKeyIndexBuilder(fsys, path, keyType, opts)
	if err != nil {
		return nil, err
	}
	if keyType == types.String {
		if p.overflow, err = loadOverflow(path, root); err != nil {
			return nil, err
		}
	}
	for i, hdr := range root.shards {
		b, err := loadHashIndexBuilder(mappedPages{m}, hdr, newKeyCodec(keyType, p.overflow))
		if err != nil {
			return nil, fmt.Errorf("hashindex: shard %d: %w", i, err)
		}
		p.shards[i].b = b
	}
	if p.file, p.ovfFile, err = p.openFiles(path); err != nil {
		return nil, err
	}
	p.logger.Debug("opened primary key index", "entries", p.NumEntries(), "shards", len(p.shards))
	return p, nil
}

func loadOverflow(path string, root *rootHeader) (*OverflowFile, error) {
	m, err := mmap.Open(overflowPath(path))
	if err != nil {
		return nil, err
	}
	defer m.Close()
	return loadOverflowFile(m.Bytes(), root.ovfPages, root.ovfCursor)
}

// Flush writes all shards in parallel, then the overflow pages and the root
// header. Pages of earlier flushes are rewritten in place.
func (p *PrimaryKeyIndexBuilder) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	if p.file == nil {
		return ErrNoFiles
	}
	return p.flushLocked(ctx, p.file, p.ovfFile)
}

// FlushTo writes a complete copy of the index to new files at path and
// switches the index to them. Files at the previous path are left untouched
// until the caller removes them with RemoveFiles.
func (p *PrimaryKeyIndexBuilder) FlushTo(ctx context.Context, path string) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	if path == p.path && p.file != nil {
		err := errors.Join(p.file.Close(), p.ovfFile.Close())
		p.file, p.ovfFile = nil, nil
		if err != nil {
			return err
		}
	}
	if err := RemoveFiles(p.fsys, path); err != nil {
		return err
	}
	fh, ovf, err := p.openFiles(path)
	if err != nil {
		return err
	}
	fh.AddNewPages(rootPages(len(p.shards)))
	for _, s := range p.shards {
		s.mu.RLock()
		s.b.detach()
		s.mu.RUnlock()
	}
	if p.overflow != nil {
		p.overflow.markAllDirty()
	}
	if err := p.flushLocked(ctx, fh, ovf); err != nil {
		_ = errors.Join(fh.Close(), ovf.Close())
		return err
	}
	if p.file != nil {
		if err := errors.Join(p.file.Close(), p.ovfFile.Close()); err != nil {
			p.logger.Warn("failed to close previous index files", "path", p.path, "error", err)
		}
	}
	p.file, p.ovfFile, p.path = fh, ovf, path
	return nil
}

func (p *PrimaryKeyIndexBuilder) flushLocked(ctx context.Context, fh *pagefile.FileHandle, ovf gsfs.File) error {
	root := &rootHeader{
		keyType:   p.keyType,
		shardBits: p.shardBits,
		shards:    make([]shardHeader, len(p.shards)),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, s := range p.shards {
		g.Go(func() error {
			s.mu.RLock()
			defer s.mu.RUnlock()
			hdr, err := s.b.flush(gctx, fh)
			if err != nil {
				return fmt.Errorf("hashindex: flush shard %d: %w", i, err)
			}
			root.shards[i] = hdr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if p.overflow != nil {
		var err error
		if root.ovfPages, root.ovfCursor, err = p.overflow.Flush(ovf); err != nil {
			return err
		}
		if err := ovf.Sync(); err != nil {
			return err
		}
	}
	if err := fh.WritePages(ctx, 0, root.encode()); err != nil {
		return fmt.Errorf("hashindex: write root header: %w", err)
	}
	if err := fh.Sync(); err != nil {
		return err
	}
	p.logger.Debug("flushed primary key index", "path", fh.Path(), "entries", p.NumEntries(), "pages", fh.NumPages())
	return nil
}

// Close releases the index files.
func (p *PrimaryKeyIndexBuilder) Close() error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	if p.file == nil {
		return nil
	}
	err := errors.Join(p.file.Close(), p.ovfFile.Close())
	p.file, p.ovfFile = nil, nil
	return err
}

// Drop closes the index and deletes its files.
func (p *PrimaryKeyIndexBuilder) Drop() error {
	if err := p.Close(); err != nil {
		return err
	}
	if p.path == "" {
		return nil
	}
	return RemoveFiles(p.fsys, p.path)
}
