package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/graphstore/blobstore"
	"github.com/hupe1980/graphstore/codec"
	"github.com/hupe1980/graphstore/internal/blockcodec"
	gsfs "github.com/hupe1980/graphstore/internal/fs"
	"github.com/hupe1980/graphstore/internal/hash"
	"github.com/hupe1980/graphstore/internal/resource"
	"golang.org/x/sync/errgroup"
)

// Options configures an Archiver.
type Options struct {
	// Compression is the block codec of uploaded files. Default: LZ4.
	Compression blockcodec.Type
	// ChunkSize is the uncompressed size of one block. Default: 4MB.
	ChunkSize int
	// Concurrency is the number of files transferred in parallel. Default: 4.
	Concurrency int
	// Codec encodes the catalog. Default: codec.Default.
	Codec codec.Codec
	// FileSystem reads and writes the database files. Default: local disk.
	FileSystem gsfs.FileSystem
	// Resource throttles uploaded bytes. nil means unlimited.
	Resource *resource.Controller
	Logger   *slog.Logger
}

// DefaultOptions returns the default archive options.
func DefaultOptions() Options {
	return Options{
		Compression: blockcodec.LZ4,
		ChunkSize:   4 << 20,
		Concurrency: 4,
		Codec:       codec.Default,
		FileSystem:  gsfs.Default,
	}
}

// Archiver uploads and restores archives in one blob store.
type Archiver struct {
	store  blobstore.BlobStore
	opts   Options
	logger *slog.Logger
}

// New returns an Archiver for store.
func New(store blobstore.BlobStore, optFns ...func(o *Options)) *Archiver {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 4 << 20
	}
	opts.Concurrency = max(opts.Concurrency, 1)
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.FileSystem == nil {
		opts.FileSystem = gsfs.Default
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Archiver{store: store, opts: opts, logger: logger}
}

// Upload archives files (relative to dir) and then points CURRENT at the new
// catalog. manifestID orders archives of the same database.
func (a *Archiver) Upload(ctx context.Context, dir string, files []string, manifestID uint64) (*Catalog, error) {
	start := time.Now()
	id := uuid.New()
	cat := &Catalog{
		Format:      catalogFormat,
		ID:          id.String(),
		Dir:         fmt.Sprintf("%020d-%s", manifestID, id),
		ManifestID:  manifestID,
		CreatedAt:   start.UTC(),
		Compression: a.opts.Compression.String(),
		ChunkSize:   a.opts.ChunkSize,
		Files:       make([]File, len(files)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for i, name := range files {
		g.Go(func() error {
			f, err := a.uploadFile(gctx, dir, name, cat.Dir)
			if err != nil {
				return fmt.Errorf("archive: upload %s: %w", name, err)
			}
			cat.Files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	doc, err := encodeCatalog(a.opts.Codec, cat)
	if err != nil {
		return nil, err
	}
	catalogBlob := path.Join(cat.Dir, CatalogName)
	if err := a.store.Put(ctx, catalogBlob, doc); err != nil {
		return nil, fmt.Errorf("archive: write catalog: %w", err)
	}
	if err := a.store.Put(ctx, blobstore.CurrentName, []byte(catalogBlob)); err != nil {
		return nil, fmt.Errorf("archive: commit %s: %w", blobstore.CurrentName, err)
	}

	var raw, compressed int64
	for _, f := range cat.Files {
		raw += f.Size
		compressed += f.CompressedSize
	}
	a.logger.Info("archive uploaded",
		"id", cat.ID,
		"files", len(cat.Files),
		"bytes", raw,
		"compressed_bytes", compressed,
		"duration", time.Since(start),
	)
	return cat, nil
}

type aborter interface{ Abort() error }

func (a *Archiver) uploadFile(ctx context.Context, dir, name, catDir string) (File, error) {
	in, err := a.opts.FileSystem.OpenFile(filepath.Join(dir, name), os.O_RDONLY, 0)
	if err != nil {
		return File{}, err
	}
	defer in.Close()

	f := File{Name: name, Blob: path.Join(catDir, name+"."+a.opts.Compression.String())}
	w, err := a.store.Create(ctx, f.Blob)
	if err != nil {
		return File{}, err
	}
	fail := func(err error) (File, error) {
		if ab, ok := w.(aborter); ok {
			_ = ab.Abort()
		} else {
			_ = w.Close()
			_ = a.store.Delete(ctx, f.Blob)
		}
		return File{}, err
	}

	var crc uint32
	buf := make([]byte, a.opts.ChunkSize)
	for {
		n, readErr := io.ReadFull(in, buf)
		if n > 0 {
			chunk := buf[:n]
			crc = hash.UpdateCRC32C(crc, chunk)
			frame, err := blockcodec.Compress(chunk, a.opts.Compression)
			if err != nil {
				return fail(err)
			}
			if err := a.opts.Resource.AcquireIO(ctx, len(frame)); err != nil {
				return fail(err)
			}
			if _, err := w.Write(frame); err != nil {
				return fail(err)
			}
			f.Size += int64(n)
			f.CompressedSize += int64(len(frame))
			f.Chunks++
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return fail(readErr)
		}
	}
	f.CRC32C = crc
	if err := w.Close(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Latest returns the catalog CURRENT points at.
func (a *Archiver) Latest(ctx context.Context) (*Catalog, error) {
	target, err := blobstore.ReadFile(ctx, a.store, blobstore.CurrentName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrNoArchive
		}
		return nil, err
	}
	data, err := blobstore.ReadFile(ctx, a.store, strings.TrimSpace(string(target)))
	if err != nil {
		return nil, fmt.Errorf("archive: read catalog: %w", err)
	}
	return decodeCatalog(data)
}

// Restore downloads the latest archive into dir. Files are downloaded to
// temporary names and renamed in catalog order once all of them verified.
func (a *Archiver) Restore(ctx context.Context, dir string) (*Catalog, error) {
	cat, err := a.Latest(ctx)
	if err != nil {
		return nil, err
	}
	typ, err := cat.compression()
	if err != nil {
		return nil, err
	}
	fsys := a.opts.FileSystem
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	tmp := make([]string, len(cat.Files))
	cleanup := func() {
		for _, name := range tmp {
			if name != "" {
				_ = fsys.Remove(name)
			}
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for i, f := range cat.Files {
		tmp[i] = filepath.Join(dir, f.Name+".restore")
		g.Go(func() error {
			if err := a.restoreFile(gctx, cat, f, typ, tmp[i]); err != nil {
				return fmt.Errorf("archive: restore %s: %w", f.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		cleanup()
		return nil, err
	}
	for i, f := range cat.Files {
		if err := fsys.Rename(tmp[i], filepath.Join(dir, f.Name)); err != nil {
			cleanup()
			return nil, err
		}
		tmp[i] = ""
	}
	a.logger.Info("archive restored", "id", cat.ID, "files", len(cat.Files), "dir", dir)
	return cat, nil
}

func (a *Archiver) restoreFile(ctx context.Context, cat *Catalog, f File, typ blockcodec.Type, dst string) error {
	fsys := a.opts.FileSystem
	if err := fsys.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := fsys.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	blob, err := a.store.Open(ctx, f.Blob)
	if err != nil {
		return err
	}
	defer blob.Close()
	if blob.Size() != f.CompressedSize {
		return fmt.Errorf("%w: blob %s has %d bytes, want %d", ErrCorrupt, f.Blob, blob.Size(), f.CompressedSize)
	}

	var crc uint32
	var written int64
	if f.Chunks > 0 {
		r, err := blob.ReadRange(ctx, 0, blob.Size())
		if err != nil {
			return err
		}
		defer r.Close()
		br := bufio.NewReader(r)
		header := make([]byte, blockcodec.HeaderSize)
		for range f.Chunks {
			if _, err := io.ReadFull(br, header); err != nil {
				return fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			size, err := blockcodec.FrameSize(header)
			if err != nil {
				return err
			}
			if size > blockcodec.HeaderSize+cat.ChunkSize {
				return fmt.Errorf("%w: frame of %d bytes", ErrCorrupt, size)
			}
			frame := make([]byte, size)
			copy(frame, header)
			if _, err := io.ReadFull(br, frame[blockcodec.HeaderSize:]); err != nil {
				return fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			raw, err := blockcodec.Decompress(frame, typ)
			if err != nil {
				return err
			}
			crc = hash.UpdateCRC32C(crc, raw)
			if _, err := out.Write(raw); err != nil {
				return err
			}
			written += int64(len(raw))
		}
	}
	if written != f.Size || crc != f.CRC32C {
		return fmt.Errorf("%w: %s does not match its catalog entry", ErrCorrupt, f.Name)
	}
	return out.Sync()
}

// Prune deletes all archives except the newest keep and the one CURRENT
// points at.
func (a *Archiver) Prune(ctx context.Context, keep int) error {
	names, err := a.store.List(ctx, "")
	if err != nil {
		return err
	}
	var current string
	if cat, err := a.Latest(ctx); err == nil {
		current = cat.Dir
	} else if !errors.Is(err, ErrNoArchive) {
		return err
	}

	byDir := make(map[string][]string)
	for _, name := range names {
		if d, _, ok := strings.Cut(name, "/"); ok {
			byDir[d] = append(byDir[d], name)
		}
	}
	dirs := make([]string, 0, len(byDir))
	for d := range byDir {
		dirs = append(dirs, d)
	}
	slices.Sort(dirs)
	if len(dirs) <= keep {
		return nil
	}
	for _, d := range dirs[:len(dirs)-keep] {
		if d == current {
			continue
		}
		for _, name := range byDir[d] {
			if err := a.store.Delete(ctx, name); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
		a.logger.Debug("archive pruned", "dir", d)
	}
	return nil
}
