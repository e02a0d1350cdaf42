package graphstore

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/hupe1980/graphstore/blobstore"
	"github.com/hupe1980/graphstore/codec"
	"github.com/hupe1980/graphstore/internal/archive"
	"github.com/hupe1980/graphstore/internal/blockcodec"
	"github.com/hupe1980/graphstore/internal/manifest"
)

// ArchiveOptions configures Archive and Restore.
type ArchiveOptions struct {
	// Compression is "lz4", "zstd" or "none". Default: "lz4".
	Compression string
	// ChunkSize is the uncompressed size of one compressed block.
	ChunkSize int
	// Concurrency is the number of files transferred in parallel.
	Concurrency int
	// Codec names the catalog codec ("go-json" or "json").
	Codec string
	// Keep prunes all but the newest Keep archives after an upload.
	// Zero keeps every archive.
	Keep int
}

// ArchiveInfo describes an uploaded or restored archive.
type ArchiveInfo struct {
	ID         string
	ManifestID uint64
	Files      []string
	// Bytes and CompressedBytes sum the sizes of the archived files.
	Bytes           int64
	CompressedBytes int64
}

func newArchiver(store blobstore.BlobStore, fsys FileSystem, logger *Logger, rcOpt func(*archive.Options), optFns []func(*ArchiveOptions)) (*archive.Archiver, ArchiveOptions, error) {
	var opts ArchiveOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	compression := blockcodec.LZ4
	if opts.Compression != "" {
		t, err := blockcodec.ParseType(opts.Compression)
		if err != nil {
			return nil, opts, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		compression = t
	}
	var c codec.Codec
	if opts.Codec != "" {
		var err error
		if c, err = codec.Lookup(opts.Codec); err != nil {
			return nil, opts, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
	}
	a := archive.New(store, func(o *archive.Options) {
		o.Compression = compression
		if opts.ChunkSize > 0 {
			o.ChunkSize = opts.ChunkSize
		}
		if opts.Concurrency > 0 {
			o.Concurrency = opts.Concurrency
		}
		if c != nil {
			o.Codec = c
		}
		o.FileSystem = fsys
		o.Logger = logger.Logger
		if rcOpt != nil {
			rcOpt(o)
		}
	})
	return a, opts, nil
}

func archiveInfo(cat *archive.Catalog) ArchiveInfo {
	info := ArchiveInfo{ID: cat.ID, ManifestID: cat.ManifestID}
	for _, f := range cat.Files {
		info.Files = append(info.Files, f.Name)
		info.Bytes += f.Size
		info.CompressedBytes += f.CompressedSize
	}
	return info
}

// Archive checkpoints the database and uploads the checkpointed files to
// store. It blocks writers until the upload finished.
//
// Example:
//
//	store, _ := minio.New(ctx, client, "backups", "graph/")
//	info, err := db.Archive(ctx, store, func(o *graphstore.ArchiveOptions) {
//	    o.Compression = "zstd"
//	    o.Keep = 3
//	})
func (db *DB) Archive(ctx context.Context, store blobstore.BlobStore, optFns ...func(o *ArchiveOptions)) (ArchiveInfo, error) {
	a, opts, err := newArchiver(store, db.fs, db.logger, func(o *archive.Options) { o.Resource = db.rc }, optFns)
	if err != nil {
		return ArchiveInfo{}, err
	}
	if err := db.lockWriter(ctx); err != nil {
		return ArchiveInfo{}, err
	}
	defer db.unlockWriter()

	if err := db.checkpointLocked(ctx); err != nil {
		return ArchiveInfo{}, err
	}
	files := db.archiveFiles()
	cat, err := a.Upload(ctx, db.dir, files, db.ManifestID())
	if err != nil {
		return ArchiveInfo{}, translateError(err)
	}
	if opts.Keep > 0 {
		if err := a.Prune(ctx, opts.Keep); err != nil {
			db.logger.WarnContext(ctx, "failed to prune archives", "error", err)
		}
	}
	return archiveInfo(cat), nil
}

// archiveFiles lists the files of the last checkpoint. CURRENT comes last so
// that a restore installs it after everything it points at.
func (db *DB) archiveFiles() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	files := []string{dataFileName}
	ids := make([]TableID, 0, len(db.indexes))
	for id := range db.indexes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		name := filepath.Base(db.indexes[id].Path())
		files = append(files, name, name+".ovf")
	}
	return append(files, manifest.VersionFileName(db.manifestID), manifest.CurrentFileName)
}

// Restore downloads the latest archive of store into dir. dir must not hold
// an open database. Open dir afterwards to use the restored database.
func Restore(ctx context.Context, store blobstore.BlobStore, dir string, optFns ...func(o *ArchiveOptions)) (ArchiveInfo, error) {
	a, _, err := newArchiver(store, nil, NoopLogger(), nil, optFns)
	if err != nil {
		return ArchiveInfo{}, err
	}
	cat, err := a.Restore(ctx, dir)
	if err != nil {
		return ArchiveInfo{}, translateError(err)
	}
	return archiveInfo(cat), nil
}
