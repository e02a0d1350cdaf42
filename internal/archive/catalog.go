package archive

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/graphstore/codec"
	"github.com/hupe1980/graphstore/internal/blockcodec"
)

// CatalogName is the name of the catalog blob inside an archive directory.
const CatalogName = "catalog.json"

const catalogFormat = 1

var (
	// ErrCorrupt is returned when an archived file fails verification.
	ErrCorrupt = errors.New("archive: corrupt archive")
	// ErrNoArchive is returned by Restore when the store holds no archive.
	ErrNoArchive = errors.New("archive: no archive found")
)

// File describes one archived database file.
type File struct {
	Name           string `json:"name"`
	Blob           string `json:"blob"`
	Size           int64  `json:"size"`
	CompressedSize int64  `json:"compressed_size"`
	Chunks         int    `json:"chunks"`
	CRC32C         uint32 `json:"crc32c"`
}

// Catalog lists the files of one archive.
type Catalog struct {
	Format      int       `json:"format"`
	ID          string    `json:"id"`
	Dir         string    `json:"dir"`
	ManifestID  uint64    `json:"manifest_id"`
	CreatedAt   time.Time `json:"created_at"`
	Compression string    `json:"compression"`
	ChunkSize   int       `json:"chunk_size"`
	Codec       string    `json:"codec"`
	Files       []File    `json:"files"`
}

// compression returns the block codec of the catalog's files.
func (c *Catalog) compression() (blockcodec.Type, error) {
	return blockcodec.ParseType(c.Compression)
}

func encodeCatalog(c codec.Codec, cat *Catalog) ([]byte, error) {
	cat.Codec = c.Name()
	return c.Marshal(cat)
}

// decodeCatalog reads a catalog written by any built-in codec. They all
// produce plain JSON, so the default codec decodes every one of them.
func decodeCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := codec.Default.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("%w: catalog: %v", ErrCorrupt, err)
	}
	if cat.Format != catalogFormat {
		return nil, fmt.Errorf("%w: unsupported catalog format %d", ErrCorrupt, cat.Format)
	}
	if _, err := codec.Lookup(cat.Codec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if _, err := cat.compression(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &cat, nil
}
