package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/graphstore/internal/diskarray"
	gsfs "github.com/hupe1980/graphstore/internal/fs"
	"github.com/hupe1980/graphstore/internal/types"
)

const (
	ManifestFileName = "MANIFEST"
	CurrentFileName  = "CURRENT"
	// CurrentVersion is the version of the manifest format.
	CurrentVersion = 1
)

// TableKind mirrors the storage table kinds.
type TableKind uint8

const (
	NodeTable TableKind = iota + 1
	RelTable
)

// Manifest describes the checkpointed state of a database.
type Manifest struct {
	Version           int
	ID                uint64
	CreatedAt         time.Time
	NodeGroupSizeLog2 uint8
	// NumDataPages is the page count of the data file at the checkpoint.
	NumDataPages uint32
	NextTableID  types.TableID
	NextTxID     uint64
	Tables       []TableInfo
	// Stats holds the encoded table statistics.
	Stats []byte
}

// New returns an empty manifest.
func New(nodeGroupSizeLog2 uint8) *Manifest {
	return &Manifest{
		Version:           CurrentVersion,
		CreatedAt:         time.Now(),
		NodeGroupSizeLog2: nodeGroupSizeLog2,
		NextTxID:          1,
	}
}

// TableInfo describes one table of the catalog.
type TableInfo struct {
	ID         types.TableID
	Kind       TableKind
	Name       string
	PrimaryKey types.PropertyID
	SrcTableID types.TableID
	DstTableID types.TableID
	Properties []types.Property
	Columns    []ColumnInfo
	// PKIndexPath is relative to the database directory.
	PKIndexPath string
}

// ColumnInfo holds the on-disk headers of one property column.
type ColumnInfo struct {
	PropertyID  types.PropertyID
	Metadata    diskarray.Header
	Nulls       diskarray.Header
	Dictionary  diskarray.Header
	MayHaveNull bool
}

// Table returns the table with the given id.
func (m *Manifest) Table(id types.TableID) (*TableInfo, bool) {
	for i := range m.Tables {
		if m.Tables[i].ID == id {
			return &m.Tables[i], true
		}
	}
	return nil, false
}

// Column returns the column of property id.
func (t *TableInfo) Column(id types.PropertyID) (ColumnInfo, bool) {
	for _, c := range t.Columns {
		if c.PropertyID == id {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

// Store manages the manifest files of one directory.
type Store struct {
	fs  gsfs.FileSystem
	dir string
	mu  sync.Mutex
}

// NewStore creates a manifest store in dir.
func NewStore(fsys gsfs.FileSystem, dir string) *Store {
	if fsys == nil {
		fsys = gsfs.Default
	}
	return &Store{fs: fsys, dir: dir}
}

// VersionFileName returns the file name of manifest version id.
func VersionFileName(id uint64) string {
	return fmt.Sprintf("%s-%06d.bin", ManifestFileName, id)
}

// Load loads the current manifest.
func (s *Store) Load() (*Manifest, error) {
	return s.LoadVersion(0)
}

// LoadVersion loads a specific version ID. 0 means latest.
func (s *Store) LoadVersion(versionID uint64) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := VersionFileName(versionID)
	if versionID == 0 {
		content, err := s.readFile(CurrentFileName)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		name = strings.TrimSpace(string(content))
	}
	content, err := s.readFile(name)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", name, err)
	}
	return ReadBinary(bytes.NewReader(content))
}

func (s *Store) readFile(name string) ([]byte, error) {
	f, err := s.fs.OpenFile(filepath.Join(s.dir, name), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// writeFileAtomic writes data to a temporary file, syncs it and renames it
// over name.
func (s *Store) writeFileAtomic(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return nil
}

// Save atomically saves m as a new version and points CURRENT at it.
func (s *Store) Save(m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.Version = CurrentVersion
	m.ID++
	m.CreatedAt = time.Now()

	var buf bytes.Buffer
	if err := m.WriteBinary(&buf); err != nil {
		return err
	}
	name := VersionFileName(m.ID)
	if err := s.writeFileAtomic(name, buf.Bytes()); err != nil {
		return fmt.Errorf("manifest: write %s: %w", name, err)
	}
	if err := s.writeFileAtomic(CurrentFileName, []byte(name)); err != nil {
		return fmt.Errorf("manifest: write %s: %w", CurrentFileName, err)
	}
	return nil
}

// ListVersions returns the ids of all manifest files, oldest first.
func (s *Store) ListVersions() ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for _, e := range entries {
		var id uint64
		if _, err := fmt.Sscanf(e.Name(), ManifestFileName+"-%06d.bin", &id); err == nil && e.Name() == VersionFileName(id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// DeleteVersion deletes the manifest file for the given version.
func (s *Store) DeleteVersion(versionID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fs.Remove(filepath.Join(s.dir, VersionFileName(versionID)))
}

// Prune deletes all versions older than the newest keep.
func (s *Store) Prune(keep int) error {
	ids, err := s.ListVersions()
	if err != nil {
		return err
	}
	for len(ids) > keep {
		if err := s.DeleteVersion(ids[0]); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		ids = ids[1:]
	}
	return nil
}
