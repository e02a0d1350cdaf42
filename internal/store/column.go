package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/graphstore/internal/compression"
	"github.com/hupe1980/graphstore/internal/diskarray"
	"github.com/hupe1980/graphstore/internal/pagefile"
	"github.com/hupe1980/graphstore/internal/transaction"
	"github.com/hupe1980/graphstore/internal/types"
)

var (
	ErrRowOutOfRange = errors.New("store: row out of range")
	ErrTypeMismatch  = errors.New("store: value type does not match column")
	ErrCorrupt       = errors.New("store: corrupt column data")
)

// Config is shared by the columns of one database.
type Config struct {
	File              *pagefile.FileHandle
	NodeGroupSizeLog2 uint8
	EnableCompression bool
	Logger            *slog.Logger
}

// NodeGroupSize returns the capacity of a node group.
func (c Config) NodeGroupSize() uint64 { return 1 << c.NodeGroupSizeLog2 }

// Split returns the node group of off and the position inside it.
func (c Config) Split(off types.Offset) (types.NodeGroupIdx, uint64) {
	return off >> c.NodeGroupSizeLog2, off & (c.NodeGroupSize() - 1)
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// ColumnHeader locates the persistent state of a column.
type ColumnHeader struct {
	Metadata    diskarray.Header
	Nulls       diskarray.Header
	Dictionary  diskarray.Header
	MayHaveNull bool
}

// PropertyColumn is the storage of one property.
type PropertyColumn interface {
	DataType() types.PhysicalType
	NumNodeGroups(tx *transaction.Transaction) uint64
	ChunkMetadata(tx *transaction.Transaction, ngIdx types.NodeGroupIdx) ChunkMetadata
	Scan(tx *transaction.Transaction, ngIdx types.NodeGroupIdx, start, end uint64, out *types.Vector) error
	Lookup(tx *transaction.Transaction, offsets []types.Offset, out *types.Vector) error
	Append(ctx context.Context, chunk *ColumnChunk, ngIdx types.NodeGroupIdx) error
	CommitLocalChunk(ctx context.Context, tx *transaction.Transaction, ngIdx types.NodeGroupIdx, updates map[uint64]types.Value, deleted *roaring.Bitmap) (inPlace bool, err error)
	HasUpdates() bool
	CheckpointInMemory()
	RollbackInMemory()
	Flush(ctx context.Context) (ColumnHeader, error)
}

// NewPropertyColumn returns an empty column for values of type t.
func NewPropertyColumn(t types.PhysicalType, cfg Config) PropertyColumn {
	if t == types.String {
		return NewStringColumn(cfg)
	}
	return NewColumn(t, cfg)
}

// LoadPropertyColumn loads a column flushed with Flush.
func LoadPropertyColumn(t types.PhysicalType, cfg Config, hdr ColumnHeader) (PropertyColumn, error) {
	if t == types.String {
		return LoadStringColumn(cfg, hdr)
	}
	return LoadColumn(t, cfg, hdr)
}

type rowUpdate struct {
	bits uint64
	null bool
}

// Column stores a fixed-width property.
type Column struct {
	typ      types.PhysicalType
	cfg      Config
	metadata *diskarray.DiskArray[ChunkMetadata]
	// nulls is nil for the value column of a NullColumn.
	nulls *NullColumn
}

// NewColumn returns an empty fixed-width column.
func NewColumn(t types.PhysicalType, cfg Config) *Column {
	if t == types.String || !t.Valid() {
		panic(fmt.Sprintf("store: fixed-width column of type %s", t))
	}
	c := newValueColumn(t, cfg)
	c.nulls = NewNullColumn(cfg, FormatRegular)
	return c
}

func newValueColumn(t types.PhysicalType, cfg Config) *Column {
	return &Column{
		typ:      t,
		cfg:      cfg,
		metadata: diskarray.New[ChunkMetadata](chunkMetadataCodec{}),
	}
}

// LoadColumn loads a fixed-width column.
func LoadColumn(t types.PhysicalType, cfg Config, hdr ColumnHeader) (*Column, error) {
	c, err := loadValueColumn(t, cfg, hdr.Metadata)
	if err != nil {
		return nil, err
	}
	c.nulls, err = loadNullColumn(cfg, FormatRegular, hdr.Nulls, hdr.MayHaveNull)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func loadValueColumn(t types.PhysicalType, cfg Config, hdr diskarray.Header) (*Column, error) {
	md, err := diskarray.Load[ChunkMetadata](transaction.DummyRead, cfg.File, hdr, chunkMetadataCodec{})
	if err != nil {
		return nil, fmt.Errorf("store: load %s column metadata: %w", t, err)
	}
	return &Column{typ: t, cfg: cfg, metadata: md}, nil
}

func (c *Column) DataType() types.PhysicalType { return c.typ }

// NullColumn returns the column tracking NULL rows.
func (c *Column) NullColumn() *NullColumn { return c.nulls }

// NumNodeGroups returns the number of node groups with metadata.
func (c *Column) NumNodeGroups(tx *transaction.Transaction) uint64 {
	return c.metadata.NumElements(tx)
}

// ChunkMetadata returns the metadata of node group ngIdx as seen by tx.
func (c *Column) ChunkMetadata(tx *transaction.Transaction, ngIdx types.NodeGroupIdx) ChunkMetadata {
	m, ok := c.metadata.Get(tx, ngIdx)
	if !ok {
		return emptyChunkMetadata
	}
	return m
}

func (c *Column) setChunkMetadata(ngIdx types.NodeGroupIdx, m ChunkMetadata) {
	c.metadata.Resize(ngIdx+1, emptyChunkMetadata)
	c.metadata.Update(ngIdx, m)
}

// readValues decodes rows [start, start+len(dst)) of the chunk described by m.
func (c *Column) readValues(tx *transaction.Transaction, m ChunkMetadata, start uint64, dst []uint64) error {
	if len(dst) == 0 {
		return nil
	}
	if m.Compression.BitWidth(c.typ) == 0 {
		compression.Decompress(c.typ, m.Compression, nil, 0, dst)
		return nil
	}
	vpp := m.Compression.ValuesPerPage(c.typ)
	page := make([]byte, pagefile.PageSize)
	end := start + uint64(len(dst))
	for pos := start; pos < end; {
		pageOff := pos / vpp
		if pageOff >= uint64(m.NumPages) {
			return fmt.Errorf("%w: row %d beyond %d pages", ErrCorrupt, pos, m.NumPages)
		}
		if err := c.cfg.File.ReadPage(tx, m.PageIdx+uint32(pageOff), page); err != nil {
			return err
		}
		inPage := pos % vpp
		n := min(end-pos, vpp-inPage)
		compression.Decompress(c.typ, m.Compression, page, inPage, dst[pos-start:pos-start+n])
		pos += n
	}
	return nil
}

// Scan appends rows [start, end) of node group ngIdx to out.
func (c *Column) Scan(tx *transaction.Transaction, ngIdx types.NodeGroupIdx, start, end uint64, out *types.Vector) error {
	m := c.ChunkMetadata(tx, ngIdx)
	if start > end || end > m.NumValues {
		return fmt.Errorf("%w: [%d, %d) of %d in node group %d", ErrRowOutOfRange, start, end, m.NumValues, ngIdx)
	}
	values := make([]uint64, end-start)
	if err := c.readValues(tx, m, start, values); err != nil {
		return err
	}
	nulls := make([]bool, len(values))
	if err := c.nulls.scan(tx, ngIdx, start, nulls); err != nil {
		return err
	}
	for i, v := range values {
		out.AppendBits(v, nulls[i])
	}
	return nil
}

// Lookup appends the values of the given node offsets to out.
func (c *Column) Lookup(tx *transaction.Transaction, offsets []types.Offset, out *types.Vector) error {
	for _, off := range offsets {
		ngIdx, pos := c.cfg.Split(off)
		if err := c.Scan(tx, ngIdx, pos, pos+1, out); err != nil {
			return err
		}
	}
	return nil
}

// Append writes chunk as the content of node group ngIdx to new pages.
func (c *Column) Append(ctx context.Context, chunk *ColumnChunk, ngIdx types.NodeGroupIdx) error {
	if chunk.DataType() != c.typ {
		return fmt.Errorf("%w: %s chunk into %s column", ErrTypeMismatch, chunk.DataType(), c.typ)
	}
	return c.appendRaw(ctx, ngIdx, chunk.values, chunk.nulls)
}

func (c *Column) appendRaw(ctx context.Context, ngIdx types.NodeGroupIdx, values []uint64, nulls *types.NullMask) error {
	meta := compression.GetMetadata(c.typ, values, nulls, c.cfg.EnableCompression)
	cm, err := c.writeChunk(ctx, values, nulls, meta)
	if err != nil {
		return err
	}
	c.setChunkMetadata(ngIdx, cm)
	if c.nulls != nil {
		return c.nulls.appendMask(ctx, ngIdx, nulls, uint64(len(values)))
	}
	return nil
}

func (c *Column) writeChunk(ctx context.Context, values []uint64, nulls *types.NullMask, meta compression.Metadata) (ChunkMetadata, error) {
	cm := ChunkMetadata{
		PageIdx:     pagefile.InvalidPage,
		NumPages:    meta.NumPages(c.typ, uint64(len(values))),
		NumValues:   uint64(len(values)),
		Compression: meta,
	}
	if cm.NumPages == 0 {
		return cm, nil
	}
	cm.PageIdx = c.cfg.File.AddNewPages(cm.NumPages)
	if err := c.cfg.File.WritePages(ctx, cm.PageIdx, compression.Compress(c.typ, meta, values, nulls)); err != nil {
		return ChunkMetadata{}, fmt.Errorf("store: write %s chunk: %w", c.typ, err)
	}
	return cm, nil
}

// CommitLocalChunk applies the write transaction's changes to node group
// ngIdx. It reports whether the value chunk was patched in place.
func (c *Column) CommitLocalChunk(ctx context.Context, tx *transaction.Transaction, ngIdx types.NodeGroupIdx, updates map[uint64]types.Value, deleted *roaring.Bitmap) (bool, error) {
	raw := make(map[uint64]rowUpdate, len(updates))
	nulls := make(map[uint64]bool, len(updates))
	for pos, v := range updates {
		if v.Type() != c.typ {
			return false, fmt.Errorf("%w: %s value into %s column", ErrTypeMismatch, v.Type(), c.typ)
		}
		raw[pos] = rowUpdate{bits: v.Bits(), null: v.IsNull()}
		nulls[pos] = v.IsNull()
	}
	inPlace, err := c.commitValues(ctx, tx, ngIdx, raw)
	if err != nil {
		return false, err
	}
	if _, err := c.nulls.commitLocalChunk(ctx, tx, ngIdx, nulls, deleted); err != nil {
		return false, err
	}
	return inPlace, nil
}

func (c *Column) commitValues(ctx context.Context, tx *transaction.Transaction, ngIdx types.NodeGroupIdx, updates map[uint64]rowUpdate) (bool, error) {
	if len(updates) == 0 {
		return true, nil
	}
	m := c.ChunkMetadata(tx, ngIdx)
	if c.canCommitInPlace(m, updates) {
		return true, c.commitLocalChunkInPlace(ngIdx, m, updates)
	}
	return false, c.commitLocalChunkOutOfPlace(ctx, tx, ngIdx, m, updates)
}

// canCommitInPlace reports whether every update is representable under the
// chunk's current encoding and fits its allocated pages.
func (c *Column) canCommitInPlace(m ChunkMetadata, updates map[uint64]rowUpdate) bool {
	if !c.cfg.EnableCompression && m.Compression.Encoding != compression.Uncompressed {
		return false
	}
	capacity := uint64(math.MaxUint64)
	if m.Compression.BitWidth(c.typ) > 0 {
		capacity = uint64(m.NumPages) * m.Compression.ValuesPerPage(c.typ)
	}
	for pos, u := range updates {
		if pos >= capacity {
			return false
		}
		if !u.null && !m.Compression.CanUpdateInPlace(c.typ, u.bits) {
			return false
		}
	}
	return true
}

func (c *Column) commitLocalChunkInPlace(ngIdx types.NodeGroupIdx, m ChunkMetadata, updates map[uint64]rowUpdate) error {
	next := m
	if m.Compression.BitWidth(c.typ) > 0 {
		vpp := m.Compression.ValuesPerPage(c.typ)
		byPage := make(map[uint32][]uint64)
		for pos := range updates {
			byPage[uint32(pos/vpp)] = append(byPage[uint32(pos/vpp)], pos)
		}
		for _, pageOff := range slices.Sorted(maps.Keys(byPage)) {
			err := c.cfg.File.UpdatePage(m.PageIdx+pageOff, func(page []byte) {
				for _, pos := range byPage[pageOff] {
					u := updates[pos]
					v := u.bits
					if u.null {
						v = m.Compression.Min
					}
					compression.SetValue(c.typ, m.Compression, page, pos%vpp, v)
				}
			})
			if err != nil {
				return fmt.Errorf("store: update %s chunk in place: %w", c.typ, err)
			}
		}
	}
	for pos, u := range updates {
		if !u.null {
			next.Compression = next.Compression.Widen(c.typ, u.bits)
		}
		next.NumValues = max(next.NumValues, pos+1)
	}
	c.setChunkMetadata(ngIdx, next)
	return nil
}

func (c *Column) commitLocalChunkOutOfPlace(ctx context.Context, tx *transaction.Transaction, ngIdx types.NodeGroupIdx, m ChunkMetadata, updates map[uint64]rowUpdate) error {
	n := m.NumValues
	for pos := range updates {
		n = max(n, pos+1)
	}
	values := make([]uint64, n)
	if err := c.readValues(tx, m, 0, values[:m.NumValues]); err != nil {
		return err
	}
	nulls := types.NewNullMask(int(n))
	if c.nulls != nil {
		existing := make([]bool, m.NumValues)
		if err := c.nulls.scan(tx, ngIdx, 0, existing); err != nil {
			return err
		}
		for i, isNull := range existing {
			if isNull {
				nulls.Set(i, true)
			}
		}
	}
	for pos, u := range updates {
		values[pos] = u.bits
		nulls.Set(int(pos), u.null)
	}
	meta := compression.GetMetadata(c.typ, values, nulls, c.cfg.EnableCompression)
	cm, err := c.writeChunk(ctx, values, nulls, meta)
	if err != nil {
		return err
	}
	c.setChunkMetadata(ngIdx, cm)
	c.cfg.logger().Debug("rewrote column chunk",
		"type", c.typ, "nodeGroup", ngIdx, "values", n, "encoding", meta.Encoding)
	return nil
}

// HasUpdates reports whether the column has uncheckpointed changes.
func (c *Column) HasUpdates() bool {
	return c.metadata.HasUpdates() || (c.nulls != nil && c.nulls.HasUpdates())
}

// CheckpointInMemory publishes the write version of the column.
func (c *Column) CheckpointInMemory() {
	c.metadata.Checkpoint()
	if c.nulls != nil {
		c.nulls.CheckpointInMemory()
	}
}

// RollbackInMemory discards the write version of the column.
func (c *Column) RollbackInMemory() {
	c.metadata.Rollback()
	if c.nulls != nil {
		c.nulls.RollbackInMemory()
	}
}

// Flush persists the checkpointed metadata arrays.
func (c *Column) Flush(ctx context.Context) (ColumnHeader, error) {
	var hdr ColumnHeader
	var err error
	if hdr.Metadata, err = c.metadata.Flush(ctx, c.cfg.File); err != nil {
		return hdr, err
	}
	hdr.Dictionary = diskarray.EmptyHeader
	hdr.Nulls = diskarray.EmptyHeader
	if c.nulls != nil {
		if hdr.Nulls, err = c.nulls.values.metadata.Flush(ctx, c.cfg.File); err != nil {
			return hdr, err
		}
		hdr.MayHaveNull = c.nulls.MayHaveNull()
	}
	return hdr, nil
}
