package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/graphstore/internal/blockcodec"
	"github.com/hupe1980/graphstore/internal/diskarray"
	"github.com/hupe1980/graphstore/internal/pagefile"
	"github.com/hupe1980/graphstore/internal/transaction"
	"github.com/hupe1980/graphstore/internal/types"
)

// StringColumn stores strings as a dictionary per node group plus a column
// of dictionary indices. Dictionaries are LZ4 compressed. Every commit
// rewrites the touched node groups.
type StringColumn struct {
	cfg   Config
	index *Column
	dicts *diskarray.DiskArray[DictionaryMetadata]
	// cache maps the first page of a dictionary to its decoded strings.
	// Dictionary pages are never rewritten, so entries never go stale.
	cache sync.Map
}

// NewStringColumn returns an empty string column.
func NewStringColumn(cfg Config) *StringColumn {
	index := newValueColumn(types.Uint32, cfg)
	index.nulls = NewNullColumn(cfg, FormatRegular)
	return &StringColumn{
		cfg:   cfg,
		index: index,
		dicts: diskarray.New[DictionaryMetadata](dictionaryMetadataCodec{}),
	}
}

// LoadStringColumn loads a string column.
func LoadStringColumn(cfg Config, hdr ColumnHeader) (*StringColumn, error) {
	index, err := LoadColumn(types.Uint32, cfg, hdr)
	if err != nil {
		return nil, err
	}
	dicts, err := diskarray.Load[DictionaryMetadata](transaction.DummyRead, cfg.File, hdr.Dictionary, dictionaryMetadataCodec{})
	if err != nil {
		return nil, fmt.Errorf("store: load dictionary metadata: %w", err)
	}
	return &StringColumn{cfg: cfg, index: index, dicts: dicts}, nil
}

func (s *StringColumn) DataType() types.PhysicalType { return types.String }

func (s *StringColumn) NumNodeGroups(tx *transaction.Transaction) uint64 {
	return s.index.NumNodeGroups(tx)
}

// ChunkMetadata returns the metadata of the index chunk. Its bounds are
// dictionary positions, not string bounds.
func (s *StringColumn) ChunkMetadata(tx *transaction.Transaction, ngIdx types.NodeGroupIdx) ChunkMetadata {
	return s.index.ChunkMetadata(tx, ngIdx)
}

// Scan appends rows [start, end) of node group ngIdx to out.
func (s *StringColumn) Scan(tx *transaction.Transaction, ngIdx types.NodeGroupIdx, start, end uint64, out *types.Vector) error {
	idx := types.NewVector(types.Uint32, int(end-start))
	if err := s.index.Scan(tx, ngIdx, start, end, idx); err != nil {
		return err
	}
	dict, err := s.dictionary(tx, ngIdx)
	if err != nil {
		return err
	}
	for i := range idx.Len() {
		if idx.IsNull(i) {
			out.AppendString("", true)
			continue
		}
		pos := idx.Bits(i)
		if pos >= uint64(len(dict)) {
			return fmt.Errorf("%w: dictionary index %d of %d in node group %d", ErrCorrupt, pos, len(dict), ngIdx)
		}
		out.AppendString(dict[pos], false)
	}
	return nil
}

// Lookup appends the values of the given node offsets to out.
func (s *StringColumn) Lookup(tx *transaction.Transaction, offsets []types.Offset, out *types.Vector) error {
	for _, off := range offsets {
		ngIdx, pos := s.cfg.Split(off)
		if err := s.Scan(tx, ngIdx, pos, pos+1, out); err != nil {
			return err
		}
	}
	return nil
}

// Append writes chunk as the content of node group ngIdx.
func (s *StringColumn) Append(ctx context.Context, chunk *ColumnChunk, ngIdx types.NodeGroupIdx) error {
	if chunk.DataType() != types.String {
		return fmt.Errorf("%w: %s chunk into STRING column", ErrTypeMismatch, chunk.DataType())
	}
	positions := make(map[string]uint64)
	var dict []string
	indices := make([]uint64, len(chunk.strs))
	for i, str := range chunk.strs {
		if chunk.nulls.IsNull(i) {
			continue
		}
		pos, ok := positions[str]
		if !ok {
			pos = uint64(len(dict))
			positions[str] = pos
			dict = append(dict, str)
		}
		indices[i] = pos
	}
	dm, err := s.writeDictionary(ctx, dict)
	if err != nil {
		return err
	}
	if err := s.index.appendRaw(ctx, ngIdx, indices, chunk.nulls); err != nil {
		return err
	}
	s.dicts.Resize(ngIdx+1, emptyDictionaryMetadata)
	s.dicts.Update(ngIdx, dm)
	return nil
}

func encodeDictionary(dict []string) []byte {
	size := 4 + 4*(len(dict)+1)
	for _, str := range dict {
		size += len(str)
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(dict)))
	var off uint32
	for _, str := range dict {
		buf = binary.LittleEndian.AppendUint32(buf, off)
		off += uint32(len(str))
	}
	buf = binary.LittleEndian.AppendUint32(buf, off)
	for _, str := range dict {
		buf = append(buf, str...)
	}
	return buf
}

func decodeDictionary(data []byte) ([]string, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: short dictionary", ErrCorrupt)
	}
	n := int(binary.LittleEndian.Uint32(data))
	head := 4 + 4*(n+1)
	if len(data) < head {
		return nil, fmt.Errorf("%w: dictionary offsets truncated", ErrCorrupt)
	}
	payload := data[head:]
	dict := make([]string, n)
	for i := range dict {
		from := binary.LittleEndian.Uint32(data[4+4*i:])
		to := binary.LittleEndian.Uint32(data[8+4*i:])
		if from > to || int(to) > len(payload) {
			return nil, fmt.Errorf("%w: dictionary entry %d", ErrCorrupt, i)
		}
		dict[i] = string(payload[from:to])
	}
	return dict, nil
}

func (s *StringColumn) writeDictionary(ctx context.Context, dict []string) (DictionaryMetadata, error) {
	if len(dict) == 0 {
		return emptyDictionaryMetadata, nil
	}
	frame, err := blockcodec.Compress(encodeDictionary(dict), blockcodec.LZ4)
	if err != nil {
		return DictionaryMetadata{}, err
	}
	numPages := uint32((len(frame) + pagefile.PageSize - 1) / pagefile.PageSize)
	data := make([]byte, int(numPages)*pagefile.PageSize)
	copy(data, frame)

	dm := DictionaryMetadata{
		PageIdx:    s.cfg.File.AddNewPages(numPages),
		NumPages:   numPages,
		NumStrings: uint32(len(dict)),
		FrameSize:  uint32(len(frame)),
	}
	if err := s.cfg.File.WritePages(ctx, dm.PageIdx, data); err != nil {
		return DictionaryMetadata{}, fmt.Errorf("store: write dictionary: %w", err)
	}
	s.cache.Store(dm.PageIdx, dict)
	return dm, nil
}

func (s *StringColumn) dictionary(tx *transaction.Transaction, ngIdx types.NodeGroupIdx) ([]string, error) {
	dm, ok := s.dicts.Get(tx, ngIdx)
	if !ok || dm.NumStrings == 0 {
		return nil, nil
	}
	if v, ok := s.cache.Load(dm.PageIdx); ok {
		return v.([]string), nil
	}
	data := make([]byte, int(dm.NumPages)*pagefile.PageSize)
	for i := range dm.NumPages {
		page := data[int(i)*pagefile.PageSize : int(i+1)*pagefile.PageSize]
		if err := s.cfg.File.ReadPage(tx, dm.PageIdx+i, page); err != nil {
			return nil, err
		}
	}
	if int(dm.FrameSize) > len(data) {
		return nil, fmt.Errorf("%w: dictionary frame %d exceeds %d pages", ErrCorrupt, dm.FrameSize, dm.NumPages)
	}
	raw, err := blockcodec.Decompress(data[:dm.FrameSize], blockcodec.LZ4)
	if err != nil {
		return nil, err
	}
	dict, err := decodeDictionary(raw)
	if err != nil {
		return nil, err
	}
	if len(dict) != int(dm.NumStrings) {
		return nil, fmt.Errorf("%w: dictionary has %d strings, want %d", ErrCorrupt, len(dict), dm.NumStrings)
	}
	s.cache.Store(dm.PageIdx, dict)
	return dict, nil
}

// CommitLocalChunk rewrites node group ngIdx with the transaction's changes.
// String chunks are never patched in place, so inPlace is always false.
func (s *StringColumn) CommitLocalChunk(ctx context.Context, tx *transaction.Transaction, ngIdx types.NodeGroupIdx, updates map[uint64]types.Value, deleted *roaring.Bitmap) (bool, error) {
	if len(updates) == 0 && (deleted == nil || deleted.IsEmpty()) {
		return false, nil
	}
	numValues := s.index.ChunkMetadata(tx, ngIdx).NumValues
	n := numValues
	for pos, v := range updates {
		if v.Type() != types.String {
			return false, fmt.Errorf("%w: %s value into STRING column", ErrTypeMismatch, v.Type())
		}
		n = max(n, pos+1)
	}
	chunk := NewColumnChunk(types.String, n)
	if numValues > 0 {
		existing := types.NewVector(types.String, int(numValues))
		if err := s.Scan(tx, ngIdx, 0, numValues, existing); err != nil {
			return false, err
		}
		for i := range existing.Len() {
			chunk.Append(existing.Get(i))
		}
	}
	for pos, v := range updates {
		chunk.Set(pos, v)
	}
	if deleted != nil {
		it := deleted.Iterator()
		for it.HasNext() {
			if pos := uint64(it.Next()); pos < chunk.NumValues() {
				chunk.Set(pos, types.Null(types.String))
			}
		}
	}
	return false, s.Append(ctx, chunk, ngIdx)
}

func (s *StringColumn) HasUpdates() bool {
	return s.index.HasUpdates() || s.dicts.HasUpdates()
}

func (s *StringColumn) CheckpointInMemory() {
	s.index.CheckpointInMemory()
	s.dicts.Checkpoint()
}

func (s *StringColumn) RollbackInMemory() {
	s.index.RollbackInMemory()
	s.dicts.Rollback()
}

// Flush persists the index column and the dictionary metadata.
func (s *StringColumn) Flush(ctx context.Context) (ColumnHeader, error) {
	hdr, err := s.index.Flush(ctx)
	if err != nil {
		return hdr, err
	}
	if hdr.Dictionary, err = s.dicts.Flush(ctx, s.cfg.File); err != nil {
		return hdr, err
	}
	return hdr, nil
}
