package store

import (
	"encoding/binary"

	"github.com/hupe1980/graphstore/internal/compression"
	"github.com/hupe1980/graphstore/internal/pagefile"
)

// ChunkMetadata locates one column chunk on disk.
type ChunkMetadata struct {
	PageIdx     uint32
	NumPages    uint32
	NumValues   uint64
	Compression compression.Metadata
}

// emptyChunkMetadata describes a node group without values.
var emptyChunkMetadata = ChunkMetadata{
	PageIdx:     pagefile.InvalidPage,
	Compression: compression.Metadata{Encoding: compression.Constant},
}

type chunkMetadataCodec struct{}

func (chunkMetadataCodec) Size() int { return 40 }

func (chunkMetadataCodec) Encode(dst []byte, m *ChunkMetadata) {
	binary.LittleEndian.PutUint32(dst[0:], m.PageIdx)
	binary.LittleEndian.PutUint32(dst[4:], m.NumPages)
	binary.LittleEndian.PutUint64(dst[8:], m.NumValues)
	binary.LittleEndian.PutUint64(dst[16:], m.Compression.Min)
	binary.LittleEndian.PutUint64(dst[24:], m.Compression.Max)
	dst[32] = byte(m.Compression.Encoding)
	clear(dst[33:40])
}

func (chunkMetadataCodec) Decode(src []byte, m *ChunkMetadata) {
	m.PageIdx = binary.LittleEndian.Uint32(src[0:])
	m.NumPages = binary.LittleEndian.Uint32(src[4:])
	m.NumValues = binary.LittleEndian.Uint64(src[8:])
	m.Compression.Min = binary.LittleEndian.Uint64(src[16:])
	m.Compression.Max = binary.LittleEndian.Uint64(src[24:])
	m.Compression.Encoding = compression.Encoding(src[32])
}

// DictionaryMetadata locates the string dictionary of one node group.
type DictionaryMetadata struct {
	PageIdx    uint32
	NumPages   uint32
	NumStrings uint32
	// FrameSize is the size of the compressed dictionary frame.
	FrameSize uint32
}

var emptyDictionaryMetadata = DictionaryMetadata{PageIdx: pagefile.InvalidPage}

type dictionaryMetadataCodec struct{}

func (dictionaryMetadataCodec) Size() int { return 16 }

func (dictionaryMetadataCodec) Encode(dst []byte, m *DictionaryMetadata) {
	binary.LittleEndian.PutUint32(dst[0:], m.PageIdx)
	binary.LittleEndian.PutUint32(dst[4:], m.NumPages)
	binary.LittleEndian.PutUint32(dst[8:], m.NumStrings)
	binary.LittleEndian.PutUint32(dst[12:], m.FrameSize)
}

func (dictionaryMetadataCodec) Decode(src []byte, m *DictionaryMetadata) {
	m.PageIdx = binary.LittleEndian.Uint32(src[0:])
	m.NumPages = binary.LittleEndian.Uint32(src[4:])
	m.NumStrings = binary.LittleEndian.Uint32(src[8:])
	m.FrameSize = binary.LittleEndian.Uint32(src[12:])
}
