// Package blockcodec compresses byte blocks with LZ4 or ZSTD.
//
// A block is framed as [uncompressed u32][compressed u32][data]. A compressed
// size of zero means the data is stored raw, which happens when compression
// saves less than ten percent.
package blockcodec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type selects the compression algorithm.
type Type uint8

const (
	None Type = iota
	LZ4
	ZSTD
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// ParseType parses the String form of a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	}
	return None, fmt.Errorf("blockcodec: unknown compression %q", s)
}

// HeaderSize is the size of a block frame header.
const HeaderSize = 8

var ErrCorrupt = errors.New("blockcodec: corrupt block")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Compress frames data as one block.
func Compress(data []byte, t Type) ([]byte, error) {
	var compressed []byte
	switch t {
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case ZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, HeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		copy(out[HeaderSize:], data)
		return out, nil
	}
	out := make([]byte, HeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[HeaderSize:], compressed)
	return out, nil
}

// FrameSize returns the total size of the block starting at data.
func FrameSize(data []byte) (int, error) {
	if len(data) < HeaderSize {
		return 0, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	size := binary.LittleEndian.Uint32(data[4:])
	if size == 0 {
		size = binary.LittleEndian.Uint32(data[0:])
	}
	return HeaderSize + int(size), nil
}

// Decompress decodes the block starting at data. Trailing bytes after the
// block are ignored.
func Decompress(data []byte, t Type) ([]byte, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	rawSize := binary.LittleEndian.Uint32(data[0:])
	compressedSize := binary.LittleEndian.Uint32(data[4:])

	if compressedSize == 0 {
		if uint32(len(data)-HeaderSize) < rawSize {
			return nil, fmt.Errorf("%w: raw block truncated", ErrCorrupt)
		}
		return data[HeaderSize : HeaderSize+rawSize], nil
	}
	if uint32(len(data)-HeaderSize) < compressedSize {
		return nil, fmt.Errorf("%w: compressed block truncated", ErrCorrupt)
	}
	src := data[HeaderSize : HeaderSize+compressedSize]
	result := make([]byte, rawSize)

	switch t {
	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		decoded, err := dec.DecodeAll(src, result[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint32(len(decoded)) != rawSize {
			return nil, fmt.Errorf("%w: size mismatch", ErrCorrupt)
		}
		return decoded, nil
	case LZ4:
		n, err := lz4.UncompressBlock(src, result)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint32(n) != rawSize {
			return nil, fmt.Errorf("%w: size mismatch", ErrCorrupt)
		}
		return result, nil
	}
	return nil, fmt.Errorf("%w: compressed block with type %s", ErrCorrupt, t)
}
