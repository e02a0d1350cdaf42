package hashindex

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/graphstore/internal/hash"
	"github.com/hupe1980/graphstore/internal/types"
)

const (
	// InlineKeyLen is the longest string key stored inside a slot.
	InlineKeyLen = 12

	prefixLen     = 4
	fixedKeySize  = 8
	stringKeySize = 4 + InlineKeyLen
)

// KeyStorage is the slot form of a string key. Keys of up to InlineKeyLen
// bytes are Inline; longer keys keep a prefix and Overflow points at the full
// bytes in the OverflowFile.
type KeyStorage struct {
	Len  uint32
	data [InlineKeyLen]byte
}

func inlineKey(s string) KeyStorage {
	k := KeyStorage{Len: uint32(len(s))}
	copy(k.data[:], s)
	return k
}

func overflowKey(s string, p PagePointer) KeyStorage {
	k := KeyStorage{Len: uint32(len(s))}
	copy(k.data[:prefixLen], s)
	binary.LittleEndian.PutUint32(k.data[prefixLen:], p.PageIdx)
	binary.LittleEndian.PutUint32(k.data[prefixLen+4:], p.Offset)
	return k
}

func (k *KeyStorage) IsInline() bool { return k.Len <= InlineKeyLen }

// Inline returns the key bytes of an inline key.
func (k *KeyStorage) Inline() []byte { return k.data[:k.Len] }

// Overflow returns the location of an overflow key's bytes.
func (k *KeyStorage) Overflow() PagePointer {
	return PagePointer{
		PageIdx: binary.LittleEndian.Uint32(k.data[prefixLen:]),
		Offset:  binary.LittleEndian.Uint32(k.data[prefixLen+4:]),
	}
}

func (k *KeyStorage) encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst, k.Len)
	copy(dst[4:stringKeySize], k.data[:])
}

func decodeKeyStorage(src []byte) KeyStorage {
	var k KeyStorage
	k.Len = binary.LittleEndian.Uint32(src)
	copy(k.data[:], src[4:stringKeySize])
	return k
}

// HashKey returns the hash of a non-NULL key. Shards are chosen by its high
// bits and slots by its low bits.
func HashKey(key types.Value) uint64 {
	if key.Type() == types.String {
		return hash.String(key.Str())
	}
	return hash.Int64(int64(key.Bits()))
}

// keyCodec stores keys of one physical type in slot entries.
type keyCodec interface {
	size() int
	encode(dst []byte, key types.Value)
	equals(key types.Value, stored []byte) bool
	hashStored(stored []byte) uint64
}

func newKeyCodec(t types.PhysicalType, ovf *OverflowFile) keyCodec {
	if t == types.String {
		return stringKeys{ovf: ovf}
	}
	return fixedKeys{}
}

type fixedKeys struct{}

func (fixedKeys) size() int { return fixedKeySize }

func (fixedKeys) encode(dst []byte, key types.Value) {
	binary.LittleEndian.PutUint64(dst, key.Bits())
}

func (fixedKeys) equals(key types.Value, stored []byte) bool {
	return binary.LittleEndian.Uint64(stored) == key.Bits()
}

func (fixedKeys) hashStored(stored []byte) uint64 {
	return hash.Int64(int64(binary.LittleEndian.Uint64(stored)))
}

type stringKeys struct {
	ovf *OverflowFile
}

func (stringKeys) size() int { return stringKeySize }

func (c stringKeys) encode(dst []byte, key types.Value) {
	s := key.Str()
	k := inlineKey(s)
	if len(s) > InlineKeyLen {
		k = overflowKey(s, c.ovf.AppendString(s))
	}
	k.encode(dst)
}

func (c stringKeys) equals(key types.Value, stored []byte) bool {
	s := key.Str()
	k := decodeKeyStorage(stored)
	if int(k.Len) != len(s) {
		return false
	}
	if k.IsInline() {
		return string(k.Inline()) == s
	}
	if string(k.data[:prefixLen]) != s[:prefixLen] {
		return false
	}
	return c.ovf.Equals(k.Overflow(), s)
}

func (c stringKeys) hashStored(stored []byte) uint64 {
	k := decodeKeyStorage(stored)
	if k.IsInline() {
		return hash.Bytes(k.Inline())
	}
	return hash.String(c.ovf.ReadString(k.Overflow(), int(k.Len)))
}

func checkKeyType(t types.PhysicalType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %s", ErrKeyType, t)
	}
	return nil
}
