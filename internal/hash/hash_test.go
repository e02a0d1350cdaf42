package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32CPartsMatchesOneShot(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	assert.Equal(t, CRC32C(data), CRC32CParts(data[:10], data[10:]))
	assert.Equal(t, CRC32C(data), CRC32CParts(nil, data))
	assert.Equal(t, CRC32C(nil), CRC32CParts())
	assert.Equal(t, CRC32C(data), UpdateCRC32C(CRC32C(data[:3]), data[3:]))
}

func TestKeyHashesAreStable(t *testing.T) {
	// Values are persisted through index placement and must not change.
	assert.Equal(t, uint64(0), Int64(0))
	assert.Equal(t, uint64(0xef46db3751d8e999), String(""))
	assert.Equal(t, String("abc"), Bytes([]byte("abc")))
}

func TestInt64SpreadsHighBits(t *testing.T) {
	seen := make(map[uint64]struct{})
	for k := range int64(4096) {
		seen[Int64(k)>>56] = struct{}{}
	}
	// Sequential keys must reach most of the 256 top-byte buckets.
	assert.Greater(t, len(seen), 200)
}
