package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type catalogFile struct {
	Blob   string `json:"blob"`
	Size   int64  `json:"size"`
	CRC32C uint32 `json:"crc32c"`
}

type catalog struct {
	ID    string        `json:"id"`
	Files []catalogFile `json:"files"`
}

func TestCodecsReadEachOther(t *testing.T) {
	in := catalog{
		ID:    "00000000000000000007-a1",
		Files: []catalogFile{{Blob: "data.gs", Size: 8192, CRC32C: 0xdeadbeef}, {Blob: "CURRENT", Size: 19}},
	}
	for _, enc := range []Codec{JSON, GoJSON} {
		data, err := enc.Marshal(in)
		require.NoError(t, err)
		for _, dec := range []Codec{JSON, GoJSON} {
			var out catalog
			require.NoError(t, dec.Unmarshal(data, &out), "%s -> %s", enc.Name(), dec.Name())
			assert.Equal(t, in, out)
		}
	}
}

func TestLookup(t *testing.T) {
	assert.Equal(t, []string{"go-json", "json"}, Names())
	for _, name := range Names() {
		c, err := Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}

	_, err := Lookup("msgpack")
	assert.ErrorIs(t, err, ErrUnknown)
	assert.Equal(t, GoJSON, Default)
}

func BenchmarkMarshalCatalog(b *testing.B) {
	files := make([]catalogFile, 64)
	for i := range files {
		files[i] = catalogFile{Blob: "pk-000001.idx", Size: int64(i) << 12, CRC32C: uint32(i)}
	}
	v := catalog{ID: "bench", Files: files}
	for _, c := range []Codec{JSON, GoJSON} {
		b.Run(c.Name(), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				if _, err := c.Marshal(v); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
