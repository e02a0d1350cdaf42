package manifest

import (
	"bytes"
	"testing"
	"time"

	"github.com/hupe1980/graphstore/internal/diskarray"
	"github.com/hupe1980/graphstore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleManifest() *Manifest {
	return &Manifest{
		Version:           CurrentVersion,
		ID:                3,
		CreatedAt:         time.Unix(0, 1700000000123),
		NodeGroupSizeLog2: 18,
		NumDataPages:      77,
		NextTableID:       3,
		NextTxID:          12,
		Tables: []TableInfo{
			{
				ID:         1,
				Kind:       NodeTable,
				Name:       "person",
				PrimaryKey: 1,
				Properties: []types.Property{
					{Name: "id", DataType: types.Int64, PropertyID: 1, TableID: 1},
					{Name: "name", DataType: types.String, PropertyID: 2, TableID: 1},
				},
				Columns: []ColumnInfo{
					{PropertyID: 1, Metadata: diskarray.Header{NumElements: 2, FirstPIP: 4}, Nulls: diskarray.Header{NumElements: 2, FirstPIP: 9}, Dictionary: diskarray.EmptyHeader},
					{PropertyID: 2, Metadata: diskarray.Header{NumElements: 2, FirstPIP: 11}, Nulls: diskarray.Header{NumElements: 2, FirstPIP: 12}, Dictionary: diskarray.Header{NumElements: 2, FirstPIP: 13}, MayHaveNull: true},
				},
				PKIndexPath: "pk-1.idx",
			},
			{ID: 2, Kind: RelTable, Name: "knows", SrcTableID: 1, DstTableID: 1, Properties: []types.Property{}, Columns: []ColumnInfo{}},
		},
		Stats: []byte{1, 2, 3},
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	m := sampleManifest()
	var buf bytes.Buffer
	require.NoError(t, m.WriteBinary(&buf))

	m2, err := ReadBinary(&buf)
	require.NoError(t, err)
	assert.True(t, m.CreatedAt.Equal(m2.CreatedAt))
	m2.CreatedAt = m.CreatedAt
	assert.Equal(t, m, m2)

	tbl, ok := m2.Table(1)
	require.True(t, ok)
	col, ok := tbl.Column(2)
	require.True(t, ok)
	assert.True(t, col.MayHaveNull)
	_, ok = tbl.Column(9)
	assert.False(t, ok)
	_, ok = m2.Table(9)
	assert.False(t, ok)
}

func TestReadBinaryErrors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleManifest().WriteBinary(&buf))
	valid := buf.Bytes()

	corrupt := bytes.Clone(valid)
	corrupt[len(corrupt)-1] ^= 0xff
	_, err := ReadBinary(bytes.NewReader(corrupt))
	assert.ErrorIs(t, err, ErrCorrupt)

	version := bytes.Clone(valid)
	version[4] = 9
	_, err = ReadBinary(bytes.NewReader(version))
	assert.ErrorIs(t, err, ErrIncompatibleVersion)

	_, err = ReadBinary(bytes.NewReader(valid[:len(valid)-4]))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = ReadBinary(bytes.NewReader([]byte("GSMF")))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestWriteBinaryRejectsLongStrings(t *testing.T) {
	m := New(10)
	m.Tables = []TableInfo{{Name: string(make([]byte, 70000))}}
	assert.Error(t, m.WriteBinary(&bytes.Buffer{}))
}
