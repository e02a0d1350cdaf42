package store

import (
	"path/filepath"
	"testing"

	"github.com/hupe1980/graphstore/internal/fs"
	"github.com/hupe1980/graphstore/internal/pagefile"
	"github.com/hupe1980/graphstore/internal/transaction"
	"github.com/hupe1980/graphstore/internal/types"
	"github.com/stretchr/testify/require"
)

var (
	readTx  = transaction.DummyRead
	writeTx = &transaction.Transaction{ID: 1, Type: transaction.Write}
)

func newConfig(t *testing.T, fsys fs.FileSystem, log2 uint8) Config {
	t.Helper()
	fh, err := pagefile.Open(fsys, filepath.Join(t.TempDir(), "data.gs"), pagefile.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fh.Close() })
	return Config{File: fh, NodeGroupSizeLog2: log2, EnableCompression: true}
}

// publish makes the write version visible to readers.
func publish(t *testing.T, cfg Config, cols ...interface{ CheckpointInMemory() }) {
	t.Helper()
	require.NoError(t, cfg.File.CheckpointShadow(t.Context()))
	for _, c := range cols {
		c.CheckpointInMemory()
	}
}

func int64Chunk(capacity uint64, values ...int64) *ColumnChunk {
	c := NewColumnChunk(types.Int64, capacity)
	for _, v := range values {
		c.Append(types.NewInt64(v))
	}
	return c
}

func scanAll(t *testing.T, tx *transaction.Transaction, col PropertyColumn, ngIdx types.NodeGroupIdx) []types.Value {
	t.Helper()
	n := col.ChunkMetadata(tx, ngIdx).NumValues
	out := types.NewVector(col.DataType(), int(n))
	require.NoError(t, col.Scan(tx, ngIdx, 0, n, out))
	values := make([]types.Value, out.Len())
	for i := range values {
		values[i] = out.Get(i)
	}
	return values
}
