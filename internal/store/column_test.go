package store

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/graphstore/internal/compression"
	"github.com/hupe1980/graphstore/internal/fs"
	"github.com/hupe1980/graphstore/internal/types"
	"github.com/hupe1980/graphstore/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnAppendScanRoundTrip(t *testing.T) {
	physicalTypes := []types.PhysicalType{
		types.Bool, types.Int8, types.Int16, types.Int32, types.Int64,
		types.Uint8, types.Uint16, types.Uint32, types.Uint64, types.Float, types.Double,
	}
	for _, typ := range physicalTypes {
		t.Run(typ.String(), func(t *testing.T) {
			cfg := newConfig(t, nil, 12)
			col := NewColumn(typ, cfg)
			rng := testutil.NewRNG(7)

			want := make(map[types.NodeGroupIdx][]types.Value)
			for ngIdx := range types.NodeGroupIdx(2) {
				nulls := rng.NullRate(3000, 0.1)
				chunk := NewColumnChunk(typ, cfg.NodeGroupSize())
				for _, isNull := range nulls {
					v := rng.Value(typ)
					if isNull {
						v = types.Null(typ)
					}
					chunk.Append(v)
					want[ngIdx] = append(want[ngIdx], v)
				}
				require.NoError(t, col.Append(t.Context(), chunk, ngIdx))
			}
			publish(t, cfg, col)

			for ngIdx, values := range want {
				assert.Equal(t, values, scanAll(t, readTx, col, ngIdx))
			}

			out := types.NewVector(typ, 2)
			off := uint64(1)<<cfg.NodeGroupSizeLog2 + 17
			require.NoError(t, col.Lookup(readTx, []types.Offset{3, off}, out))
			assert.Equal(t, want[0][3], out.Get(0))
			assert.Equal(t, want[1][17], out.Get(1))
		})
	}
}

func TestColumnScanOutOfRange(t *testing.T) {
	cfg := newConfig(t, nil, 8)
	col := NewColumn(types.Int64, cfg)
	require.NoError(t, col.Append(t.Context(), int64Chunk(256, 1, 2, 3), 0))

	out := types.NewVector(types.Int64, 4)
	require.ErrorIs(t, col.Scan(writeTx, 0, 0, 4, out), ErrRowOutOfRange)
	require.ErrorIs(t, col.Scan(writeTx, 1, 0, 1, out), ErrRowOutOfRange)
	require.ErrorIs(t, col.Append(t.Context(), NewColumnChunk(types.Int32, 1), 0), ErrTypeMismatch)
}

func TestColumnCommitInPlaceKeepsPages(t *testing.T) {
	cfg := newConfig(t, nil, 8)
	col := NewColumn(types.Int64, cfg)
	values := make([]int64, 100)
	for i := range values {
		values[i] = int64(100 + i)
	}
	require.NoError(t, col.Append(t.Context(), int64Chunk(256, values...), 0))
	publish(t, cfg, col)

	before := col.ChunkMetadata(readTx, 0)
	require.Equal(t, compression.IntegerBitpacking, before.Compression.Encoding)
	require.Equal(t, uint8(7), before.Compression.BitWidth(types.Int64))

	inPlace, err := col.CommitLocalChunk(t.Context(), writeTx, 0, map[uint64]types.Value{
		5:  types.NewInt64(227),
		6:  types.Null(types.Int64),
		99: types.NewInt64(100),
	}, nil)
	require.NoError(t, err)
	assert.True(t, inPlace)

	after := col.ChunkMetadata(writeTx, 0)
	assert.Equal(t, before.PageIdx, after.PageIdx)
	assert.Equal(t, before.NumPages, after.NumPages)
	assert.Equal(t, uint64(227), after.Compression.Max)
	assert.Equal(t, uint64(100), after.Compression.Min)

	// Readers keep the checkpointed version until publish.
	assert.Equal(t, int64(105), scanAll(t, readTx, col, 0)[5].Int64())
	got := scanAll(t, writeTx, col, 0)
	assert.Equal(t, int64(227), got[5].Int64())
	assert.True(t, got[6].IsNull())
	assert.Equal(t, int64(100), got[99].Int64())

	publish(t, cfg, col)
	got = scanAll(t, readTx, col, 0)
	assert.Equal(t, int64(227), got[5].Int64())
	assert.True(t, got[6].IsNull())
	assert.Equal(t, after, col.ChunkMetadata(readTx, 0))
}

func TestColumnCommitOutOfPlaceRewrites(t *testing.T) {
	cfg := newConfig(t, nil, 8)
	col := NewColumn(types.Int64, cfg)
	require.NoError(t, col.Append(t.Context(), int64Chunk(256, 100, 101, 102, 103), 0))
	publish(t, cfg, col)
	before := col.ChunkMetadata(readTx, 0)

	inPlace, err := col.CommitLocalChunk(t.Context(), writeTx, 0, map[uint64]types.Value{
		1: types.NewInt64(1_000_000),
		4: types.NewInt64(-5),
	}, nil)
	require.NoError(t, err)
	assert.False(t, inPlace)

	after := col.ChunkMetadata(writeTx, 0)
	assert.NotEqual(t, before.PageIdx, after.PageIdx)
	assert.Equal(t, uint64(5), after.NumValues)
	assert.Equal(t, int64(-5), int64(after.Compression.Min))
	assert.Equal(t, uint64(1_000_000), after.Compression.Max)
	assert.Equal(t, before, col.ChunkMetadata(readTx, 0))

	publish(t, cfg, col)
	got := scanAll(t, readTx, col, 0)
	assert.Equal(t, []int64{100, 1_000_000, 102, 103, -5}, []int64{
		got[0].Int64(), got[1].Int64(), got[2].Int64(), got[3].Int64(), got[4].Int64(),
	})
}

func TestColumnConstantChunkGrowsInPlace(t *testing.T) {
	cfg := newConfig(t, nil, 8)
	col := NewColumn(types.Int32, cfg)

	zeros := map[uint64]types.Value{}
	for pos := range uint64(4) {
		zeros[pos] = types.NewInt32(0)
	}
	inPlace, err := col.CommitLocalChunk(t.Context(), writeTx, 0, zeros, nil)
	require.NoError(t, err)
	assert.True(t, inPlace)
	m := col.ChunkMetadata(writeTx, 0)
	assert.Equal(t, compression.Constant, m.Compression.Encoding)
	assert.Equal(t, uint64(4), m.NumValues)
	assert.Zero(t, m.NumPages)

	inPlace, err = col.CommitLocalChunk(t.Context(), writeTx, 0, map[uint64]types.Value{4: types.NewInt32(9)}, nil)
	require.NoError(t, err)
	assert.False(t, inPlace)
	got := scanAll(t, writeTx, col, 0)
	require.Len(t, got, 5)
	assert.Equal(t, int32(9), int32(got[4].Int64()))
}

func TestColumnCommitWithoutCompression(t *testing.T) {
	cfg := newConfig(t, nil, 8)
	cfg.EnableCompression = false
	col := NewColumn(types.Int64, cfg)
	require.NoError(t, col.Append(t.Context(), int64Chunk(256, 1, 1, 1), 0))
	assert.Equal(t, compression.Uncompressed, col.ChunkMetadata(writeTx, 0).Compression.Encoding)

	// Uncompressed chunks take any value in place.
	inPlace, err := col.CommitLocalChunk(t.Context(), writeTx, 0, map[uint64]types.Value{0: types.NewInt64(-1 << 40)}, nil)
	require.NoError(t, err)
	assert.True(t, inPlace)
	assert.Equal(t, int64(-1<<40), scanAll(t, writeTx, col, 0)[0].Int64())
}

func TestColumnCommitFailureKeepsReadVersion(t *testing.T) {
	faulty := fs.NewFaultyFS(nil)
	cfg := newConfig(t, faulty, 8)
	col := NewColumn(types.Int64, cfg)
	require.NoError(t, col.Append(t.Context(), int64Chunk(256, 10, 11, 12), 0))
	publish(t, cfg, col)
	before := col.ChunkMetadata(readTx, 0)

	faulty.SetLimit(0)
	_, err := col.CommitLocalChunk(t.Context(), writeTx, 0, map[uint64]types.Value{0: types.NewInt64(1 << 50)}, nil)
	require.ErrorIs(t, err, fs.ErrInjected)
	assert.Equal(t, before, col.ChunkMetadata(writeTx, 0))

	col.RollbackInMemory()
	cfg.File.RollbackShadow()
	faulty.ClearRules()

	assert.False(t, col.HasUpdates())
	assert.Equal(t, before, col.ChunkMetadata(readTx, 0))
	assert.Equal(t, int64(10), scanAll(t, readTx, col, 0)[0].Int64())
}

func TestColumnFlushAndLoad(t *testing.T) {
	cfg := newConfig(t, nil, 6)
	col := NewColumn(types.Int64, cfg)
	for ngIdx := range types.NodeGroupIdx(3) {
		chunk := int64Chunk(64, int64(ngIdx)*10, int64(ngIdx)*10+1)
		chunk.Append(types.Null(types.Int64))
		require.NoError(t, col.Append(t.Context(), chunk, ngIdx))
	}
	publish(t, cfg, col)

	hdr, err := col.Flush(t.Context())
	require.NoError(t, err)
	assert.True(t, hdr.MayHaveNull)

	loaded, err := LoadColumn(types.Int64, cfg, hdr)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), loaded.NumNodeGroups(readTx))
	for ngIdx := range types.NodeGroupIdx(3) {
		assert.Equal(t, scanAll(t, readTx, col, ngIdx), scanAll(t, readTx, loaded, ngIdx))
	}
}

func TestNullColumnSkipsBitmapWhenNeverNull(t *testing.T) {
	cfg := newConfig(t, nil, 8)
	col := NewColumn(types.Int64, cfg)
	require.NoError(t, col.Append(t.Context(), int64Chunk(256, 1, 2, 3), 0))
	publish(t, cfg, col)

	nulls := col.NullColumn()
	assert.False(t, nulls.MayHaveNull())
	isNull, err := nulls.IsNull(readTx, 0, 2)
	require.NoError(t, err)
	assert.False(t, isNull)

	_, err = nulls.SetNull(t.Context(), writeTx, 0, 1, true)
	require.NoError(t, err)
	assert.True(t, nulls.MayHaveNull())

	// The flag never flips back.
	_, err = nulls.SetNull(t.Context(), writeTx, 0, 1, false)
	require.NoError(t, err)
	assert.True(t, nulls.MayHaveNull())
}

func TestNullColumnIsNullAlignedWindow(t *testing.T) {
	cfg := newConfig(t, nil, 8)
	nulls := NewNullColumn(cfg, FormatRegular)
	mask := types.NewNullMask(10)
	mask.Set(9, true)
	mask.Set(3, true)
	require.NoError(t, nulls.appendMask(t.Context(), 0, mask, 10))

	for pos := range uint64(10) {
		isNull, err := nulls.IsNull(writeTx, 0, pos)
		require.NoError(t, err)
		assert.Equal(t, pos == 3 || pos == 9, isNull, "pos %d", pos)
	}
	_, err := nulls.IsNull(writeTx, 0, 10)
	require.ErrorIs(t, err, ErrRowOutOfRange)
}

func TestNullColumnSetNullGrowsNumValues(t *testing.T) {
	cfg := newConfig(t, nil, 8)
	nulls := NewNullColumn(cfg, FormatRegular)
	require.NoError(t, nulls.appendMask(t.Context(), 0, nil, 4))

	_, err := nulls.SetNull(t.Context(), writeTx, 0, 6, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), nulls.NumValues(writeTx, 0))
	isNull, err := nulls.IsNull(writeTx, 0, 6)
	require.NoError(t, err)
	assert.True(t, isNull)
}

// Regular columns turn deletions into NULLs, CSR columns leave them to the
// CSR offsets. Both behaviors are kept on purpose.
func TestNullColumnDeletionByFormat(t *testing.T) {
	for _, tc := range []struct {
		format   Format
		wantNull bool
	}{
		{FormatRegular, true},
		{FormatCSR, false},
	} {
		cfg := newConfig(t, nil, 8)
		nulls := NewNullColumn(cfg, tc.format)
		require.NoError(t, nulls.appendMask(t.Context(), 0, nil, 8))

		deleted := roaring.BitmapOf(2, 100)
		_, err := nulls.commitLocalChunk(t.Context(), writeTx, 0, nil, deleted)
		require.NoError(t, err)

		isNull, err := nulls.IsNull(writeTx, 0, 2)
		require.NoError(t, err)
		assert.Equal(t, tc.wantNull, isNull)
		// Deleted rows past the chunk never grow it.
		assert.Equal(t, uint64(8), nulls.NumValues(writeTx, 0))
	}
}

func TestStringColumnRoundTrip(t *testing.T) {
	cfg := newConfig(t, nil, 10)
	col := NewStringColumn(cfg)
	rng := testutil.NewRNG(3)

	words := rng.UniqueStrings(50, 1, 300)
	chunk := NewColumnChunk(types.String, cfg.NodeGroupSize())
	var want []types.Value
	for i := range 1000 {
		v := types.NewString(words[rng.Intn(len(words))])
		if i%17 == 0 {
			v = types.Null(types.String)
		}
		chunk.Append(v)
		want = append(want, v)
	}
	require.NoError(t, col.Append(t.Context(), chunk, 0))
	publish(t, cfg, col)
	assert.Equal(t, want, scanAll(t, readTx, col, 0))

	inPlace, err := col.CommitLocalChunk(t.Context(), writeTx, 0, map[uint64]types.Value{
		1:    types.NewString("updated"),
		1000: types.NewString("appended"),
	}, roaring.BitmapOf(2))
	require.NoError(t, err)
	assert.False(t, inPlace)
	assert.Equal(t, want[1], scanAll(t, readTx, col, 0)[1])

	publish(t, cfg, col)
	got := scanAll(t, readTx, col, 0)
	require.Len(t, got, 1001)
	assert.Equal(t, "updated", got[1].Str())
	assert.True(t, got[2].IsNull())
	assert.Equal(t, "appended", got[1000].Str())
	assert.Equal(t, want[3], got[3])

	hdr, err := col.Flush(t.Context())
	require.NoError(t, err)
	loaded, err := LoadStringColumn(cfg, hdr)
	require.NoError(t, err)
	assert.Equal(t, got, scanAll(t, readTx, loaded, 0))
}

func TestDictionaryEncoding(t *testing.T) {
	dict := []string{"", "a", "hello world"}
	got, err := decodeDictionary(encodeDictionary(dict))
	require.NoError(t, err)
	assert.Equal(t, dict, got)

	_, err = decodeDictionary([]byte{5, 0, 0, 0})
	require.ErrorIs(t, err, ErrCorrupt)
}
