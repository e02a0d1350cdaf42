package pagefile

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/hupe1980/graphstore/internal/cache"
	"github.com/hupe1980/graphstore/internal/fs"
	"github.com/hupe1980/graphstore/internal/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	readTx  = &transaction.Transaction{ID: 1, Type: transaction.ReadOnly}
	writeTx = &transaction.Transaction{ID: 2, Type: transaction.Write}
)

func filled(b byte) []byte { return bytes.Repeat([]byte{b}, PageSize) }

func TestWriteAndRead(t *testing.T) {
	fh, err := Open(nil, filepath.Join(t.TempDir(), "data.gs"), Options{Cache: cache.NewLRU(1<<20, nil)})
	require.NoError(t, err)
	defer fh.Close()

	first := fh.AddNewPages(3)
	assert.Equal(t, uint32(0), first)
	assert.Equal(t, uint32(3), fh.NumPages())

	require.NoError(t, fh.WritePage(t.Context(), 1, filled(7)))

	buf := make([]byte, PageSize)
	require.NoError(t, fh.ReadPage(readTx, 1, buf))
	assert.Equal(t, filled(7), buf)

	// Reserved but unwritten pages read as zeros, even past EOF.
	require.NoError(t, fh.ReadPage(readTx, 2, buf))
	assert.Equal(t, filled(0), buf)

	assert.ErrorIs(t, fh.ReadPage(readTx, 3, buf), ErrPageOutOfRange)
	assert.ErrorIs(t, fh.ReadPage(readTx, 0, buf[:10]), ErrInvalidPageSize)
}

func TestShadowPagesVisibility(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.gs")
	fh, err := Open(nil, path, Options{Cache: cache.NewLRU(1<<20, nil)})
	require.NoError(t, err)

	fh.AddNewPages(1)
	require.NoError(t, fh.WritePage(t.Context(), 0, filled(1)))

	require.NoError(t, fh.UpdatePage(0, func(p []byte) { p[0] = 9 }))
	require.NoError(t, fh.UpdatePage(0, func(p []byte) { p[1] = 8 }))
	assert.Equal(t, 1, fh.NumShadowPages())

	buf := make([]byte, PageSize)
	require.NoError(t, fh.ReadPage(readTx, 0, buf))
	assert.Equal(t, byte(1), buf[0], "read-only transactions must not see shadow pages")

	require.NoError(t, fh.ReadPage(writeTx, 0, buf))
	assert.Equal(t, []byte{9, 8, 1}, buf[:3])

	require.NoError(t, fh.CheckpointShadow(t.Context()))
	assert.Equal(t, 0, fh.NumShadowPages())
	require.NoError(t, fh.ReadPage(readTx, 0, buf))
	assert.Equal(t, []byte{9, 8, 1}, buf[:3])
	require.NoError(t, fh.Close())

	reopened, err := Open(nil, path, Options{})
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, uint32(1), reopened.NumPages())
	require.NoError(t, reopened.ReadPage(readTx, 0, buf))
	assert.Equal(t, []byte{9, 8, 1}, buf[:3])
}

func TestRollbackShadow(t *testing.T) {
	fh, err := Open(nil, filepath.Join(t.TempDir(), "data.gs"), Options{})
	require.NoError(t, err)
	defer fh.Close()

	fh.AddNewPages(1)
	require.NoError(t, fh.WritePage(t.Context(), 0, filled(3)))
	require.NoError(t, fh.UpdatePage(0, func(p []byte) { p[0] = 4 }))
	fh.RollbackShadow()

	buf := make([]byte, PageSize)
	require.NoError(t, fh.ReadPage(writeTx, 0, buf))
	assert.Equal(t, byte(3), buf[0])
}

func TestCheckpointFailureKeepsShadow(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	fh, err := Open(ffs, filepath.Join(t.TempDir(), "data.gs"), Options{})
	require.NoError(t, err)
	defer fh.Close()

	fh.AddNewPages(1)
	require.NoError(t, fh.WritePage(t.Context(), 0, filled(3)))
	require.NoError(t, fh.UpdatePage(0, func(p []byte) { p[0] = 4 }))

	ffs.SetLimit(0)
	assert.ErrorIs(t, fh.CheckpointShadow(t.Context()), fs.ErrInjected)
	assert.Equal(t, 1, fh.NumShadowPages())

	ffs.SetLimit(-1)
	require.NoError(t, fh.CheckpointShadow(t.Context()))
	buf := make([]byte, PageSize)
	require.NoError(t, fh.ReadPage(readTx, 0, buf))
	assert.Equal(t, byte(4), buf[0])
}

func TestCheckpointFailureRestoresPages(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	fh, err := Open(ffs, filepath.Join(t.TempDir(), "data.gs"), Options{})
	require.NoError(t, err)
	defer fh.Close()

	fh.AddNewPages(2)
	require.NoError(t, fh.WritePages(t.Context(), 0, append(filled(1), filled(2)...)))
	require.NoError(t, fh.UpdatePage(0, func(p []byte) { p[0] = 9 }))
	require.NoError(t, fh.UpdatePage(1, func(p []byte) { p[0] = 9 }))

	ffs.AddRule("data.gs", fs.Fault{FailAfterBytes: -1, FailOnSync: true})
	require.ErrorIs(t, fh.CheckpointShadow(t.Context()), fs.ErrInjected)
	ffs.ClearRules()
	fh.RollbackShadow()

	buf := make([]byte, PageSize)
	require.NoError(t, fh.ReadPage(readTx, 0, buf))
	assert.Equal(t, byte(1), buf[0])
	require.NoError(t, fh.ReadPage(readTx, 1, buf))
	assert.Equal(t, byte(2), buf[0])
}
