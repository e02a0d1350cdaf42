package blobstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAbort(t *testing.T) {
	ctx := t.Context()
	store := NewMemoryStore()

	w, err := store.Create(ctx, "ckpt/data.gs")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.(interface{ Abort() error }).Abort())

	_, err = w.Write([]byte("more"))
	assert.ErrorIs(t, err, ErrBlobClosed)
	_, err = store.Open(ctx, "ckpt/data.gs")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, store.Size())
}

func TestMemoryStoreIsolatesCallerBuffers(t *testing.T) {
	ctx := t.Context()
	store := NewMemoryStore()

	data := []byte("abc")
	require.NoError(t, store.Put(ctx, "a", data))
	data[0] = 'x'

	got, err := ReadFile(ctx, store, "a")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	got[1] = 'y'

	got, err = ReadFile(ctx, store, "a")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, int64(3), store.Size())
}
