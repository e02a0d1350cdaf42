package mmap

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pk-000001.idx")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestMappingReadAt(t *testing.T) {
	content := []byte("graph pages")
	m, err := Open(writeFile(t, content))
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, len(content), m.Size())
	assert.Equal(t, content, m.Bytes())

	buf := make([]byte, 5)
	n, err := m.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "pages", string(buf[:n]))

	n, err = m.ReadAt(make([]byte, 4), 100)
	assert.Zero(t, n)
	assert.Equal(t, io.EOF, err)

	n, err = m.ReadAt(make([]byte, 10), 6)
	assert.Equal(t, 5, n)
	assert.Equal(t, io.EOF, err)

	_, err = m.ReadAt(buf, -1)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestMappingEmptyFile(t *testing.T) {
	m, err := Open(writeFile(t, nil))
	require.NoError(t, err)
	assert.Zero(t, m.Size())
	assert.Empty(t, m.Bytes())
	require.NoError(t, m.Advise(WillNeed))
	require.NoError(t, m.Close())
}

func TestMappingPage(t *testing.T) {
	data := make([]byte, 3*4096)
	for i := range 3 {
		data[i*4096] = byte(i + 1)
	}
	m, err := Open(writeFile(t, data))
	require.NoError(t, err)
	require.NoError(t, m.Advise(Random))

	for i := range uint32(3) {
		page, err := m.Page(i, 4096)
		require.NoError(t, err)
		assert.Len(t, page, 4096)
		assert.Equal(t, byte(i+1), page[0])
	}
	_, err = m.Page(3, 4096)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = m.Page(0, 0)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Nil(t, m.Bytes())
	assert.ErrorIs(t, m.Advise(Sequential), ErrClosed)
	_, err = m.Page(0, 4096)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
