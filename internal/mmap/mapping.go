package mmap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

var (
	ErrClosed      = errors.New("mmap: mapping is closed")
	ErrFileTooBig  = errors.New("mmap: file does not fit in the address space")
	ErrOutOfBounds = errors.New("mmap: out of bounds")
)

// Advice is an access hint passed to the kernel.
type Advice uint8

const (
	Normal Advice = iota
	Sequential
	Random
	WillNeed
)

// Mapping is a read-only memory mapping of a whole file.
type Mapping struct {
	data   []byte
	unmap  func([]byte) error
	closed atomic.Bool
}

// Open maps the file at path. Empty files map to an empty Mapping.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if int64(int(size)) != size {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrFileTooBig, path, size)
	}
	m := &Mapping{}
	if size > 0 {
		if m.data, m.unmap, err = osMap(f, int(size)); err != nil {
			return nil, fmt.Errorf("mmap: %s: %w", path, err)
		}
	}
	return m, nil
}

// Close unmaps the file. Further calls are no-ops.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) || m.data == nil {
		return nil
	}
	return m.unmap(m.data)
}

// Bytes returns the mapped bytes, or nil after Close.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

func (m *Mapping) Size() int { return len(m.data) }

// Advise applies a hint to the whole mapping.
func (m *Mapping) Advise(a Advice) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return osAdvise(m.data, a)
}

// Page returns page idx of a file made of fixed-size pages. The slice aliases
// the mapping and must not be used after Close.
func (m *Mapping) Page(idx uint32, pageSize int) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	off := int64(idx) * int64(pageSize)
	if pageSize <= 0 || off+int64(pageSize) > int64(len(m.data)) {
		return nil, fmt.Errorf("%w: page %d of %d bytes", ErrOutOfBounds, idx, pageSize)
	}
	return m.data[off : off+int64(pageSize)], nil
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: offset %d", ErrOutOfBounds, off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
