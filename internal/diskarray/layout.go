package diskarray

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/graphstore/internal/pagefile"
	"github.com/hupe1980/graphstore/internal/transaction"
)

// PIPCapacity is the number of data page indices one PIP holds.
const PIPCapacity = (pagefile.PageSize - 8) / 4

// ErrCorrupt is returned when a PIP chain does not match its header.
var ErrCorrupt = errors.New("diskarray: corrupt page index")

// Header locates an array on disk.
type Header struct {
	NumElements uint64
	FirstPIP    uint32
}

// EmptyHeader is the header of an array that was never flushed.
var EmptyHeader = Header{FirstPIP: pagefile.InvalidPage}

// Codec encodes elements of type T into exactly Size bytes.
type Codec[T any] interface {
	Size() int
	Encode(dst []byte, v *T)
	Decode(src []byte, v *T)
}

// PageWriter is the write side of a page file.
type PageWriter interface {
	AddNewPages(n uint32) uint32
	WritePage(ctx context.Context, idx uint32, data []byte) error
}

// PageReader is the read side of a page file.
type PageReader interface {
	ReadPage(tx *transaction.Transaction, idx uint32, dst []byte) error
}

// ElementsPerPage returns how many elements of size bytes fit into a page.
func ElementsPerPage(size int) uint64 {
	if size <= 0 || size > pagefile.PageSize {
		panic(fmt.Sprintf("diskarray: invalid element size %d", size))
	}
	return uint64(pagefile.PageSize / size)
}

// layout remembers the pages owned by an array.
type layout struct {
	dataPages []uint32
	pips      []uint32
}

func numDataPages(numElements, perPage uint64) int {
	return int((numElements + perPage - 1) / perPage)
}

// reserve makes sure the layout owns n data pages and the PIPs to index them.
func (l *layout) reserve(w PageWriter, n int) {
	if n > len(l.dataPages) {
		add := n - len(l.dataPages)
		first := w.AddNewPages(uint32(add))
		for i := range add {
			l.dataPages = append(l.dataPages, first+uint32(i))
		}
	}
	needPIPs := (len(l.dataPages) + PIPCapacity - 1) / PIPCapacity
	if needPIPs > len(l.pips) {
		add := needPIPs - len(l.pips)
		first := w.AddNewPages(uint32(add))
		for i := range add {
			l.pips = append(l.pips, first+uint32(i))
		}
	}
}

func (l *layout) header(numElements uint64) Header {
	if len(l.pips) == 0 {
		return Header{NumElements: numElements, FirstPIP: pagefile.InvalidPage}
	}
	return Header{NumElements: numElements, FirstPIP: l.pips[0]}
}

func (l *layout) writePIPs(ctx context.Context, w PageWriter) error {
	buf := make([]byte, pagefile.PageSize)
	for i, pip := range l.pips {
		clear(buf)
		next := pagefile.InvalidPage
		if i+1 < len(l.pips) {
			next = l.pips[i+1]
		}
		start := i * PIPCapacity
		end := min(start+PIPCapacity, len(l.dataPages))
		binary.LittleEndian.PutUint32(buf[0:4], next)
		binary.LittleEndian.PutUint32(buf[4:8], uint32(end-start))
		for j, p := range l.dataPages[start:end] {
			binary.LittleEndian.PutUint32(buf[8+4*j:], p)
		}
		if err := w.WritePage(ctx, pip, buf); err != nil {
			return err
		}
	}
	return nil
}

// readLayout walks the PIP chain of hdr.
func readLayout(tx *transaction.Transaction, r PageReader, hdr Header, perPage uint64) (*layout, error) {
	l := &layout{}
	buf := make([]byte, pagefile.PageSize)
	for pip := hdr.FirstPIP; pip != pagefile.InvalidPage; {
		if len(l.pips) > 1<<20 {
			return nil, fmt.Errorf("%w: PIP chain does not terminate", ErrCorrupt)
		}
		if err := r.ReadPage(tx, pip, buf); err != nil {
			return nil, err
		}
		l.pips = append(l.pips, pip)
		next := binary.LittleEndian.Uint32(buf[0:4])
		count := binary.LittleEndian.Uint32(buf[4:8])
		if count > PIPCapacity {
			return nil, fmt.Errorf("%w: PIP %d holds %d entries", ErrCorrupt, pip, count)
		}
		for j := range count {
			l.dataPages = append(l.dataPages, binary.LittleEndian.Uint32(buf[8+4*j:]))
		}
		pip = next
	}
	if need := numDataPages(hdr.NumElements, perPage); need > len(l.dataPages) {
		return nil, fmt.Errorf("%w: %d elements need %d pages, found %d", ErrCorrupt, hdr.NumElements, need, len(l.dataPages))
	}
	return l, nil
}

// flush writes n elements produced by at into the layout's pages.
func flush[T any](ctx context.Context, w PageWriter, l *layout, codec Codec[T], n uint64, at func(i uint64) *T) (Header, error) {
	size := codec.Size()
	perPage := ElementsPerPage(size)
	pages := numDataPages(n, perPage)
	l.reserve(w, pages)

	buf := make([]byte, pagefile.PageSize)
	for p := range pages {
		clear(buf)
		start := uint64(p) * perPage
		end := min(start+perPage, n)
		for i := start; i < end; i++ {
			off := int(i-start) * size
			codec.Encode(buf[off:off+size], at(i))
		}
		if err := w.WritePage(ctx, l.dataPages[p], buf); err != nil {
			return Header{}, err
		}
	}
	if err := l.writePIPs(ctx, w); err != nil {
		return Header{}, err
	}
	return l.header(n), nil
}

// load decodes the elements described by hdr, calling put for each.
func load[T any](tx *transaction.Transaction, r PageReader, hdr Header, codec Codec[T], put func(i uint64, v *T)) (*layout, error) {
	size := codec.Size()
	perPage := ElementsPerPage(size)
	l, err := readLayout(tx, r, hdr, perPage)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, pagefile.PageSize)
	var v T
	for p := range numDataPages(hdr.NumElements, perPage) {
		if err := r.ReadPage(tx, l.dataPages[p], buf); err != nil {
			return nil, err
		}
		start := uint64(p) * perPage
		end := min(start+perPage, hdr.NumElements)
		for i := start; i < end; i++ {
			off := int(i-start) * size
			codec.Decode(buf[off:off+size], &v)
			put(i, &v)
		}
	}
	return l, nil
}
