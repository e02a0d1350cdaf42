package hashindex

import (
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/graphstore/internal/pagefile"
)

// PagePointer locates bytes in the overflow file. Page indices are arena
// indices into the file's page table.
type PagePointer struct {
	PageIdx uint32
	Offset  uint32
}

// OverflowFile is an append-only arena of pages holding the bytes of long
// string keys. Strings continue at the start of the next page when they do
// not fit the current one. All shards of an index share one file, so every
// access takes its mutex.
type OverflowFile struct {
	mu     sync.Mutex
	pages  [][]byte
	cursor PagePointer
	// dirtyFrom is the first page changed since the last flush.
	dirtyFrom int
}

// NewOverflowFile returns an empty overflow file.
func NewOverflowFile() *OverflowFile {
	return &OverflowFile{}
}

// loadOverflowFile copies numPages pages from data and resumes appending at
// cursor.
func loadOverflowFile(data []byte, numPages uint32, cursor PagePointer) (*OverflowFile, error) {
	if uint64(len(data)) < uint64(numPages)*pagefile.PageSize {
		return nil, fmt.Errorf("%w: overflow file has %d bytes, want %d pages", ErrCorrupt, len(data), numPages)
	}
	if cursor.PageIdx > numPages || cursor.Offset > pagefile.PageSize ||
		(cursor.PageIdx == numPages && cursor.Offset != 0) {
		return nil, fmt.Errorf("%w: overflow cursor %d:%d beyond %d pages", ErrCorrupt, cursor.PageIdx, cursor.Offset, numPages)
	}
	f := &OverflowFile{pages: make([][]byte, numPages), cursor: cursor, dirtyFrom: int(numPages)}
	for i := range f.pages {
		f.pages[i] = make([]byte, pagefile.PageSize)
		copy(f.pages[i], data[i*pagefile.PageSize:])
	}
	return f, nil
}

// AppendString stores s and returns where it starts.
func (f *OverflowFile) AppendString(s string) PagePointer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cursor.Offset == pagefile.PageSize {
		f.cursor = PagePointer{PageIdx: f.cursor.PageIdx + 1}
	}
	start := f.cursor
	f.dirtyFrom = min(f.dirtyFrom, int(start.PageIdx))
	for len(s) > 0 {
		if f.cursor.Offset == pagefile.PageSize {
			f.cursor = PagePointer{PageIdx: f.cursor.PageIdx + 1}
		}
		if int(f.cursor.PageIdx) == len(f.pages) {
			f.pages = append(f.pages, make([]byte, pagefile.PageSize))
		}
		n := copy(f.pages[f.cursor.PageIdx][f.cursor.Offset:], s)
		f.cursor.Offset += uint32(n)
		s = s[n:]
	}
	return start
}

// walkLocked calls fn with consecutive pieces of the n bytes at p.
func (f *OverflowFile) walkLocked(p PagePointer, n int, fn func(piece []byte) bool) {
	for n > 0 {
		if p.Offset == pagefile.PageSize {
			p = PagePointer{PageIdx: p.PageIdx + 1}
		}
		if int(p.PageIdx) >= len(f.pages) {
			panic(fmt.Sprintf("hashindex: overflow pointer %d:%d beyond %d pages", p.PageIdx, p.Offset, len(f.pages)))
		}
		page := f.pages[p.PageIdx][p.Offset:]
		piece := page[:min(n, len(page))]
		if !fn(piece) {
			return
		}
		n -= len(piece)
		p.Offset += uint32(len(piece))
	}
}

// ReadString returns the n bytes stored at p.
func (f *OverflowFile) ReadString(p PagePointer, n int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, 0, n)
	f.walkLocked(p, n, func(piece []byte) bool {
		buf = append(buf, piece...)
		return true
	})
	return string(buf)
}

// Equals reports whether the len(s) bytes stored at p equal s.
func (f *OverflowFile) Equals(p PagePointer, s string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	equal := true
	f.walkLocked(p, len(s), func(piece []byte) bool {
		equal = string(piece) == s[:len(piece)]
		s = s[len(piece):]
		return equal
	})
	return equal
}

// NumPages returns the number of allocated pages.
func (f *OverflowFile) NumPages() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint32(len(f.pages))
}

// Cursor returns the position of the next append.
func (f *OverflowFile) Cursor() PagePointer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor
}

// markAllDirty makes the next Flush write every page.
func (f *OverflowFile) markAllDirty() {
	f.mu.Lock()
	f.dirtyFrom = 0
	f.mu.Unlock()
}

// Flush writes the pages changed since the last flush to w. It returns the
// page count and cursor matching the written state.
func (f *OverflowFile) Flush(w io.WriterAt) (uint32, PagePointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := f.dirtyFrom; i < len(f.pages); i++ {
		if _, err := w.WriteAt(f.pages[i], int64(i)*pagefile.PageSize); err != nil {
			return 0, PagePointer{}, fmt.Errorf("hashindex: write overflow page %d: %w", i, err)
		}
	}
	f.dirtyFrom = len(f.pages)
	return uint32(len(f.pages)), f.cursor, nil
}
