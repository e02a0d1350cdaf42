// Package mmap maps flushed, immutable files read-only into memory.
//
// The primary-key index is reloaded through a Mapping on Open: slot arrays
// and overflow pages are decoded straight from the mapped bytes instead of
// being read page by page.
//
//	m, err := mmap.Open(path)
//	if err != nil { ... }
//	defer m.Close()
//	page, err := m.Page(idx, pagefile.PageSize)
//
// A Mapping is safe for concurrent reads. Slices returned by Bytes and
// Page are invalid once Close returns.
package mmap
