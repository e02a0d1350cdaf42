package cache

// Key identifies a cached page: the file it belongs to and its page index.
type Key struct {
	File uint32
	Page uint32
}

// PageCache is a byte-oriented cache for page images.
// Returned slices must be treated as read-only.
type PageCache interface {
	Get(key Key) (b []byte, ok bool)
	Set(key Key, b []byte)
	// Invalidate drops a single page.
	Invalidate(key Key)
	// InvalidateFile drops every page of a file.
	InvalidateFile(file uint32)
	Stats() (hits, misses int64)
}
