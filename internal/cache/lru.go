package cache

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/graphstore/internal/resource"
)

// page is a node of the recency ring.
type page struct {
	key        Key
	data       []byte
	prev, next *page
}

// LRU is a byte-bounded page cache. Pages are also indexed by file so a
// dropped or truncated file can be evicted without a full sweep.
type LRU struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	pages    map[Key]*page
	files    map[uint32]map[uint32]*page
	ring     page // ring.next is the most recently used page
	rc       *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

// NewLRU returns an LRU holding at most capacity bytes. Cached bytes are
// charged to rc, which may be nil.
func NewLRU(capacity int64, rc *resource.Controller) *LRU {
	c := &LRU{
		capacity: capacity,
		pages:    make(map[Key]*page),
		files:    make(map[uint32]map[uint32]*page),
		rc:       rc,
	}
	c.ring.prev, c.ring.next = &c.ring, &c.ring
	return c
}

func (c *LRU) Get(key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pages[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.unlink(p)
	c.pushFront(p)
	return p.data, true
}

// Set caches b under key and retains it. Pages larger than the capacity, or
// pages the resource controller refuses, are not cached.
func (c *LRU) Set(key Key, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.pages[key]; ok {
		c.remove(old)
	}
	n := int64(len(b))
	if n > c.capacity {
		return
	}
	for c.size+n > c.capacity && c.ring.prev != &c.ring {
		c.remove(c.ring.prev)
	}
	if !c.rc.TryAcquireMemory(n) {
		return
	}

	p := &page{key: key, data: b}
	c.pushFront(p)
	c.pages[key] = p
	byPage := c.files[key.File]
	if byPage == nil {
		byPage = make(map[uint32]*page)
		c.files[key.File] = byPage
	}
	byPage[key.Page] = p
	c.size += n
}

func (c *LRU) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pages[key]; ok {
		c.remove(p)
	}
}

func (c *LRU) InvalidateFile(file uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.files[file] {
		c.remove(p)
	}
}

func (c *LRU) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the cached bytes.
func (c *LRU) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *LRU) pushFront(p *page) {
	p.prev, p.next = &c.ring, c.ring.next
	c.ring.next.prev = p
	c.ring.next = p
}

func (c *LRU) unlink(p *page) {
	p.prev.next = p.next
	p.next.prev = p.prev
	p.prev, p.next = nil, nil
}

func (c *LRU) remove(p *page) {
	c.unlink(p)
	delete(c.pages, p.key)
	if byPage := c.files[p.key.File]; byPage != nil {
		delete(byPage, p.key.Page)
		if len(byPage) == 0 {
			delete(c.files, p.key.File)
		}
	}
	n := int64(len(p.data))
	c.size -= n
	c.rc.ReleaseMemory(n)
}
