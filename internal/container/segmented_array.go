// Package container implements container data structures.
package container

import (
	"sync"
	"sync/atomic"
)

const (
	// segmentBits determines the size of each segment.
	// 12 bits = 4096 items per segment.
	segmentBits = 12
	segmentSize = 1 << segmentBits
	segmentMask = segmentSize - 1
)

// SegmentedArray is an append-only array whose items never move once
// allocated, so pointers returned by Ptr stay valid while it grows.
// Reads are lock-free; growth is serialized by a mutex.
type SegmentedArray[T any] struct {
	segments atomic.Pointer[[]*Segment[T]]
	length   atomic.Uint64
	mu       sync.Mutex // Protects growth
}

// Segment is a fixed-size array of items.
type Segment[T any] struct {
	items [segmentSize]T
}

// NewSegmentedArray creates a new SegmentedArray.
func NewSegmentedArray[T any]() *SegmentedArray[T] {
	sa := &SegmentedArray[T]{}
	segments := make([]*Segment[T], 0)
	sa.segments.Store(&segments)
	return sa
}

// Len returns the number of items.
func (sa *SegmentedArray[T]) Len() uint64 { return sa.length.Load() }

// Ptr returns a pointer to the item at index, or nil if index is out of bounds.
func (sa *SegmentedArray[T]) Ptr(index uint64) *T {
	if index >= sa.length.Load() {
		return nil
	}
	segments := *sa.segments.Load()
	return &segments[index>>segmentBits].items[index&segmentMask]
}

// Get returns the item at the given index.
func (sa *SegmentedArray[T]) Get(index uint64) (T, bool) {
	p := sa.Ptr(index)
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// Set overwrites the item at index. It panics if index is out of bounds.
func (sa *SegmentedArray[T]) Set(index uint64, value T) {
	p := sa.Ptr(index)
	if p == nil {
		panic("container: set out of bounds")
	}
	*p = value
}

// PushBack appends value and returns its index.
func (sa *SegmentedArray[T]) PushBack(value T) uint64 {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	idx := sa.length.Load()
	sa.growLocked(idx + 1)
	(*sa.segments.Load())[idx>>segmentBits].items[idx&segmentMask] = value
	sa.length.Store(idx + 1)
	return idx
}

// Resize grows the array to n zero-valued items. It never shrinks.
func (sa *SegmentedArray[T]) Resize(n uint64) {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	if n <= sa.length.Load() {
		return
	}
	sa.growLocked(n)
	sa.length.Store(n)
}

func (sa *SegmentedArray[T]) growLocked(n uint64) {
	current := *sa.segments.Load()
	need := int((n + segmentSize - 1) >> segmentBits)
	if need <= len(current) {
		return
	}
	grown := make([]*Segment[T], need)
	copy(grown, current)
	for i := len(current); i < need; i++ {
		grown[i] = &Segment[T]{}
	}
	sa.segments.Store(&grown)
}
