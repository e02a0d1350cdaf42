package diskarray

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/graphstore/internal/transaction"
)

// DiskArray is a versioned array. Read-only transactions see the checkpointed
// version, which is swapped atomically; the write transaction sees a lazily
// copied write version until Checkpoint or Rollback.
type DiskArray[T any] struct {
	codec    Codec[T]
	readOnly atomic.Pointer[[]T]

	mu     sync.Mutex
	write  []T
	dirty  bool
	layout *layout
}

// New returns an empty array.
func New[T any](codec Codec[T]) *DiskArray[T] {
	a := &DiskArray[T]{codec: codec, layout: &layout{}}
	empty := []T{}
	a.readOnly.Store(&empty)
	return a
}

// Load reads the array described by hdr.
func Load[T any](tx *transaction.Transaction, r PageReader, hdr Header, codec Codec[T]) (*DiskArray[T], error) {
	elems := make([]T, hdr.NumElements)
	l, err := load(tx, r, hdr, codec, func(i uint64, v *T) { elems[i] = *v })
	if err != nil {
		return nil, err
	}
	a := &DiskArray[T]{codec: codec, layout: l}
	a.readOnly.Store(&elems)
	return a, nil
}

func (a *DiskArray[T]) view(tx *transaction.Transaction) []T {
	if tx.IsWrite() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.dirty {
			return a.write
		}
	}
	return *a.readOnly.Load()
}

// Get returns element idx as seen by tx.
func (a *DiskArray[T]) Get(tx *transaction.Transaction, idx uint64) (T, bool) {
	elems := a.view(tx)
	if idx >= uint64(len(elems)) {
		var zero T
		return zero, false
	}
	return elems[idx], true
}

// NumElements returns the length of the array as seen by tx.
func (a *DiskArray[T]) NumElements(tx *transaction.Transaction) uint64 {
	return uint64(len(a.view(tx)))
}

func (a *DiskArray[T]) writeVersionLocked() []T {
	if !a.dirty {
		a.write = slices.Clone(*a.readOnly.Load())
		a.dirty = true
	}
	return a.write
}

// Update overwrites element idx in the write version.
// It panics if idx is out of range.
func (a *DiskArray[T]) Update(idx uint64, v T) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w := a.writeVersionLocked()
	if idx >= uint64(len(w)) {
		panic(fmt.Sprintf("diskarray: update %d of %d elements", idx, len(w)))
	}
	w[idx] = v
}

// PushBack appends v to the write version and returns its index.
func (a *DiskArray[T]) PushBack(v T) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writeVersionLocked()
	a.write = append(a.write, v)
	return uint64(len(a.write) - 1)
}

// Resize grows the write version to n elements, filling with fill.
func (a *DiskArray[T]) Resize(n uint64, fill T) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writeVersionLocked()
	for uint64(len(a.write)) < n {
		a.write = append(a.write, fill)
	}
}

// HasUpdates reports whether a write version exists.
func (a *DiskArray[T]) HasUpdates() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dirty
}

// Checkpoint publishes the write version to readers.
func (a *DiskArray[T]) Checkpoint() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.dirty {
		return
	}
	published := a.write
	a.readOnly.Store(&published)
	a.write = nil
	a.dirty = false
}

// Rollback discards the write version.
func (a *DiskArray[T]) Rollback() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.write = nil
	a.dirty = false
}

// Flush writes the read-only version to w and returns its header.
func (a *DiskArray[T]) Flush(ctx context.Context, w PageWriter) (Header, error) {
	elems := *a.readOnly.Load()
	a.mu.Lock()
	defer a.mu.Unlock()
	return flush(ctx, w, a.layout, a.codec, uint64(len(elems)), func(i uint64) *T { return &elems[i] })
}
