package diskarray

import (
	"context"

	"github.com/hupe1980/graphstore/internal/container"
	"github.com/hupe1980/graphstore/internal/transaction"
)

// Builder is a growable array of mutable elements flushed to pages on demand.
// Elements are addressed by pointer and mutated in place; a Builder has a
// single writer at a time.
type Builder[T any] struct {
	codec  Codec[T]
	items  *container.SegmentedArray[T]
	layout *layout
}

// NewBuilder returns an empty builder.
func NewBuilder[T any](codec Codec[T]) *Builder[T] {
	return &Builder[T]{
		codec:  codec,
		items:  container.NewSegmentedArray[T](),
		layout: &layout{},
	}
}

// LoadBuilder reads the array described by hdr into a builder.
func LoadBuilder[T any](tx *transaction.Transaction, r PageReader, hdr Header, codec Codec[T]) (*Builder[T], error) {
	b := NewBuilder(codec)
	b.items.Resize(hdr.NumElements)
	l, err := load(tx, r, hdr, codec, func(i uint64, v *T) { *b.items.Ptr(i) = *v })
	if err != nil {
		return nil, err
	}
	b.layout = l
	return b, nil
}

// Len returns the number of elements.
func (b *Builder[T]) Len() uint64 { return b.items.Len() }

// Get returns a pointer to element idx, or nil when out of range.
func (b *Builder[T]) Get(idx uint64) *T { return b.items.Ptr(idx) }

// PushBack appends v and returns its index.
func (b *Builder[T]) PushBack(v T) uint64 { return b.items.PushBack(v) }

// Resize grows the builder to n zero-valued elements.
func (b *Builder[T]) Resize(n uint64) { b.items.Resize(n) }

// Flush writes all elements to w. Pages written by earlier flushes are
// rewritten in place and only missing pages are allocated.
func (b *Builder[T]) Flush(ctx context.Context, w PageWriter) (Header, error) {
	return flush(ctx, w, b.layout, b.codec, b.items.Len(), b.items.Ptr)
}

// Detach forgets the pages of earlier flushes. The next Flush allocates all
// pages anew, which is how a builder is copied into a fresh file.
func (b *Builder[T]) Detach() { b.layout = &layout{} }

// NumPages returns the number of data and index pages owned by the builder.
func (b *Builder[T]) NumPages() int { return len(b.layout.dataPages) + len(b.layout.pips) }
