package store

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/graphstore/internal/diskarray"
	"github.com/hupe1980/graphstore/internal/transaction"
	"github.com/hupe1980/graphstore/internal/types"
)

// Format selects how deletions reach a null column.
type Format uint8

const (
	// FormatRegular columns belong to node groups. A deleted row reads as
	// NULL until its offset is reused.
	FormatRegular Format = iota
	// FormatCSR columns hold relationship lists. Deletions are recorded in the
	// CSR offsets and leave the null bits untouched.
	FormatCSR
)

// NullColumn stores one bit per row marking NULL values.
type NullColumn struct {
	values *Column
	format Format
	// mayHaveNull only ever flips from false to true.
	mayHaveNull atomic.Bool
}

// NewNullColumn returns an empty null column.
func NewNullColumn(cfg Config, format Format) *NullColumn {
	return &NullColumn{values: newValueColumn(types.Bool, cfg), format: format}
}

func loadNullColumn(cfg Config, format Format, hdr diskarray.Header, mayHaveNull bool) (*NullColumn, error) {
	values, err := loadValueColumn(types.Bool, cfg, hdr)
	if err != nil {
		return nil, err
	}
	n := &NullColumn{values: values, format: format}
	n.mayHaveNull.Store(mayHaveNull)
	return n, nil
}

// MayHaveNull reports whether a NULL was ever written to the column.
func (n *NullColumn) MayHaveNull() bool { return n.mayHaveNull.Load() }

// NumValues returns the number of rows of node group ngIdx.
func (n *NullColumn) NumValues(tx *transaction.Transaction, ngIdx types.NodeGroupIdx) uint64 {
	return n.values.ChunkMetadata(tx, ngIdx).NumValues
}

// scan fills dst with the null flags of rows [start, start+len(dst)).
func (n *NullColumn) scan(tx *transaction.Transaction, ngIdx types.NodeGroupIdx, start uint64, dst []bool) error {
	if !n.mayHaveNull.Load() {
		clear(dst)
		return nil
	}
	m := n.values.ChunkMetadata(tx, ngIdx)
	if start+uint64(len(dst)) > m.NumValues {
		return fmt.Errorf("%w: null rows [%d, %d) of %d", ErrRowOutOfRange, start, start+uint64(len(dst)), m.NumValues)
	}
	raw := make([]uint64, len(dst))
	if err := n.values.readValues(tx, m, start, raw); err != nil {
		return err
	}
	for i, v := range raw {
		dst[i] = v != 0
	}
	return nil
}

// IsNull reports whether row pos of node group ngIdx is NULL. The read covers
// the 8-row aligned window around pos.
func (n *NullColumn) IsNull(tx *transaction.Transaction, ngIdx types.NodeGroupIdx, pos uint64) (bool, error) {
	if !n.mayHaveNull.Load() {
		return false, nil
	}
	numValues := n.NumValues(tx, ngIdx)
	if pos >= numValues {
		return false, fmt.Errorf("%w: row %d of %d", ErrRowOutOfRange, pos, numValues)
	}
	start := pos &^ 7
	window := make([]bool, min(start+8, numValues)-start)
	if err := n.scan(tx, ngIdx, start, window); err != nil {
		return false, err
	}
	return window[pos-start], nil
}

func (n *NullColumn) appendMask(ctx context.Context, ngIdx types.NodeGroupIdx, mask *types.NullMask, numValues uint64) error {
	values := make([]uint64, numValues)
	if mask != nil && mask.MayHaveNull() {
		for i := range values {
			if mask.IsNull(i) {
				values[i] = 1
				n.mayHaveNull.Store(true)
			}
		}
	}
	return n.values.appendRaw(ctx, ngIdx, values, nil)
}

// SetNull marks row pos of node group ngIdx, growing the chunk if pos is past
// its end. It reports whether the chunk was patched in place.
func (n *NullColumn) SetNull(ctx context.Context, tx *transaction.Transaction, ngIdx types.NodeGroupIdx, pos uint64, isNull bool) (bool, error) {
	return n.commitLocalChunk(ctx, tx, ngIdx, map[uint64]bool{pos: isNull}, nil)
}

func (n *NullColumn) commitLocalChunk(ctx context.Context, tx *transaction.Transaction, ngIdx types.NodeGroupIdx, nulls map[uint64]bool, deleted *roaring.Bitmap) (bool, error) {
	updates := make(map[uint64]rowUpdate, len(nulls))
	for pos, isNull := range nulls {
		var bit uint64
		if isNull {
			bit = 1
			n.mayHaveNull.Store(true)
		}
		updates[pos] = rowUpdate{bits: bit}
	}
	if n.format == FormatRegular && deleted != nil && !deleted.IsEmpty() {
		numValues := n.NumValues(tx, ngIdx)
		it := deleted.Iterator()
		for it.HasNext() {
			pos := uint64(it.Next())
			if pos >= numValues {
				continue
			}
			updates[pos] = rowUpdate{bits: 1}
			n.mayHaveNull.Store(true)
		}
	}
	return n.values.commitValues(ctx, tx, ngIdx, updates)
}

func (n *NullColumn) HasUpdates() bool    { return n.values.metadata.HasUpdates() }
func (n *NullColumn) CheckpointInMemory() { n.values.metadata.Checkpoint() }
func (n *NullColumn) RollbackInMemory()   { n.values.metadata.Rollback() }
