// Package stats keeps per-table row counts and deleted node offsets.
//
// Statistics are double buffered. Readers load the read-only snapshot through
// an atomic pointer and never lock. The write transaction mutates a write
// version that is created lazily under the mutex, published by Checkpoint and
// dropped by Rollback.
package stats

import (
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/graphstore/internal/transaction"
	"github.com/hupe1980/graphstore/internal/types"
)

var (
	ErrTableNotFound = errors.New("stats: table not found")
	ErrNodeNotFound  = errors.New("stats: node offset not found")
	ErrCorrupt       = errors.New("stats: corrupt encoding")
)

// TableStats is the statistics record of one node table.
type TableStats struct {
	// NumTuples counts allocated offsets, including deleted ones.
	NumTuples uint64
	Deleted   *roaring64.Bitmap
}

func (s *TableStats) clone() *TableStats {
	return &TableStats{NumTuples: s.NumTuples, Deleted: s.Deleted.Clone()}
}

// NumLive returns the number of non-deleted nodes.
func (s *TableStats) NumLive() uint64 {
	return s.NumTuples - s.Deleted.GetCardinality()
}

type snapshot struct {
	tables map[types.TableID]*TableStats
}

func (s *snapshot) clone() *snapshot {
	c := &snapshot{tables: make(map[types.TableID]*TableStats, len(s.tables))}
	for id, t := range s.tables {
		c.tables[id] = t.clone()
	}
	return c
}

// TablesStatistics holds the statistics of all node tables.
type TablesStatistics struct {
	readOnly atomic.Pointer[snapshot]

	mu      sync.Mutex
	write   *snapshot
	updated bool
}

// New returns empty statistics.
func New() *TablesStatistics {
	s := &TablesStatistics{}
	s.readOnly.Store(&snapshot{tables: map[types.TableID]*TableStats{}})
	return s
}

// initWriteVersionLocked copies the read-only snapshot into the write version
// on first use.
func (s *TablesStatistics) initWriteVersionLocked() *snapshot {
	if s.write == nil {
		s.write = s.readOnly.Load().clone()
	}
	return s.write
}

func (s *TablesStatistics) setToUpdated() { s.updated = true }

func (s *TablesStatistics) writeTableLocked(id types.TableID) (*TableStats, error) {
	t, ok := s.initWriteVersionLocked().tables[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTableNotFound, id)
	}
	return t, nil
}

// view runs fn with the table statistics visible to tx.
func (s *TablesStatistics) view(tx *transaction.Transaction, id types.TableID, fn func(*TableStats)) error {
	if tx.IsWrite() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.write != nil {
			t, ok := s.write.tables[id]
			if !ok {
				return fmt.Errorf("%w: %d", ErrTableNotFound, id)
			}
			fn(t)
			return nil
		}
	}
	t, ok := s.readOnly.Load().tables[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTableNotFound, id)
	}
	fn(t)
	return nil
}

// AddTable registers an empty table in the write version.
func (s *TablesStatistics) AddTable(id types.TableID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.initWriteVersionLocked()
	if _, ok := w.tables[id]; ok {
		return
	}
	w.tables[id] = &TableStats{Deleted: roaring64.New()}
	s.setToUpdated()
}

// RemoveTable drops a table from the write version.
func (s *TablesStatistics) RemoveTable(id types.TableID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.initWriteVersionLocked().tables, id)
	s.setToUpdated()
}

// GetMaxNodeOffset returns the largest allocated offset, or
// types.InvalidOffset for an empty table.
func (s *TablesStatistics) GetMaxNodeOffset(tx *transaction.Transaction, id types.TableID) (types.Offset, error) {
	off := types.InvalidOffset
	err := s.view(tx, id, func(t *TableStats) {
		if t.NumTuples > 0 {
			off = t.NumTuples - 1
		}
	})
	return off, err
}

// GetNumTuples returns the number of live nodes visible to tx.
func (s *TablesStatistics) GetNumTuples(tx *transaction.Transaction, id types.TableID) (uint64, error) {
	var n uint64
	err := s.view(tx, id, func(t *TableStats) { n = t.NumLive() })
	return n, err
}

// IsDeleted reports whether offset was deleted as seen by tx.
func (s *TablesStatistics) IsDeleted(tx *transaction.Transaction, id types.TableID, off types.Offset) bool {
	deleted := false
	_ = s.view(tx, id, func(t *TableStats) { deleted = t.Deleted.Contains(off) })
	return deleted
}

// DeletedOffsets returns a copy of the deleted offsets visible to tx.
func (s *TablesStatistics) DeletedOffsets(tx *transaction.Transaction, id types.TableID) *roaring64.Bitmap {
	out := roaring64.New()
	_ = s.view(tx, id, func(t *TableStats) { out = t.Deleted.Clone() })
	return out
}

// AddNode allocates an offset for a new node. The smallest deleted offset is
// reused first; reused reports whether that happened.
func (s *TablesStatistics) AddNode(id types.TableID) (off types.Offset, reused bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.writeTableLocked(id)
	if err != nil {
		return types.InvalidOffset, false, err
	}
	s.setToUpdated()
	if !t.Deleted.IsEmpty() {
		off = t.Deleted.Minimum()
		t.Deleted.Remove(off)
		return off, true, nil
	}
	off = t.NumTuples
	t.NumTuples++
	return off, false, nil
}

// AddNodes allocates n contiguous offsets at the end of the table and returns
// the first one.
func (s *TablesStatistics) AddNodes(id types.TableID, n uint64) (types.Offset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.writeTableLocked(id)
	if err != nil {
		return types.InvalidOffset, err
	}
	s.setToUpdated()
	first := t.NumTuples
	t.NumTuples += n
	return first, nil
}

// DeleteNode marks off as deleted.
func (s *TablesStatistics) DeleteNode(id types.TableID, off types.Offset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.writeTableLocked(id)
	if err != nil {
		return err
	}
	if off >= t.NumTuples || t.Deleted.Contains(off) {
		return fmt.Errorf("%w: table %d offset %d", ErrNodeNotFound, id, off)
	}
	t.Deleted.Add(off)
	s.setToUpdated()
	return nil
}

// UpdateNumTuplesByValue adjusts the tuple count by delta.
// It panics if the count would become negative.
func (s *TablesStatistics) UpdateNumTuplesByValue(id types.TableID, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.writeTableLocked(id)
	if err != nil {
		return err
	}
	if delta < 0 && uint64(-delta) > t.NumTuples {
		panic(fmt.Sprintf("stats: table %d tuple count %d cannot drop by %d", id, t.NumTuples, -delta))
	}
	t.NumTuples = uint64(int64(t.NumTuples) + delta)
	s.setToUpdated()
	return nil
}

// HasUpdates reports whether the write version differs from the snapshot.
func (s *TablesStatistics) HasUpdates() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updated
}

// Checkpoint publishes the write version.
func (s *TablesStatistics) Checkpoint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.write != nil && s.updated {
		s.readOnly.Store(s.write)
	}
	s.write = nil
	s.updated = false
}

// Rollback discards the write version.
func (s *TablesStatistics) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write = nil
	s.updated = false
}

// TableIDs returns the ids of all checkpointed tables.
func (s *TablesStatistics) TableIDs() []types.TableID {
	return sortedKeys(s.readOnly.Load().tables)
}

func sortedKeys(m map[types.TableID]*TableStats) []types.TableID {
	return slices.Sorted(maps.Keys(m))
}

// MarshalBinary encodes the read-only snapshot.
func (s *TablesStatistics) MarshalBinary() ([]byte, error) {
	snap := s.readOnly.Load()
	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(snap.tables)))
	for _, id := range sortedKeys(snap.tables) {
		t := snap.tables[id]
		bm, err := t.Deleted.MarshalBinary()
		if err != nil {
			return nil, err
		}
		buf = binary.LittleEndian.AppendUint64(buf, uint64(id))
		buf = binary.LittleEndian.AppendUint64(buf, t.NumTuples)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(bm)))
		buf = append(buf, bm...)
	}
	return buf, nil
}

// UnmarshalBinary replaces the read-only snapshot with the decoded one and
// drops any write version.
func (s *TablesStatistics) UnmarshalBinary(data []byte) error {
	snap := &snapshot{tables: map[types.TableID]*TableStats{}}
	if len(data) < 4 {
		return ErrCorrupt
	}
	n := binary.LittleEndian.Uint32(data)
	data = data[4:]
	for range n {
		if len(data) < 20 {
			return ErrCorrupt
		}
		id := types.TableID(binary.LittleEndian.Uint64(data))
		numTuples := binary.LittleEndian.Uint64(data[8:])
		size := binary.LittleEndian.Uint32(data[16:])
		data = data[20:]
		if uint32(len(data)) < size {
			return ErrCorrupt
		}
		bm := roaring64.New()
		if err := bm.UnmarshalBinary(data[:size]); err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		data = data[size:]
		snap.tables[id] = &TableStats{NumTuples: numTuples, Deleted: bm}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readOnly.Store(snap)
	s.write = nil
	s.updated = false
	return nil
}
