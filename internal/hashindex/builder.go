package hashindex

import (
	"context"
	"encoding/binary"
	"fmt"
	"iter"

	"github.com/hupe1980/graphstore/internal/diskarray"
	"github.com/hupe1980/graphstore/internal/transaction"
	"github.com/hupe1980/graphstore/internal/types"
)

// HashIndexBuilder is one shard of a primary-key index. It is not safe for
// concurrent use.
type HashIndexBuilder struct {
	header   HashIndexHeader
	pSlots   *diskarray.Builder[Slot]
	oSlots   *diskarray.Builder[Slot]
	keys     keyCodec
	capacity int
}

func newHashIndexBuilder(keyType types.PhysicalType, keys keyCodec) *HashIndexBuilder {
	b := &HashIndexBuilder{
		header: newHashIndexHeader(keyType, keys.size()),
		pSlots: diskarray.NewBuilder[Slot](slotCodec{}),
		oSlots: diskarray.NewBuilder[Slot](slotCodec{}),
		keys:   keys,
	}
	b.capacity = slotCapacity(int(b.header.NumBytesPerEntry))
	// Overflow slot 0 marks the end of a chain and is never used.
	b.oSlots.Resize(1)
	b.pSlots.Resize(b.header.NumPrimarySlots())
	return b
}

// Header returns the shard's addressing state.
func (b *HashIndexBuilder) Header() HashIndexHeader { return b.header }

func (b *HashIndexBuilder) NumEntries() uint64 { return b.header.NumEntries }

func (b *HashIndexBuilder) entry(s *Slot, pos int) []byte {
	size := int(b.header.NumBytesPerEntry)
	return s.Entries[pos*size : (pos+1)*size]
}

func (b *HashIndexBuilder) storedKey(s *Slot, pos int) []byte {
	return b.entry(s, pos)[:b.header.NumBytesPerKey]
}

func (b *HashIndexBuilder) storedOffset(s *Slot, pos int) types.Offset {
	return binary.LittleEndian.Uint64(b.entry(s, pos)[b.header.NumBytesPerKey:])
}

// chain yields primary slot id followed by its overflow slots.
func (b *HashIndexBuilder) chain(slotID uint64) iter.Seq[*Slot] {
	return func(yield func(*Slot) bool) {
		s := b.pSlots.Get(slotID)
		if s == nil {
			panic(fmt.Sprintf("hashindex: primary slot %d of %d", slotID, b.pSlots.Len()))
		}
		for yield(s) && s.Header.NextOvfSlotID != 0 {
			s = b.oSlots.Get(s.Header.NextOvfSlotID)
		}
	}
}

func (b *HashIndexBuilder) allocateOvfSlot(after *Slot) *Slot {
	id := b.oSlots.PushBack(Slot{})
	after.Header.NextOvfSlotID = id
	return b.oSlots.Get(id)
}

// BulkReserve grows the primary slots so that n more entries fit without
// splitting. A fresh shard jumps straight to the target level; any other
// shard splits slot by slot.
func (b *HashIndexBuilder) BulkReserve(n uint64) {
	required := numRequiredEntries(b.header.NumEntries, n)
	if b.header.NumEntries > 0 || b.pSlots.Len() != 1<<initialLevel {
		for required > b.pSlots.Len()*uint64(b.capacity) {
			b.splitSlot()
		}
		return
	}
	requiredSlots := (required + uint64(b.capacity) - 1) / uint64(b.capacity)
	levelSlots := uint64(1) << b.header.CurrentLevel
	for levelSlots<<1 <= requiredSlots {
		b.header.incrementLevel()
		levelSlots <<= 1
	}
	if requiredSlots > levelSlots {
		b.header.NextSplitSlotID = requiredSlots - levelSlots
	}
	b.pSlots.Resize(b.header.NumPrimarySlots())
}

// splitSlot adds one primary slot and rehashes the chain at NextSplitSlotID
// between it and the new slot using one more hash bit.
func (b *HashIndexBuilder) splitSlot() {
	b.pSlots.Resize(b.pSlots.Len() + 1)
	splitID := b.header.NextSplitSlotID
	mask := b.header.higherLevelHashMask()

	var moved [][]byte
	for s := range b.chain(splitID) {
		for pos := range b.capacity {
			if s.Header.isEntryValid(pos) {
				moved = append(moved, append([]byte(nil), b.entry(s, pos)...))
			}
		}
		// Keep the overflow link so the chain's slots are reused.
		s.Header.Validity = 0
	}
	for _, e := range moved {
		b.copyEntry(e, b.keys.hashStored(e[:b.header.NumBytesPerKey])&mask)
	}
	b.header.incrementNextSplitSlotID()
}

// copyEntry places an encoded entry into the first free position of the
// chain at slotID.
func (b *HashIndexBuilder) copyEntry(e []byte, slotID uint64) {
	var last *Slot
	for s := range b.chain(slotID) {
		last = s
		for pos := range b.capacity {
			if !s.Header.isEntryValid(pos) {
				copy(b.entry(s, pos), e)
				s.Header.setEntryValid(pos)
				return
			}
		}
	}
	s := b.allocateOvfSlot(last)
	copy(b.entry(s, 0), e)
	s.Header.setEntryValid(0)
}

// Append inserts key with hash h. It returns false if the key exists.
func (b *HashIndexBuilder) Append(key types.Value, h uint64, off types.Offset) bool {
	for numRequiredEntries(b.header.NumEntries, 1) > b.pSlots.Len()*uint64(b.capacity) {
		b.splitSlot()
	}
	var last *Slot
	for s := range b.chain(b.header.primarySlotID(h)) {
		last = s
		for pos := range b.capacity {
			if !s.Header.isEntryValid(pos) {
				// Entries are packed, so no valid entry follows.
				b.insert(s, pos, key, off)
				return true
			}
			if b.keys.equals(key, b.storedKey(s, pos)) {
				return false
			}
		}
	}
	b.insert(b.allocateOvfSlot(last), 0, key, off)
	return true
}

func (b *HashIndexBuilder) insert(s *Slot, pos int, key types.Value, off types.Offset) {
	e := b.entry(s, pos)
	b.keys.encode(e[:b.header.NumBytesPerKey], key)
	binary.LittleEndian.PutUint64(e[b.header.NumBytesPerKey:], off)
	s.Header.setEntryValid(pos)
	b.header.NumEntries++
}

// Lookup returns the offset stored for key with hash h.
func (b *HashIndexBuilder) Lookup(key types.Value, h uint64) (types.Offset, bool) {
	for s := range b.chain(b.header.primarySlotID(h)) {
		for pos := range b.capacity {
			if s.Header.isEntryValid(pos) && b.keys.equals(key, b.storedKey(s, pos)) {
				return b.storedOffset(s, pos), true
			}
		}
	}
	return types.InvalidOffset, false
}

// Delete removes key with hash h. The last entry of the chain moves into the
// hole so entries stay packed.
func (b *HashIndexBuilder) Delete(key types.Value, h uint64) bool {
	var (
		hole    *Slot
		holePos int
		tail    *Slot
	)
	for s := range b.chain(b.header.primarySlotID(h)) {
		if s.Header.Validity != 0 {
			tail = s
		}
		if hole != nil {
			continue
		}
		for pos := range b.capacity {
			if s.Header.isEntryValid(pos) && b.keys.equals(key, b.storedKey(s, pos)) {
				hole, holePos = s, pos
				break
			}
		}
	}
	if hole == nil {
		return false
	}
	tailPos := tail.Header.numEntries() - 1
	if tail != hole || tailPos != holePos {
		copy(b.entry(hole, holePos), b.entry(tail, tailPos))
	}
	tail.Header.setEntryInvalid(tailPos)
	b.header.NumEntries--
	return true
}

// all yields the primary slot id, stored key and offset of every entry.
func (b *HashIndexBuilder) all(yield func(slotID uint64, stored []byte, off types.Offset) bool) {
	for id := range b.pSlots.Len() {
		for s := range b.chain(id) {
			for pos := range b.capacity {
				if s.Header.isEntryValid(pos) && !yield(id, b.storedKey(s, pos), b.storedOffset(s, pos)) {
					return
				}
			}
		}
	}
}

// shardHeader is the persisted state of one shard.
type shardHeader struct {
	Index  HashIndexHeader
	PSlots diskarray.Header
	OSlots diskarray.Header
}

func (b *HashIndexBuilder) flush(ctx context.Context, w diskarray.PageWriter) (shardHeader, error) {
	hdr := shardHeader{Index: b.header}
	var err error
	if hdr.PSlots, err = b.pSlots.Flush(ctx, w); err != nil {
		return hdr, err
	}
	if hdr.OSlots, err = b.oSlots.Flush(ctx, w); err != nil {
		return hdr, err
	}
	return hdr, nil
}

// detach makes the next flush allocate fresh pages for every slot.
func (b *HashIndexBuilder) detach() {
	b.pSlots.Detach()
	b.oSlots.Detach()
}

func loadHashIndexBuilder(r diskarray.PageReader, hdr shardHeader, keys keyCodec) (*HashIndexBuilder, error) {
	if err := hdr.Index.validate(); err != nil {
		return nil, err
	}
	if int(hdr.Index.NumBytesPerKey) != keys.size() {
		return nil, fmt.Errorf("%w: key size %d, want %d", ErrCorrupt, hdr.Index.NumBytesPerKey, keys.size())
	}
	pSlots, err := diskarray.LoadBuilder[Slot](transaction.DummyRead, r, hdr.PSlots, slotCodec{})
	if err != nil {
		return nil, err
	}
	oSlots, err := diskarray.LoadBuilder[Slot](transaction.DummyRead, r, hdr.OSlots, slotCodec{})
	if err != nil {
		return nil, err
	}
	if pSlots.Len() != hdr.Index.NumPrimarySlots() || oSlots.Len() == 0 {
		return nil, fmt.Errorf("%w: %d primary and %d overflow slots for level %d split %d",
			ErrCorrupt, pSlots.Len(), oSlots.Len(), hdr.Index.CurrentLevel, hdr.Index.NextSplitSlotID)
	}
	return &HashIndexBuilder{
		header:   hdr.Index,
		pSlots:   pSlots,
		oSlots:   oSlots,
		keys:     keys,
		capacity: slotCapacity(int(hdr.Index.NumBytesPerEntry)),
	}, nil
}
