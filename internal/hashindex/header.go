package hashindex

import (
	"fmt"

	"github.com/hupe1980/graphstore/internal/types"
)

// loadFactor is the ratio of reserved entry capacity to stored entries.
const loadFactor = 1.5

// initialLevel gives every new shard two primary slots.
const initialLevel = 1

// HashIndexHeader describes the addressing state of one shard.
// The number of primary slots is 2^CurrentLevel + NextSplitSlotID.
type HashIndexHeader struct {
	CurrentLevel     uint64
	NextSplitSlotID  uint64
	NumEntries       uint64
	NumBytesPerKey   uint8
	NumBytesPerEntry uint8
	KeyType          types.PhysicalType
}

func newHashIndexHeader(keyType types.PhysicalType, keySize int) HashIndexHeader {
	return HashIndexHeader{
		CurrentLevel:     initialLevel,
		NumBytesPerKey:   uint8(keySize),
		NumBytesPerEntry: uint8(keySize + offsetSize),
		KeyType:          keyType,
	}
}

func (h *HashIndexHeader) levelHashMask() uint64       { return 1<<h.CurrentLevel - 1 }
func (h *HashIndexHeader) higherLevelHashMask() uint64 { return 1<<(h.CurrentLevel+1) - 1 }

// NumPrimarySlots returns the number of primary slots the header addresses.
func (h *HashIndexHeader) NumPrimarySlots() uint64 {
	return 1<<h.CurrentLevel + h.NextSplitSlotID
}

func (h *HashIndexHeader) incrementLevel() {
	h.CurrentLevel++
	h.NextSplitSlotID = 0
}

func (h *HashIndexHeader) incrementNextSplitSlotID() {
	if h.NextSplitSlotID < 1<<h.CurrentLevel-1 {
		h.NextSplitSlotID++
		return
	}
	h.incrementLevel()
}

// primarySlotID maps a hash to its primary slot. Slots below NextSplitSlotID
// were already split and use one more hash bit.
func (h *HashIndexHeader) primarySlotID(hash uint64) uint64 {
	slot := hash & h.levelHashMask()
	if slot < h.NextSplitSlotID {
		slot = hash & h.higherLevelHashMask()
	}
	return slot
}

func (h *HashIndexHeader) validate() error {
	if h.CurrentLevel >= 63 || h.NextSplitSlotID >= 1<<h.CurrentLevel {
		return fmt.Errorf("%w: level %d next split slot %d", ErrCorrupt, h.CurrentLevel, h.NextSplitSlotID)
	}
	if int(h.NumBytesPerEntry) != int(h.NumBytesPerKey)+offsetSize {
		return fmt.Errorf("%w: entry size %d for key size %d", ErrCorrupt, h.NumBytesPerEntry, h.NumBytesPerKey)
	}
	return nil
}

// numRequiredEntries returns the entry capacity needed to hold existing+added
// entries at the target load factor.
func numRequiredEntries(existing, added uint64) uint64 {
	return uint64(float64(existing+added) * loadFactor)
}
