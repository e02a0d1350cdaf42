package hashindex

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

const (
	// SlotSize is the on-disk size of a slot.
	SlotSize       = 256
	slotHeaderSize = 16
	slotDataSize   = SlotSize - slotHeaderSize

	offsetSize = 8
)

// SlotHeader holds the validity mask of a slot's entries and the id of the
// next overflow slot in its chain. Zero ends the chain.
type SlotHeader struct {
	Validity      uint32
	NextOvfSlotID uint64
}

func (h *SlotHeader) isEntryValid(pos int) bool { return h.Validity&(1<<pos) != 0 }
func (h *SlotHeader) setEntryValid(pos int)     { h.Validity |= 1 << pos }
func (h *SlotHeader) setEntryInvalid(pos int)   { h.Validity &^= 1 << pos }
func (h *SlotHeader) numEntries() int           { return bits.OnesCount32(h.Validity) }

// Slot is a fixed-size bucket of entries. An entry is the stored key
// followed by the little-endian node offset.
type Slot struct {
	Header  SlotHeader
	Entries [slotDataSize]byte
}

// slotCapacity returns how many entries of entrySize bytes fit into a slot.
func slotCapacity(entrySize int) int {
	c := slotDataSize / entrySize
	if c < 1 || c > 32 {
		panic(fmt.Sprintf("hashindex: entry size %d gives slot capacity %d", entrySize, c))
	}
	return c
}

type slotCodec struct{}

func (slotCodec) Size() int { return SlotSize }

func (slotCodec) Encode(dst []byte, s *Slot) {
	binary.LittleEndian.PutUint32(dst[0:], s.Header.Validity)
	binary.LittleEndian.PutUint32(dst[4:], 0)
	binary.LittleEndian.PutUint64(dst[8:], s.Header.NextOvfSlotID)
	copy(dst[slotHeaderSize:], s.Entries[:])
}

func (slotCodec) Decode(src []byte, s *Slot) {
	s.Header.Validity = binary.LittleEndian.Uint32(src[0:])
	s.Header.NextOvfSlotID = binary.LittleEndian.Uint64(src[8:])
	copy(s.Entries[:], src[slotHeaderSize:SlotSize])
}
