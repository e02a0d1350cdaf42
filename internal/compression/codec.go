package compression

import (
	"fmt"

	"github.com/hupe1980/graphstore/internal/types"
)

func (m Metadata) encodeValue(t types.PhysicalType, v uint64) uint64 {
	if m.Encoding == IntegerBitpacking {
		return v - m.Min
	}
	return v
}

func (m Metadata) decodeValue(t types.PhysicalType, w uint8, raw uint64) uint64 {
	switch {
	case m.Encoding == IntegerBitpacking:
		return raw + m.Min
	case t.IsSigned() && w < 64:
		shift := 64 - w
		return uint64(int64(raw<<shift) >> shift)
	default:
		return raw
	}
}

// Compress encodes values into NumPages(len(values)) consecutive pages.
// NULL rows are stored as Min.
func Compress(t types.PhysicalType, m Metadata, values []uint64, nulls *types.NullMask) []byte {
	numPages := m.NumPages(t, uint64(len(values)))
	out := make([]byte, int(numPages)*PageSize)
	w := m.BitWidth(t)
	if w == 0 {
		return out
	}
	vpp := m.ValuesPerPage(t)
	for i, v := range values {
		if nulls != nil && nulls.IsNull(i) {
			v = m.Min
		}
		page := uint64(i) / vpp
		pos := (uint64(i) % vpp) * uint64(w)
		putBits(out[page*PageSize:(page+1)*PageSize], pos, w, m.encodeValue(t, v))
	}
	return out
}

// Decompress decodes n values starting at position pos of a single page into
// dst. pos+n must not exceed ValuesPerPage.
func Decompress(t types.PhysicalType, m Metadata, page []byte, pos uint64, dst []uint64) {
	w := m.BitWidth(t)
	if w == 0 {
		for i := range dst {
			dst[i] = m.Min
		}
		return
	}
	if pos+uint64(len(dst)) > m.ValuesPerPage(t) {
		panic(fmt.Sprintf("compression: decode of %d values at %d crosses page boundary", len(dst), pos))
	}
	for i := range dst {
		raw := getBits(page, (pos+uint64(i))*uint64(w), w)
		dst[i] = m.decodeValue(t, w, raw)
	}
}

// SetValue overwrites the value at position pos of a page. The caller must
// have checked CanUpdateInPlace.
func SetValue(t types.PhysicalType, m Metadata, page []byte, pos uint64, v uint64) {
	w := m.BitWidth(t)
	if w == 0 {
		return
	}
	putBits(page, pos*uint64(w), w, m.encodeValue(t, v))
}
