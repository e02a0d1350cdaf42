package compression

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/hupe1980/graphstore/internal/types"
)

// PageSize is the size of a data page in bytes.
const PageSize = 4096

// Encoding identifies how a chunk's values are laid out on disk.
type Encoding uint8

const (
	Uncompressed Encoding = iota
	Constant
	IntegerBitpacking
)

func (e Encoding) String() string {
	switch e {
	case Uncompressed:
		return "UNCOMPRESSED"
	case Constant:
		return "CONSTANT"
	case IntegerBitpacking:
		return "INTEGER_BITPACKING"
	}
	return fmt.Sprintf("Encoding(%d)", uint8(e))
}

// Metadata describes the encoding of one column chunk. Min and Max are storage
// bits interpreted with the column's physical type.
type Metadata struct {
	Min      uint64
	Max      uint64
	Encoding Encoding
}

// IsConstant reports whether every non-NULL value of the chunk equals Min.
func (m Metadata) IsConstant() bool { return m.Encoding == Constant }

// BitWidth returns the number of bits one value occupies on disk.
func (m Metadata) BitWidth(t types.PhysicalType) uint8 {
	switch m.Encoding {
	case Constant:
		return 0
	case IntegerBitpacking:
		return uint8(bits.Len64(m.Max - m.Min))
	default:
		return t.BitWidth()
	}
}

// ValuesPerPage returns how many values fit into one page.
func (m Metadata) ValuesPerPage(t types.PhysicalType) uint64 {
	w := m.BitWidth(t)
	if w == 0 {
		return math.MaxUint64
	}
	return PageSize * 8 / uint64(w)
}

// NumPages returns the number of pages needed to store n values.
func (m Metadata) NumPages(t types.PhysicalType, n uint64) uint32 {
	if n == 0 || m.BitWidth(t) == 0 {
		return 0
	}
	vpp := m.ValuesPerPage(t)
	return uint32((n + vpp - 1) / vpp)
}

// CanUpdateInPlace reports whether v can be written into an already encoded
// chunk without re-encoding it.
func (m Metadata) CanUpdateInPlace(t types.PhysicalType, v uint64) bool {
	switch m.Encoding {
	case Constant:
		return v == m.Min
	case IntegerBitpacking:
		if types.CompareBits(t, v, m.Min) < 0 {
			return false
		}
		return uint8(bits.Len64(v-m.Min)) <= m.BitWidth(t)
	default:
		return true
	}
}

// Widen returns m with Min and Max extended to include v. For bit-packed
// chunks it must only be called after CanUpdateInPlace returned true.
func (m Metadata) Widen(t types.PhysicalType, v uint64) Metadata {
	if m.Encoding == IntegerBitpacking {
		// Min is the frame of reference and cannot move.
		if types.CompareBits(t, v, m.Max) > 0 {
			m.Max = v
		}
		return m
	}
	if types.CompareBits(t, v, m.Min) < 0 {
		m.Min = v
	}
	if types.CompareBits(t, v, m.Max) > 0 {
		m.Max = v
	}
	return m
}

// GetMetadata chooses an encoding for values. NULL rows are ignored; a chunk
// without any non-NULL value is CONSTANT with zero bounds.
func GetMetadata(t types.PhysicalType, values []uint64, nulls *types.NullMask, enabled bool) Metadata {
	var (
		minV, maxV uint64
		first      uint64
		seen       bool
		// uniform is false once two values differ in any bit. Floats can
		// compare equal with different bits (-0 and +0, NaN payloads).
		uniform = true
	)
	for i, v := range values {
		if nulls != nil && nulls.IsNull(i) {
			continue
		}
		if !seen {
			minV, maxV, first, seen = v, v, v, true
			continue
		}
		if v != first {
			uniform = false
		}
		if types.CompareBits(t, v, minV) < 0 {
			minV = v
		}
		if types.CompareBits(t, v, maxV) > 0 {
			maxV = v
		}
	}
	m := Metadata{Min: minV, Max: maxV, Encoding: Uncompressed}
	if !enabled {
		return m
	}
	if !seen || uniform {
		m.Encoding = Constant
		return m
	}
	if t.IsInteger() && bits.Len64(maxV-minV) < int(t.BitWidth()) {
		m.Encoding = IntegerBitpacking
	}
	return m
}
