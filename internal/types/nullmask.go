package types

import "math/bits"

// NullMask is a growable bitmap with one bit per row; a set bit marks NULL.
type NullMask struct {
	words   []uint64
	hasNull bool
}

// NewNullMask returns a mask able to hold n rows without growing.
func NewNullMask(n int) *NullMask {
	return &NullMask{words: make([]uint64, (n+63)/64)}
}

func (m *NullMask) grow(i int) {
	need := i/64 + 1
	if need > len(m.words) {
		m.words = append(m.words, make([]uint64, need-len(m.words))...)
	}
}

// Set marks row i as NULL or non-NULL.
func (m *NullMask) Set(i int, null bool) {
	m.grow(i)
	if null {
		m.words[i/64] |= 1 << (uint(i) % 64)
		m.hasNull = true
		return
	}
	m.words[i/64] &^= 1 << (uint(i) % 64)
}

// IsNull reports whether row i is NULL.
func (m *NullMask) IsNull(i int) bool {
	if !m.hasNull || i/64 >= len(m.words) {
		return false
	}
	return m.words[i/64]&(1<<(uint(i)%64)) != 0
}

// MayHaveNull reports whether any row was ever set to NULL.
func (m *NullMask) MayHaveNull() bool { return m.hasNull }

// CountNulls returns the number of NULL rows.
func (m *NullMask) CountNulls() int {
	n := 0
	for _, w := range m.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Reset clears all bits.
func (m *NullMask) Reset() {
	clear(m.words)
	m.hasNull = false
}
