package compression

// putBits writes the low width bits of v at bit position pos, LSB first.
func putBits(page []byte, pos uint64, width uint8, v uint64) {
	for width > 0 {
		idx := pos / 8
		shift := uint8(pos % 8)
		n := min(8-shift, width)
		mask := byte((1<<n)-1) << shift
		page[idx] = page[idx]&^mask | byte(v<<shift)&mask
		v >>= n
		width -= n
		pos += uint64(n)
	}
}

// getBits reads width bits at bit position pos.
func getBits(page []byte, pos uint64, width uint8) uint64 {
	var v uint64
	var done uint8
	for done < width {
		idx := pos / 8
		shift := uint8(pos % 8)
		n := min(8-shift, width-done)
		b := uint64(page[idx]>>shift) & ((1 << n) - 1)
		v |= b << done
		done += n
		pos += uint64(n)
	}
	return v
}
