package hash

import "hash/crc32"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C returns the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// CRC32CParts returns the checksum of the concatenation of parts without
// copying them.
func CRC32CParts(parts ...[]byte) uint32 {
	var sum uint32
	for _, p := range parts {
		sum = UpdateCRC32C(sum, p)
	}
	return sum
}

// UpdateCRC32C extends a running checksum with p.
func UpdateCRC32C(sum uint32, p []byte) uint32 {
	return crc32.Update(sum, castagnoli, p)
}
