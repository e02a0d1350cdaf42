// Package hash provides the checksums and key hashes used by the storage
// layer.
//
// # Checksums
//
// WAL records, manifests and index file headers are protected by
// CRC32-Castagnoli. Go's crc32 package uses the SSE4.2 or ARM CRC
// instructions when available.
//
//	checksum := hash.CRC32C(data)
//
// Records whose header and payload live in separate buffers are summed
// with CRC32CParts.
//
// # Key hashes
//
// Primary key indexes place keys by a 64-bit hash. Integer keys use the
// murmur3 finalizer; string keys use xxhash64. The hashes are stable across
// processes and releases, since they decide where keys live on disk.
package hash
