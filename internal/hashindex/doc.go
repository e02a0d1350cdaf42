// Package hashindex implements the disk-resident primary-key index.
//
// A PrimaryKeyIndexBuilder partitions keys into shards by the high bits of
// their hash. Each shard is a HashIndexBuilder: a linear-hashing table whose
// primary slots double one slot at a time (split-before-insert) and whose
// collisions chain into overflow slots. Slot id 0 of the overflow array is
// reserved as the end-of-chain marker.
//
// Fixed-width keys are stored as their 8-byte storage bits. String keys of up
// to InlineKeyLen bytes live inside the slot; longer strings keep a 4-byte
// prefix in the slot and their bytes in the shared OverflowFile.
//
// Flush writes every shard's slot arrays to the index file in parallel and the
// overflow pages to a sibling file. Flushing an unchanged index rewrites the
// same pages with the same bytes. Open maps both files read-only and decodes
// the shards from the mapping.
package hashindex
