// Package store implements the columnar storage of node tables.
//
// A table's rows are partitioned into node groups of a fixed power-of-two
// capacity. Each property is stored in a column; each column keeps one chunk
// per node group together with a ChunkMetadata record in a versioned metadata
// array. Fixed-width columns pair their values with a NullColumn; string
// columns store a dictionary per node group.
//
// # Commit protocol
//
// A write transaction records inserts, updates and deletes in a LocalTable.
// PrepareCommit applies them node group by node group. When every touched row
// still fits the chunk's compression metadata the pages are patched in place
// through shadow pages; otherwise the chunk is rewritten to new pages. Either
// way only the write version of the metadata changes. CheckpointInMemory
// publishes the write version to readers and RollbackInMemory drops it.
package store
