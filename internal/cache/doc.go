// Package cache provides the LRU page cache used by page files.
//
// [Sharded] distributes pages over 16 [LRU] shards, each guarded by its own
// mutex. Cached bytes are charged against the resource controller so the page
// cache and bulk-load buffers share one memory budget.
package cache
