// Package resource implements the Controller that bounds memory, background
// concurrency and IO across the database.
//
// Page cache entries and bulk-load buffers are charged against one memory
// budget. TryAcquireMemory fails fast and is used by the cache; WaitMemory
// blocks bulk-load producers until consumers drain their buffers.
//
// Primary key index consumers beyond the first take a background slot, and
// page checkpoints and archive uploads wait on a token bucket.
//
// A nil Controller grants every request.
package resource
