// Package diskarray implements arrays of fixed-size elements stored in pages
// of a page file.
//
// Element pages are indexed by page-index pages (PIPs). Each PIP holds the
// index of the next PIP, a count and up to PIPCapacity data page indices. An
// array is addressed by its Header: the element count and the first PIP.
//
// Page ownership is remembered across flushes: flushing again rewrites the
// same pages and only appends new ones, so repeated flushes are idempotent.
//
// Two flavors build on the layout:
//
//   - DiskArray: a versioned array with a read-only and a write version, used
//     for per-column chunk metadata.
//   - Builder: a growable array of mutable elements, used for hash index slots.
package diskarray
