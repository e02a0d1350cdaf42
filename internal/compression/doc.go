// Package compression implements the per-chunk compression metadata and the
// page codecs used by columns.
//
// A chunk is encoded with one of three encodings:
//
//   - Uncompressed: every value keeps the full width of its physical type.
//   - Constant: all non-NULL values equal Min; no pages are written.
//   - IntegerBitpacking: frame-of-reference against Min, packed with the
//     minimum bit width that holds Max-Min.
//
// Values never straddle a page: value i lives in page i/ValuesPerPage at bit
// (i%ValuesPerPage)*BitWidth. Min and Max bound every non-NULL value of the
// chunk for every encoding, so they are also used for predicate pruning.
package compression
