// Package types defines the identifiers, physical types, values and vectors
// shared by the storage layer.
//
// Every fixed-width value is carried as its 64-bit storage representation:
// signed integers are sign-extended, unsigned integers and booleans are
// zero-extended, FLOAT keeps its float32 bits in the low word and DOUBLE keeps
// its float64 bits. Strings are carried separately.
package types
