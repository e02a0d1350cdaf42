// Package testutil provides seeded, thread-safe random data generators for
// tests and benchmarks.
package testutil
