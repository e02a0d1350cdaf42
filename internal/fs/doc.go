// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with positional and streaming IO
//   - [FileSystem]: filesystem operations (open, remove, rename, etc.)
//
// [LocalFS] is the production implementation. [FaultyFS] wraps another
// FileSystem and injects write, sync and close failures; the storage tests use
// it to fail commits and checkpoints half way.
//
// Filesystem operations take no context.Context: local IO is not
// interruptible at the syscall level.
package fs
