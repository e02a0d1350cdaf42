package manifest

import "errors"

var (
	// ErrIncompatibleVersion is returned when the manifest version is not supported.
	ErrIncompatibleVersion = errors.New("manifest: incompatible version")

	// ErrNotFound is returned when the manifest file does not exist.
	ErrNotFound = errors.New("manifest: not found")

	// ErrCorrupt is returned when a manifest fails its checksum or cannot be parsed.
	ErrCorrupt = errors.New("manifest: corrupt")
)
