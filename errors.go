package graphstore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/graphstore/internal/archive"
	"github.com/hupe1980/graphstore/internal/hashindex"
	"github.com/hupe1980/graphstore/internal/indexbuilder"
	"github.com/hupe1980/graphstore/internal/manifest"
	"github.com/hupe1980/graphstore/internal/stats"
	"github.com/hupe1980/graphstore/internal/store"
	"github.com/hupe1980/graphstore/internal/types"
	"github.com/hupe1980/graphstore/internal/wal"
)

var (
	// ErrClosed is returned when an operation is attempted on a closed database.
	ErrClosed = errors.New("database closed")

	// ErrReadOnly is returned when a write is attempted on a read-only database
	// or through a read-only transaction.
	ErrReadOnly = errors.New("read-only")

	// ErrTxDone is returned when a transaction is used after Commit or Rollback.
	ErrTxDone = errors.New("transaction already committed or rolled back")

	// ErrNotFound is returned when a node offset or primary key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTableNotFound is returned when a table name is unknown.
	ErrTableNotFound = errors.New("table not found")

	// ErrTableExists is returned when a table name is already taken.
	ErrTableExists = errors.New("table already exists")

	// ErrTableNotEmpty is returned when a bulk load targets a table with rows.
	ErrTableNotEmpty = errors.New("table not empty")

	// ErrPropertyNotFound is returned when a property name is unknown.
	ErrPropertyNotFound = errors.New("property not found")

	// ErrPropertyExists is returned when a property name is already taken.
	ErrPropertyExists = errors.New("property already exists")

	// ErrTypeMismatch is returned when a value does not match the property type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidArgument is returned for malformed schemas and options.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCorrupt is returned when persisted data fails validation.
	ErrCorrupt = errors.New("data corruption detected")

	// ErrIncompatibleFormat is returned when the on-disk format is not supported.
	ErrIncompatibleFormat = errors.New("incompatible format")

	// ErrNoArchive is returned by Restore when the store holds no archive.
	ErrNoArchive = errors.New("no archive found")
)

// Constraint names reported by ErrConstraintViolation.
const (
	ConstraintNotNull    = "NOT NULL"
	ConstraintUnique     = "UNIQUE"
	ConstraintPrimaryKey = "PRIMARY KEY"
	ConstraintReferenced = "REFERENCED"
)

// ErrConstraintViolation indicates a write rejected by a schema constraint.
// No state was changed by the rejected operation.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrConstraintViolation struct {
	Constraint string
	cause      error
}

func (e *ErrConstraintViolation) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("constraint violation: %s", e.Constraint)
	}
	return fmt.Sprintf("constraint violation: %s: %v", e.Constraint, e.cause)
}

func (e *ErrConstraintViolation) Unwrap() error { return e.cause }

func constraintViolation(constraint string, err error) error {
	return &ErrConstraintViolation{Constraint: constraint, cause: err}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Constraints.
	if errors.Is(err, store.ErrNullPrimaryKey) || errors.Is(err, indexbuilder.ErrNullKey) || errors.Is(err, hashindex.ErrNullKey) {
		return constraintViolation(ConstraintNotNull, err)
	}
	if errors.Is(err, store.ErrDuplicateKey) || errors.Is(err, indexbuilder.ErrDuplicateKey) {
		return constraintViolation(ConstraintUnique, err)
	}
	if errors.Is(err, store.ErrPrimaryKeyUpdate) || errors.Is(err, store.ErrDropPrimaryKey) {
		return constraintViolation(ConstraintPrimaryKey, err)
	}

	// Not found unification.
	if errors.Is(err, store.ErrNodeNotFound) || errors.Is(err, stats.ErrNodeNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, store.ErrPropertyNotFound) {
		return fmt.Errorf("%w: %w", ErrPropertyNotFound, err)
	}
	if errors.Is(err, stats.ErrTableNotFound) {
		return fmt.Errorf("%w: %w", ErrTableNotFound, err)
	}
	if errors.Is(err, archive.ErrNoArchive) {
		return fmt.Errorf("%w: %w", ErrNoArchive, err)
	}

	if errors.Is(err, store.ErrReadOnlyTransaction) {
		return fmt.Errorf("%w: %w", ErrReadOnly, err)
	}
	if errors.Is(err, store.ErrTypeMismatch) || errors.Is(err, types.ErrTypeMismatch) ||
		errors.Is(err, indexbuilder.ErrKeyType) || errors.Is(err, hashindex.ErrKeyType) {
		return fmt.Errorf("%w: %w", ErrTypeMismatch, err)
	}

	// Persistence.
	if errors.Is(err, store.ErrCorrupt) || errors.Is(err, manifest.ErrCorrupt) || errors.Is(err, stats.ErrCorrupt) ||
		errors.Is(err, hashindex.ErrCorrupt) || errors.Is(err, archive.ErrCorrupt) || errors.Is(err, wal.ErrInvalidCRC) {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if errors.Is(err, manifest.ErrIncompatibleVersion) || errors.Is(err, wal.ErrIncompatibleVersion) {
		return fmt.Errorf("%w: %w", ErrIncompatibleFormat, err)
	}

	return err
}
