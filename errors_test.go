package graphstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hupe1980/graphstore/internal/archive"
	"github.com/hupe1980/graphstore/internal/indexbuilder"
	"github.com/hupe1980/graphstore/internal/manifest"
	"github.com/hupe1980/graphstore/internal/stats"
	"github.com/hupe1980/graphstore/internal/store"
	"github.com/hupe1980/graphstore/internal/wal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateErrorConstraints(t *testing.T) {
	tests := []struct {
		err        error
		constraint string
	}{
		{store.ErrNullPrimaryKey, ConstraintNotNull},
		{indexbuilder.ErrNullKey, ConstraintNotNull},
		{store.ErrDuplicateKey, ConstraintUnique},
		{fmt.Errorf("shard 3: %w", indexbuilder.ErrDuplicateKey), ConstraintUnique},
		{store.ErrPrimaryKeyUpdate, ConstraintPrimaryKey},
		{store.ErrDropPrimaryKey, ConstraintPrimaryKey},
	}
	for _, tt := range tests {
		err := translateError(tt.err)
		var cv *ErrConstraintViolation
		require.ErrorAs(t, err, &cv, tt.err.Error())
		assert.Equal(t, tt.constraint, cv.Constraint)
		assert.ErrorIs(t, err, tt.err)
	}
}

func TestTranslateErrorSentinels(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{store.ErrNodeNotFound, ErrNotFound},
		{stats.ErrNodeNotFound, ErrNotFound},
		{store.ErrPropertyNotFound, ErrPropertyNotFound},
		{stats.ErrTableNotFound, ErrTableNotFound},
		{archive.ErrNoArchive, ErrNoArchive},
		{store.ErrReadOnlyTransaction, ErrReadOnly},
		{store.ErrTypeMismatch, ErrTypeMismatch},
		{manifest.ErrCorrupt, ErrCorrupt},
		{wal.ErrInvalidCRC, ErrCorrupt},
		{manifest.ErrIncompatibleVersion, ErrIncompatibleFormat},
	}
	for _, tt := range tests {
		err := translateError(fmt.Errorf("wrapped: %w", tt.err))
		assert.ErrorIs(t, err, tt.want, tt.err.Error())
		assert.ErrorIs(t, err, tt.err)
	}

	assert.NoError(t, translateError(nil))
	other := errors.New("other")
	assert.Same(t, other, translateError(other))
}

func TestConstraintViolationMessage(t *testing.T) {
	err := constraintViolation(ConstraintReferenced, errors.New("table A is referenced by B"))
	assert.Equal(t, "constraint violation: REFERENCED: table A is referenced by B", err.Error())
	assert.Equal(t, "constraint violation: UNIQUE", constraintViolation(ConstraintUnique, nil).Error())
}
