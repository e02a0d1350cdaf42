package types

import (
	"errors"
	"fmt"
)

var (
	// ErrOverflow is the cause of every OverflowError.
	ErrOverflow = errors.New("types: value out of range")
	// ErrInvalidValue is returned when input cannot be parsed as the target type.
	ErrInvalidValue = errors.New("types: invalid value")
	// ErrTypeMismatch is returned when a value does not match the expected type.
	ErrTypeMismatch = errors.New("types: type mismatch")
)

// OverflowError is returned when a value does not fit its target type.
// It is recoverable: the caller may reject the row and continue.
type OverflowError struct {
	Input  string
	Target PhysicalType
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("types: value %q overflows %s", e.Input, e.Target)
}

func (e *OverflowError) Unwrap() error { return ErrOverflow }
