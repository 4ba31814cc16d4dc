package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotTrained is returned when vectors are added to or searched in an
	// engine whose training stage has not completed.
	ErrNotTrained = errors.New("index has not been trained")

	// ErrEmptyIndex is returned when a search runs against an engine with no
	// stored vectors.
	ErrEmptyIndex = errors.New("index contains no vectors")
)

// ErrInvalidDimension is returned when an engine is constructed with a
// non-positive dimensionality.
type ErrInvalidDimension struct {
	Dimension int
}

// Error implements the error interface.
func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// ErrUnknownKind is returned for an unrecognized engine kind.
type ErrUnknownKind struct {
	Kind Kind
}

// Error implements the error interface.
func (e *ErrUnknownKind) Error() string {
	return fmt.Sprintf("unknown engine kind: %d", uint8(e.Kind))
}

// ErrDimensionMismatch is returned when vector data does not match the
// engine's configured dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

// Error implements the error interface.
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInsufficientTraining is returned when the training set is too small for
// the configured number of partitions.
type ErrInsufficientTraining struct {
	Need int
	Got  int
}

// Error implements the error interface.
func (e *ErrInsufficientTraining) Error() string {
	return fmt.Sprintf("insufficient training data: need at least %d vectors, got %d", e.Need, e.Got)
}
