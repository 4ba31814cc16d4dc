package vecdex

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecdex/engine"
)

// Error categories. Every error returned by this package satisfies
// errors.Is against exactly one of them.
var (
	// ErrInvalidArgument indicates a caller mistake: bad vector shapes,
	// non-positive k, negative radius, malformed configuration.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState indicates the operation is not allowed in the index's
	// current lifecycle state.
	ErrInvalidState = errors.New("invalid state")

	// ErrIO indicates a failure reading or writing persisted index bytes.
	ErrIO = errors.New("io error")
)

// Specific conditions, each wrapping its category.
var (
	// ErrDisposed is returned for any operation on a disposed index.
	ErrDisposed = fmt.Errorf("%w: index is disposed", ErrInvalidState)

	// ErrNotTrained is returned when vectors are added to or searched in an
	// index that requires training first.
	ErrNotTrained = fmt.Errorf("%w: index has not been trained", ErrInvalidState)

	// ErrEmptyIndex is returned when a search runs against an index with no
	// stored vectors.
	ErrEmptyIndex = fmt.Errorf("%w: index contains no vectors", ErrInvalidState)

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = fmt.Errorf("%w: k must be positive", ErrInvalidArgument)
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrInvalidArgument, e.cause}
	}

	return []error{ErrInvalidArgument}
}

// ErrInsufficientTraining indicates a training set too small for the
// configured number of partitions.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInsufficientTraining struct {
	Need  int
	Got   int
	cause error
}

func (e *ErrInsufficientTraining) Error() string {
	return fmt.Sprintf("insufficient training data: need at least %d vectors, got %d", e.Need, e.Got)
}

func (e *ErrInsufficientTraining) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrInvalidArgument, e.cause}
	}

	return []error{ErrInvalidArgument}
}

// translateError normalizes engine-level errors into this package's taxonomy
// at the API boundary.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, engine.ErrNotTrained) {
		return ErrNotTrained
	}

	if errors.Is(err, engine.ErrEmptyIndex) {
		return ErrEmptyIndex
	}

	var dm *engine.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	var it *engine.ErrInsufficientTraining
	if errors.As(err, &it) {
		return &ErrInsufficientTraining{Need: it.Need, Got: it.Got, cause: err}
	}

	var id *engine.ErrInvalidDimension
	if errors.As(err, &id) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	var uk *engine.ErrUnknownKind
	if errors.As(err, &uk) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	if errors.Is(err, engine.ErrInvalidFrame) || errors.Is(err, engine.ErrUnsupportedVersion) {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	return err
}
