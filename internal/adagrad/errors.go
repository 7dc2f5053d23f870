package adagrad

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrShapeMismatch         = errors.New("shape mismatch")
	ErrNegativeLength        = errors.New("negative segment length")
	ErrUnsupportedDecay      = errors.New("unsupported decay: only decay == 1 is supported")
	ErrInvalidHyperparameter = errors.New("invalid hyperparameter")
	ErrBoundsViolation       = errors.New("index out of bounds")
	ErrDuplicateIndex        = errors.New("duplicate row index in batch")
	ErrBackendUnavailable    = errors.New("backend unavailable")
)

// ShapeError describes an input whose shape disagrees with the rest of the call.
type ShapeError struct {
	Field string // Input name (e.g., "accumulator", "lr")
	Want  string // Expected shape or size
	Got   string // Actual shape or size
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("adagrad: %s: %s: want %s, got %s", ErrShapeMismatch, e.Field, e.Want, e.Got)
}

// Unwrap returns ErrShapeMismatch.
func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}

func shapeErr(field string, want, got any) error {
	return &ShapeError{Field: field, Want: fmt.Sprint(want), Got: fmt.Sprint(got)}
}

// BoundsError reports a member whose row index (or a segment whose range)
// falls outside the tables. It aborts the launch.
type BoundsError struct {
	Segment int
	Member  int64
	Index   int64
	Rows    int
}

// Error implements the error interface.
func (e *BoundsError) Error() string {
	return fmt.Sprintf("adagrad: %s: segment %d member %d: index %d not in [0, %d)",
		ErrBoundsViolation, e.Segment, e.Member, e.Index, e.Rows)
}

// Unwrap returns ErrBoundsViolation.
func (e *BoundsError) Unwrap() error {
	return ErrBoundsViolation
}
