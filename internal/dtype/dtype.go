// Package dtype defines the element types accepted by the sparse Adagrad
// kernels and the conversions between storage and compute precision.
//
// Tables, gradients and weights are stored as float32 or IEEE-754 binary16.
// All arithmetic happens in float32: values are widened on load and narrowed
// on store.
package dtype

import (
	"github.com/x448/float16"
)

// Float is the constraint for storage element types.
type Float interface {
	float32 | float16.Float16
}

// Index is the constraint for row index and segment length element types.
type Index interface {
	int32 | int64
}

// DataType represents runtime type information for a storage element.
type DataType int

// Supported storage types.
const (
	Float32 DataType = iota
	Float16
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float16:
		return 2
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	default:
		return "unknown"
	}
}

// Of infers the DataType of T.
func Of[T Float]() DataType {
	var zero T
	switch any(zero).(type) {
	case float16.Float16:
		return Float16
	default:
		return Float32
	}
}

// Widen converts a stored element to float32.
func Widen[T Float](v T) float32 {
	switch x := any(v).(type) {
	case float32:
		return x
	case float16.Float16:
		return x.Float32()
	}
	panic("unsupported element type")
}

// Narrow converts a float32 result back to the storage type.
// Float16 uses round-to-nearest-even.
func Narrow[T Float](f float32) T {
	var out T
	switch p := any(&out).(type) {
	case *float32:
		*p = f
	case *float16.Float16:
		*p = float16.Fromfloat32(f)
	}
	return out
}

// NarrowSlice converts src into a fresh slice of T.
func NarrowSlice[T Float](src []float32) []T {
	out := make([]T, len(src))
	for i, v := range src {
		out[i] = Narrow[T](v)
	}
	return out
}
