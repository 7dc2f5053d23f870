// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package adagrad

import (
	"github.com/born-ml/sparsegrad/internal/adagrad"
	"github.com/born-ml/sparsegrad/internal/dtype"
)

// Float is the constraint for storage element types (float32, float16.Float16).
type Float = dtype.Float

// Index is the constraint for index and length element types (int32, int64).
type Index = dtype.Index

// Config holds configuration for the fused sparse Adagrad operator.
type Config = adagrad.Config

// Backend selects where launches execute.
type Backend = adagrad.Backend

// Execution backends.
const (
	BackendCPU    = adagrad.BackendCPU
	BackendWebGPU = adagrad.BackendWebGPU
)

// Accelerator runs float32 launches on a device.
type Accelerator = adagrad.Accelerator

// Op is the fused sparse Adagrad operator.
type Op[T Float, I Index] = adagrad.Op[T, I]

// Table is a dense row-major [Rows, Cols] view over a caller-owned slice.
type Table[T Float] = adagrad.Table[T]

// Inputs are the arrays of one unweighted update call.
type Inputs[T Float, I Index] = adagrad.Inputs[T, I]

// WeightedInputs adds per-member, segment-relative weights.
type WeightedInputs[T Float, I Index] = adagrad.WeightedInputs[T, I]

// Variant identifies one of the four update kernels.
type Variant = adagrad.Variant

// Kernel variants.
const (
	VariantExact           = adagrad.VariantExact
	VariantWeighted        = adagrad.VariantWeighted
	VariantRowwise         = adagrad.VariantRowwise
	VariantWeightedRowwise = adagrad.VariantWeightedRowwise
)

// VariantOf returns the variant for the given accumulator and weighting modes.
func VariantOf(rowwise, weighted bool) Variant {
	return adagrad.VariantOf(rowwise, weighted)
}

// Strategy is the lane layout of a launch.
type Strategy = adagrad.Strategy

// Lane layouts.
const (
	StrategyExactBlock = adagrad.StrategyExactBlock
	StrategyStrided    = adagrad.StrategyStrided
	StrategyRowExact   = adagrad.StrategyRowExact
	StrategyRowGeneric = adagrad.StrategyRowGeneric
)

// ShapeError describes an input whose shape disagrees with the rest of the call.
type ShapeError = adagrad.ShapeError

// BoundsError reports a member whose row index falls outside the tables.
type BoundsError = adagrad.BoundsError

// Errors.
var (
	ErrShapeMismatch         = adagrad.ErrShapeMismatch
	ErrNegativeLength        = adagrad.ErrNegativeLength
	ErrUnsupportedDecay      = adagrad.ErrUnsupportedDecay
	ErrInvalidHyperparameter = adagrad.ErrInvalidHyperparameter
	ErrBoundsViolation       = adagrad.ErrBoundsViolation
	ErrDuplicateIndex        = adagrad.ErrDuplicateIndex
	ErrBackendUnavailable    = adagrad.ErrBackendUnavailable
)

// New creates a new operator.
//
// Example:
//
//	op, err := adagrad.New[float32, int32](adagrad.Config{
//	    Epsilon:     1e-5,
//	    WeightDecay: 1e-4,
//	    Rowwise:     true,
//	})
func New[T Float, I Index](config Config) (*Op[T, I], error) {
	return adagrad.NewOp[T, I](config)
}

// NewTable allocates a zeroed [rows, cols] table.
func NewTable[T Float](rows, cols int) Table[T] {
	return adagrad.NewTable[T](rows, cols)
}

// TableFrom wraps data as a [rows, cols] table.
func TableFrom[T Float](data []T, rows, cols int) (Table[T], error) {
	return adagrad.TableFrom(data, rows, cols)
}
