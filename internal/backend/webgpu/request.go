// Package webgpu runs the fused sparse Adagrad kernels as WGSL compute
// shaders. Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU
// bindings; on other platforms New reports ErrUnavailable.
package webgpu

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned when no WebGPU device can be used.
var ErrUnavailable = errors.New("webgpu: backend not available")

// Kernel selects one of the fused sparse Adagrad shaders.
type Kernel int

// Fused kernels.
const (
	KernelExact Kernel = iota
	KernelWeighted
	KernelRowwise
	KernelWeightedRowwise
)

// Request is one fused sparse Adagrad launch in float32.
//
// Param is [Rows, Dim]; Accum is [Rows, Dim] for the exact kernels and
// [Rows] for the row-wise kernels; Grad is [len(Offsets), Dim]. Offsets are
// the inclusive prefix sums of the segment lengths. Weights and WeightGrad
// are only used by the weighted kernels. Param, Accum and WeightGrad are
// written back in place.
type Request struct {
	Kernel Kernel

	Param   []float32
	Accum   []float32
	Grad    []float32
	Indices []uint32
	Offsets []uint32

	Weights    []float32
	WeightGrad []float32

	Rows int
	Dim  int

	LR          float32
	Epsilon     float32
	WeightDecay float32
}

// Weighted reports whether the kernel reads member weights.
func (k Kernel) Weighted() bool {
	return k == KernelWeighted || k == KernelWeightedRowwise
}

// Rowwise reports whether the kernel keeps one accumulator scalar per row.
func (k Kernel) Rowwise() bool {
	return k == KernelRowwise || k == KernelWeightedRowwise
}

// Validate checks buffer sizes before any GPU work is issued.
func (r *Request) Validate() error {
	if r.Dim <= 0 || r.Rows <= 0 {
		return fmt.Errorf("webgpu: invalid table shape [%d, %d]", r.Rows, r.Dim)
	}
	if len(r.Param) != r.Rows*r.Dim {
		return fmt.Errorf("webgpu: param has %d elements, want %d", len(r.Param), r.Rows*r.Dim)
	}
	wantAccum := r.Rows * r.Dim
	if r.Kernel.Rowwise() {
		wantAccum = r.Rows
	}
	if len(r.Accum) != wantAccum {
		return fmt.Errorf("webgpu: accumulator has %d elements, want %d", len(r.Accum), wantAccum)
	}
	if len(r.Grad) != len(r.Offsets)*r.Dim {
		return fmt.Errorf("webgpu: grad has %d elements, want %d", len(r.Grad), len(r.Offsets)*r.Dim)
	}
	if r.Kernel.Weighted() && (len(r.Weights) != len(r.Indices) || len(r.WeightGrad) != len(r.Indices)) {
		return fmt.Errorf("webgpu: weighted kernel needs %d weights and weight gradients", len(r.Indices))
	}
	return nil
}
