// Package reference implements the unfused sparse Adagrad update as a plain
// sequential loop in float64.
//
// It walks segments and members in order, so a row that appears more than
// once sees every earlier update. For batches with unique row indices it is
// the ground truth the fused kernels are checked against.
package reference

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/sparsegrad/internal/dtype"
)

// ErrInvalidProblem is returned when a Problem's arrays disagree in size.
var ErrInvalidProblem = errors.New("reference: invalid problem")

// Problem is one update call in float64.
//
// Param is [Rows, Dim]. Accum is [Rows, Dim], or [Rows] when Rowwise.
// Grad is [len(Lengths), Dim]. Weights is nil for the unweighted variants;
// otherwise it has one entry per member, addressed relative to the start of
// each segment.
type Problem struct {
	Param []float64
	Accum []float64
	Rows  int
	Dim   int

	Indices []int64
	Lengths []int64
	Grad    []float64
	Weights []float64

	LR          float64
	Epsilon     float64
	WeightDecay float64
	Rowwise     bool
}

// Step applies the update in place and returns the weight gradients
// (nil when unweighted).
func Step(p *Problem) ([]float64, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	var weightGrad []float64
	if p.Weights != nil {
		weightGrad = make([]float64, len(p.Indices))
	}

	eff := make([]float64, p.Dim)
	var start int64
	for g, n := range p.Lengths {
		grad := p.Grad[g*p.Dim : (g+1)*p.Dim]
		for m := start; m < start+n; m++ {
			row := p.Indices[m]
			param := p.Param[int(row)*p.Dim : int(row+1)*p.Dim]

			w := 1.0
			if p.Weights != nil {
				w = p.Weights[m-start]
				weightGrad[m] = floats.Dot(grad, param)
			}

			if p.Rowwise {
				// Row energy uses the unweighted effective gradient.
				floats.AddScaledTo(eff, grad, p.WeightDecay, param)
				energy := floats.Dot(eff, eff) / float64(p.Dim) * w * w
				p.Accum[row] += energy

				// out = w*g + weight_decay*p
				floats.ScaleTo(eff, w, grad)
				floats.AddScaled(eff, p.WeightDecay, param)
				step := p.LR / (math.Sqrt(p.Accum[row]) + p.Epsilon)
				floats.AddScaled(param, step, eff)
				continue
			}

			accum := p.Accum[int(row)*p.Dim : int(row+1)*p.Dim]
			for e := range param {
				out := w*grad[e] + p.WeightDecay*param[e]
				accum[e] += out * out
				param[e] += p.LR * out / (math.Sqrt(accum[e]) + p.Epsilon)
			}
		}
		start += n
	}
	return weightGrad, nil
}

func (p *Problem) validate() error {
	if p.Rows < 0 || p.Dim < 0 || len(p.Param) != p.Rows*p.Dim {
		return fmt.Errorf("%w: param has %d elements for [%d, %d]", ErrInvalidProblem, len(p.Param), p.Rows, p.Dim)
	}
	wantAccum := p.Rows * p.Dim
	if p.Rowwise {
		wantAccum = p.Rows
	}
	if len(p.Accum) != wantAccum {
		return fmt.Errorf("%w: accumulator has %d elements, want %d", ErrInvalidProblem, len(p.Accum), wantAccum)
	}
	if len(p.Grad) != len(p.Lengths)*p.Dim {
		return fmt.Errorf("%w: grad has %d elements, want %d", ErrInvalidProblem, len(p.Grad), len(p.Lengths)*p.Dim)
	}
	var total int64
	for _, n := range p.Lengths {
		if n < 0 {
			return fmt.Errorf("%w: negative length %d", ErrInvalidProblem, n)
		}
		total += n
	}
	if total != int64(len(p.Indices)) {
		return fmt.Errorf("%w: lengths sum to %d, have %d indices", ErrInvalidProblem, total, len(p.Indices))
	}
	if p.Weights != nil && len(p.Weights) != len(p.Indices) {
		return fmt.Errorf("%w: %d weights for %d members", ErrInvalidProblem, len(p.Weights), len(p.Indices))
	}
	for m, row := range p.Indices {
		if row < 0 || row >= int64(p.Rows) {
			return fmt.Errorf("%w: indices[%d] = %d not in [0, %d)", ErrInvalidProblem, m, row, p.Rows)
		}
	}
	return nil
}

// Widen copies a storage slice into float64.
func Widen[T dtype.Float](s []T) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = float64(dtype.Widen(v))
	}
	return out
}

// Indices copies an index slice into int64.
func Indices[I dtype.Index](s []I) []int64 {
	out := make([]int64, len(s))
	for i, v := range s {
		out[i] = int64(v)
	}
	return out
}

// MaxAbsDiff returns the largest element-wise absolute difference between
// want and got. The slices must have the same length.
func MaxAbsDiff[T dtype.Float](want []float64, got []T) float64 {
	if len(want) == 0 {
		return 0
	}
	return floats.Distance(want, Widen(got), math.Inf(1))
}
