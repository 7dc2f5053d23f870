package adagrad

import (
	"math/rand"

	"github.com/born-ml/sparsegrad/internal/dtype"
	"github.com/born-ml/sparsegrad/internal/reference"
)

// problem is a random batch with unique row indices.
type problem struct {
	rows, dim int
	lengths   []int64
	indices   []int64
	param     []float32
	accum     []float32
	grad      []float32
	weights   []float32
	rowwise   bool
}

func newProblem(seed int64, rows, dim int, lengths []int64, rowwise, weighted bool) *problem {
	rng := rand.New(rand.NewSource(seed))
	p := &problem{rows: rows, dim: dim, lengths: lengths, rowwise: rowwise}

	var total int64
	for _, l := range lengths {
		total += l
	}
	perm := rng.Perm(rows)
	p.indices = make([]int64, total)
	for i := range p.indices {
		p.indices[i] = int64(perm[i])
	}

	p.param = randSlice(rng, rows*dim, -1, 1)
	accumCols := dim
	if rowwise {
		accumCols = 1
	}
	p.accum = randSlice(rng, rows*accumCols, 0, 2)
	p.grad = randSlice(rng, len(lengths)*dim, -1, 1)
	if weighted {
		p.weights = randSlice(rng, int(total), 0.25, 2)
	}
	return p
}

func randSlice(rng *rand.Rand, n int, lo, hi float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = lo + rng.Float32()*(hi-lo)
	}
	return s
}

func (p *problem) accumCols() int {
	if p.rowwise {
		return 1
	}
	return p.dim
}

// inputs converts the batch to storage type T and index type I.
func inputs[T dtype.Float, I dtype.Index](p *problem, lr float32) Inputs[T, I] {
	return Inputs[T, I]{
		Param:   Table[T]{Data: dtype.NarrowSlice[T](p.param), Rows: p.rows, Cols: p.dim},
		Accum:   Table[T]{Data: dtype.NarrowSlice[T](p.accum), Rows: p.rows, Cols: p.accumCols()},
		Indices: convertIndices[I](p.indices),
		Grad:    Table[T]{Data: dtype.NarrowSlice[T](p.grad), Rows: len(p.lengths), Cols: p.dim},
		LR:      []T{dtype.Narrow[T](lr)},
		Lengths: convertIndices[I](p.lengths),
	}
}

func convertIndices[I dtype.Index](s []int64) []I {
	out := make([]I, len(s))
	for i, v := range s {
		out[i] = I(v)
	}
	return out
}

// solve runs the sequential reference on the storage-rounded inputs.
func solve[T dtype.Float, I dtype.Index](in Inputs[T, I], weights []T, cfg Config) (*reference.Problem, []float64, error) {
	ref := &reference.Problem{
		Param:       reference.Widen(in.Param.Data),
		Accum:       reference.Widen(in.Accum.Data),
		Rows:        in.Param.Rows,
		Dim:         in.Param.Cols,
		Indices:     reference.Indices(in.Indices),
		Lengths:     reference.Indices(in.Lengths),
		Grad:        reference.Widen(in.Grad.Data),
		LR:          float64(dtype.Widen(in.LR[0])),
		Epsilon:     float64(cfg.Epsilon),
		WeightDecay: float64(cfg.WeightDecay),
		Rowwise:     cfg.Rowwise,
	}
	if weights != nil {
		ref.Weights = reference.Widen(weights)
	}
	wg, err := reference.Step(ref)
	return ref, wg, err
}
