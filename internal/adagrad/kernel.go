package adagrad

import (
	"context"
	"math"
	"sync"

	"github.com/born-ml/sparsegrad/internal/dtype"
	"github.com/born-ml/sparsegrad/internal/parallel"
	"github.com/born-ml/sparsegrad/internal/segment"
)

// kernel holds the arguments of one fused launch. It is built by the
// dispatch layer after validation and discarded when the launch returns.
type kernel[T dtype.Float, I dtype.Index] struct {
	param      []T // [rows, dim]
	accum      []T // [rows, dim] or [rows]
	grad       []T // [segments, dim]
	indices    []I
	weights    []T // segment-relative, nil when unweighted
	weightGrad []T // one per member, nil when unweighted

	plan *segment.Plan
	rows int
	dim  int

	lr          float32
	eps         float32
	weightDecay float32

	laneBudget int
	groupWidth int

	states sync.Pool
}

// unitBody processes the members [start, end) of segment g.
type unitBody func(ctx context.Context, g int, start, end int64, st *unitState) error

// unitState is the per-unit scratch: lane partials, the widened gradient row,
// the resolved member rows, and values carried from phase 1 to phase 2.
type unitState struct {
	lanes   *parallel.Lanes // energy or weight-gradient partials
	wlanes  *parallel.Lanes // weight-gradient partials in the row-wise kernels
	gradRow []float32
	rows    []int64
	carry   []float32
	steps   []float32
}

func (k *kernel[T, I]) state() *unitState {
	if st, ok := k.states.Get().(*unitState); ok {
		return st
	}
	return &unitState{
		lanes:   parallel.NewLanes(k.laneBudget),
		wlanes:  parallel.NewLanes(k.laneBudget),
		gradRow: make([]float32, k.dim),
		carry:   make([]float32, max(k.laneBudget, k.dim)),
		steps:   make([]float32, k.laneBudget),
	}
}

// body returns the unit function for the variant and strategy. The choice is
// made once per launch.
func (k *kernel[T, I]) body(v Variant, s Strategy) unitBody {
	switch v {
	case VariantExact:
		if s == StrategyExactBlock {
			return k.exactBlock
		}
		return k.exactStrided
	case VariantWeighted:
		return k.weightedStrided
	case VariantRowwise:
		if s == StrategyRowExact {
			return k.rowwisePacked
		}
		return k.rowwiseGeneric
	default:
		if s == StrategyRowExact {
			return k.weightedRowwisePacked
		}
		return k.weightedRowwiseGeneric
	}
}

// launch runs one execution unit per segment.
func (k *kernel[T, I]) launch(ctx context.Context, v Variant, s Strategy, cfg parallel.Config) error {
	body := k.body(v, s)
	return parallel.Launch(ctx, k.plan.Len(), func(ctx context.Context, g int) error {
		start, end := k.plan.Range(g)
		if start == end {
			return nil
		}
		st := k.state()
		defer k.states.Put(st)

		if err := k.resolve(g, start, end, st); err != nil {
			return err
		}
		k.loadGrad(g, st.gradRow)
		return body(ctx, g, start, end, st)
	}, cfg)
}

// resolve bounds-checks the segment range and every member's row index and
// caches the rows for the unit.
func (k *kernel[T, I]) resolve(g int, start, end int64, st *unitState) error {
	if start < 0 || end < start || end > int64(len(k.indices)) {
		return &BoundsError{Segment: g, Member: start, Index: end, Rows: len(k.indices)}
	}
	st.rows = st.rows[:0]
	for m := start; m < end; m++ {
		row := int64(k.indices[m])
		if row < 0 || row >= int64(k.rows) {
			return &BoundsError{Segment: g, Member: m, Index: row, Rows: k.rows}
		}
		st.rows = append(st.rows, row)
	}
	return nil
}

func (k *kernel[T, I]) loadGrad(g int, dst []float32) {
	src := k.grad[g*k.dim : (g+1)*k.dim]
	for e, v := range src {
		dst[e] = dtype.Widen(v)
	}
}

// weight returns the weight of member m of a segment starting at start.
// Weights are addressed relative to the segment start.
func (k *kernel[T, I]) weight(m, start int64) float32 {
	return dtype.Widen(k.weights[m-start])
}

func sqrt32(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}
