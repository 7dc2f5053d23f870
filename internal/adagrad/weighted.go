package adagrad

import (
	"context"

	"github.com/born-ml/sparsegrad/internal/dtype"
)

// weightedStrided is the weighted exact kernel.
//
// Members are processed one at a time; lanes stride over the elements. Each
// lane accumulates grad*param (pre-update) for its elements, the partials are
// reduced across lanes, and lane 0 writes the member's weight gradient before
// the next member starts.
func (k *kernel[T, I]) weightedStrided(ctx context.Context, _ int, start, end int64, st *unitState) error {
	lanes := min(k.laneBudget, k.dim)
	grad := st.gradRow
	shared := st.lanes.Shared()

	for m := start; m < end; m++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		off := int(st.rows[m-start]) * k.dim
		w := k.weight(m, start)

		st.lanes.Reset(lanes)
		for lane := 0; lane < lanes; lane++ {
			for e := lane; e < k.dim; e += lanes {
				i := off + e
				p := dtype.Widen(k.param[i])
				in := grad[e]
				shared[lane] += in * p

				out := w*in + k.weightDecay*p
				a := dtype.Widen(k.accum[i]) + out*out
				k.accum[i] = dtype.Narrow[T](a)
				k.param[i] = dtype.Narrow[T](p + k.lr*out/(sqrt32(a)+k.eps))
			}
		}

		// Barrier: all partials are in shared; lane 0 commits.
		k.weightGrad[m] = dtype.Narrow[T](st.lanes.ReduceSum(lanes))
	}
	return nil
}
