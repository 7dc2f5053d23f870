package adagrad

import (
	"context"

	"github.com/born-ml/sparsegrad/internal/dtype"
)

// rowwiseGeneric is the row-wise kernel for widths that do not divide the
// lane group.
//
// Per member, in two phases separated by a barrier:
//  1. lanes stride over the elements, keep g' = g + weight_decay*p and sum
//     g'^2; the unit-wide reduction divided by dim is the row energy, which
//     lane 0 adds atomically to the row's accumulator.
//  2. every lane reads the accumulator and applies p += g' * lr/(sqrt(a)+eps).
func (k *kernel[T, I]) rowwiseGeneric(ctx context.Context, _ int, start, end int64, st *unitState) error {
	lanes := min(k.laneBudget, k.dim)
	grad := st.gradRow
	shared := st.lanes.Shared()
	eff := st.carry

	for m := start; m < end; m++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := st.rows[m-start]
		off := int(row) * k.dim

		st.lanes.Reset(lanes)
		for lane := 0; lane < lanes; lane++ {
			for e := lane; e < k.dim; e += lanes {
				eg := grad[e] + k.weightDecay*dtype.Widen(k.param[off+e])
				eff[e] = eg
				shared[lane] += eg * eg
			}
		}
		energy := st.lanes.ReduceSum(lanes) / float32(k.dim)
		dtype.AtomicAdd(&k.accum[row], energy)

		step := k.lr / (sqrt32(dtype.AtomicLoad(&k.accum[row])) + k.eps)
		for e := 0; e < k.dim; e++ {
			i := off + e
			k.param[i] = dtype.Narrow[T](dtype.Widen(k.param[i]) + eff[e]*step)
		}
	}
	return nil
}

// rowwisePacked is the row-wise kernel for widths that divide the lane group.
//
// Each round packs laneBudget/dim members side by side, one lane per element.
// Reductions only span the dim lanes of a member; the first lane of each
// member commits its row energy.
func (k *kernel[T, I]) rowwisePacked(ctx context.Context, _ int, start, end int64, st *unitState) error {
	perRound := int64(max(1, k.laneBudget/k.dim))
	grad := st.gradRow
	shared := st.lanes.Shared()
	eff := st.carry

	for base := start; base < end; base += perRound {
		if err := ctx.Err(); err != nil {
			return err
		}
		active := int(min(perRound, end-base))
		n := active * k.dim

		// Phase 1: per-lane squared effective gradient.
		for t := 0; t < n; t++ {
			slot, e := t/k.dim, t%k.dim
			i := int(st.rows[base-start+int64(slot)])*k.dim + e
			eg := grad[e] + k.weightDecay*dtype.Widen(k.param[i])
			eff[t] = eg
			shared[t] = eg * eg
		}
		st.lanes.ReduceGroups(n, k.dim)
		for slot := 0; slot < active; slot++ {
			row := st.rows[base-start+int64(slot)]
			dtype.AtomicAdd(&k.accum[row], shared[slot*k.dim]/float32(k.dim))
		}

		// Phase 2: the accumulator updates of this round are visible.
		for slot := 0; slot < active; slot++ {
			row := st.rows[base-start+int64(slot)]
			st.steps[slot] = k.lr / (sqrt32(dtype.AtomicLoad(&k.accum[row])) + k.eps)
		}
		for t := 0; t < n; t++ {
			slot, e := t/k.dim, t%k.dim
			i := int(st.rows[base-start+int64(slot)])*k.dim + e
			k.param[i] = dtype.Narrow[T](dtype.Widen(k.param[i]) + eff[t]*st.steps[slot])
		}
	}
	return nil
}
