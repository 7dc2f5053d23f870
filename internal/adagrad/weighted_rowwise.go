package adagrad

import (
	"context"

	"github.com/born-ml/sparsegrad/internal/dtype"
)

// weightedRowwiseGeneric combines the row-wise accumulator with member
// weights.
//
// Phase 1 reduces two lane partials per member: (g + weight_decay*p)^2 for
// the row energy, scaled by w^2, and g*p for the weight gradient. Lane 0
// commits both. Phase 2 applies p += (w*g + weight_decay*p) * step.
func (k *kernel[T, I]) weightedRowwiseGeneric(ctx context.Context, _ int, start, end int64, st *unitState) error {
	lanes := min(k.laneBudget, k.dim)
	grad := st.gradRow
	energy := st.lanes.Shared()
	wgrad := st.wlanes.Shared()
	out := st.carry

	for m := start; m < end; m++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := st.rows[m-start]
		off := int(row) * k.dim
		w := k.weight(m, start)

		st.lanes.Reset(lanes)
		st.wlanes.Reset(lanes)
		for lane := 0; lane < lanes; lane++ {
			for e := lane; e < k.dim; e += lanes {
				p := dtype.Widen(k.param[off+e])
				in := grad[e]
				eg := in + k.weightDecay*p
				energy[lane] += eg * eg
				wgrad[lane] += in * p
				out[e] = w*in + k.weightDecay*p
			}
		}
		rowEnergy := st.lanes.ReduceSum(lanes) / float32(k.dim) * w * w
		dtype.AtomicAdd(&k.accum[row], rowEnergy)
		k.weightGrad[m] = dtype.Narrow[T](st.wlanes.ReduceSum(lanes))

		step := k.lr / (sqrt32(dtype.AtomicLoad(&k.accum[row])) + k.eps)
		for e := 0; e < k.dim; e++ {
			i := off + e
			k.param[i] = dtype.Narrow[T](dtype.Widen(k.param[i]) + out[e]*step)
		}
	}
	return nil
}

// weightedRowwisePacked is the packed layout of weightedRowwiseGeneric for
// widths that divide the lane group.
func (k *kernel[T, I]) weightedRowwisePacked(ctx context.Context, _ int, start, end int64, st *unitState) error {
	perRound := int64(max(1, k.laneBudget/k.dim))
	grad := st.gradRow
	energy := st.lanes.Shared()
	wgrad := st.wlanes.Shared()
	out := st.carry

	for base := start; base < end; base += perRound {
		if err := ctx.Err(); err != nil {
			return err
		}
		active := int(min(perRound, end-base))
		n := active * k.dim

		for t := 0; t < n; t++ {
			slot, e := t/k.dim, t%k.dim
			m := base + int64(slot)
			i := int(st.rows[m-start])*k.dim + e
			p := dtype.Widen(k.param[i])
			in := grad[e]
			eg := in + k.weightDecay*p
			energy[t] = eg * eg
			wgrad[t] = in * p
			out[t] = k.weight(m, start)*in + k.weightDecay*p
		}
		st.lanes.ReduceGroups(n, k.dim)
		st.wlanes.ReduceGroups(n, k.dim)
		for slot := 0; slot < active; slot++ {
			m := base + int64(slot)
			w := k.weight(m, start)
			row := st.rows[m-start]
			dtype.AtomicAdd(&k.accum[row], energy[slot*k.dim]/float32(k.dim)*w*w)
			k.weightGrad[m] = dtype.Narrow[T](wgrad[slot*k.dim])
		}

		for slot := 0; slot < active; slot++ {
			row := st.rows[base-start+int64(slot)]
			st.steps[slot] = k.lr / (sqrt32(dtype.AtomicLoad(&k.accum[row])) + k.eps)
		}
		for t := 0; t < n; t++ {
			slot, e := t/k.dim, t%k.dim
			i := int(st.rows[base-start+int64(slot)])*k.dim + e
			k.param[i] = dtype.Narrow[T](dtype.Widen(k.param[i]) + out[t]*st.steps[slot])
		}
	}
	return nil
}
