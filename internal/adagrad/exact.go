package adagrad

import (
	"context"

	"github.com/born-ml/sparsegrad/internal/dtype"
)

// exactBlock is the exact kernel for dim <= laneBudget.
//
// Lanes form a grid of laneBudget/dim lane rows by dim lane columns. Each
// round hands one member to every lane row; lane (r, e) updates element e of
// member base+r.
func (k *kernel[T, I]) exactBlock(ctx context.Context, _ int, start, end int64, st *unitState) error {
	laneRows := int64(max(1, k.laneBudget/k.dim))
	grad := st.gradRow

	for base := start; base < end; base += laneRows {
		if err := ctx.Err(); err != nil {
			return err
		}
		last := min(base+laneRows, end)
		for m := base; m < last; m++ {
			off := int(st.rows[m-start]) * k.dim
			for e := 0; e < k.dim; e++ {
				k.exactElement(off+e, grad[e])
			}
		}
	}
	return nil
}

// exactStrided is the exact kernel for dim > laneBudget.
//
// Lane l owns elements l, l+laneBudget, ... and walks every member of the
// segment for each element it owns.
func (k *kernel[T, I]) exactStrided(ctx context.Context, _ int, start, end int64, st *unitState) error {
	lanes := min(k.laneBudget, k.dim)
	grad := st.gradRow
	members := int(end - start)

	for lane := 0; lane < lanes; lane++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for e := lane; e < k.dim; e += lanes {
			for i := 0; i < members; i++ {
				k.exactElement(int(st.rows[i])*k.dim+e, grad[e])
			}
		}
	}
	return nil
}

// exactElement applies the per-element Adagrad rule at flat offset i.
//
//	g' = g + weight_decay * p
//	a' = a + g'^2
//	p' = p + lr * g' / (sqrt(a') + eps)
func (k *kernel[T, I]) exactElement(i int, g float32) {
	p := dtype.Widen(k.param[i])
	eg := g + k.weightDecay*p
	a := dtype.Widen(k.accum[i]) + eg*eg
	k.accum[i] = dtype.Narrow[T](a)
	k.param[i] = dtype.Narrow[T](p + k.lr*eg/(sqrt32(a)+k.eps))
}
