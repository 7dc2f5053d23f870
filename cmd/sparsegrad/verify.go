package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
	"github.com/x448/float16"

	"github.com/born-ml/sparsegrad/adagrad"
	"github.com/born-ml/sparsegrad/internal/bags"
	"github.com/born-ml/sparsegrad/internal/dtype"
	"github.com/born-ml/sparsegrad/internal/logger"
	"github.com/born-ml/sparsegrad/internal/reference"
)

type verifyOptions struct {
	optimizerOptions

	dims      string
	rows      int64
	segments  int64
	maxLength int64
	tolerance float64
	seed      int64
}

// verifyResult is one fused-vs-reference comparison.
type verifyResult struct {
	variant    string
	strategy   adagrad.Strategy
	dim        int
	members    int
	param      float64
	accum      float64
	weightGrad float64
}

func (r verifyResult) max() float64 {
	return math.Max(r.param, math.Max(r.accum, r.weightGrad))
}

func verifyCmd() *cli.Command {
	o := &verifyOptions{}
	flags := append(optimizerFlags(&o.optimizerOptions),
		&cli.StringFlag{Name: "dims", Usage: "comma-separated embedding dimensions", Value: "1,3,8,33,130", Destination: &o.dims},
		&cli.Int64Flag{Name: "rows", Usage: "table rows", Value: 4096, Destination: &o.rows},
		&cli.Int64Flag{Name: "segments", Usage: "bags per batch", Value: 128, Destination: &o.segments},
		&cli.Int64Flag{Name: "max-length", Usage: "maximum bag length", Value: 8, Destination: &o.maxLength},
		&cli.Float64Flag{Name: "tolerance", Usage: "maximum allowed absolute error (0 = per dtype default)", Destination: &o.tolerance},
		&cli.Int64Flag{Name: "seed", Usage: "random seed", Value: 1, Destination: &o.seed},
	)

	return &cli.Command{
		Name:  "verify",
		Usage: "Compare the fused kernels against the sequential reference on unique batches",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyOptimizerConfig(cmd.IsSet, fileConfig, &o.optimizerOptions)
			log := logger.FromContext(ctx).With("cmd", "verify")

			dims, err := parseDims(o.dims)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			var results []verifyResult
			tol := o.tolerance
			switch strings.ToLower(o.dtype) {
			case "f32", "float32":
				if tol == 0 {
					tol = 1e-5
				}
				results, err = runVerify[float32](ctx, log, o, dims)
			case "f16", "float16":
				if tol == 0 {
					tol = 2e-2
				}
				results, err = runVerify[float16.Float16](ctx, log, o, dims)
			default:
				return cli.Exit(fmt.Sprintf("unknown dtype %q", o.dtype), 2)
			}
			if err != nil {
				return err
			}

			failed := report(cmd.Root().Writer, results, tol)
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d cases exceed tolerance %g", failed, len(results), tol), 1)
			}
			return nil
		},
	}
}

func parseDims(s string) ([]int, error) {
	var dims []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		d, err := strconv.Atoi(f)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid dimension %q", f)
		}
		dims = append(dims, d)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("no dimensions in %q", s)
	}
	return dims, nil
}

// runVerify checks all four variants at every dimension. --rowwise and
// --weighted are ignored; every combination is run.
func runVerify[T adagrad.Float](ctx context.Context, log logger.Logger, o *verifyOptions, dims []int) ([]verifyResult, error) {
	rng := rand.New(rand.NewSource(o.seed)) //nolint:gosec // reproducible runs
	var results []verifyResult
	for _, rowwise := range []bool{false, true} {
		for _, weighted := range []bool{false, true} {
			opts := o.optimizerOptions
			opts.rowwise = rowwise
			cfg, release, err := opts.config(log)
			if err != nil {
				return nil, err
			}
			op, err := adagrad.New[T, int64](cfg)
			if err != nil {
				release()
				return nil, err
			}
			for _, dim := range dims {
				r, err := verifyOnce(ctx, op, rng, o, dim, rowwise, weighted)
				if err != nil {
					release()
					return nil, err
				}
				log.Debug("verified", "variant", r.variant, "dim", dim, "max_abs_err", r.max())
				results = append(results, r)
			}
			release()
		}
	}
	return results, nil
}

func verifyOnce[T adagrad.Float](ctx context.Context, op *adagrad.Op[T, int64], rng *rand.Rand, o *verifyOptions, dim int, rowwise, weighted bool) (verifyResult, error) {
	batch, err := bags.Synthetic(rng, bags.SyntheticConfig{
		Rows:      int(o.rows),
		Segments:  int(o.segments),
		MaxLength: int(o.maxLength),
		Unique:    true,
		Weighted:  weighted,
	})
	if err != nil {
		return verifyResult{}, err
	}
	rows := int(o.rows)
	accumCols := dim
	if rowwise {
		accumCols = 1
	}

	randTable := func(n int, lo, hi float64) []T {
		out := make([]T, n)
		for i := range out {
			out[i] = dtype.Narrow[T](float32(lo + (hi-lo)*rng.Float64()))
		}
		return out
	}
	param := randTable(rows*dim, -1, 1)
	accum := randTable(rows*accumCols, 0.1, 2)
	grad := randTable(batch.Segments()*dim, -1, 1)
	lr := dtype.Narrow[T](0.05)

	want := &reference.Problem{
		Param:       reference.Widen(param),
		Accum:       reference.Widen(accum),
		Rows:        rows,
		Dim:         dim,
		Indices:     batch.Indices,
		Lengths:     batch.Lengths,
		Grad:        reference.Widen(grad),
		LR:          float64(dtype.Widen(lr)),
		Epsilon:     float64(op.Config().Epsilon),
		WeightDecay: float64(op.Config().WeightDecay),
		Rowwise:     rowwise,
	}
	var weights []T
	if weighted {
		weights = dtype.NarrowSlice[T](batch.Weights)
		want.Weights = reference.Widen(weights)
	}
	wantWG, err := reference.Step(want)
	if err != nil {
		return verifyResult{}, err
	}

	in := adagrad.Inputs[T, int64]{
		Param:   adagrad.Table[T]{Data: param, Rows: rows, Cols: dim},
		Accum:   adagrad.Table[T]{Data: accum, Rows: rows, Cols: accumCols},
		Indices: batch.Indices,
		Grad:    adagrad.Table[T]{Data: grad, Rows: batch.Segments(), Cols: dim},
		LR:      []T{lr},
		Lengths: batch.Lengths,
	}
	r := verifyResult{
		strategy: op.Strategy(dim, weighted),
		dim:      dim,
		members:  batch.Members(),
	}
	if weighted {
		gotWG, err := op.UpdateWeighted(ctx, adagrad.WeightedInputs[T, int64]{Inputs: in, Weights: weights})
		if err != nil {
			return r, err
		}
		if dim > 0 {
			r.weightGrad = reference.MaxAbsDiff(wantWG, gotWG)
		}
	} else if err := op.Update(ctx, in); err != nil {
		return r, err
	}

	r.variant = adagrad.VariantOf(rowwise, weighted).String()
	r.param = reference.MaxAbsDiff(want.Param, param)
	r.accum = reference.MaxAbsDiff(want.Accum, accum)
	return r, nil
}

// report prints one line per result and returns the number of failures.
func report(w io.Writer, results []verifyResult, tol float64) int {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "VARIANT\tDIM\tSTRATEGY\tMEMBERS\tPARAM\tACCUM\tWEIGHT_GRAD\tRESULT")
	failed := 0
	for _, r := range results {
		status := "ok"
		if r.max() > tol {
			status = "FAIL"
			failed++
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%.3g\t%.3g\t%.3g\t%s\n",
			r.variant, r.dim, r.strategy, r.members, r.param, r.accum, r.weightGrad, status)
	}
	_ = tw.Flush()
	return failed
}
