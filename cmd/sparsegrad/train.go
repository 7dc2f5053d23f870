package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/x448/float16"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/sparsegrad/adagrad"
	"github.com/born-ml/sparsegrad/internal/bags"
	"github.com/born-ml/sparsegrad/internal/checkpoint"
	"github.com/born-ml/sparsegrad/internal/dtype"
	"github.com/born-ml/sparsegrad/internal/logger"
	"github.com/born-ml/sparsegrad/internal/reference"
	"github.com/born-ml/sparsegrad/internal/segment"
	"github.com/born-ml/sparsegrad/internal/tokenizer"
)

type trainOptions struct {
	optimizerOptions

	rows        int64
	dim         int64
	lr          float64
	source      string
	input       string
	encoding    string
	segments    int64
	maxLength   int64
	batchSize   int64
	steps       int64
	seed        int64
	init        string
	output      string
	compression string
}

func trainCmd() *cli.Command {
	o := &trainOptions{}
	flags := append(optimizerFlags(&o.optimizerOptions),
		&cli.Int64Flag{Name: "rows", Usage: "embedding table rows (ignored for text input)", Value: 10000, Destination: &o.rows},
		&cli.Int64Flag{Name: "dim", Usage: "embedding dimension", Value: 64, Destination: &o.dim},
		&cli.Float64Flag{Name: "lr", Usage: "learning rate (applied as a descent step)", Value: 0.1, Destination: &o.lr},
		&cli.StringFlag{Name: "source", Usage: "batch source (synthetic, ints, text)", Value: "synthetic", Destination: &o.source},
		&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "input file for ints/text sources (- for stdin)", Destination: &o.input},
		&cli.StringFlag{Name: "encoding", Usage: "text tokenizer: hash or a tiktoken encoding", Value: tokenizer.HashEncoding, Destination: &o.encoding},
		&cli.Int64Flag{Name: "segments", Usage: "bags per synthetic batch", Value: 256, Destination: &o.segments},
		&cli.Int64Flag{Name: "max-length", Usage: "maximum synthetic bag length", Value: 8, Destination: &o.maxLength},
		&cli.Int64Flag{Name: "batch-size", Usage: "bags per update call (0 = whole batch)", Destination: &o.batchSize},
		&cli.Int64Flag{Name: "steps", Usage: "passes over the batch", Value: 10, Destination: &o.steps},
		&cli.Int64Flag{Name: "seed", Usage: "random seed", Value: 1, Destination: &o.seed},
		&cli.StringFlag{Name: "init", Usage: "resume from this checkpoint", Destination: &o.init},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "checkpoint to write", Destination: &o.output},
		&cli.StringFlag{Name: "compression", Usage: "checkpoint payload compression (none, zstd, lz4)", Value: "none", Destination: &o.compression},
	)

	return &cli.Command{
		Name:  "train",
		Usage: "Fit embedding bags to random targets with fused sparse Adagrad",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyTrainConfig(cmd.IsSet, fileConfig, o)
			log := logger.FromContext(ctx).With("cmd", "train")

			switch strings.ToLower(o.dtype) {
			case "f32", "float32":
				return runTrain[float32](ctx, log, o)
			case "f16", "float16":
				return runTrain[float16.Float16](ctx, log, o)
			default:
				return cli.Exit(fmt.Sprintf("unknown dtype %q", o.dtype), 2)
			}
		},
	}
}

// loadBatch builds the training batch and returns it with the number of
// table rows it addresses.
func loadBatch(o *trainOptions, rng *rand.Rand) (*bags.Batch, int, error) {
	open := func() (io.ReadCloser, error) {
		if o.input == "" || o.input == "-" {
			return io.NopCloser(os.Stdin), nil
		}
		return os.Open(o.input)
	}

	switch strings.ToLower(o.source) {
	case "synthetic":
		b, err := bags.Synthetic(rng, bags.SyntheticConfig{
			Rows:      int(o.rows),
			Segments:  int(o.segments),
			MaxLength: int(o.maxLength),
			Unique:    o.strictUnique,
			Weighted:  o.weighted,
		})
		return b, int(o.rows), err
	case "ints":
		r, err := open()
		if err != nil {
			return nil, 0, err
		}
		defer func() { _ = r.Close() }()
		b, err := bags.ParseInts(r)
		if err != nil {
			return nil, 0, err
		}
		return b, int(o.rows), b.Check(int(o.rows))
	case "text":
		tok, err := tokenizer.New(o.encoding, int(o.rows))
		if err != nil {
			return nil, 0, err
		}
		r, err := open()
		if err != nil {
			return nil, 0, err
		}
		defer func() { _ = r.Close() }()
		b, err := bags.FromText(tok, r)
		return b, tok.VocabSize(), err
	default:
		return nil, 0, cli.Exit(fmt.Sprintf("unknown source %q", o.source), 2)
	}
}

func runTrain[T adagrad.Float](ctx context.Context, log logger.Logger, o *trainOptions) error {
	rng := rand.New(rand.NewSource(o.seed)) //nolint:gosec // reproducible runs
	batch, rows, err := loadBatch(o, rng)
	if err != nil {
		return err
	}
	if o.weighted && batch.Weights == nil {
		batch.PositionalWeights(0.9)
	}
	if o.strictUnique && !batch.Unique() {
		return fmt.Errorf("batch repeats row ids: %w", adagrad.ErrDuplicateIndex)
	}
	dim := int(o.dim)

	cfg, release, err := o.config(log)
	if err != nil {
		return err
	}
	defer release()
	op, err := adagrad.New[T, int64](cfg)
	if err != nil {
		return err
	}

	param, accum, err := initTables[T](o, rows, dim, rng)
	if err != nil {
		return err
	}

	parts := batch.Split(int(o.batchSize))
	targets := make([][]float32, len(parts))
	for i, part := range parts {
		targets[i] = make([]float32, part.Segments()*dim)
		for j := range targets[i] {
			targets[i][j] = float32(rng.NormFloat64())
		}
	}

	log.Info("training",
		"rows", rows, "dim", dim, "dtype", dtype.Of[T](),
		"segments", batch.Segments(), "members", batch.Members(), "calls_per_step", len(parts),
		"rows_touched", segment.Touched(batch.Indices).GetCardinality(),
		"strategy", op.Strategy(dim, o.weighted),
	)

	// The kernel adds lr * g, so descent uses a negative rate.
	lr := []T{dtype.Narrow[T](float32(-o.lr))}
	start := time.Now()
	for step := 1; step <= int(o.steps); step++ {
		var loss, weightGradNorm float64
		for i, part := range parts {
			grad := adagrad.NewTable[T](part.Segments(), dim)
			loss += bagLoss(param, part, targets[i], grad.Data)

			in := adagrad.Inputs[T, int64]{
				Param:   param,
				Accum:   accum,
				Indices: part.Indices,
				Grad:    grad,
				LR:      lr,
				Lengths: part.Lengths,
			}
			if !o.weighted {
				if err := op.Update(ctx, in); err != nil {
					return fmt.Errorf("step %d: %w", step, err)
				}
				continue
			}
			wg, err := op.UpdateWeighted(ctx, adagrad.WeightedInputs[T, int64]{
				Inputs:  in,
				Weights: dtype.NarrowSlice[T](part.Weights),
			})
			if err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}
			if len(wg) > 0 {
				weightGradNorm = math.Hypot(weightGradNorm, floats.Norm(reference.Widen(wg), 2))
			}
		}
		attrs := []any{"step", step, "loss", loss / float64(max(1, batch.Segments()))}
		if o.weighted {
			attrs = append(attrs, "weight_grad_norm", weightGradNorm)
		}
		log.Info("step", attrs...)
	}
	log.Info("done", "steps", o.steps, "elapsed", time.Since(start).Round(time.Millisecond))

	if o.output == "" {
		return nil
	}
	compression, err := checkpoint.ParseCompression(o.compression)
	if err != nil {
		return err
	}
	c := checkpoint.New()
	c.Metadata["steps"] = strconv.FormatInt(o.steps, 10)
	c.Metadata["epsilon"] = strconv.FormatFloat(o.epsilon, 'g', -1, 64)
	c.Metadata["weight_decay"] = strconv.FormatFloat(o.weightDecay, 'g', -1, 64)
	c.Metadata["rowwise"] = strconv.FormatBool(o.rowwise)
	if err := checkpoint.AddTable(c, "param", param.Data, param.Rows, param.Cols); err != nil {
		return err
	}
	if err := checkpoint.AddTable(c, "accum", accum.Data, accum.Rows, accum.Cols); err != nil {
		return err
	}
	if err := checkpoint.Save(o.output, c, compression); err != nil {
		return err
	}
	log.Info("saved checkpoint", "path", o.output, "compression", compression)
	return nil
}

// initTables returns fresh tables or the ones stored in --init.
func initTables[T adagrad.Float](o *trainOptions, rows, dim int, rng *rand.Rand) (param, accum adagrad.Table[T], err error) {
	accumCols := dim
	if o.rowwise {
		accumCols = 1
	}
	if o.init == "" {
		param = adagrad.NewTable[T](rows, dim)
		scale := 1 / math.Sqrt(float64(max(1, dim)))
		for i := range param.Data {
			param.Data[i] = dtype.Narrow[T](float32(rng.NormFloat64() * scale))
		}
		return param, adagrad.NewTable[T](rows, accumCols), nil
	}

	c, err := checkpoint.Load(o.init)
	if err != nil {
		return param, accum, err
	}
	load := func(name string, cols int) (adagrad.Table[T], error) {
		data, r, cl, err := checkpoint.Table[T](c, name)
		if err != nil {
			return adagrad.Table[T]{}, err
		}
		if r != rows || cl != cols {
			return adagrad.Table[T]{}, fmt.Errorf("%s: checkpoint table is [%d, %d], want [%d, %d]: %w",
				name, r, cl, rows, cols, checkpoint.ErrShapeMismatch)
		}
		return adagrad.TableFrom(data, r, cl)
	}
	if param, err = load("param", dim); err != nil {
		return param, accum, err
	}
	accum, err = load("accum", accumCols)
	return param, accum, err
}

// bagLoss writes d loss / d pooled into grad and returns the summed squared
// error 0.5 * |pool(bag) - target|^2 over all bags. Pooling is the weighted
// sum of member rows.
func bagLoss[T adagrad.Float](param adagrad.Table[T], b *bags.Batch, targets []float32, grad []T) float64 {
	dim := param.Cols
	pooled := make([]float32, dim)
	var loss float64
	start := 0
	for s, n := range b.Lengths {
		clear(pooled)
		for k := range int(n) {
			row := param.Row(int(b.Indices[start+k]))
			w := b.Weight(k)
			for j := range pooled {
				pooled[j] += w * dtype.Widen(row[j])
			}
		}
		for j := range pooled {
			d := pooled[j] - targets[s*dim+j]
			loss += 0.5 * float64(d) * float64(d)
			grad[s*dim+j] = dtype.Narrow[T](d)
		}
		start += int(n)
	}
	return loss
}
