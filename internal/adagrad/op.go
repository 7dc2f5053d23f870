package adagrad

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/born-ml/sparsegrad/internal/backend/webgpu"
	"github.com/born-ml/sparsegrad/internal/dtype"
	"github.com/born-ml/sparsegrad/internal/logger"
	"github.com/born-ml/sparsegrad/internal/metrics"
	"github.com/born-ml/sparsegrad/internal/parallel"
	"github.com/born-ml/sparsegrad/internal/segment"
)

// Backend selects where launches execute.
type Backend int

// Execution backends.
const (
	BackendCPU Backend = iota
	BackendWebGPU
)

// String returns the backend name.
func (b Backend) String() string {
	switch b {
	case BackendCPU:
		return "cpu"
	case BackendWebGPU:
		return "webgpu"
	default:
		return "unknown"
	}
}

// Accelerator runs float32 launches on a device. *webgpu.Backend implements it.
type Accelerator interface {
	Name() string
	SparseAdagrad(ctx context.Context, req *webgpu.Request) error
}

// Config holds configuration for the fused sparse Adagrad operator.
type Config struct {
	// Zero means "unset" for Epsilon and Decay: an explicit 0 gets the
	// default, it is not rejected. Callers that take user input must reject
	// a zero epsilon themselves.
	Epsilon     float32 // Floor added to sqrt of the accumulator (default: 1e-5)
	WeightDecay float32 // L2 penalty coefficient (default: 0)
	Decay       float32 // Accumulator decay; only 1 is supported (default: 1)

	Rowwise bool // One accumulator scalar per row instead of per element

	// StrictUnique rejects batches that reference a row more than once.
	// Without it, repeated rows are updated without synchronization and the
	// result is an approximation of the sequential update.
	StrictUnique bool

	LaneBudget     int // Lanes per execution unit (default: parallel.DefaultLaneBudget())
	LaneGroupWidth int // Lanes advancing in lockstep (default: parallel.LaneGroupWidth())

	Parallel parallel.Config // Unit scheduling (default: parallel.DefaultConfig())

	Backend     Backend     // Execution backend (default: BackendCPU)
	Accelerator Accelerator // Device used by BackendWebGPU

	Logger  logger.Logger      // Debug launch logs (default: logger.Nop())
	Metrics *metrics.Collector // Optional launch metrics
}

// Inputs are the arrays of one unweighted update call.
//
// Param and Accum are updated in place. Grad is [len(Lengths), Param.Cols].
// LR holds exactly one element.
type Inputs[T dtype.Float, I dtype.Index] struct {
	Param   Table[T]
	Accum   Table[T]
	Indices []I
	Grad    Table[T]
	LR      []T
	Lengths []I
}

// WeightedInputs adds per-member weights. Weights has one entry per member
// and is addressed relative to the start of each segment.
type WeightedInputs[T dtype.Float, I dtype.Index] struct {
	Inputs[T, I]
	Weights []T
}

// Op is the fused sparse Adagrad operator: it validates a call, builds the
// segment plan, selects a lane strategy and launches one of the four kernels.
//
// An Op is safe for concurrent use; concurrent calls that share tables race
// on those tables.
type Op[T dtype.Float, I dtype.Index] struct {
	cfg Config
	log logger.Logger
}

// NewOp creates a new operator.
//
// Default hyperparameters:
//   - Epsilon: 1e-5
//   - WeightDecay: 0
//   - Decay: 1 (any other value is rejected)
func NewOp[T dtype.Float, I dtype.Index](cfg Config) (*Op[T, I], error) {
	// Set defaults
	if cfg.Decay == 0 {
		cfg.Decay = 1
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 1e-5
	}
	if cfg.LaneGroupWidth <= 0 {
		cfg.LaneGroupWidth = parallel.LaneGroupWidth()
	}
	if cfg.LaneBudget <= 0 {
		cfg.LaneBudget = parallel.DefaultLaneBudget()
	}
	if cfg.Parallel == (parallel.Config{}) {
		cfg.Parallel = parallel.DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	if cfg.Decay != 1 {
		return nil, fmt.Errorf("adagrad: decay %v: %w", cfg.Decay, ErrUnsupportedDecay)
	}
	if !(cfg.Epsilon > 0) || isInf(cfg.Epsilon) {
		return nil, fmt.Errorf("adagrad: epsilon %v: %w", cfg.Epsilon, ErrInvalidHyperparameter)
	}
	if cfg.WeightDecay < 0 || isNaN(cfg.WeightDecay) || isInf(cfg.WeightDecay) {
		return nil, fmt.Errorf("adagrad: weight decay %v: %w", cfg.WeightDecay, ErrInvalidHyperparameter)
	}
	if cfg.LaneBudget < cfg.LaneGroupWidth {
		return nil, fmt.Errorf("adagrad: lane budget %d below lane group width %d: %w",
			cfg.LaneBudget, cfg.LaneGroupWidth, ErrInvalidHyperparameter)
	}
	if cfg.Backend == BackendWebGPU && dtype.Of[T]() != dtype.Float32 {
		return nil, fmt.Errorf("adagrad: %s storage on %s: %w", dtype.Of[T](), cfg.Backend, ErrBackendUnavailable)
	}
	if cfg.Backend == BackendWebGPU && cfg.Accelerator == nil {
		return nil, fmt.Errorf("adagrad: no accelerator for %s: %w", cfg.Backend, ErrBackendUnavailable)
	}

	return &Op[T, I]{
		cfg: cfg,
		log: cfg.Logger.With("component", "adagrad", "rowwise", cfg.Rowwise),
	}, nil
}

// Config returns the effective configuration (defaults applied).
func (o *Op[T, I]) Config() Config {
	return o.cfg
}

// Strategy returns the lane layout a launch of the given width would use.
func (o *Op[T, I]) Strategy(dim int, weighted bool) Strategy {
	return SelectStrategy(VariantOf(o.cfg.Rowwise, weighted), dim, o.cfg.LaneBudget, o.cfg.LaneGroupWidth)
}

// Update applies one fused Adagrad step for an unweighted batch.
func (o *Op[T, I]) Update(ctx context.Context, in Inputs[T, I]) error {
	_, err := o.run(ctx, &in, nil)
	return err
}

// UpdateWeighted applies one fused Adagrad step for a weighted batch and
// returns the gradient with respect to every member weight.
func (o *Op[T, I]) UpdateWeighted(ctx context.Context, in WeightedInputs[T, I]) ([]T, error) {
	weights := in.Weights
	if weights == nil {
		weights = []T{}
	}
	return o.run(ctx, &in.Inputs, weights)
}

func (o *Op[T, I]) run(ctx context.Context, in *Inputs[T, I], weights []T) ([]T, error) {
	v := VariantOf(o.cfg.Rowwise, weights != nil)
	if err := o.validate(in, weights); err != nil {
		o.observeFailure(v, "shape")
		return nil, err
	}

	var weightGrad []T
	if weights != nil {
		weightGrad = make([]T, len(in.Indices))
	}

	plan := segment.Build(in.Lengths, o.cfg.Parallel)
	// Nothing to update: no segments, only empty segments, or empty rows.
	if plan.Total() == 0 || in.Param.Cols == 0 {
		return weightGrad, nil
	}

	if o.cfg.StrictUnique {
		if dups := segment.Duplicates(in.Indices); dups > 0 {
			o.observeFailure(v, "duplicate")
			return nil, fmt.Errorf("adagrad: %d repeated rows: %w", dups, ErrDuplicateIndex)
		}
	}

	dim := in.Param.Cols
	strategy := SelectStrategy(v, dim, o.cfg.LaneBudget, o.cfg.LaneGroupWidth)
	o.log.Debug("launch",
		"variant", v.String(),
		"strategy", strategy.String(),
		"backend", o.cfg.Backend.String(),
		"segments", plan.Len(),
		"members", plan.Total(),
		"dim", dim,
	)

	start := time.Now()
	var err error
	if o.cfg.Backend == BackendWebGPU {
		err = o.runDevice(ctx, v, plan, in, weights, weightGrad)
	} else {
		k := &kernel[T, I]{
			param:       in.Param.Data,
			accum:       in.Accum.Data,
			grad:        in.Grad.Data,
			indices:     in.Indices,
			weights:     weights,
			weightGrad:  weightGrad,
			plan:        plan,
			rows:        in.Param.Rows,
			dim:         dim,
			lr:          dtype.Widen(in.LR[0]),
			eps:         o.cfg.Epsilon,
			weightDecay: o.cfg.WeightDecay,
			laneBudget:  o.cfg.LaneBudget,
			groupWidth:  o.cfg.LaneGroupWidth,
		}
		err = k.launch(ctx, v, strategy, o.cfg.Parallel)
	}
	if err != nil {
		o.observeFailure(v, failureReason(err))
		o.log.Debug("launch failed", "variant", v.String(), "error", err)
		return nil, fmt.Errorf("adagrad: %s launch: %w", v, err)
	}

	o.cfg.Metrics.Observe(metrics.Launch{
		Variant:  v.String(),
		Strategy: strategy.String(),
		Segments: plan.Len(),
		Members:  plan.Total(),
		Duration: time.Since(start),
	})
	return weightGrad, nil
}

// validate checks every shape relation before anything is launched.
func (o *Op[T, I]) validate(in *Inputs[T, I], weights []T) error {
	if err := in.Param.check("param"); err != nil {
		return err
	}
	if err := in.Accum.check("accumulator"); err != nil {
		return err
	}
	if err := in.Grad.check("grad"); err != nil {
		return err
	}

	if in.Accum.Rows != in.Param.Rows {
		return shapeErr("accumulator rows", in.Param.Rows, in.Accum.Rows)
	}
	wantCols := in.Param.Cols
	if o.cfg.Rowwise {
		wantCols = 1
	}
	if in.Accum.Cols != wantCols {
		return shapeErr("accumulator cols", wantCols, in.Accum.Cols)
	}
	if len(in.LR) != 1 {
		return shapeErr("lr", 1, len(in.LR))
	}
	if in.Grad.Rows != len(in.Lengths) {
		return shapeErr("grad rows (segments)", len(in.Lengths), in.Grad.Rows)
	}
	if in.Grad.Cols != in.Param.Cols {
		return shapeErr("grad cols", in.Param.Cols, in.Grad.Cols)
	}

	var total int64
	for i, l := range in.Lengths {
		if l < 0 {
			return fmt.Errorf("adagrad: lengths[%d] = %d: %w", i, l, ErrNegativeLength)
		}
		total += int64(l)
	}
	if total != int64(len(in.Indices)) {
		return shapeErr("indices (sum of lengths)", total, len(in.Indices))
	}
	if weights != nil && len(weights) != len(in.Indices) {
		return shapeErr("weights", len(in.Indices), len(weights))
	}
	return nil
}

// runDevice converts the call to a float32 device request. Indices are
// bounds-checked on the host because shaders cannot abort a dispatch.
func (o *Op[T, I]) runDevice(ctx context.Context, v Variant, plan *segment.Plan, in *Inputs[T, I], weights, weightGrad []T) error {
	param, ok := any(in.Param.Data).([]float32)
	if !ok {
		return ErrBackendUnavailable
	}
	accum := any(in.Accum.Data).([]float32)
	grad := any(in.Grad.Data).([]float32)

	if uint64(in.Param.Rows) > math.MaxUint32 || plan.Total() > math.MaxUint32 {
		return fmt.Errorf("table too large for device addressing: %w", ErrBackendUnavailable)
	}
	indices := make([]uint32, len(in.Indices))
	for g := 0; g < plan.Len(); g++ {
		start, end := plan.Range(g)
		for m := start; m < end; m++ {
			row := int64(in.Indices[m])
			if row < 0 || row >= int64(in.Param.Rows) {
				return &BoundsError{Segment: g, Member: m, Index: row, Rows: in.Param.Rows}
			}
			indices[m] = uint32(row)
		}
	}
	offsets := make([]uint32, plan.Len())
	for i, off := range plan.Offsets() {
		offsets[i] = uint32(off)
	}

	req := &webgpu.Request{
		Kernel:      webgpu.Kernel(v),
		Param:       param,
		Accum:       accum,
		Grad:        grad,
		Indices:     indices,
		Offsets:     offsets,
		Rows:        in.Param.Rows,
		Dim:         in.Param.Cols,
		LR:          dtype.Widen(in.LR[0]),
		Epsilon:     o.cfg.Epsilon,
		WeightDecay: o.cfg.WeightDecay,
	}
	if weights != nil {
		req.Weights = any(weights).([]float32)
		req.WeightGrad = any(weightGrad).([]float32)
	}
	return o.cfg.Accelerator.SparseAdagrad(ctx, req)
}

func (o *Op[T, I]) observeFailure(v Variant, reason string) {
	o.cfg.Metrics.Observe(metrics.Launch{Variant: v.String(), Reason: reason})
}

func failureReason(err error) string {
	var pe *parallel.PanicError
	switch {
	case errors.Is(err, ErrBoundsViolation):
		return "bounds"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &pe):
		return "panic"
	default:
		return "device"
	}
}

func isNaN(f float32) bool { return f != f }

func isInf(f float32) bool { return math.IsInf(float64(f), 0) }
