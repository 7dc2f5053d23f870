// Package segment builds the execution plan for ragged batches.
//
// A batch is a flat index array split into S contiguous segments by a length
// array. The plan is the inclusive prefix sum of the lengths: segment g spans
// [offsets[g-1], offsets[g]) of the index array, with offsets[-1] = 0.
package segment

import (
	"fmt"

	"github.com/born-ml/sparsegrad/internal/dtype"
	"github.com/born-ml/sparsegrad/internal/parallel"
)

// Offsets returns the inclusive prefix sum of lengths.
//
// The scan runs in three passes: per-chunk totals in parallel, a serial scan
// over the chunk totals, and a parallel pass that writes each chunk's running
// sum. The result is complete when Offsets returns. An empty input yields an
// empty plan.
func Offsets[I dtype.Index](lengths []I, cfg parallel.Config) []int64 {
	offsets := make([]int64, len(lengths))
	if len(lengths) == 0 {
		return offsets
	}

	// ForChunks never makes more chunks than workers.
	totals := make([]int64, max(1, cfg.NumWorkers))

	// Pass 1: chunk totals.
	chunks := parallel.ForChunks(len(lengths), func(c, start, end int) {
		var sum int64
		for _, l := range lengths[start:end] {
			sum += int64(l)
		}
		totals[c] = sum
	}, cfg)
	totals = totals[:chunks]

	// Pass 2: exclusive scan of the totals.
	var carry int64
	for c, t := range totals {
		totals[c] = carry
		carry += t
	}

	// Pass 3: inclusive scan inside each chunk, seeded with its carry.
	parallel.ForChunks(len(lengths), func(c, start, end int) {
		running := totals[c]
		for i := start; i < end; i++ {
			running += int64(lengths[i])
			offsets[i] = running
		}
	}, cfg)

	return offsets
}

// Plan maps segments to their member ranges.
type Plan struct {
	offsets []int64
}

// NewPlan wraps precomputed inclusive offsets.
func NewPlan(offsets []int64) *Plan {
	return &Plan{offsets: offsets}
}

// Build computes the offsets of lengths and returns the plan.
func Build[I dtype.Index](lengths []I, cfg parallel.Config) *Plan {
	return NewPlan(Offsets(lengths, cfg))
}

// Len returns the number of segments.
func (p *Plan) Len() int {
	return len(p.offsets)
}

// Total returns the number of members across all segments.
func (p *Plan) Total() int64 {
	if len(p.offsets) == 0 {
		return 0
	}
	return p.offsets[len(p.offsets)-1]
}

// Range returns the [start, end) member range of segment g.
func (p *Plan) Range(g int) (start, end int64) {
	if g > 0 {
		start = p.offsets[g-1]
	}
	return start, p.offsets[g]
}

// Offsets returns the underlying inclusive offsets.
func (p *Plan) Offsets() []int64 {
	return p.offsets
}

// String implements fmt.Stringer.
func (p *Plan) String() string {
	return fmt.Sprintf("Plan{segments=%d, members=%d}", p.Len(), p.Total())
}
