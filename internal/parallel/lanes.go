package parallel

import (
	"golang.org/x/sys/cpu"
)

// LaneGroupWidth returns the number of float32 lanes that advance in lockstep
// on this CPU (the SIMD register width).
func LaneGroupWidth() int {
	switch {
	case cpu.X86.HasAVX512F:
		return 16
	case cpu.X86.HasAVX2, cpu.X86.HasAVX:
		return 8
	case cpu.ARM64.HasSVE:
		return 8
	default:
		// SSE2 / NEON / portable.
		return 4
	}
}

// DefaultLaneBudget is the number of lanes given to one execution unit.
func DefaultLaneBudget() int {
	return 64 * LaneGroupWidth()
}

// Lanes is the per-unit lane state: a shared scratch area that every lane
// writes its partial result to before a reduction.
//
// Lanes run in lockstep phases. A phase ends where the code calls one of the
// reduction methods, which is the barrier: every lane has stored its partial
// before the reduction reads them, and lane 0 owns the result.
type Lanes struct {
	shared []float32
}

// NewLanes allocates lane state for n lanes.
func NewLanes(n int) *Lanes {
	if n < 1 {
		n = 1
	}
	return &Lanes{shared: make([]float32, n)}
}

// Shared returns the shared scratch, one slot per lane.
func (l *Lanes) Shared() []float32 {
	return l.shared
}

// Reset zeroes the first n slots of the shared scratch.
func (l *Lanes) Reset(n int) {
	clear(l.shared[:n])
}

// ReduceSum sums the first n lane slots with a shared-memory tree reduction
// and returns lane 0's value.
func (l *Lanes) ReduceSum(n int) float32 {
	treeReduce(l.shared, 0, n)
	return l.shared[0]
}

// ReduceGroups sums each consecutive group of size lanes in the first n slots.
// Group g's sum is left in slot g*size.
func (l *Lanes) ReduceGroups(n, size int) {
	for base := 0; base < n; base += size {
		treeReduce(l.shared, base, min(size, n-base))
	}
}

// treeReduce folds s[base:base+n] into s[base] by halving strides.
func treeReduce(s []float32, base, n int) {
	if n <= 1 {
		return
	}
	for stride := nextPow2(n) >> 1; stride > 0; stride >>= 1 {
		for tid := 0; tid < stride; tid++ {
			if tid+stride < n {
				s[base+tid] += s[base+tid+stride]
			}
		}
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
