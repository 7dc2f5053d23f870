package adagrad

// Strategy is the lane layout an execution unit uses for one launch.
//
// The strategy is picked once per launch from the embedding width and the
// lane budget; the per-element loops never branch on it.
type Strategy int

// Lane layouts.
const (
	// StrategyExactBlock lays lanes out as a 2-D grid: one lane column per
	// embedding element and several lane rows walking the segment's members.
	StrategyExactBlock Strategy = iota
	// StrategyStrided gives each lane a strided set of elements; the lane
	// walks all members of the segment for each element it owns.
	StrategyStrided
	// StrategyRowExact packs groupWidth/D members into each lane group, one
	// lane per element, with narrow D-wide reductions.
	StrategyRowExact
	// StrategyRowGeneric strides lanes over the elements of one member at a
	// time and reduces across the whole unit.
	StrategyRowGeneric
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyExactBlock:
		return "exact-block"
	case StrategyStrided:
		return "strided"
	case StrategyRowExact:
		return "row-exact"
	case StrategyRowGeneric:
		return "row-generic"
	default:
		return "unknown"
	}
}

// Variant identifies one of the four update kernels.
type Variant int

// Kernel variants.
const (
	VariantExact Variant = iota
	VariantWeighted
	VariantRowwise
	VariantWeightedRowwise
)

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case VariantExact:
		return "exact"
	case VariantWeighted:
		return "weighted"
	case VariantRowwise:
		return "rowwise"
	case VariantWeightedRowwise:
		return "weighted-rowwise"
	default:
		return "unknown"
	}
}

// Rowwise reports whether the variant keeps one accumulator scalar per row.
func (v Variant) Rowwise() bool {
	return v == VariantRowwise || v == VariantWeightedRowwise
}

// Weighted reports whether the variant scales contributions by member weights.
func (v Variant) Weighted() bool {
	return v == VariantWeighted || v == VariantWeightedRowwise
}

// VariantOf returns the variant for the given accumulator and weighting modes.
func VariantOf(rowwise, weighted bool) Variant {
	switch {
	case rowwise && weighted:
		return VariantWeightedRowwise
	case rowwise:
		return VariantRowwise
	case weighted:
		return VariantWeighted
	default:
		return VariantExact
	}
}

// SelectStrategy picks the lane layout for a launch of variant v over
// embeddings of width dim.
//
// Exact: the block layout when dim fits the lane budget, strided otherwise.
// Weighted exact: always strided (members are walked serially).
// Row-wise (weighted or not): the packed layout when dim divides the lane
// group width, the generic layout otherwise.
func SelectStrategy(v Variant, dim, laneBudget, groupWidth int) Strategy {
	switch v {
	case VariantExact:
		if dim > 0 && dim <= laneBudget {
			return StrategyExactBlock
		}
		return StrategyStrided
	case VariantWeighted:
		return StrategyStrided
	default:
		if dim > 0 && dim <= groupWidth && groupWidth%dim == 0 {
			return StrategyRowExact
		}
		return StrategyRowGeneric
	}
}
