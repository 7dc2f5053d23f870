package segment

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/born-ml/sparsegrad/internal/dtype"
)

// Duplicates counts index values that occur more than once in indices.
// Each extra occurrence counts once, so a row seen three times adds two.
//
// Negative values are ignored; they are reported by the bounds checks.
func Duplicates[I dtype.Index](indices []I) int {
	seen := roaring64.New()
	dups := 0
	for _, idx := range indices {
		if idx < 0 {
			continue
		}
		if !seen.CheckedAdd(uint64(idx)) {
			dups++
		}
	}
	return dups
}

// Touched returns the set of distinct row ids referenced by indices.
func Touched[I dtype.Index](indices []I) *roaring64.Bitmap {
	rows := roaring64.New()
	for _, idx := range indices {
		if idx >= 0 {
			rows.Add(uint64(idx))
		}
	}
	return rows
}
