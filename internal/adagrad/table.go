package adagrad

import (
	"fmt"

	"github.com/born-ml/sparsegrad/internal/dtype"
)

// Table is a dense row-major [Rows, Cols] view over a caller-owned slice.
//
// The kernels update tables in place and never reallocate Data.
type Table[T dtype.Float] struct {
	Data []T
	Rows int
	Cols int
}

// NewTable allocates a zeroed [rows, cols] table.
func NewTable[T dtype.Float](rows, cols int) Table[T] {
	return Table[T]{Data: make([]T, rows*cols), Rows: rows, Cols: cols}
}

// TableFrom wraps data as a [rows, cols] table.
func TableFrom[T dtype.Float](data []T, rows, cols int) (Table[T], error) {
	t := Table[T]{Data: data, Rows: rows, Cols: cols}
	return t, t.check("table")
}

// Row returns row i as a subslice of Data.
func (t Table[T]) Row(i int) []T {
	return t.Data[i*t.Cols : (i+1)*t.Cols]
}

// Shape returns [Rows, Cols].
func (t Table[T]) Shape() [2]int {
	return [2]int{t.Rows, t.Cols}
}

// String implements fmt.Stringer.
func (t Table[T]) String() string {
	return fmt.Sprintf("Table[%s]%v", dtype.Of[T](), t.Shape())
}

func (t Table[T]) check(field string) error {
	if t.Rows < 0 || t.Cols < 0 {
		return shapeErr(field, "non-negative dimensions", t.Shape())
	}
	if len(t.Data) != t.Rows*t.Cols {
		return shapeErr(field+" data length", t.Rows*t.Cols, len(t.Data))
	}
	return nil
}
