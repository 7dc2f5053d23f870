package checkpoint

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/x448/float16"

	"github.com/born-ml/sparsegrad/internal/dtype"
)

// Tensor is one named table in a checkpoint. Data holds little-endian
// elements of DType.
type Tensor struct {
	Name  string
	DType dtype.DataType
	Shape []int64
	Data  []byte
}

// NumElements returns the product of the shape.
func (t Tensor) NumElements() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Checkpoint is a set of tensors plus string metadata.
type Checkpoint struct {
	Tensors  []Tensor
	Metadata map[string]string
}

// New creates an empty checkpoint.
func New() *Checkpoint {
	return &Checkpoint{Metadata: make(map[string]string)}
}

// Tensor returns the tensor with the given name.
func (c *Checkpoint) Tensor(name string) (Tensor, error) {
	for _, t := range c.Tensors {
		if t.Name == name {
			return t, nil
		}
	}
	return Tensor{}, fmt.Errorf("checkpoint: %q: %w", name, ErrTensorNotFound)
}

// Names returns the tensor names in file order (alphabetical).
func (c *Checkpoint) Names() []string {
	names := make([]string, len(c.Tensors))
	for i, t := range c.Tensors {
		names[i] = t.Name
	}
	sort.Strings(names)
	return names
}

// AddTable encodes a [rows, cols] table and adds it under name, replacing
// any tensor of the same name.
func AddTable[T dtype.Float](c *Checkpoint, name string, data []T, rows, cols int) error {
	if err := ValidateTensorName(name); err != nil {
		return err
	}
	if len(data) != rows*cols {
		return fmt.Errorf("checkpoint: %q: %d elements for [%d, %d]: %w", name, len(data), rows, cols, ErrShapeMismatch)
	}

	dt := dtype.Of[T]()
	buf := make([]byte, len(data)*dt.Size())
	switch v := any(data).(type) {
	case []float32:
		for i, f := range v {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
		}
	case []float16.Float16:
		for i, h := range v {
			binary.LittleEndian.PutUint16(buf[2*i:], h.Bits())
		}
	}

	t := Tensor{Name: name, DType: dt, Shape: []int64{int64(rows), int64(cols)}, Data: buf}
	for i := range c.Tensors {
		if c.Tensors[i].Name == name {
			c.Tensors[i] = t
			return nil
		}
	}
	c.Tensors = append(c.Tensors, t)
	return nil
}

// Table decodes a 2-D tensor into storage type T, converting between
// float32 and float16 when the stored type differs.
func Table[T dtype.Float](c *Checkpoint, name string) (data []T, rows, cols int, err error) {
	t, err := c.Tensor(name)
	if err != nil {
		return nil, 0, 0, err
	}
	if len(t.Shape) != 2 {
		return nil, 0, 0, fmt.Errorf("checkpoint: %q: rank %d, want 2: %w", name, len(t.Shape), ErrShapeMismatch)
	}
	n := t.NumElements()
	if int64(len(t.Data)) != n*int64(t.DType.Size()) {
		return nil, 0, 0, fmt.Errorf("checkpoint: %q: %d bytes for %v: %w", name, len(t.Data), t.Shape, ErrShapeMismatch)
	}

	wide := make([]float32, n)
	switch t.DType {
	case dtype.Float32:
		for i := range wide {
			wide[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.Data[4*i:]))
		}
	case dtype.Float16:
		for i := range wide {
			wide[i] = float16.Frombits(binary.LittleEndian.Uint16(t.Data[2*i:])).Float32()
		}
	default:
		return nil, 0, 0, fmt.Errorf("checkpoint: %q: %s: %w", name, t.DType, ErrUnsupportedDType)
	}
	return dtype.NarrowSlice[T](wide), int(t.Shape[0]), int(t.Shape[1]), nil
}
