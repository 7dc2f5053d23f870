package dtype

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestDataType(t *testing.T) {
	assert.Equal(t, Float32, Of[float32]())
	assert.Equal(t, Float16, Of[float16.Float16]())
	assert.Equal(t, 4, Float32.Size())
	assert.Equal(t, 2, Float16.Size())
	assert.Equal(t, "float16", Float16.String())
	assert.Equal(t, "unknown", DataType(42).String())
	assert.Panics(t, func() { DataType(42).Size() })
}

func TestWidenNarrow(t *testing.T) {
	assert.Equal(t, float32(1.5), Widen(float32(1.5)))
	assert.Equal(t, float32(1.5), Widen(float16.Fromfloat32(1.5)))

	assert.Equal(t, float32(0.25), Narrow[float32](0.25))
	assert.Equal(t, float16.Fromfloat32(0.25), Narrow[float16.Float16](0.25))

	// 1/3 is not representable in binary16; narrowing rounds to nearest.
	h := Narrow[float16.Float16](1.0 / 3.0)
	assert.InDelta(t, 1.0/3.0, Widen(h), 1e-3)
}

func TestNarrowSlice(t *testing.T) {
	src := []float32{0, -1, 2.5, 1024}
	half := NarrowSlice[float16.Float16](src)
	require.Len(t, half, len(src))
	for i, v := range src {
		assert.Equal(t, v, Widen(half[i]))
	}
}

func TestAtomicAddF32(t *testing.T) {
	var v float32
	const workers, iters = 8, 1000

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range iters {
				AtomicAddF32(&v, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, float32(workers*iters), AtomicLoad(&v))
}

func TestAtomicAddF16_Neighbours(t *testing.T) {
	// Adjacent halves share a 32-bit word; concurrent adds must not clobber
	// each other.
	vals := make([]float16.Float16, 4)
	const iters = 200

	var wg sync.WaitGroup
	for i := range vals {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for range iters {
				AtomicAdd(&vals[i], 1)
			}
		}(i)
	}
	wg.Wait()

	for i := range vals {
		assert.Equal(t, float32(iters), AtomicLoad(&vals[i]), "element %d", i)
	}
}

func TestAtomicAdd_ReturnsNewValue(t *testing.T) {
	f := float32(2)
	assert.Equal(t, float32(2.5), AtomicAdd(&f, 0.5))

	h := float16.Fromfloat32(2)
	assert.Equal(t, float32(2.5), AtomicAdd(&h, 0.5))
	assert.Equal(t, float32(2.5), h.Float32())
}
