package webgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() *Request {
	return &Request{
		Kernel:  KernelExact,
		Param:   make([]float32, 6),
		Accum:   make([]float32, 6),
		Grad:    make([]float32, 4),
		Indices: []uint32{0, 1, 2},
		Offsets: []uint32{1, 3},
		Rows:    3,
		Dim:     2,
	}
}

func TestRequest_Validate(t *testing.T) {
	require.NoError(t, validRequest().Validate())

	tests := []struct {
		name   string
		mutate func(r *Request)
	}{
		{"shape", func(r *Request) { r.Dim = 0 }},
		{"param", func(r *Request) { r.Param = r.Param[:5] }},
		{"accum", func(r *Request) { r.Kernel = KernelRowwise }},
		{"grad", func(r *Request) { r.Grad = r.Grad[:2] }},
		{"weights", func(r *Request) { r.Kernel = KernelWeighted }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.mutate(r)
			assert.Error(t, r.Validate())
		})
	}

	r := validRequest()
	r.Kernel = KernelWeightedRowwise
	r.Accum = make([]float32, 3)
	r.Weights = make([]float32, 3)
	r.WeightGrad = make([]float32, 3)
	assert.NoError(t, r.Validate())
}

func TestShaderFor(t *testing.T) {
	names := map[string]bool{}
	for _, k := range []Kernel{KernelExact, KernelWeighted, KernelRowwise, KernelWeightedRowwise} {
		name, code := shaderFor(k)
		names[name] = true

		assert.Contains(t, code, "@compute @workgroup_size(64)")
		assert.Contains(t, code, "workgroupUniformLoad")
		if k.Weighted() {
			assert.Contains(t, code, "weight_grad[m]")
			assert.Contains(t, code, "weights[m - start]")
		}
		if k.Rowwise() {
			assert.Contains(t, code, "atomicCompareExchangeWeak")
		} else {
			assert.NotContains(t, code, "atomic<u32>")
		}
	}
	assert.Len(t, names, 4)
}

func TestEncode(t *testing.T) {
	src := []float32{1.5, -2, 0}
	dst := make([]float32, 3)
	decodeF32(dst, encodeF32(src))
	assert.Equal(t, src, dst)

	assert.Equal(t, []byte{1, 0, 0, 0, 0, 1, 0, 0}, encodeU32([]uint32{1, 256}))

	params := encodeParams(validRequest())
	assert.Len(t, params, paramsSize)
	assert.Equal(t, []byte{2, 0, 0, 0, 2, 0, 0, 0}, params[:8])
}

func TestDispatchSize(t *testing.T) {
	x, y := dispatchSize(10)
	assert.Equal(t, [2]uint32{10, 1}, [2]uint32{x, y})

	x, y = dispatchSize(maxDispatch + 1)
	assert.Equal(t, [2]uint32{maxDispatch, 2}, [2]uint32{x, y})
}
