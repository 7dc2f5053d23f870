//go:build windows

package webgpu

import (
	"context"
	"fmt"
	"math"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
)

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// pipeline returns the cached pipeline of a kernel, compiling it on first use.
func (b *Backend) pipeline(k Kernel) *wgpu.ComputePipeline {
	name, code := shaderFor(k)

	b.mu.RLock()
	if p, exists := b.pipelines[name]; exists {
		b.mu.RUnlock()
		return p
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if p, exists := b.pipelines[name]; exists {
		return p
	}
	shader := b.device.CreateShaderModuleWGSL(code)
	b.shaders[name] = shader

	// Auto layout (nil layout) from the shader's bindings.
	p := b.device.CreateComputePipelineSimple(nil, shader, "main")
	b.pipelines[name] = p
	return p
}

// createBuffer creates a GPU buffer and uploads data.
func (b *Backend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))

	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// readBuffer reads data back from a GPU buffer through a staging buffer.
func (b *Backend) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}

	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	staging.Unmap()

	return result, nil
}

// SparseAdagrad runs one fused launch and copies Param, Accum and (for the
// weighted kernels) WeightGrad back into the request's slices.
func (b *Backend) SparseAdagrad(ctx context.Context, req *Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if len(req.Offsets) == 0 || len(req.Indices) == 0 {
		return nil
	}
	if len(req.Param) > math.MaxUint32/4 {
		return fmt.Errorf("webgpu: table of %d elements exceeds device addressing", len(req.Param))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.launchMu.Lock()
	defer b.launchMu.Unlock()

	pipeline := b.pipeline(req.Kernel)

	param := b.createBuffer(encodeF32(req.Param), storageUsage)
	defer param.Release()
	accum := b.createBuffer(encodeF32(req.Accum), storageUsage)
	defer accum.Release()
	grad := b.createBuffer(encodeF32(req.Grad), wgpu.BufferUsageStorage)
	defer grad.Release()
	indices := b.createBuffer(encodeU32(req.Indices), wgpu.BufferUsageStorage)
	defer indices.Release()
	offsets := b.createBuffer(encodeU32(req.Offsets), wgpu.BufferUsageStorage)
	defer offsets.Release()
	uniform := b.createBuffer(encodeParams(req), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	defer uniform.Release()

	paramSize := uint64(4 * len(req.Param))
	accumSize := uint64(4 * len(req.Accum))
	entries := []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, param, 0, paramSize),
		wgpu.BufferBindingEntry(1, accum, 0, accumSize),
		wgpu.BufferBindingEntry(2, grad, 0, uint64(4*len(req.Grad))),
		wgpu.BufferBindingEntry(3, indices, 0, uint64(4*len(req.Indices))),
		wgpu.BufferBindingEntry(4, offsets, 0, uint64(4*len(req.Offsets))),
		wgpu.BufferBindingEntry(5, uniform, 0, paramsSize),
	}

	var weightGrad *wgpu.Buffer
	wgSize := uint64(4 * len(req.WeightGrad))
	if req.Kernel.Weighted() {
		weights := b.createBuffer(encodeF32(req.Weights), wgpu.BufferUsageStorage)
		defer weights.Release()
		weightGrad = b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Usage: storageUsage,
			Size:  wgSize,
		})
		defer weightGrad.Release()
		entries = append(entries,
			wgpu.BufferBindingEntry(6, weights, 0, uint64(4*len(req.Weights))),
			wgpu.BufferBindingEntry(7, weightGrad, 0, wgSize),
		)
	}

	bindGroup := b.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), entries)
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	x, y := dispatchSize(len(req.Offsets))
	pass.DispatchWorkgroups(x, y, 1)
	pass.End()
	b.queue.Submit(encoder.Finish(nil))

	out, err := b.readBuffer(param, paramSize)
	if err != nil {
		return err
	}
	decodeF32(req.Param, out)

	if out, err = b.readBuffer(accum, accumSize); err != nil {
		return err
	}
	decodeF32(req.Accum, out)

	if weightGrad != nil {
		if out, err = b.readBuffer(weightGrad, wgSize); err != nil {
			return err
		}
		decodeF32(req.WeightGrad, out)
	}
	return nil
}
