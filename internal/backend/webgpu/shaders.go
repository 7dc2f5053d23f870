package webgpu

// WGSL compute shaders for the fused sparse Adagrad kernels.
//
// Every shader runs one workgroup per segment. The segment index is
// workgroup_id.x + workgroup_id.y * maxDispatch so batches with more than
// maxDispatch segments fit the dispatch limits. Lanes stride over the
// embedding elements; reductions go through workgroup memory with a
// barrier at every step.

// workgroupSize is the number of lanes per segment.
const workgroupSize = 64

// maxDispatch is the largest workgroup count per dispatch dimension.
const maxDispatch = 65535

// Bindings shared by all four shaders.
//
//	0 param       read_write f32 [rows*dim]
//	1 accum       read_write f32 (exact) or atomic<u32> (row-wise)
//	2 grad        read       f32 [segments*dim]
//	3 indices     read       u32 [members]
//	4 offsets     read       u32 [segments], inclusive
//	5 params      uniform
//	6 weights     read       f32 [members], weighted only
//	7 weight_grad read_write f32 [members], weighted only
const commonHeader = `
struct Params {
    segments: u32,
    dim: u32,
    lr: f32,
    eps: f32,
    weight_decay: f32,
    _pad0: u32,
    _pad1: u32,
    _pad2: u32,
}

@group(0) @binding(0) var<storage, read_write> param: array<f32>;
@group(0) @binding(2) var<storage, read> grad: array<f32>;
@group(0) @binding(3) var<storage, read> indices: array<u32>;
@group(0) @binding(4) var<storage, read> offsets: array<u32>;
@group(0) @binding(5) var<uniform> params: Params;

var<workgroup> seg_start: u32;
var<workgroup> seg_end: u32;
`

const reduceHelpers = `
var<workgroup> partial: array<f32, 64>;

fn reduce_partial(tid: u32) {
    workgroupBarrier();
    for (var s: u32 = 32u; s > 0u; s = s >> 1u) {
        if (tid < s) {
            partial[tid] = partial[tid] + partial[tid + s];
        }
        workgroupBarrier();
    }
}
`

const weightedHeader = `
@group(0) @binding(6) var<storage, read> weights: array<f32>;
@group(0) @binding(7) var<storage, read_write> weight_grad: array<f32>;

var<workgroup> wpartial: array<f32, 64>;

fn reduce_wpartial(tid: u32) {
    workgroupBarrier();
    for (var s: u32 = 32u; s > 0u; s = s >> 1u) {
        if (tid < s) {
            wpartial[tid] = wpartial[tid] + wpartial[tid + s];
        }
        workgroupBarrier();
    }
}
`

const rowwiseHeader = `
@group(0) @binding(1) var<storage, read_write> accum: array<atomic<u32>>;

fn atomic_add_f32(i: u32, v: f32) {
    var old = atomicLoad(&accum[i]);
    loop {
        let r = atomicCompareExchangeWeak(&accum[i], old, bitcast<u32>(bitcast<f32>(old) + v));
        if (r.exchanged) {
            break;
        }
        old = r.old_value;
    }
}
`

const exactAccumHeader = `
@group(0) @binding(1) var<storage, read_write> accum: array<f32>;
`

// segmentPrologue resolves the segment range into uniform values.
const segmentPrologue = `
    let g = wid.x + wid.y * 65535u;
    if (g >= params.segments) {
        return;
    }
    let tid = lid.x;
    if (tid == 0u) {
        var s = 0u;
        if (g > 0u) {
            s = offsets[g - 1u];
        }
        seg_start = s;
        seg_end = offsets[g];
    }
    let start = workgroupUniformLoad(&seg_start);
    let end = workgroupUniformLoad(&seg_end);
    let dim = params.dim;
`

const entry = `
@compute @workgroup_size(64)
fn main(
    @builtin(local_invocation_id) lid: vec3<u32>,
    @builtin(workgroup_id) wid: vec3<u32>
) {`

// exactShader: lanes own elements; each lane walks all members.
const exactShader = commonHeader + exactAccumHeader + entry + segmentPrologue + `
    for (var e = tid; e < dim; e = e + 64u) {
        let gv = grad[g * dim + e];
        for (var m = start; m < end; m = m + 1u) {
            let i = indices[m] * dim + e;
            let p = param[i];
            let eg = gv + params.weight_decay * p;
            let a = accum[i] + eg * eg;
            accum[i] = a;
            param[i] = p + params.lr * eg / (sqrt(a) + params.eps);
        }
    }
}
`

// weightedShader: members in order, lanes over elements, one weight
// gradient reduction per member.
const weightedShader = commonHeader + exactAccumHeader + reduceHelpers + weightedHeader + entry + segmentPrologue + `
    for (var m = start; m < end; m = m + 1u) {
        let base = indices[m] * dim;
        let w = weights[m - start];
        var part = 0.0;
        for (var e = tid; e < dim; e = e + 64u) {
            let i = base + e;
            let p = param[i];
            let in_grad = grad[g * dim + e];
            part = part + in_grad * p;
            let out_grad = w * in_grad + params.weight_decay * p;
            let a = accum[i] + out_grad * out_grad;
            accum[i] = a;
            param[i] = p + params.lr * out_grad / (sqrt(a) + params.eps);
        }
        partial[tid] = part;
        reduce_partial(tid);
        if (tid == 0u) {
            weight_grad[m] = partial[0];
        }
        workgroupBarrier();
    }
}
`

// rowwiseShader: row energy reduction, atomic accumulator add, then the
// element update with the shared step.
const rowwiseShader = commonHeader + rowwiseHeader + reduceHelpers + entry + segmentPrologue + `
    for (var m = start; m < end; m = m + 1u) {
        let row = indices[m];
        let base = row * dim;
        var part = 0.0;
        for (var e = tid; e < dim; e = e + 64u) {
            let eg = grad[g * dim + e] + params.weight_decay * param[base + e];
            part = part + eg * eg;
        }
        partial[tid] = part;
        reduce_partial(tid);
        if (tid == 0u) {
            atomic_add_f32(row, partial[0] / f32(dim));
        }
        storageBarrier();
        workgroupBarrier();

        let step = params.lr / (sqrt(bitcast<f32>(atomicLoad(&accum[row]))) + params.eps);
        for (var e = tid; e < dim; e = e + 64u) {
            let i = base + e;
            let p = param[i];
            let eg = grad[g * dim + e] + params.weight_decay * p;
            param[i] = p + eg * step;
        }
        workgroupBarrier();
    }
}
`

// weightedRowwiseShader: as rowwiseShader with energy scaled by w^2, the
// weighted element update, and a weight gradient per member.
const weightedRowwiseShader = commonHeader + rowwiseHeader + reduceHelpers + weightedHeader + entry + segmentPrologue + `
    for (var m = start; m < end; m = m + 1u) {
        let row = indices[m];
        let base = row * dim;
        let w = weights[m - start];
        var part = 0.0;
        var wpart = 0.0;
        for (var e = tid; e < dim; e = e + 64u) {
            let p = param[base + e];
            let in_grad = grad[g * dim + e];
            let eg = in_grad + params.weight_decay * p;
            part = part + eg * eg;
            wpart = wpart + in_grad * p;
        }
        partial[tid] = part;
        wpartial[tid] = wpart;
        reduce_partial(tid);
        reduce_wpartial(tid);
        if (tid == 0u) {
            atomic_add_f32(row, partial[0] / f32(dim) * w * w);
            weight_grad[m] = wpartial[0];
        }
        storageBarrier();
        workgroupBarrier();

        let step = params.lr / (sqrt(bitcast<f32>(atomicLoad(&accum[row]))) + params.eps);
        for (var e = tid; e < dim; e = e + 64u) {
            let i = base + e;
            let p = param[i];
            param[i] = p + (w * grad[g * dim + e] + params.weight_decay * p) * step;
        }
        workgroupBarrier();
    }
}
`

// shaderFor returns the pipeline cache key and WGSL source of a kernel.
func shaderFor(k Kernel) (name, code string) {
	switch k {
	case KernelWeighted:
		return "sparse_adagrad_weighted", weightedShader
	case KernelRowwise:
		return "sparse_adagrad_rowwise", rowwiseShader
	case KernelWeightedRowwise:
		return "sparse_adagrad_weighted_rowwise", weightedRowwiseShader
	default:
		return "sparse_adagrad_exact", exactShader
	}
}
