package webgpu

import (
	"encoding/binary"
	"math"
)

// paramsSize is the byte size of the Params uniform (16-byte aligned).
const paramsSize = 32

func encodeF32(src []float32) []byte {
	out := make([]byte, 4*len(src))
	for i, v := range src {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func decodeF32(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
	}
}

func encodeU32(src []uint32) []byte {
	out := make([]byte, 4*len(src))
	for i, v := range src {
		binary.LittleEndian.PutUint32(out[4*i:], v)
	}
	return out
}

// encodeParams lays out the Params uniform of the shaders.
func encodeParams(r *Request) []byte {
	out := make([]byte, paramsSize)
	//nolint:gosec // G115: sizes are checked against uint32 by the caller
	binary.LittleEndian.PutUint32(out[0:], uint32(len(r.Offsets)))
	//nolint:gosec // G115: see above
	binary.LittleEndian.PutUint32(out[4:], uint32(r.Dim))
	binary.LittleEndian.PutUint32(out[8:], math.Float32bits(r.LR))
	binary.LittleEndian.PutUint32(out[12:], math.Float32bits(r.Epsilon))
	binary.LittleEndian.PutUint32(out[16:], math.Float32bits(r.WeightDecay))
	return out
}

// dispatchSize splits the segment count over x and y so that neither
// exceeds maxDispatch.
func dispatchSize(segments int) (x, y uint32) {
	if segments <= maxDispatch {
		//nolint:gosec // G115: bounded by maxDispatch
		return uint32(segments), 1
	}
	//nolint:gosec // G115: bounded by maxDispatch
	return maxDispatch, uint32((segments + maxDispatch - 1) / maxDispatch)
}
