package dtype

import (
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/x448/float16"
)

// littleEndian reports the byte order of the host.
var littleEndian = func() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// AtomicAdd adds delta to *p atomically and returns the new value widened to float32.
func AtomicAdd[T Float](p *T, delta float32) float32 {
	switch q := any(p).(type) {
	case *float32:
		return AtomicAddF32(q, delta)
	case *float16.Float16:
		return AtomicAddF16(q, delta)
	}
	panic("unsupported element type")
}

// AtomicLoad reads *p atomically and widens it to float32.
func AtomicLoad[T Float](p *T) float32 {
	switch q := any(p).(type) {
	case *float32:
		return math.Float32frombits(atomic.LoadUint32((*uint32)(unsafe.Pointer(q))))
	case *float16.Float16:
		word, shift := halfWord(q)
		return float16.Frombits(uint16(atomic.LoadUint32(word) >> shift)).Float32()
	}
	panic("unsupported element type")
}

// AtomicAddF32 adds delta to *p with a compare-and-swap retry loop.
func AtomicAddF32(p *float32, delta float32) float32 {
	addr := (*uint32)(unsafe.Pointer(p))
	for {
		old := atomic.LoadUint32(addr)
		next := math.Float32frombits(old) + delta
		if atomic.CompareAndSwapUint32(addr, old, math.Float32bits(next)) {
			return next
		}
	}
}

// AtomicAddF16 adds delta to the binary16 value at p.
//
// There is no 16-bit atomic in sync/atomic, so the update is a
// compare-and-swap loop on the aligned 32-bit word that contains *p. The
// neighbouring half of the word is written back unchanged. The sum is formed
// in float32 and rounded once to binary16.
func AtomicAddF16(p *float16.Float16, delta float32) float32 {
	word, shift := halfWord(p)
	mask := uint32(0xFFFF) << shift
	for {
		old := atomic.LoadUint32(word)
		cur := float16.Frombits(uint16(old >> shift))
		next := float16.Fromfloat32(cur.Float32() + delta)
		updated := (old &^ mask) | uint32(next.Bits())<<shift
		if atomic.CompareAndSwapUint32(word, old, updated) {
			return next.Float32()
		}
	}
}

// halfWord returns the aligned 32-bit word holding p and the bit shift of p within it.
func halfWord(p *float16.Float16) (*uint32, uint32) {
	//nolint:gosec // G103: aligned word access for the narrow atomic
	word := (*uint32)(unsafe.Pointer(uintptr(unsafe.Pointer(p)) &^ 3))
	upper := uintptr(unsafe.Pointer(p))&2 != 0
	if upper == littleEndian {
		return word, 16
	}
	return word, 0
}
