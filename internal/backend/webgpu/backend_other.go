//go:build !windows

package webgpu

import "context"

// Backend is unavailable on this platform; New always fails.
type Backend struct{}

// New reports ErrUnavailable.
func New() (*Backend, error) {
	return nil, ErrUnavailable
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "webgpu (unavailable)"
}

// SparseAdagrad reports ErrUnavailable.
func (b *Backend) SparseAdagrad(_ context.Context, _ *Request) error {
	return ErrUnavailable
}

// Release is a no-op.
func (b *Backend) Release() {}
