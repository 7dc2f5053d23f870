//go:build !windows

package webgpu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Unavailable(t *testing.T) {
	backend, err := New()
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Nil(t, backend)

	var b Backend
	assert.ErrorIs(t, b.SparseAdagrad(context.Background(), validRequest()), ErrUnavailable)
}
