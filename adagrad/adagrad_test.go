// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package adagrad_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparsegrad/adagrad"
)

func TestNew(t *testing.T) {
	_, err := adagrad.New[float32, int64](adagrad.Config{Decay: 0.5})
	assert.ErrorIs(t, err, adagrad.ErrUnsupportedDecay)

	op, err := adagrad.New[float32, int64](adagrad.Config{Rowwise: true})
	require.NoError(t, err)

	param, err := adagrad.TableFrom([]float32{1, 1, 1, 1}, 2, 2)
	require.NoError(t, err)
	accum := adagrad.NewTable[float32](2, 1)

	wg, err := op.UpdateWeighted(context.Background(), adagrad.WeightedInputs[float32, int64]{
		Inputs: adagrad.Inputs[float32, int64]{
			Param:   param,
			Accum:   accum,
			Indices: []int64{1},
			Grad:    adagrad.Table[float32]{Data: []float32{2, 2}, Rows: 1, Cols: 2},
			LR:      []float32{0.1},
			Lengths: []int64{1},
		},
		Weights: []float32{0.5},
	})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, wg[0], 1e-6)
	assert.InDelta(t, 4.0*0.25, accum.Data[1], 1e-6)
	assert.Equal(t, []float32{1, 1}, param.Row(0))

	_, err = adagrad.TableFrom([]float32{1}, 2, 2)
	assert.ErrorIs(t, err, adagrad.ErrShapeMismatch)
}
