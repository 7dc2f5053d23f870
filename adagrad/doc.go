// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package adagrad provides a fused sparse Adagrad update for bag embeddings.
//
// # Overview
//
// A batch is a ragged list of bags (segments). Each bag has one aggregate
// gradient row and references a variable number of rows of an embedding
// table. One Update call applies the bag gradient to every referenced row
// and updates the Adagrad accumulator in place, without materializing a
// per-row gradient.
//
// Four variants are available:
//   - exact: one accumulator element per parameter element
//   - weighted: each member scales the bag gradient by its own weight and
//     receives d loss / d weight
//   - row-wise (Config.Rowwise): one accumulator scalar per row
//   - weighted row-wise: both
//
// # Basic Usage
//
//	import "github.com/born-ml/sparsegrad/adagrad"
//
//	func main() {
//	    op, err := adagrad.New[float32, int64](adagrad.Config{Epsilon: 1e-5})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    param := adagrad.NewTable[float32](vocab, dim)
//	    accum := adagrad.NewTable[float32](vocab, dim)
//	    err = op.Update(ctx, adagrad.Inputs[float32, int64]{
//	        Param:   param,
//	        Accum:   accum,
//	        Indices: []int64{0, 1, 2},
//	        Lengths: []int64{1, 2},
//	        Grad:    grad, // [2, dim]
//	        LR:      []float32{0.1},
//	    })
//	}
//
// # Concurrency
//
// Bags are processed in parallel. When the same row appears in more than one
// member of a batch, element writes to that row race and the result only
// approximates a sequential update; set Config.StrictUnique to reject such
// batches instead.
package adagrad
