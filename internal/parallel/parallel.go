// Package parallel provides the execution model for the sparse Adagrad kernels.
//
// Work is split into independent execution units (one per segment) that are
// scheduled onto a bounded set of worker goroutines. Inside a unit, work is
// spread over lanes that advance in lockstep phases; see Lanes.
package parallel

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64, // Typical cache line aware chunk.
	}
}

// Sequential returns a Config that runs everything on the calling goroutine.
func Sequential() Config {
	return Config{Enabled: false, NumWorkers: 1, MinChunkSize: 1}
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || n < cfg.MinChunkSize || cfg.NumWorkers <= 1 {
		// Sequential fallback.
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForChunks splits [0, n) into at most NumWorkers contiguous chunks of at
// least MinChunkSize items and calls f(chunk, start, end) for each. It returns
// the number of chunks.
func ForChunks(n int, f func(chunk, start, end int), cfg Config) int {
	if n == 0 {
		return 0
	}
	chunkSize := n
	if cfg.Enabled && cfg.NumWorkers > 1 && n >= cfg.MinChunkSize {
		chunkSize = max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)
	}
	chunks := (n + chunkSize - 1) / chunkSize
	For(chunks, func(c int) {
		start := c * chunkSize
		f(c, start, min(start+chunkSize, n))
	}, Config{Enabled: chunks > 1, NumWorkers: chunks, MinChunkSize: 1})
	return chunks
}

// Unit is the body of one execution unit.
type Unit func(ctx context.Context, unit int) error

// PanicError reports a panic raised inside an execution unit.
type PanicError struct {
	Unit  int
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("parallel: unit %d panicked: %v", e.Unit, e.Value)
}

// Launch runs fn once for every unit in [0, n) and waits for all of them.
//
// Units are handed out dynamically to NumWorkers goroutines; there is no
// ordering guarantee between units. The first error (or recovered panic)
// cancels the context passed to the remaining units and is returned once
// every worker has stopped. A zero n launches nothing.
func Launch(ctx context.Context, n int, fn Unit, cfg Config) error {
	if n <= 0 {
		return nil
	}

	workers := 1
	if cfg.Enabled && cfg.NumWorkers > 1 {
		workers = min(cfg.NumWorkers, n)
	}

	if workers == 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := runUnit(ctx, fn, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	var next atomic.Int64
	for range workers {
		g.Go(func() error {
			for {
				i := int(next.Add(1) - 1)
				if i >= n {
					return nil
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := runUnit(gctx, fn, i); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}

func runUnit(ctx context.Context, fn Unit, i int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Unit: i, Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx, i)
}
