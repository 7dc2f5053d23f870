package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaunch_RunsEveryUnitOnce(t *testing.T) {
	for _, cfg := range []Config{DefaultConfig(), Sequential(), {Enabled: true, NumWorkers: 3}} {
		const n = 257
		hits := make([]int32, n)

		err := Launch(context.Background(), n, func(_ context.Context, i int) error {
			atomic.AddInt32(&hits[i], 1)
			return nil
		}, cfg)
		require.NoError(t, err)

		for i, h := range hits {
			assert.Equal(t, int32(1), h, "unit %d", i)
		}
	}
}

func TestLaunch_ZeroUnits(t *testing.T) {
	called := false
	err := Launch(context.Background(), 0, func(context.Context, int) error {
		called = true
		return nil
	}, DefaultConfig())

	require.NoError(t, err)
	assert.False(t, called)
}

func TestLaunch_FirstErrorAborts(t *testing.T) {
	sentinel := errors.New("boom")
	var ran atomic.Int64

	err := Launch(context.Background(), 10000, func(ctx context.Context, i int) error {
		ran.Add(1)
		if i == 3 {
			return sentinel
		}
		return ctx.Err()
	}, Config{Enabled: true, NumWorkers: 4})

	require.ErrorIs(t, err, sentinel)
	assert.Less(t, ran.Load(), int64(10000))
}

func TestLaunch_RecoversPanic(t *testing.T) {
	err := Launch(context.Background(), 8, func(_ context.Context, i int) error {
		if i == 5 {
			panic("index out of range")
		}
		return nil
	}, Sequential())

	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 5, pe.Unit)
	assert.Equal(t, "index out of range", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestLaunch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Launch(ctx, 4, func(context.Context, int) error { return nil }, Sequential())
	require.ErrorIs(t, err, context.Canceled)
}

func TestForChunks(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 10}
	seen := make([]int32, 95)

	chunks := ForChunks(len(seen), func(_, start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	}, cfg)

	assert.Equal(t, 4, chunks)
	for i, v := range seen {
		assert.Equal(t, int32(1), v, "item %d", i)
	}
	assert.Equal(t, 0, ForChunks(0, func(int, int, int) {}, cfg))
	assert.Equal(t, 1, ForChunks(5, func(int, int, int) {}, cfg))
}

func BenchmarkLaunch(b *testing.B) {
	const units = 4096
	sink := make([]float32, units)

	b.Run("parallel", func(b *testing.B) {
		cfg := DefaultConfig()
		for i := 0; i < b.N; i++ {
			_ = Launch(context.Background(), units, func(_ context.Context, u int) error {
				sink[u]++
				return nil
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = Launch(context.Background(), units, func(_ context.Context, u int) error {
				sink[u]++
				return nil
			}, Sequential())
		}
	})
}

func TestLaunch_CancelStopsRemainingUnits(t *testing.T) {
	const n = 1000
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ran atomic.Int64
	err := Launch(ctx, n, func(ctx context.Context, i int) error {
		ran.Add(1)
		if i == 3 {
			cancel()
		}
		return ctx.Err()
	}, Config{Enabled: true, NumWorkers: 4})

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, ran.Load(), int64(n))
}
