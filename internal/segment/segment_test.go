package segment

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparsegrad/internal/parallel"
)

func checkOffsets[I int32 | int64](t *testing.T, lengths []I, offsets []int64) {
	t.Helper()
	require.Len(t, offsets, len(lengths))

	var prev, total int64
	for i, l := range lengths {
		total += int64(l)
		assert.GreaterOrEqual(t, offsets[i], prev, "offsets must be non-decreasing at %d", i)
		assert.Equal(t, int64(l), offsets[i]-prev, "length mismatch at %d", i)
		prev = offsets[i]
	}
	if len(lengths) > 0 {
		assert.Equal(t, total, offsets[len(offsets)-1])
	}
}

func TestOffsets_Example(t *testing.T) {
	offsets := Offsets([]int32{1, 2}, parallel.DefaultConfig())
	assert.Equal(t, []int64{1, 3}, offsets)

	p := NewPlan(offsets)
	start, end := p.Range(0)
	assert.Equal(t, [2]int64{0, 1}, [2]int64{start, end})
	start, end = p.Range(1)
	assert.Equal(t, [2]int64{1, 3}, [2]int64{start, end})
	assert.Equal(t, int64(3), p.Total())
	assert.Equal(t, "Plan{segments=2, members=3}", p.String())
}

func TestOffsets_Empty(t *testing.T) {
	offsets := Offsets([]int64{}, parallel.DefaultConfig())
	assert.Empty(t, offsets)

	p := Build([]int32(nil), parallel.DefaultConfig())
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, int64(0), p.Total())
}

func TestOffsets_ZeroLengths(t *testing.T) {
	lengths := []int32{0, 0, 3, 0, 1, 0}
	offsets := Offsets(lengths, parallel.Sequential())
	assert.Equal(t, []int64{0, 0, 3, 3, 4, 4}, offsets)
}

func TestOffsets_ParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cfgs := []parallel.Config{
		parallel.Sequential(),
		parallel.DefaultConfig(),
		{Enabled: true, NumWorkers: 7, MinChunkSize: 3},
	}

	for _, n := range []int{1, 2, 63, 64, 1000, 4097} {
		lengths := make([]int64, n)
		for i := range lengths {
			lengths[i] = int64(rng.Intn(9))
		}
		want := Offsets(lengths, parallel.Sequential())
		for _, cfg := range cfgs {
			got := Offsets(lengths, cfg)
			checkOffsets(t, lengths, got)
			assert.Equal(t, want, got, "n=%d cfg=%+v", n, cfg)
		}
	}
}

func TestDuplicates(t *testing.T) {
	assert.Equal(t, 0, Duplicates([]int32{0, 1, 2, 5}))
	assert.Equal(t, 1, Duplicates([]int32{0, 1, 1}))
	assert.Equal(t, 2, Duplicates([]int64{4, 4, 4, 1}))
	assert.Equal(t, 0, Duplicates([]int64{}))
	assert.Equal(t, 1, Duplicates([]int64{1 << 40, 1 << 40}))
	assert.Equal(t, 0, Duplicates([]int32{-1, -1}))
}

func TestTouched(t *testing.T) {
	rows := Touched([]int32{3, 1, 3, 7})
	assert.Equal(t, uint64(3), rows.GetCardinality())
	assert.True(t, rows.Contains(7))
	assert.False(t, rows.Contains(2))
}
