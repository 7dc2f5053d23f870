package parallel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLaneGroupWidth(t *testing.T) {
	w := LaneGroupWidth()
	assert.Contains(t, []int{4, 8, 16}, w)
	assert.Equal(t, 64*w, DefaultLaneBudget())
}

func TestLanes_ReduceSum(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8, 13, 64, 100} {
		l := NewLanes(n)
		var want float32
		for i := range n {
			l.Shared()[i] = float32(i + 1)
			want += float32(i + 1)
		}
		assert.Equal(t, want, l.ReduceSum(n), "n=%d", n)
	}
}

func TestLanes_ReduceGroups(t *testing.T) {
	l := NewLanes(12)
	for i := range 12 {
		l.Shared()[i] = float32(i)
	}

	// Three groups of 3 plus a short tail of 3 within n=12, size=3.
	l.ReduceGroups(12, 3)

	s := l.Shared()
	assert.Equal(t, float32(0+1+2), s[0])
	assert.Equal(t, float32(3+4+5), s[3])
	assert.Equal(t, float32(6+7+8), s[6])
	assert.Equal(t, float32(9+10+11), s[9])
}

func TestLanes_Reset(t *testing.T) {
	l := NewLanes(4)
	for i := range 4 {
		l.Shared()[i] = 1
	}
	l.Reset(2)
	assert.Equal(t, []float32{0, 0, 1, 1}, l.Shared())

	assert.Len(t, NewLanes(0).Shared(), 1)
}
