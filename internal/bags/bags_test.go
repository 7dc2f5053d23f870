package bags

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparsegrad/internal/tokenizer"
)

func TestBatch_AddAndSplit(t *testing.T) {
	b := &Batch{}
	b.Add(0)
	b.Add(1, 2)
	b.Add()
	b.Add(3, 4, 5)
	b.PositionalWeights(0.5)

	assert.Equal(t, 4, b.Segments())
	assert.Equal(t, 6, b.Members())
	assert.Equal(t, []float32{1, 0.5, 0.25, 0.125, 0.0625, 0.03125}, b.Weights)
	assert.Equal(t, float32(0.5), b.Weight(1))
	assert.Equal(t, float32(1), (&Batch{}).Weight(3))
	assert.True(t, b.Unique())

	parts := b.Split(3)
	require.Len(t, parts, 2)
	assert.Equal(t, []int64{1, 2, 0}, parts[0].Lengths)
	assert.Equal(t, []int64{0, 1, 2}, parts[0].Indices)
	assert.Equal(t, []int64{3, 4, 5}, parts[1].Indices)
	assert.Equal(t, []float32{1, 0.5, 0.25}, parts[1].Weights)

	assert.Len(t, b.Split(0), 1)
}

func TestBatch_Check(t *testing.T) {
	b := &Batch{}
	b.Add(0, 4)
	assert.NoError(t, b.Check(5))
	assert.ErrorIs(t, b.Check(4), ErrOutOfRange)

	b.Add(4)
	assert.False(t, b.Unique())
}

func TestSynthetic(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	b, err := Synthetic(rng, SyntheticConfig{Rows: 100, Segments: 20, MaxLength: 4, Unique: true, Weighted: true})
	require.NoError(t, err)

	assert.Equal(t, 20, b.Segments())
	var total int64
	for _, l := range b.Lengths {
		assert.LessOrEqual(t, l, int64(4))
		total += l
	}
	assert.Equal(t, int(total), b.Members())
	assert.Len(t, b.Weights, b.Members())
	assert.True(t, b.Unique())
	assert.NoError(t, b.Check(100))

	_, err = Synthetic(rng, SyntheticConfig{Rows: 2, Segments: 10, MaxLength: 10, Unique: true})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = Synthetic(rng, SyntheticConfig{Rows: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseInts(t *testing.T) {
	b, err := ParseInts(strings.NewReader("1 2 3\n# comment\n\n4\n"))
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 0, 1}, b.Lengths)
	assert.Equal(t, []int64{1, 2, 3, 4}, b.Indices)

	_, err = ParseInts(strings.NewReader("1 x\n"))
	assert.ErrorIs(t, err, ErrParse)
}

func TestFromText(t *testing.T) {
	tok, err := tokenizer.NewHashing(1 << 16)
	require.NoError(t, err)

	b, err := FromText(tok, strings.NewReader("red fish blue fish\n\none\n"))
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 0, 1}, b.Lengths)
	assert.Equal(t, b.Indices[1], b.Indices[3])
	assert.NoError(t, b.Check(tok.VocabSize()))
}

// fixedTokenizer returns the same ids for every line.
type fixedTokenizer struct {
	ids   []int32
	vocab int
}

func (f fixedTokenizer) Encode(string) ([]int32, error) { return f.ids, nil }
func (f fixedTokenizer) VocabSize() int                 { return f.vocab }
func (f fixedTokenizer) Name() string                   { return "fixed" }

func TestFromText_IDOutsideVocab(t *testing.T) {
	b, err := FromText(fixedTokenizer{ids: []int32{0, 49}, vocab: 50}, strings.NewReader("a\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 49, 0, 49}, b.Indices)

	_, err = FromText(fixedTokenizer{ids: []int32{3, 50}, vocab: 50}, strings.NewReader("        x\n"))
	assert.ErrorIs(t, err, ErrOutOfRange)
}
