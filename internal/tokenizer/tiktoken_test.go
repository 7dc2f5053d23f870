package tokenizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTikToken skips when the encoding files cannot be fetched.
func newTikToken(t *testing.T, encoding string) *TikToken {
	t.Helper()
	tok, err := NewTikToken(encoding)
	if err != nil {
		t.Skipf("tiktoken encoding %q not available: %v", encoding, err)
	}
	return tok
}

type mapLoader map[string]map[string]int

func (m mapLoader) LoadTiktokenBpe(file string) (map[string]int, error) {
	ranks, ok := m[file]
	if !ok {
		return nil, errors.New("not found")
	}
	return ranks, nil
}

func TestRankLoader(t *testing.T) {
	l := &rankLoader{
		inner: mapLoader{
			"a": {"x": 0, "y": 50279, "z": 7},
		},
		maxRank: -1,
	}

	ranks, err := l.LoadTiktokenBpe("a")
	require.NoError(t, err)
	assert.Len(t, ranks, 3)
	assert.Equal(t, 50279, l.maxRank)

	_, err = l.LoadTiktokenBpe("missing")
	assert.Error(t, err)
	assert.Equal(t, 50279, l.maxRank)
}

func TestTikToken_VocabSize(t *testing.T) {
	tests := []struct {
		encoding string
		vocab    int
	}{
		{"r50k_base", 50256},
		{"p50k_base", 50281},
		{"cl100k_base", 100256},
	}
	for _, tt := range tests {
		t.Run(tt.encoding, func(t *testing.T) {
			tok := newTikToken(t, tt.encoding)
			assert.Equal(t, tt.vocab, tok.VocabSize())
			assert.Equal(t, tt.encoding, tok.Name())

			again := newTikToken(t, tt.encoding)
			assert.Equal(t, tok.VocabSize(), again.VocabSize())
		})
	}

	t.Run("invalid encoding", func(t *testing.T) {
		tok, err := NewTikToken("invalid_encoding_xyz")
		assert.Error(t, err)
		assert.Nil(t, tok)
	})
}

func TestTikToken_WhitespaceRunsInVocab(t *testing.T) {
	for _, encoding := range []string{"p50k_base", "cl100k_base"} {
		t.Run(encoding, func(t *testing.T) {
			tok := newTikToken(t, encoding)
			for _, text := range []string{
				"def f():\n        return 1",
				"\t\t\tindented\n" + "                                ",
				"ends with <|endoftext|>",
				"",
			} {
				ids, err := tok.Encode(text)
				require.NoError(t, err)
				for _, id := range ids {
					assert.GreaterOrEqual(t, id, int32(0))
					assert.Less(t, int(id), tok.VocabSize(), "text %q", text)
				}
			}
		})
	}
}
