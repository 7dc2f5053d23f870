package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashing_Encode(t *testing.T) {
	tok, err := NewHashing(1 << 20)
	require.NoError(t, err)

	ids, err := tok.Encode("The cat, the CAT; the hat!")
	require.NoError(t, err)
	require.Len(t, ids, 6)

	// Case-insensitive and punctuation-free.
	assert.Equal(t, ids[0], ids[2])
	assert.Equal(t, ids[1], ids[3])
	assert.NotEqual(t, ids[3], ids[5])
	for _, id := range ids {
		assert.GreaterOrEqual(t, id, int32(0))
		assert.Less(t, id, int32(1<<20))
	}

	empty, err := tok.Encode("  ,;  ")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestNew(t *testing.T) {
	tok, err := New(HashEncoding, 16)
	require.NoError(t, err)
	assert.Equal(t, "hash", tok.Name())
	assert.Equal(t, 16, tok.VocabSize())

	_, err = New(HashEncoding, 0)
	assert.ErrorIs(t, err, ErrInvalidVocab)
}
