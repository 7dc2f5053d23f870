package tokenizer

import (
	"errors"
	"strings"
	"unicode"

	"github.com/zeebo/xxh3"
)

// ErrInvalidVocab is returned for a non-positive hashing vocabulary.
var ErrInvalidVocab = errors.New("tokenizer: vocabulary size must be positive")

// Hashing maps each word to xxh3(word) mod vocab. Words are maximal runs of
// letters and digits, lower-cased. It needs no vocabulary files.
type Hashing struct {
	vocab int
}

// NewHashing creates a hashing tokenizer with vocab buckets.
func NewHashing(vocab int) (*Hashing, error) {
	if vocab <= 0 {
		return nil, ErrInvalidVocab
	}
	return &Hashing{vocab: vocab}, nil
}

// Encode converts text to token IDs.
func (h *Hashing) Encode(text string) ([]int32, error) {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	ids := make([]int32, len(words))
	for i, w := range words {
		//nolint:gosec // G115: result is below vocab, which is an int
		ids[i] = int32(xxh3.HashString(strings.ToLower(w)) % uint64(h.vocab))
	}
	return ids, nil
}

// VocabSize returns the number of buckets.
func (h *Hashing) VocabSize() int {
	return h.vocab
}

// Name returns the tokenizer name.
func (h *Hashing) Name() string {
	return HashEncoding
}
