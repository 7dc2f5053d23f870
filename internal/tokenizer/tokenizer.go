package tokenizer

// HashEncoding names the hashing tokenizer in New.
const HashEncoding = "hash"

// Tokenizer converts text to token ids in [0, VocabSize()).
type Tokenizer interface {
	// Encode converts text to token IDs.
	Encode(text string) ([]int32, error)

	// VocabSize returns the total vocabulary size.
	VocabSize() int

	// Name returns the tokenizer name.
	Name() string
}

// New returns the hashing tokenizer with vocab buckets for HashEncoding and
// a tiktoken encoding otherwise.
func New(encoding string, vocab int) (Tokenizer, error) {
	if encoding == HashEncoding {
		return NewHashing(vocab)
	}
	return NewTikToken(encoding)
}
