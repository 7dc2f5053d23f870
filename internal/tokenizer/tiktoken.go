package tokenizer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TikToken is a BPE tokenizer backed by pkoukk/tiktoken-go. Encoding files
// are fetched (and cached) by tiktoken-go on first use.
//
// Special tokens are never produced: text such as "<|endoftext|>" is encoded
// as ordinary bytes. Every id is therefore a mergeable rank, and VocabSize is
// one past the largest rank of the encoding.
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
	vocab    int
}

// rankLoader records the largest rank of the last BPE file it loaded.
// tiktoken-go keeps the ranks private, so this is the only place to see them.
type rankLoader struct {
	inner   tiktoken.BpeLoader
	maxRank int
}

func (l *rankLoader) LoadTiktokenBpe(file string) (map[string]int, error) {
	ranks, err := l.inner.LoadTiktokenBpe(file)
	if err != nil {
		return nil, err
	}
	for _, r := range ranks {
		l.maxRank = max(l.maxRank, r)
	}
	return ranks, nil
}

var (
	loaderOnce sync.Once
	loader     = &rankLoader{inner: tiktoken.NewDefaultBpeLoader(), maxRank: -1}

	// vocabMu serializes encoding loads so loader.maxRank belongs to the
	// encoding being loaded; vocabs caches sizes because tiktoken-go loads
	// each encoding only once per process.
	vocabMu sync.Mutex
	vocabs  = map[string]int{}
)

// NewTikToken loads a tiktoken encoding such as "cl100k_base", "p50k_base",
// "r50k_base" or "o200k_base".
func NewTikToken(encodingName string) (*TikToken, error) {
	loaderOnce.Do(func() { tiktoken.SetBpeLoader(loader) })

	vocabMu.Lock()
	defer vocabMu.Unlock()

	loader.maxRank = -1
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}
	vocab, ok := vocabs[encodingName]
	if !ok {
		if loader.maxRank < 0 {
			return nil, fmt.Errorf("tiktoken encoding %q: %w", encodingName, errNoRanks)
		}
		vocab = loader.maxRank + 1
		vocabs[encodingName] = vocab
	}

	return &TikToken{encoding: encoding, name: encodingName, vocab: vocab}, nil
}

var errNoRanks = errors.New("encoding loaded without ranks")

// Encode converts text to token IDs in [0, VocabSize()).
func (t *TikToken) Encode(text string) ([]int32, error) {
	tokens := t.encoding.EncodeOrdinary(text)
	result := make([]int32, len(tokens))
	for i, tok := range tokens {
		if tok < 0 || tok >= t.vocab {
			return nil, fmt.Errorf("tokenizer: %s produced id %d outside [0, %d)", t.name, tok, t.vocab)
		}
		result[i] = int32(tok) //nolint:gosec // G115: checked against vocab above
	}
	return result, nil
}

// VocabSize returns the number of ids Encode can produce.
func (t *TikToken) VocabSize() int {
	return t.vocab
}

// Name returns the tokenizer name.
func (t *TikToken) Name() string {
	return t.name
}
