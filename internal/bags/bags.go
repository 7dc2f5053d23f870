// Package bags builds ragged batches of embedding bags.
//
// A Batch is the flat form the kernels consume: member row ids laid end to
// end, one length per segment, and optional weights. Weights are addressed by
// a member's position within its bag, so the k-th member of every bag reads
// Weights[k]; the slice still holds one entry per member.
package bags

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"

	"github.com/born-ml/sparsegrad/internal/segment"
	"github.com/born-ml/sparsegrad/internal/tokenizer"
)

// Common errors.
var (
	ErrInvalidConfig = errors.New("bags: invalid configuration")
	ErrOutOfRange    = errors.New("bags: row id out of range")
	ErrParse         = errors.New("bags: parse error")
)

// Batch is a ragged batch of bags.
type Batch struct {
	Indices []int64
	Lengths []int64
	Weights []float32 // nil, or one per member, addressed by position in bag
}

// Segments returns the number of bags.
func (b *Batch) Segments() int {
	return len(b.Lengths)
}

// Members returns the total number of bag members.
func (b *Batch) Members() int {
	return len(b.Indices)
}

// Add appends one bag.
func (b *Batch) Add(ids ...int64) {
	b.Indices = append(b.Indices, ids...)
	b.Lengths = append(b.Lengths, int64(len(ids)))
}

// Unique reports whether no row id appears twice in the batch.
func (b *Batch) Unique() bool {
	return segment.Duplicates(b.Indices) == 0
}

// Check verifies that every row id is in [0, rows).
func (b *Batch) Check(rows int) error {
	for m, id := range b.Indices {
		if id < 0 || id >= int64(rows) {
			return fmt.Errorf("%w: indices[%d] = %d not in [0, %d)", ErrOutOfRange, m, id, rows)
		}
	}
	return nil
}

// PositionalWeights sets Weights[k] = decay^k, so earlier members of a bag
// count more when decay < 1.
func (b *Batch) PositionalWeights(decay float32) {
	b.Weights = make([]float32, len(b.Indices))
	w := float32(1)
	for k := range b.Weights {
		b.Weights[k] = w
		w *= decay
	}
}

// Weight returns the weight read by the member at position pos of a bag, or
// 1 for an unweighted batch.
func (b *Batch) Weight(pos int) float32 {
	if b.Weights == nil {
		return 1
	}
	return b.Weights[pos]
}

// Split cuts the batch into consecutive batches of at most size bags.
func (b *Batch) Split(size int) []*Batch {
	if size <= 0 {
		size = len(b.Lengths)
	}
	var out []*Batch
	var start int64
	for s := 0; s < len(b.Lengths); s += size {
		e := min(s+size, len(b.Lengths))
		var n int64
		for _, l := range b.Lengths[s:e] {
			n += l
		}
		part := &Batch{
			Indices: b.Indices[start : start+n],
			Lengths: b.Lengths[s:e],
		}
		if b.Weights != nil {
			part.Weights = b.Weights[:n]
		}
		out = append(out, part)
		start += n
	}
	return out
}

// SyntheticConfig controls Synthetic.
type SyntheticConfig struct {
	Rows      int  // Row ids are drawn from [0, Rows)
	Segments  int  // Number of bags
	MaxLength int  // Bag lengths are drawn from [0, MaxLength]
	Unique    bool // No row id repeats across the whole batch
	Weighted  bool // Draw per-member weights from [0.5, 1.5)
}

// Synthetic draws a random batch.
func Synthetic(rng *rand.Rand, cfg SyntheticConfig) (*Batch, error) {
	if cfg.Rows <= 0 || cfg.Segments < 0 || cfg.MaxLength < 0 {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidConfig, cfg)
	}

	b := &Batch{Lengths: make([]int64, cfg.Segments)}
	var total int
	for i := range b.Lengths {
		n := rng.Intn(cfg.MaxLength + 1)
		b.Lengths[i] = int64(n)
		total += n
	}

	if cfg.Unique {
		if total > cfg.Rows {
			return nil, fmt.Errorf("%w: %d unique members from %d rows", ErrInvalidConfig, total, cfg.Rows)
		}
		perm := rng.Perm(cfg.Rows)
		b.Indices = make([]int64, total)
		for i := range b.Indices {
			b.Indices[i] = int64(perm[i])
		}
	} else {
		b.Indices = make([]int64, total)
		for i := range b.Indices {
			b.Indices[i] = rng.Int63n(int64(cfg.Rows))
		}
	}

	if cfg.Weighted {
		b.Weights = make([]float32, total)
		for i := range b.Weights {
			b.Weights[i] = 0.5 + rng.Float32()
		}
	}
	return b, nil
}

// ParseInts reads one bag per line of whitespace-separated row ids. Blank
// lines are empty bags; lines starting with '#' are skipped.
func ParseInts(r io.Reader) (*Batch, error) {
	b := &Batch{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		ids := make([]int64, len(fields))
		for i, f := range fields {
			id, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %w", ErrParse, line, err)
			}
			ids[i] = id
		}
		b.Add(ids...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return b, nil
}

// FromText tokenizes each line into one bag. Token ids are row ids, so the
// embedding table needs tok.VocabSize() rows; an id outside that range is
// reported as ErrOutOfRange.
func FromText(tok tokenizer.Tokenizer, r io.Reader) (*Batch, error) {
	b := &Batch{}
	vocab := int64(tok.VocabSize())
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		ids, err := tok.Encode(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("bags: tokenize: %w", err)
		}
		row := make([]int64, len(ids))
		for i, id := range ids {
			if int64(id) < 0 || int64(id) >= vocab {
				return nil, fmt.Errorf("%w: line %d: %s id %d not in [0, %d)", ErrOutOfRange, line, tok.Name(), id, vocab)
			}
			row[i] = int64(id)
		}
		b.Add(row...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return b, nil
}
