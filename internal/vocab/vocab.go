// Package vocab builds token vocabularies from frequency counts and attaches
// pretrained vectors to them.
package vocab

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fractalmind-ai/matchvec/internal/vectors"
)

// ErrUnknownToken is returned for tokens outside a vocabulary without an unk token.
var ErrUnknownToken = errors.New("token not in vocabulary")

// Counter counts token occurrences.
type Counter map[string]int

// Update adds one occurrence of each token.
func (c Counter) Update(tokens []string) {
	for _, tok := range tokens {
		c[tok]++
	}
}

// Options controls vocabulary construction.
type Options struct {
	// Specials are placed first, in order. The first of them equal to
	// UnkToken becomes the fallback index for unknown tokens.
	Specials []string
	UnkToken string
	// MaxSize caps the number of non-special tokens; zero means no cap.
	MaxSize int
	// MinFreq drops tokens seen fewer times; values below one count as one.
	MinFreq int
	Vectors []vectors.Vectors
}

// Vocab maps tokens to dense indices.
type Vocab struct {
	Freqs Counter

	itos []string
	stoi map[string]int
	unk  int

	dim  int
	rows []float32
}

// Build creates a vocabulary from counter. Non-special tokens are ordered by
// descending frequency, ties broken alphabetically.
func Build(counter Counter, opts Options) *Vocab {
	minFreq := opts.MinFreq
	if minFreq < 1 {
		minFreq = 1
	}

	v := &Vocab{Freqs: counter, stoi: make(map[string]int), unk: -1}
	isSpecial := make(map[string]bool, len(opts.Specials))
	for _, s := range opts.Specials {
		if isSpecial[s] {
			continue
		}
		isSpecial[s] = true
		v.add(s)
	}

	words := make([]string, 0, len(counter))
	for w := range counter {
		if !isSpecial[w] {
			words = append(words, w)
		}
	}
	sort.Slice(words, func(i, j int) bool {
		fi, fj := counter[words[i]], counter[words[j]]
		if fi != fj {
			return fi > fj
		}
		return words[i] < words[j]
	})

	limit := len(words)
	if opts.MaxSize > 0 && opts.MaxSize < limit {
		limit = opts.MaxSize
	}
	for _, w := range words[:limit] {
		if counter[w] < minFreq {
			break
		}
		v.add(w)
	}

	if opts.UnkToken != "" {
		if i, ok := v.stoi[opts.UnkToken]; ok && isSpecial[opts.UnkToken] {
			v.unk = i
		}
	}
	if len(opts.Vectors) > 0 {
		v.SetVectors(opts.Vectors)
	}
	return v
}

// Restore rebuilds a vocabulary from a stored token list. rows holds
// len(itos)*dim values, or nothing when no vectors were attached.
func Restore(itos []string, freqs Counter, unkToken string, dim int, rows []float32) (*Vocab, error) {
	if len(rows) != len(itos)*dim {
		return nil, fmt.Errorf("vector rows have %d values, want %d", len(rows), len(itos)*dim)
	}
	v := &Vocab{Freqs: freqs, stoi: make(map[string]int, len(itos)), unk: -1, dim: dim, rows: rows}
	for _, tok := range itos {
		v.add(tok)
	}
	if i, ok := v.stoi[unkToken]; ok && unkToken != "" {
		v.unk = i
	}
	return v, nil
}

func (v *Vocab) add(tok string) {
	if _, ok := v.stoi[tok]; ok {
		return
	}
	v.stoi[tok] = len(v.itos)
	v.itos = append(v.itos, tok)
}

// Len returns the number of entries, specials included.
func (v *Vocab) Len() int {
	return len(v.itos)
}

// Tokens returns the index to token table.
func (v *Vocab) Tokens() []string {
	return v.itos
}

// Token returns the token at index i.
func (v *Vocab) Token(i int) string {
	return v.itos[i]
}

// UnkIndex returns the fallback index, or -1 when there is none.
func (v *Vocab) UnkIndex() int {
	return v.unk
}

// Index returns the index of tok, falling back to the unk index.
func (v *Vocab) Index(tok string) (int, error) {
	if i, ok := v.stoi[tok]; ok {
		return i, nil
	}
	if v.unk >= 0 {
		return v.unk, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownToken, tok)
}

// SetVectors attaches one row per entry. Each row concatenates the vector of
// the entry from every set in order.
func (v *Vocab) SetVectors(sets []vectors.Vectors) {
	dim := 0
	for _, s := range sets {
		dim += s.Dim()
	}
	rows := make([]float32, len(v.itos)*dim)
	for i, tok := range v.itos {
		start := i * dim
		key := strings.TrimSpace(tok)
		for _, s := range sets {
			copy(rows[start:start+s.Dim()], s.Lookup(key))
			start += s.Dim()
		}
	}
	v.dim = dim
	v.rows = rows
}

// Dim returns the width of the attached vectors, zero when none are attached.
func (v *Vocab) Dim() int {
	return v.dim
}

// Vector returns the attached vector for index i, nil when none are attached.
func (v *Vocab) Vector(i int) []float32 {
	if v.dim == 0 {
		return nil
	}
	return v.rows[i*v.dim : (i+1)*v.dim]
}

// Rows returns all attached vectors as one flat slice.
func (v *Vocab) Rows() []float32 {
	return v.rows
}
