// Package field turns raw column values into token sequences and vocabulary
// indices for the matching pipeline.
package field

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fractalmind-ai/matchvec/internal/vectors"
	"github.com/fractalmind-ai/matchvec/internal/vocab"
)

var (
	// ErrVocabNotBuilt is returned when numericalizing before BuildVocab.
	ErrVocabNotBuilt = errors.New("vocabulary has not been built")
	// ErrNoResolver is returned when vectors are requested but the field has no resolver.
	ErrNoResolver = errors.New("field has no vector resolver")
)

// Config is the text-processing configuration of a field.
type Config struct {
	Sequential bool
	Lower      bool
	InitToken  string
	EOSToken   string
	UnkToken   string
	PadToken   string
	FixLength  int
	// Tokenizer is a tokenizer id understood by NewTokenizer.
	Tokenizer     string
	Preprocessing func(tokens []string) []string
}

// DefaultConfig returns a sequential, case-preserving field using the moses tokenizer.
func DefaultConfig() Config {
	return Config{
		Sequential: true,
		UnkToken:   "<unk>",
		PadToken:   "<pad>",
		Tokenizer:  TokenizerMoses,
	}
}

// VectorResolver turns vector refs into loaded vector sets.
type VectorResolver interface {
	Resolve(ctx context.Context, cacheDir string, refs ...vectors.Ref) ([]vectors.Vectors, error)
}

// Column is one data column: a token sequence per example.
type Column [][]string

// VocabOptions configures BuildVocab.
type VocabOptions struct {
	Vectors  []vectors.Ref
	CacheDir string
	MaxSize  int
	MinFreq  int
}

// Encoded is a numericalized batch. Identifier fields fill Passthrough with
// their input; all other fields fill IDs.
type Encoded struct {
	IDs         [][]int
	Passthrough [][]string
}

type encodeFunc func(f *Field, batch [][]string) (Encoded, error)

// Field holds the configuration, tokenizer and vocabulary of one column.
type Field struct {
	cfg       Config
	tokenizer Tokenizer
	resolver  VectorResolver
	encode    encodeFunc
	isID      bool
	caser     cases.Caser
	vocab     *vocab.Vocab
}

// Option customizes a Field.
type Option func(*Field)

// WithResolver sets the resolver BuildVocab uses for vector refs.
func WithResolver(r VectorResolver) Option {
	return func(f *Field) {
		f.resolver = r
	}
}

// WithTokenizer overrides the tokenizer selected by Config.Tokenizer.
func WithTokenizer(t Tokenizer) Option {
	return func(f *Field) {
		f.tokenizer = t
	}
}

// AsIdentifier marks the field as holding opaque identifiers. Its values are
// passed through Numericalize unchanged and never looked up in a vocabulary.
func AsIdentifier() Option {
	return func(f *Field) {
		f.isID = true
		f.encode = passthrough
	}
}

// New creates a field.
func New(cfg Config, opts ...Option) (*Field, error) {
	f := &Field{
		cfg:    cfg,
		encode: vocabEncode,
		caser:  cases.Lower(language.Und),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.tokenizer == nil {
		tk, err := NewTokenizer(cfg.Tokenizer)
		if err != nil {
			return nil, err
		}
		f.tokenizer = tk
	}
	return f, nil
}

// Config returns the field configuration.
func (f *Field) Config() Config {
	return f.cfg
}

// IsIdentifier reports whether the field passes its values through unencoded.
func (f *Field) IsIdentifier() bool {
	return f.isID
}

// SerializableConfig returns the settings that decide how text is turned
// into tokens, without function-valued entries, so configurations can be
// compared by value.
func (f *Field) SerializableConfig() map[string]any {
	var preprocessing any
	if f.cfg.Preprocessing != nil {
		preprocessing = f.cfg.Preprocessing
	}
	args := map[string]any{
		"sequential":    f.cfg.Sequential,
		"init_token":    f.cfg.InitToken,
		"eos_token":     f.cfg.EOSToken,
		"unk_token":     f.cfg.UnkToken,
		"preprocessing": preprocessing,
		"lower":         f.cfg.Lower,
		"tokenizer_arg": f.cfg.Tokenizer,
	}
	for key, value := range args {
		if value != nil && reflect.TypeOf(value).Kind() == reflect.Func {
			delete(args, key)
		}
	}
	return args
}

// Preprocess tokenizes text, folds case when configured and applies the
// preprocessing hook.
func (f *Field) Preprocess(text string) ([]string, error) {
	tokens := []string{text}
	if f.cfg.Sequential {
		var err error
		tokens, err = f.tokenizer.Tokenize(text)
		if err != nil {
			return nil, fmt.Errorf("failed to tokenize: %w", err)
		}
	}
	if f.cfg.Lower {
		for i, tok := range tokens {
			tokens[i] = f.caser.String(tok)
		}
	}
	if f.cfg.Preprocessing != nil {
		tokens = f.cfg.Preprocessing(tokens)
	}
	return tokens, nil
}

// BuildVocab counts tokens over columns and builds the vocabulary, attaching
// vectors resolved from opts.Vectors. Calling it again replaces the vocabulary.
func (f *Field) BuildVocab(ctx context.Context, opts VocabOptions, columns ...Column) error {
	counter := vocab.Counter{}
	for _, col := range columns {
		for _, example := range col {
			counter.Update(example)
		}
	}

	var sets []vectors.Vectors
	if len(opts.Vectors) > 0 {
		if f.resolver == nil {
			return ErrNoResolver
		}
		cacheDir := opts.CacheDir
		if cacheDir != "" {
			expanded, err := vectors.ExpandUser(cacheDir)
			if err != nil {
				return err
			}
			cacheDir = expanded
		}
		resolved, err := f.resolver.Resolve(ctx, cacheDir, opts.Vectors...)
		if err != nil {
			return err
		}
		sets = resolved
	}

	f.vocab = vocab.Build(counter, vocab.Options{
		Specials: f.specials(),
		UnkToken: f.cfg.UnkToken,
		MaxSize:  opts.MaxSize,
		MinFreq:  opts.MinFreq,
		Vectors:  sets,
	})
	return nil
}

func (f *Field) specials() []string {
	var out []string
	for _, tok := range []string{f.cfg.UnkToken, f.cfg.PadToken, f.cfg.InitToken, f.cfg.EOSToken} {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// Vocab returns the built vocabulary, nil before BuildVocab.
func (f *Field) Vocab() *vocab.Vocab {
	return f.vocab
}

// SetVocab installs a vocabulary built elsewhere, e.g. restored from a store.
func (f *Field) SetVocab(v *vocab.Vocab) {
	f.vocab = v
}

// Pad adds init and eos tokens and pads every example to the longest one, or
// to FixLength when set. It returns the unpadded lengths. Non-sequential
// fields are returned as they are.
func (f *Field) Pad(batch [][]string) ([][]string, []int) {
	lengths := make([]int, len(batch))
	if !f.cfg.Sequential {
		for i, ex := range batch {
			lengths[i] = len(ex)
		}
		return batch, lengths
	}

	extra := 0
	if f.cfg.InitToken != "" {
		extra++
	}
	if f.cfg.EOSToken != "" {
		extra++
	}
	maxLen := f.cfg.FixLength
	if maxLen <= 0 {
		for _, ex := range batch {
			if len(ex) > maxLen {
				maxLen = len(ex)
			}
		}
		maxLen += extra
	}
	keep := maxLen - extra
	if keep < 0 {
		keep = 0
	}

	padded := make([][]string, len(batch))
	for i, ex := range batch {
		if len(ex) > keep {
			ex = ex[:keep]
		}
		row := make([]string, 0, maxLen)
		if f.cfg.InitToken != "" {
			row = append(row, f.cfg.InitToken)
		}
		row = append(row, ex...)
		if f.cfg.EOSToken != "" {
			row = append(row, f.cfg.EOSToken)
		}
		lengths[i] = len(row)
		for len(row) < maxLen {
			row = append(row, f.cfg.PadToken)
		}
		padded[i] = row
	}
	return padded, lengths
}

// Numericalize encodes a batch of token sequences.
func (f *Field) Numericalize(batch [][]string) (Encoded, error) {
	return f.encode(f, batch)
}

// Process pads and then numericalizes a batch.
func (f *Field) Process(batch [][]string) (Encoded, []int, error) {
	padded, lengths := f.Pad(batch)
	enc, err := f.Numericalize(padded)
	if err != nil {
		return Encoded{}, nil, err
	}
	return enc, lengths, nil
}

func passthrough(_ *Field, batch [][]string) (Encoded, error) {
	return Encoded{Passthrough: batch}, nil
}

func vocabEncode(f *Field, batch [][]string) (Encoded, error) {
	if f.vocab == nil {
		return Encoded{}, ErrVocabNotBuilt
	}
	ids := make([][]int, len(batch))
	for i, ex := range batch {
		row := make([]int, len(ex))
		for j, tok := range ex {
			idx, err := f.vocab.Index(tok)
			if err != nil {
				return Encoded{}, err
			}
			row[j] = idx
		}
		ids[i] = row
	}
	return Encoded{IDs: ids}, nil
}
