package field

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

const (
	TokenizerMoses      = "moses"
	TokenizerWhitespace = "whitespace"
	// TokenizerHFPrefix selects a HuggingFace tokenizer.json, e.g. "hf:/models/tokenizer.json".
	TokenizerHFPrefix = "hf:"
)

// Tokenizer splits text into tokens.
type Tokenizer interface {
	Tokenize(text string) ([]string, error)
}

// NewTokenizer returns the tokenizer named by id. An empty id selects moses.
func NewTokenizer(id string) (Tokenizer, error) {
	switch {
	case id == "" || id == TokenizerMoses:
		return MosesTokenizer{}, nil
	case id == TokenizerWhitespace:
		return WhitespaceTokenizer{}, nil
	case strings.HasPrefix(id, TokenizerHFPrefix):
		return NewHFTokenizer(strings.TrimPrefix(id, TokenizerHFPrefix))
	}
	return nil, fmt.Errorf("unknown tokenizer %q", id)
}

// WhitespaceTokenizer splits on runs of whitespace.
type WhitespaceTokenizer struct{}

func (WhitespaceTokenizer) Tokenize(text string) ([]string, error) {
	return strings.Fields(text), nil
}

// Words keep inner apostrophes, hyphens, dots and commas between
// alphanumerics ("don't", "e-mail", "3.5", "1,000"); any other symbol is its
// own token.
var mosesTokenRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’\-.,][\p{L}\p{N}]+)*|[^\p{L}\p{N}\s]`)

// MosesTokenizer is a word tokenizer that separates punctuation from words
// the way the Moses tokenizer does for Latin-script text.
type MosesTokenizer struct{}

func (MosesTokenizer) Tokenize(text string) ([]string, error) {
	return mosesTokenRe.FindAllString(text, -1), nil
}

// HFTokenizer wraps a HuggingFace-compatible tokenizer.json.
type HFTokenizer struct {
	inner *tokenizer.Tokenizer
}

// NewHFTokenizer loads a tokenizer.json file using the pure-Go tokenizer.
func NewHFTokenizer(path string) (*HFTokenizer, error) {
	if path == "" {
		return nil, fmt.Errorf("tokenizer path is required")
	}
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	return &HFTokenizer{inner: tk}, nil
}

// Tokenize returns the subword tokens of text without special tokens.
func (t *HFTokenizer) Tokenize(text string) ([]string, error) {
	if t == nil || t.inner == nil {
		return nil, fmt.Errorf("tokenizer is not initialized")
	}
	encoding, err := t.inner.EncodeSingle(text, false)
	if err != nil {
		return nil, err
	}
	return encoding.Tokens, nil
}
