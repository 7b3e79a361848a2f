package vectors

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fractalmind-ai/matchvec/internal/fasttext"
)

const (
	DefaultTextBaseURL     = "https://s3-us-west-1.amazonaws.com/fasttext-vectors/"
	DefaultBinaryBaseURL   = "https://s3-us-west-1.amazonaws.com/fasttext-vectors/"
	DefaultGloVeBaseURL    = "http://nlp.stanford.edu/data/"
	DefaultWikiVecBaseURL  = "https://dl.fbaipublicfiles.com/fasttext/vectors-wiki/"
	DefaultSubwordMemoSize = 100000

	// probeToken is looked up once at load time to learn a binary model's dimension.
	probeToken = "a"
)

// Sources holds the base URLs vector sets are downloaded from.
type Sources struct {
	TextBaseURL    string
	BinaryBaseURL  string
	GloVeBaseURL   string
	WikiVecBaseURL string
}

// DefaultSources returns the public download locations.
func DefaultSources() Sources {
	return Sources{
		TextBaseURL:    DefaultTextBaseURL,
		BinaryBaseURL:  DefaultBinaryBaseURL,
		GloVeBaseURL:   DefaultGloVeBaseURL,
		WikiVecBaseURL: DefaultWikiVecBaseURL,
	}
}

// SubwordModel is a binary model able to synthesize vectors for any token.
type SubwordModel interface {
	Dim() int
	GetWordVector(word string) []float32
}

// ModelLoader opens a binary subword model from a local path.
type ModelLoader func(path string) (SubwordModel, error)

// Loader materializes and parses vector sets.
type Loader struct {
	Sources      Sources
	Materializer *Materializer
	Registry     *Registry
	// LoadModel defaults to the fastText binary reader.
	LoadModel ModelLoader
	// SubwordMemoSize bounds the per-model memo of computed vectors.
	SubwordMemoSize int
}

// NewLoader returns a loader with the default sources and alias registry.
func NewLoader(m *Materializer) *Loader {
	if m == nil {
		m = &Materializer{}
	}
	return &Loader{
		Sources:      DefaultSources(),
		Materializer: m,
		Registry:     DefaultRegistry(),
	}
}

// LoadText materializes and parses a fastText text vector file. suffix is the
// file name under the text base URL; an archive extension other than .vec is
// dropped to get the on-disk name.
func (l *Loader) LoadText(ctx context.Context, suffix, cacheDir string) (*Table, error) {
	return l.loadTable(ctx, l.Sources.TextBaseURL+suffix, cacheDir, textFileName(suffix))
}

func textFileName(suffix string) string {
	ext := filepath.Ext(suffix)
	if ext == ".vec" {
		return suffix
	}
	return strings.TrimSuffix(suffix, ext)
}

func (l *Loader) loadTable(ctx context.Context, rawURL, cacheDir, name string) (*Table, error) {
	path, err := l.Materializer.Ensure(ctx, rawURL, cacheDir, name)
	if err != nil {
		return nil, err
	}
	l.Materializer.logf("vectors: loading %s", path)
	return LoadTextFile(path)
}

// LoadBinary materializes and loads the fastText wiki binary model for language.
func (l *Loader) LoadBinary(ctx context.Context, language, cacheDir string) (*Subword, error) {
	rawURL := fmt.Sprintf("%swiki.%s.zip", l.Sources.BinaryBaseURL, language)
	name := fmt.Sprintf("wiki.%s.bin", language)
	path, err := l.Materializer.Ensure(ctx, rawURL, cacheDir, name)
	if err != nil {
		return nil, err
	}
	l.Materializer.logf("vectors: loading model %s", path)

	load := l.LoadModel
	if load == nil {
		load = loadFastTextModel
	}
	model, err := load(path)
	if err != nil {
		return nil, err
	}
	return NewSubword(model, l.SubwordMemoSize)
}

func loadFastTextModel(path string) (SubwordModel, error) {
	m, err := fasttext.LoadModel(path)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Subword serves vectors from a binary subword model. Unlike a Table it
// returns a vector for any token, composed from character n-grams when the
// token was not seen in training.
type Subword struct {
	model SubwordModel
	dim   int
	memo  *lru.Cache[string, []float32]
}

// NewSubword wraps model and probes its dimension once.
func NewSubword(model SubwordModel, memoSize int) (*Subword, error) {
	if memoSize <= 0 {
		memoSize = DefaultSubwordMemoSize
	}
	memo, err := lru.New[string, []float32](memoSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector memo: %w", err)
	}
	dim := len(model.GetWordVector(probeToken))
	if dim <= 0 {
		return nil, fmt.Errorf("model returned an empty vector for %q", probeToken)
	}
	return &Subword{model: model, dim: dim, memo: memo}, nil
}

// Dim returns the vector dimension.
func (s *Subword) Dim() int {
	return s.dim
}

// Lookup returns the model vector for token.
func (s *Subword) Lookup(token string) []float32 {
	if v, ok := s.memo.Get(token); ok {
		return v
	}
	v := s.model.GetWordVector(token)
	s.memo.Add(token, v)
	return v
}
