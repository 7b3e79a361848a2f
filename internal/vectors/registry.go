package vectors

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory loads a named vector set.
type Factory func(ctx context.Context, l *Loader, cacheDir string) (Vectors, error)

// Registry maps well-known vector-set aliases to their factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the GloVe and fastText wiki aliases.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, dim := range []int{50, 100, 200, 300} {
		r.Register(fmt.Sprintf("glove.6B.%dd", dim), gloVe("6B", "glove.6B.zip", dim))
	}
	r.Register("glove.42B.300d", gloVe("42B", "glove.42B.300d.zip", 300))
	r.Register("glove.840B.300d", gloVe("840B", "glove.840B.300d.zip", 300))
	for _, dim := range []int{25, 50, 100, 200} {
		r.Register(fmt.Sprintf("glove.twitter.27B.%dd", dim), gloVe("twitter.27B", "glove.twitter.27B.zip", dim))
	}
	r.Register("fasttext.en.300d", wikiVec("en"))
	r.Register("fasttext.simple.300d", wikiVec("simple"))
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Lookup returns the factory for name.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, &UnknownNameError{Name: name}
	}
	return f, nil
}

// Names returns the registered aliases in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func gloVe(corpus, archive string, dim int) Factory {
	return func(ctx context.Context, l *Loader, cacheDir string) (Vectors, error) {
		name := fmt.Sprintf("glove.%s.%dd.txt", corpus, dim)
		t, err := l.loadTable(ctx, l.Sources.GloVeBaseURL+archive, cacheDir, name)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// wikiVec serves the uncompressed fastText wiki .vec files, which are
// downloaded as-is.
func wikiVec(language string) Factory {
	return func(ctx context.Context, l *Loader, cacheDir string) (Vectors, error) {
		name := fmt.Sprintf("wiki.%s.vec", language)
		t, err := l.loadTable(ctx, l.Sources.WikiVecBaseURL+name, cacheDir, name)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}
