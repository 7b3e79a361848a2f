package vectors

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		name string
		want Descriptor
	}{
		{"fasttext.en.bin", BinaryFastText{Language: "en"}},
		{"fasttext.de.bin", BinaryFastText{Language: "de"}},
		{"fasttext.wiki.vec", TextFastText{Suffix: WikiNewsSuffix}},
		{"fasttext.crawl.vec", TextFastText{Suffix: CrawlSuffix}},
		{"fasttext.news.vec", Alias{Name: "fasttext.news.vec"}},
		{"fasttext.en.300d", Alias{Name: "fasttext.en.300d"}},
		{"fasttext.en", Alias{Name: "fasttext.en"}},
		{"fasttext.en.bin.gz", Alias{Name: "fasttext.en.bin.gz"}},
		{"fasttext..bin", Alias{Name: "fasttext..bin"}},
		{"glove.6B.300d", Alias{Name: "glove.6B.300d"}},
		{"", Alias{Name: ""}},
	}
	for _, tt := range tests {
		if got := ParseName(tt.name); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("ParseName(%q) = %#v, want %#v", tt.name, got, tt.want)
		}
	}
}

func TestTextFileName(t *testing.T) {
	if got := textFileName("wiki-news-300d-1M.vec.zip"); got != "wiki-news-300d-1M.vec" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := textFileName("wiki-news-300d-1M.vec"); got != "wiki-news-300d-1M.vec" {
		t.Fatalf("unexpected name %q", got)
	}
}

func TestResolveTextVectorsIntoEmptyCacheDir(t *testing.T) {
	server, hits := fileServer(t, map[string][]byte{
		WikiNewsSuffix: zipBytes(t, map[string]string{"wiki-news-300d-1M.vec": wikiVecFixture}),
	})
	dir := filepath.Join(t.TempDir(), "vector_cache")
	cache := NewCache(testLoader(server.URL), "")

	got, err := cache.Resolve(context.Background(), dir, Named("fasttext.wiki.vec"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 1 || got[0].Dim() != 3 {
		t.Fatalf("unexpected vectors %v", got)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected cache dir to be created: %v", err)
	}
	if _, ok := cache.Get("fasttext.wiki.vec"); !ok {
		t.Fatal("expected name to be cached")
	}
	if names := cache.Names(); len(names) != 1 || names[0] != "fasttext.wiki.vec" {
		t.Fatalf("unexpected cached names %v", names)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one download, got %d", hits.Load())
	}
}

func TestResolveTwiceReturnsSameObjectWithoutIO(t *testing.T) {
	server, hits := fileServer(t, map[string][]byte{
		CrawlSuffix: zipBytes(t, map[string]string{"crawl-300d-2M.vec": wikiVecFixture}),
	})
	dir := filepath.Join(t.TempDir(), "cache")
	cache := NewCache(testLoader(server.URL), dir)

	first, err := cache.Resolve(context.Background(), "", Named("fasttext.crawl.vec"))
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	// Removing the files and the server proves the second call touches neither.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("remove cache dir: %v", err)
	}
	server.Close()

	second, err := cache.Resolve(context.Background(), "", Named("fasttext.crawl.vec"))
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if first[0] != second[0] {
		t.Fatal("expected the identical vector object")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one request, got %d", hits.Load())
	}
}

func TestResolveMaterializedVectorsSkipsNetwork(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "wiki-news-300d-1M.vec"), []byte(wikiVecFixture), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	server, hits := fileServer(t, map[string][]byte{})
	cache := NewCache(testLoader(server.URL), dir)

	if _, err := cache.Resolve(context.Background(), "", Named("fasttext.wiki.vec")); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no network requests, got %d", hits.Load())
	}
}

type fakeModel struct {
	dim int
}

func (m fakeModel) Dim() int { return m.dim }

func (m fakeModel) GetWordVector(word string) []float32 {
	v := make([]float32, m.dim)
	v[0] = float32(len(word))
	return v
}

func TestResolveBinaryLoadsModelOnce(t *testing.T) {
	server, _ := fileServer(t, map[string][]byte{
		"wiki.en.zip": zipBytes(t, map[string]string{"wiki.en.bin": "model"}),
	})
	loader := testLoader(server.URL)
	var loads atomic.Int32
	loader.LoadModel = func(path string) (SubwordModel, error) {
		loads.Add(1)
		if filepath.Base(path) != "wiki.en.bin" {
			t.Errorf("unexpected model path %s", path)
		}
		return fakeModel{dim: 5}, nil
	}
	cache := NewCache(loader, t.TempDir())

	a, err := cache.Resolve(context.Background(), "", Named("fasttext.en.bin"))
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	b, err := cache.Resolve(context.Background(), "", Named("fasttext.en.bin"))
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if loads.Load() != 1 {
		t.Fatalf("expected one model load, got %d", loads.Load())
	}
	if a[0] != b[0] {
		t.Fatal("expected both callers to share the vector object")
	}
	if a[0].Dim() != 5 {
		t.Fatalf("expected dim from probe, got %d", a[0].Dim())
	}
}

func TestResolveConcurrentMissesLoadOnce(t *testing.T) {
	server, _ := fileServer(t, map[string][]byte{
		"wiki.fr.zip": zipBytes(t, map[string]string{"wiki.fr.bin": "model"}),
	})
	loader := testLoader(server.URL)
	var loads atomic.Int32
	loader.LoadModel = func(string) (SubwordModel, error) {
		loads.Add(1)
		return fakeModel{dim: 2}, nil
	}
	cache := NewCache(loader, t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Resolve(context.Background(), "", Named("fasttext.fr.bin")); err != nil {
				t.Errorf("resolve: %v", err)
			}
		}()
	}
	wg.Wait()
	if loads.Load() != 1 {
		t.Fatalf("expected one model load, got %d", loads.Load())
	}
}

func TestResolveBinaryWithFastTextModel(t *testing.T) {
	server, _ := fileServer(t, map[string][]byte{
		"wiki.en.zip": zipBytes(t, map[string]string{"wiki.en.bin": fastTextBytes(t)}),
	})
	cache := NewCache(testLoader(server.URL), t.TempDir())

	got, err := cache.Resolve(context.Background(), "", Named("fasttext.en.bin"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	v := got[0]
	if v.Dim() != 4 {
		t.Fatalf("expected dim 4, got %d", v.Dim())
	}
	oov := v.Lookup("zebra")
	if len(oov) != 4 {
		t.Fatalf("expected a subword vector for an unseen token, got %v", oov)
	}
	if again := v.Lookup("zebra"); &again[0] != &oov[0] {
		t.Fatal("expected memoized vector on repeated lookup")
	}
}

func TestResolveUnknownNameFails(t *testing.T) {
	cache := NewCache(testLoader("http://127.0.0.1:1"), t.TempDir())
	_, err := cache.Resolve(context.Background(), "", Named("nosuch.vectors"))
	unknown, ok := err.(*UnknownNameError)
	if !ok {
		t.Fatalf("expected *UnknownNameError unwrapped, got %T %v", err, err)
	}
	if unknown.Name != "nosuch.vectors" {
		t.Fatalf("unexpected name %q", unknown.Name)
	}
	if _, cached := cache.Get("nosuch.vectors"); cached {
		t.Fatal("failed loads must not be cached")
	}
}

func TestResolveFasttextShapedNameFallsThroughToRegistry(t *testing.T) {
	loader := testLoader("http://127.0.0.1:1")
	custom, err := NewTable(map[string][]float32{"x": {1, 2}})
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	var called bool
	loader.Registry.Register("fasttext.news.vec", func(context.Context, *Loader, string) (Vectors, error) {
		called = true
		return custom, nil
	})
	cache := NewCache(loader, t.TempDir())

	got, err := cache.Resolve(context.Background(), "", Named("fasttext.news.vec"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !called || got[0] != Vectors(custom) {
		t.Fatal("expected the registry factory to serve the name")
	}
}

func TestResolveGloVeAlias(t *testing.T) {
	server, _ := fileServer(t, map[string][]byte{
		"glove.6B.zip": zipBytes(t, map[string]string{
			"glove.6B.50d.txt":  "the 1 2\n",
			"glove.6B.100d.txt": "the 1 2 3\n",
		}),
	})
	cache := NewCache(testLoader(server.URL), t.TempDir())

	got, err := cache.Resolve(context.Background(), "", Names("glove.6B.50d", "glove.6B.100d")...)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got[0].Dim() != 2 || got[1].Dim() != 3 {
		t.Fatalf("unexpected dims %d %d", got[0].Dim(), got[1].Dim())
	}
}

func TestResolvePassesLoadedVectorsThrough(t *testing.T) {
	table, err := NewTable(map[string][]float32{"a": {1}})
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	cache := NewCache(testLoader("http://127.0.0.1:1"), t.TempDir())

	got, err := cache.Resolve(context.Background(), "", Loaded(table))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got[0] != Vectors(table) {
		t.Fatal("expected loaded vectors to pass through")
	}
	if len(cache.Names()) != 0 {
		t.Fatal("loaded vectors must not be added to the cache")
	}
}

func TestResolveMissingArchiveContent(t *testing.T) {
	server, _ := fileServer(t, map[string][]byte{
		WikiNewsSuffix: zipBytes(t, map[string]string{"renamed.vec": wikiVecFixture}),
	})
	cache := NewCache(testLoader(server.URL), t.TempDir())

	_, err := cache.Resolve(context.Background(), "", Named("fasttext.wiki.vec"))
	if !errors.Is(err, ErrVectorsNotFound) {
		t.Fatalf("expected ErrVectorsNotFound, got %v", err)
	}
}

func TestDefaultRegistryNames(t *testing.T) {
	names := DefaultRegistry().Names()
	want := map[string]bool{"glove.840B.300d": true, "glove.twitter.27B.25d": true, "fasttext.simple.300d": true}
	for _, n := range names {
		delete(want, n)
	}
	if len(want) != 0 {
		t.Fatalf("missing aliases %v", want)
	}
}
