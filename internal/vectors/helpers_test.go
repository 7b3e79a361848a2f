package vectors

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fractalmind-ai/matchvec/internal/fasttext"
)

const wikiVecFixture = "3 3\nhello 0.1 0.2 0.3\nworld 1 2 3\n, -1 0 1\n"

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := io.WriteString(w, content); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func tarGzBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := io.WriteString(tw, content); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func fastTextBytes(t *testing.T) string {
	t.Helper()
	words := []string{"</s>", "a", "hello"}
	args := fasttext.Args{Dim: 4, Bucket: 8, MinN: 2, MaxN: 3}
	matrix := make([]float32, (len(words)+int(args.Bucket))*int(args.Dim))
	for i := range matrix {
		matrix[i] = float32(i%7) + 0.5
	}
	m, err := fasttext.NewModel(args, words, matrix)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	var buf bytes.Buffer
	if err := m.Save(&buf); err != nil {
		t.Fatalf("save model: %v", err)
	}
	return buf.String()
}

// fileServer serves files by URL path and counts requests.
func fileServer(t *testing.T, files map[string][]byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, ok := files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server, hits
}

func testLoader(baseURL string) *Loader {
	l := NewLoader(&Materializer{Fetcher: Fetcher{Logger: log.New(io.Discard, "", 0)}})
	l.Sources = Sources{
		TextBaseURL:    baseURL + "/",
		BinaryBaseURL:  baseURL + "/",
		GloVeBaseURL:   baseURL + "/",
		WikiVecBaseURL: baseURL + "/",
	}
	return l
}

func assertNoURLLeak(t *testing.T, err error, rawURL string) {
	t.Helper()
	if err == nil {
		return
	}
	msg := err.Error()
	if strings.Contains(msg, rawURL) {
		t.Fatalf("error leaked full URL: %s", msg)
	}
	if strings.Contains(msg, "token=secret") {
		t.Fatalf("error leaked query string: %s", msg)
	}
}
