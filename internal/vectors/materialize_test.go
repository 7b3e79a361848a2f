package vectors

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeArchive(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

func TestEnsureExtractedZip(t *testing.T) {
	dir := t.TempDir()
	archive := writeArchive(t, dir, "v.vec.zip", zipBytes(t, map[string]string{"v.vec": wikiVecFixture}))
	target := filepath.Join(dir, "v.vec")

	if err := EnsureExtracted(archive, target, dir); err != nil {
		t.Fatalf("extract: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil || string(data) != wikiVecFixture {
		t.Fatalf("unexpected extracted content %q (%v)", data, err)
	}
}

func TestEnsureExtractedTarGz(t *testing.T) {
	dir := t.TempDir()
	archive := writeArchive(t, dir, "v.tar.gz", tarGzBytes(t, map[string]string{"sub/v.txt": "a 1 2\n"}))
	target := filepath.Join(dir, "sub", "v.txt")

	if err := EnsureExtracted(archive, target, dir); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !fileExists(target) {
		t.Fatal("expected target after extraction")
	}
}

func TestEnsureExtractedMissingTarget(t *testing.T) {
	dir := t.TempDir()
	archive := writeArchive(t, dir, "v.zip", zipBytes(t, map[string]string{"other.vec": "x 1 2\n"}))

	err := EnsureExtracted(archive, filepath.Join(dir, "v.vec"), dir)
	if !errors.Is(err, ErrVectorsNotFound) {
		t.Fatalf("expected ErrVectorsNotFound, got %v", err)
	}
}

func TestEnsureExtractedSkipsWhenTargetPresent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "v.vec")
	if err := os.WriteFile(target, []byte(wikiVecFixture), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The archive does not exist; extraction must not be attempted.
	if err := EnsureExtracted(filepath.Join(dir, "missing.zip"), target, dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureExtractedRejectsZipSlip(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "cache")
	if err := os.MkdirAll(cache, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	archive := writeArchive(t, cache, "v.zip", zipBytes(t, map[string]string{"../escape.vec": "x 1 2\n"}))

	err := EnsureExtracted(archive, filepath.Join(cache, "v.vec"), cache)
	if !errors.Is(err, ErrUnsafeArchivePath) {
		t.Fatalf("expected ErrUnsafeArchivePath, got %v", err)
	}
	if fileExists(filepath.Join(dir, "escape.vec")) {
		t.Fatal("archive entry escaped the cache dir")
	}
}

func TestMaterializerEnsureDownloadsOnce(t *testing.T) {
	server, hits := fileServer(t, map[string][]byte{
		"v.vec.zip": zipBytes(t, map[string]string{"v.vec": wikiVecFixture}),
	})
	dir := filepath.Join(t.TempDir(), "fresh", "cache")
	m := &Materializer{Fetcher: *quietFetcher()}

	for i := 0; i < 2; i++ {
		path, err := m.Ensure(context.Background(), server.URL+"/v.vec.zip", dir, "v.vec")
		if err != nil {
			t.Fatalf("ensure #%d: %v", i, err)
		}
		if path != filepath.Join(dir, "v.vec") {
			t.Fatalf("unexpected path %s", path)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one download, got %d", hits.Load())
	}
	if !fileExists(filepath.Join(dir, "v.vec.zip")) {
		t.Fatal("expected downloaded archive to stay in the cache dir")
	}
}

func TestMaterializerRetriesExtractionWhenArchivePresent(t *testing.T) {
	server, hits := fileServer(t, map[string][]byte{})
	dir := t.TempDir()
	writeArchive(t, dir, "v.vec.zip", zipBytes(t, map[string]string{"v.vec": wikiVecFixture}))

	m := &Materializer{Fetcher: *quietFetcher()}
	if _, err := m.Ensure(context.Background(), server.URL+"/v.vec.zip", dir, "v.vec"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected the cached archive to be reused, got %d requests", hits.Load())
	}
}

func TestMaterializerPlainFileDownload(t *testing.T) {
	server, _ := fileServer(t, map[string][]byte{"wiki.en.vec": []byte(wikiVecFixture)})
	dir := t.TempDir()
	m := &Materializer{Fetcher: *quietFetcher()}

	path, err := m.Ensure(context.Background(), server.URL+"/wiki.en.vec", dir, "wiki.en.vec")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !fileExists(path) {
		t.Fatal("expected downloaded vector file")
	}
}

func TestEnsureUnderRootRejectsOutside(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Clean(filepath.Join(root, "..", "outside"))
	if err := ensureUnderRoot(root, outside); err == nil {
		t.Fatal("expected error for outside path")
	}
	if err := ensureUnderRoot(root, filepath.Join(root, "inside", "file")); err != nil {
		t.Fatalf("unexpected error for inside path: %v", err)
	}
}
