package vectors

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockFileName       = ".matchvec.lock"
	defaultLockTimeout = 30 * time.Minute
	lockRetryDelay     = 200 * time.Millisecond
)

// Materializer makes a named vector file present in a cache dir, downloading
// and extracting its archive only when the file is missing.
type Materializer struct {
	Fetcher
	// LockTimeout bounds the wait for another process materializing into the
	// same cache dir.
	LockTimeout time.Duration
}

// Ensure returns the local path of name inside cacheDir, fetching url and
// extracting it first if the file is not there yet.
func (m *Materializer) Ensure(ctx context.Context, rawURL, cacheDir, name string) (string, error) {
	target := filepath.Join(cacheDir, name)
	if fileExists(target) {
		return target, nil
	}
	if rawURL == "" {
		return "", fmt.Errorf("%w at %s", ErrVectorsNotFound, target)
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}

	unlock, err := m.lock(ctx, cacheDir)
	if err != nil {
		return "", err
	}
	defer unlock()

	// Another process may have finished while we waited for the lock.
	if fileExists(target) {
		return target, nil
	}

	archive := filepath.Join(cacheDir, archiveName(rawURL))
	if err := m.EnsureDownloaded(ctx, rawURL, archive); err != nil {
		return "", err
	}
	m.logf("vectors: extracting %s into %s", filepath.Base(archive), cacheDir)
	if err := EnsureExtracted(archive, target, cacheDir); err != nil {
		return "", err
	}
	return target, nil
}

func (m *Materializer) lock(ctx context.Context, cacheDir string) (func(), error) {
	timeout := m.LockTimeout
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lockPath := filepath.Join(cacheDir, lockFileName)
	l := flock.New(lockPath)
	locked, err := l.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("cannot acquire cache lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("cache dir is busy (lock: %s)", lockPath)
	}
	return func() { _ = l.Unlock() }, nil
}

func archiveName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(rawURL)
}

// EnsureExtracted unpacks archivePath into cacheDir unless targetPath is
// already present. The strategy follows the archive extension: .zip is
// extracted whole, .gz is read as a gzip tarball, anything else is taken to
// be the vector file itself. A target still missing afterwards means the
// archive did not contain the expected file.
func EnsureExtracted(archivePath, targetPath, cacheDir string) error {
	if fileExists(targetPath) {
		return nil
	}
	var err error
	switch strings.ToLower(filepath.Ext(archivePath)) {
	case ".zip":
		err = extractZip(archivePath, cacheDir)
	case ".gz":
		err = extractTarGz(archivePath, cacheDir)
	}
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", filepath.Base(archivePath), err)
	}
	if !fileExists(targetPath) {
		return fmt.Errorf("%w at %s", ErrVectorsNotFound, targetPath)
	}
	return nil
}

func extractZip(archivePath, dir string) error {
	// Insecure names are rejected entry by entry below.
	zr, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		target := filepath.Join(dir, filepath.FromSlash(f.Name))
		if err := ensureUnderRoot(dir, target); err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeFile(target, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTarGz(archivePath, dir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !errors.Is(err, tar.ErrInsecurePath) {
			return err
		}
		target := filepath.Join(dir, filepath.FromSlash(hdr.Name))
		if err := ensureUnderRoot(dir, target); err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr); err != nil {
				return err
			}
		}
	}
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
