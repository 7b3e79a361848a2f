package vectors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v2"
)

// Fetcher downloads remote resources into the local cache.
type Fetcher struct {
	// Client defaults to http.DefaultClient. Vector archives are large, so
	// no overall timeout is applied; cancel through the context instead.
	Client *http.Client
	// Progress receives a byte progress bar when the response size is known.
	// Nil disables the bar.
	Progress io.Writer
	Logger   *log.Logger
}

// EnsureDownloaded fetches url into destPath unless destPath already exists.
func (f *Fetcher) EnsureDownloaded(ctx context.Context, rawURL, destPath string) error {
	if fileExists(destPath) {
		return nil
	}
	f.logf("vectors: downloading %s", redactURL(rawURL))

	tmp := destPath + ".tmp"
	n, err := f.downloadToFile(ctx, rawURL, tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to download %s: %w", redactURL(rawURL), err)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to finalize download: %w", err)
	}
	f.logf("vectors: downloaded %d bytes to %s", n, destPath)
	return nil
}

func (f *Fetcher) downloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, errors.New("invalid request")
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	var w io.Writer = out
	if f.Progress != nil && resp.ContentLength > 0 {
		size := int(resp.ContentLength)
		bar := progressbar.NewOptions(size,
			progressbar.OptionSetBytes(size),
			progressbar.OptionSetDescription(filepath.Base(path)),
			progressbar.OptionSetWriter(f.Progress),
		)
		defer func() { _ = bar.Finish() }()
		w = io.MultiWriter(out, barWriter{bar: bar})
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, err
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return n, fmt.Errorf("short download: got %d of %d bytes", n, resp.ContentLength)
	}
	return n, out.Close()
}

func (f *Fetcher) logf(format string, args ...any) {
	if f.Logger != nil {
		f.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

type barWriter struct {
	bar *progressbar.ProgressBar
}

func (w barWriter) Write(p []byte) (int, error) {
	_ = w.bar.Add(len(p))
	return len(p), nil
}

// redactURL keeps the host and path so errors and logs never carry credentials
// passed in the query string.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Host + u.Path
}
