package binaries

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/pkg/errors"
)

// userAgent is sent with every download; some mirrors reject Go's default.
const userAgent = "Mozilla/5.0"

// httpClient is shared by HTTP mirrors. Per-attempt deadlines come from the
// request context.
var httpClient = &http.Client{}

// Progress reports bytes written for the current mirror. Total is -1 when
// the server sent no Content-Length.
type Progress struct {
	Mirror  string
	Written int64
	Total   int64
}

// ProgressFunc observes download progress.
type ProgressFunc func(Progress)

// Mirror is one source for a distribution archive.
type Mirror interface {
	Name() string
	// Fetch writes the archive to dest. On error dest may hold partial data.
	Fetch(ctx context.Context, dest string, progress ProgressFunc) error
}

// HTTPMirror downloads an archive with a single GET.
type HTTPMirror struct {
	URL string
}

// NewHTTPMirror creates a mirror for rawURL.
func NewHTTPMirror(rawURL string) *HTTPMirror {
	return &HTTPMirror{URL: rawURL}
}

// Name returns the mirror host, or the raw URL when it does not parse.
func (m *HTTPMirror) Name() string {
	if u, err := url.Parse(m.URL); err == nil && u.Host != "" {
		return u.Host
	}
	return m.URL
}

// Fetch implements Mirror.
func (m *HTTPMirror) Fetch(ctx context.Context, dest string, progress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("failed to download: HTTP %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return errors.Wrap(err, "failed to create archive file")
	}
	defer out.Close()

	var w io.Writer = out
	if progress != nil {
		w = &progressWriter{w: out, total: resp.ContentLength, fn: progress}
	}

	written, err := io.Copy(w, resp.Body)
	if err != nil {
		return errors.Wrap(err, "download interrupted")
	}
	if written == 0 {
		return errors.New("empty response body")
	}
	return out.Close()
}

type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	fn      ProgressFunc
}

func (pw *progressWriter) Write(b []byte) (int, error) {
	n, err := pw.w.Write(b)
	pw.written += int64(n)
	pw.fn(Progress{Written: pw.written, Total: pw.total})
	return n, err
}

func calculateFileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
