// Package fetch retrieves raw book text for the corpus.
//
// A Source maps a document identifier (a file name such as
// "J. K. Rowling - Harry Potter 1 - Sorcerer's Stone.txt") to UTF-8 text. Sources are
// side-effect free, so callers may retry a failed fetch. Text is NFC-normalised and
// HTML editions are reduced to plain text before it is returned.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/chriscorrea/lorekeeper/internal/extract"
)

// size limits to prevent memory overload
const (
	MaxFileSizeBytes = 50 * 1024 * 1024  // 50MB limit for files
	MaxHTTPSizeBytes = 100 * 1024 * 1024 // 100MB limit for HTTP content (may not have Content-Length)
)

// HTTPRequestTimeout bounds a single document download.
const HTTPRequestTimeout = 30 * time.Second

// specific timeout thresholds (based on HTTPRequestTimeout)
var (
	HTTPDialTimeout           = HTTPRequestTimeout / 6 // max time to wait for network connection
	HTTPTLSTimeout            = HTTPRequestTimeout / 6 // max time to wait for TLS handshake
	HTTPResponseHeaderTimeout = HTTPRequestTimeout / 2 // max time for response headers
)

// ErrNotFound is returned when a document does not exist at the source.
var ErrNotFound = errors.New("document not found")

// StatusError reports a non-200 HTTP response.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP request failed for URL %q: status %s", e.URL, e.Status)
}

// Source supplies raw document text by identifier.
type Source interface {
	Fetch(ctx context.Context, id string) (string, error)
}

// NewSource picks an HTTPSource for http(s) locations and a DirSource otherwise.
func NewSource(location string, opts extract.Options) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return &HTTPSource{BaseURL: location, Extract: opts}
	}
	return &DirSource{Dir: location, Extract: opts}
}

// limitedReadCloser wraps an io.ReadCloser to enforce size limits
type limitedReadCloser struct {
	io.ReadCloser
	N      int64  // max bytes remaining
	source string // for error messages
}

func (l *limitedReadCloser) Read(p []byte) (n int, err error) {
	if l.N <= 0 {
		return 0, fmt.Errorf("content from %q exceeds size limit", l.source)
	}
	if int64(len(p)) > l.N {
		p = p[0:l.N]
	}
	n, err = l.ReadCloser.Read(p)
	l.N -= int64(n)
	return
}

// defaultClient is shared by every HTTPSource without its own client
var defaultClient = &http.Client{
	Timeout: HTTPRequestTimeout,
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: HTTPDialTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   HTTPTLSTimeout,
		ResponseHeaderTimeout: HTTPResponseHeaderTimeout,
	},
}

// DirSource reads documents from a local directory.
type DirSource struct {
	Dir     string
	Extract extract.Options
}

// Fetch reads <Dir>/<id>. Identifiers must be plain file names.
func (s *DirSource) Fetch(ctx context.Context, id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	path := filepath.Join(s.Dir, id)

	fileInfo, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("file %q: %w", path, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to access file %q: %w", path, err)
	}
	if fileInfo.IsDir() {
		return "", fmt.Errorf("%q is a directory: %w", path, ErrNotFound)
	}
	if fileInfo.Size() > MaxFileSizeBytes {
		return "", fmt.Errorf("file %q is too large (%d bytes > %d bytes limit)",
			path, fileInfo.Size(), MaxFileSizeBytes)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %q: %w", path, err)
	}
	defer file.Close()

	slog.Debug("Reading document", "path", path, "bytes", fileInfo.Size())
	return decode(file, id, "", s.Extract)
}

// HTTPSource downloads documents from <BaseURL>/<escaped id>.
type HTTPSource struct {
	BaseURL   string
	Client    *http.Client // nil uses a shared client with conservative timeouts
	UserAgent string
	Extract   extract.Options
}

// Fetch performs a GET for the document. 404 maps to ErrNotFound and any other
// non-200 status to *StatusError.
func (s *HTTPSource) Fetch(ctx context.Context, id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	docURL := strings.TrimRight(s.BaseURL, "/") + "/" + url.PathEscape(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for URL %q: %w", docURL, err)
	}
	userAgent := s.UserAgent
	if userAgent == "" {
		userAgent = "lorekeeper/0.1"
	}
	req.Header.Set("User-Agent", userAgent)

	client := s.Client
	if client == nil {
		client = defaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL %q: %w", docURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("URL %q: %w", docURL, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return "", &StatusError{URL: docURL, Code: resp.StatusCode, Status: resp.Status}
	}

	// check content-length header if present
	if contentLength := resp.Header.Get("Content-Length"); contentLength != "" {
		if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil && size > MaxHTTPSizeBytes {
			return "", fmt.Errorf("HTTP content too large (%d bytes > %d bytes limit)", size, MaxHTTPSizeBytes)
		}
	}

	body := &limitedReadCloser{ReadCloser: resp.Body, N: MaxHTTPSizeBytes, source: docURL}
	opts := s.Extract
	if opts.BaseURL == nil {
		opts.BaseURL = req.URL
	}
	slog.Debug("Downloading document", "url", docURL)
	return decode(body, id, resp.Header.Get("Content-Type"), opts)
}

// decode reads the document, converts HTML to text and applies NFC normalisation
func decode(r io.Reader, id, contentType string, opts extract.Options) (string, error) {
	var text string
	if extract.IsHTML(id, contentType) {
		converted, err := extract.ToText(r, opts)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from %q: %w", id, err)
		}
		text = converted
	} else {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("failed to read %q: %w", id, err)
		}
		text = string(data)
	}
	return norm.NFC.String(text), nil
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid document id %q", id)
	}
	return nil
}
