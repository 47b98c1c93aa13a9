// Package httpstore provides a pattern-driven, mostly read-only storage
// variant over plain HTTP.
//
// Each operation is backed by a URL pattern containing a single %s that
// is substituted with the escaped remote path:
//
//	get_pattern:  GET,  returns the file content (required)
//	push_pattern: POST, receives the file content (optional)
//	list_pattern: GET,  returns a JSON array of entries (optional)
//
// A listing entry is an object with a "path" field naming the entry
// relative to the listed directory; a trailing slash marks a directory.
// Optional "size" and "last_modified" (Unix seconds) fields fill in file
// metadata. Capabilities not backed by a pattern are simply absent from
// the variant's feature set.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/polystore/polystore"
)

func init() {
	polystore.Register("http", polystore.Driver{
		New:      NewFromOptions,
		Required: []string{"get_pattern"},
	})
}

// Errors specific to the HTTP variant.
var (
	ErrGetPatternRequired = errors.New("httpstore: get_pattern is required")
	ErrBadPattern         = errors.New("httpstore: pattern must contain exactly one %s")
)

// Config holds configuration for the HTTP variant.
type Config struct {
	// GetPattern is the URL pattern for downloads (required).
	GetPattern string

	// PushPattern is the URL pattern for uploads. Empty disables pushes.
	PushPattern string

	// ListPattern is the URL pattern for directory listings. Empty
	// disables listing.
	ListPattern string

	// Timeout bounds each request. Default 30s.
	Timeout time.Duration
}

// ConfigFromOptions creates a Config from an options map.
// Supported keys:
//   - get_pattern: URL pattern for downloads (required)
//   - push_pattern: URL pattern for uploads
//   - list_pattern: URL pattern for listings
//   - timeout: request timeout in seconds
func ConfigFromOptions(options map[string]string) Config {
	config := Config{
		GetPattern:  options["get_pattern"],
		PushPattern: options["push_pattern"],
		ListPattern: options["list_pattern"],
		Timeout:     30 * time.Second,
	}
	if v := options["timeout"]; v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			config.Timeout = d
		}
	}
	return config
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.GetPattern == "" {
		return ErrGetPatternRequired
	}
	for _, pattern := range []string{c.GetPattern, c.PushPattern, c.ListPattern} {
		if pattern != "" && strings.Count(pattern, "%s") != 1 {
			return fmt.Errorf("%w: %q", ErrBadPattern, pattern)
		}
	}
	return nil
}

// Backend implements polystore.Storage over pattern-driven HTTP.
type Backend struct {
	client *http.Client
	config Config
	closed bool
	mu     sync.RWMutex
}

// New creates an HTTP variant with the given configuration.
func New(cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Backend{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}, nil
}

// NewFromOptions creates an HTTP variant from an options map.
func NewFromOptions(options map[string]string) (polystore.Storage, error) {
	return New(ConfigFromOptions(options))
}

// NewWriter returns a writer whose content is POSTed to the push pattern
// when the writer is closed.
func (b *Backend) NewWriter(ctx context.Context, p string, opts ...polystore.WriterOption) (io.WriteCloser, error) {
	if err := b.preflight(ctx); err != nil {
		return nil, err
	}
	if b.config.PushPattern == "" {
		return nil, fmt.Errorf("%w: push on an HTTP storage without push_pattern", polystore.ErrNotSupported)
	}

	cfg := polystore.ApplyWriterOptions(opts...)
	contentType := cfg.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &httpWriter{
		backend:     b,
		ctx:         ctx,
		url:         expandPattern(b.config.PushPattern, p),
		contentType: contentType,
	}, nil
}

// NewReader streams the response body of the get pattern.
func (b *Backend) NewReader(ctx context.Context, p string, opts ...polystore.ReaderOption) (io.ReadCloser, error) {
	if err := b.preflight(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, expandPattern(b.config.GetPattern, p), nil)
	if err != nil {
		return nil, fmt.Errorf("httpstore: building request for %s: %w", p, err)
	}

	cfg := polystore.ApplyReaderOptions(opts...)
	partial := cfg.Offset > 0 || cfg.Limit > 0
	if partial {
		if cfg.Limit > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", cfg.Offset, cfg.Offset+cfg.Limit-1))
		} else {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", cfg.Offset))
		}
	}

	res, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpstore: getting %s: %w", p, err)
	}
	if err := checkStatus(p, res, partial); err != nil {
		_ = res.Body.Close()
		return nil, err
	}
	return res.Body, nil
}

// Stat is not supported; the protocol exposes no metadata endpoint.
func (b *Backend) Stat(ctx context.Context, p string) (polystore.FileStat, error) {
	return polystore.FileStat{}, fmt.Errorf("%w: stat over HTTP", polystore.ErrNotSupported)
}

// Exists probes the get pattern with a HEAD request.
func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	if err := b.preflight(ctx); err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, expandPattern(b.config.GetPattern, p), nil)
	if err != nil {
		return false, fmt.Errorf("httpstore: building request for %s: %w", p, err)
	}
	res, err := b.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("httpstore: probing %s: %w", p, err)
	}
	_ = res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
		return true, nil
	case res.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("httpstore: probing %s: unexpected status %d", p, res.StatusCode)
	}
}

type listEntry struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"last_modified"`
}

// ListDir fetches and decodes the list pattern's JSON response.
func (b *Backend) ListDir(ctx context.Context, p string) (polystore.Listing, error) {
	if err := b.preflight(ctx); err != nil {
		return nil, err
	}
	if b.config.ListPattern == "" {
		return nil, fmt.Errorf("%w: listdir on an HTTP storage without list_pattern", polystore.ErrNotSupported)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, expandPattern(b.config.ListPattern, p), nil)
	if err != nil {
		return nil, fmt.Errorf("httpstore: building request for %s: %w", p, err)
	}
	res, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpstore: listing %s: %w", p, err)
	}
	defer res.Body.Close()

	if err := checkStatus(p, res, false); err != nil {
		return nil, err
	}

	var entries []listEntry
	if err := json.NewDecoder(res.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("httpstore: decoding listing of %s: %w", p, err)
	}

	listing := make(polystore.Listing, len(entries))
	for _, entry := range entries {
		name := strings.Trim(entry.Path, "/")
		if name == "" {
			continue
		}
		if strings.HasSuffix(entry.Path, "/") {
			listing[name] = polystore.FileStat{IsDir: true}
			continue
		}
		stat := polystore.FileStat{Size: entry.Size}
		if entry.LastModified > 0 {
			stat.ModTime = time.Unix(entry.LastModified, 0)
		}
		listing[name] = stat
	}
	return listing, nil
}

// Mkdir is not supported.
func (b *Backend) Mkdir(ctx context.Context, p string) error {
	return fmt.Errorf("%w: mkdir over HTTP", polystore.ErrNotSupported)
}

// Delete is not supported.
func (b *Backend) Delete(ctx context.Context, p string) error {
	return fmt.Errorf("%w: delete over HTTP", polystore.ErrNotSupported)
}

// Rename is not supported.
func (b *Backend) Rename(ctx context.Context, p, newPath string) error {
	return fmt.Errorf("%w: rename over HTTP", polystore.ErrNotSupported)
}

// Features describes the variant's capabilities, which depend on the
// configured patterns.
func (b *Backend) Features() polystore.Features {
	return polystore.Features{
		Read:      true,
		Push:      b.config.PushPattern != "",
		List:      b.config.ListPattern != "",
		Exists:    true,
		CanStream: true,
		RangeRead: true,
	}
}

// Close releases the variant. Further operations fail.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.client.CloseIdleConnections()
	return nil
}

func (b *Backend) preflight(ctx context.Context) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return polystore.ErrStorageClosed
	}
	return ctx.Err()
}

// expandPattern substitutes the escaped path into a URL pattern. Slashes
// are kept so the path maps onto the URL hierarchy.
func expandPattern(pattern, p string) string {
	segments := strings.Split(p, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return fmt.Sprintf(pattern, strings.Join(segments, "/"))
}

func checkStatus(p string, res *http.Response, partial bool) error {
	switch {
	case res.StatusCode == http.StatusOK:
		return nil
	case partial && res.StatusCode == http.StatusPartialContent:
		return nil
	case res.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", polystore.ErrNotFound, p)
	case res.StatusCode == http.StatusForbidden || res.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", polystore.ErrPermissionDenied, p)
	default:
		return fmt.Errorf("httpstore: %s: unexpected status %d", p, res.StatusCode)
	}
}

// httpWriter buffers writes and POSTs the content on Close.
type httpWriter struct {
	backend     *Backend
	ctx         context.Context
	url         string
	contentType string
	buf         bytes.Buffer
	closed      bool
	mu          sync.Mutex
}

func (w *httpWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, polystore.ErrWriterClosed
	}
	return w.buf.Write(p)
}

func (w *httpWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	req, err := http.NewRequestWithContext(w.ctx, http.MethodPost, w.url, bytes.NewReader(w.buf.Bytes()))
	if err != nil {
		return fmt.Errorf("httpstore: building push request: %w", err)
	}
	req.Header.Set("Content-Type", w.contentType)

	res, err := w.backend.client.Do(req)
	if err != nil {
		return fmt.Errorf("httpstore: pushing: %w", err)
	}
	_ = res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated && res.StatusCode != http.StatusNoContent {
		return fmt.Errorf("httpstore: pushing: unexpected status %d", res.StatusCode)
	}
	return nil
}

var _ polystore.Storage = (*Backend)(nil)
