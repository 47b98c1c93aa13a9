package gzip

import (
	"compress/gzip"
	"io"
	"sync"
)

// Reader decompresses gzip content from an underlying io.ReadCloser.
// Closing the Reader closes the underlying reader as well, so it can
// stand in wherever a plain storage reader is expected.
type Reader struct {
	gr     *gzip.Reader
	closer io.Closer
	closed bool
	mu     sync.Mutex
}

// NewReader creates a reader that decompresses data from r.
func NewReader(r io.ReadCloser) (*Reader, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &Reader{gr: gr, closer: r}, nil
}

func (r *Reader) Read(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, io.ErrClosedPipe
	}
	return r.gr.Read(p)
}

// Close closes both the gzip reader and the underlying reader.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.gr.Close(); err != nil {
		_ = r.closer.Close()
		return err
	}
	return r.closer.Close()
}

var _ io.ReadCloser = (*Reader)(nil)
