// Package gzip layers gzip compression over storage readers and writers.
// It is used to push compressed payloads and to decompress files on the
// fly while streaming them out of a store.
package gzip

import (
	"compress/gzip"
	"io"
	"sync"
)

// CompressionLevel selects the gzip compression level.
type CompressionLevel int

const (
	NoCompression      CompressionLevel = gzip.NoCompression
	BestSpeed          CompressionLevel = gzip.BestSpeed
	BestCompression    CompressionLevel = gzip.BestCompression
	DefaultCompression CompressionLevel = gzip.DefaultCompression
)

// Writer compresses data into an underlying io.WriteCloser. Closing the
// Writer flushes the gzip trailer and closes the underlying writer.
type Writer struct {
	gw     *gzip.Writer
	closer io.Closer
	closed bool
	mu     sync.Mutex
}

// NewWriter creates a writer that compresses data into w at the default
// compression level.
func NewWriter(w io.WriteCloser) (*Writer, error) {
	return NewWriterLevel(w, DefaultCompression)
}

// NewWriterLevel creates a writer that compresses data into w at the
// given level.
func NewWriterLevel(w io.WriteCloser, level CompressionLevel) (*Writer, error) {
	gw, err := gzip.NewWriterLevel(w, int(level))
	if err != nil {
		return nil, err
	}
	return &Writer{gw: gw, closer: w}, nil
}

func (w *Writer) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, io.ErrClosedPipe
	}
	return w.gw.Write(p)
}

// Flush flushes any pending compressed data to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return io.ErrClosedPipe
	}
	return w.gw.Flush()
}

// Close flushes remaining data and closes both the gzip writer and the
// underlying writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.gw.Close(); err != nil {
		_ = w.closer.Close()
		return err
	}
	return w.closer.Close()
}

var _ io.WriteCloser = (*Writer)(nil)
