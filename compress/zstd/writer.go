// Package zstd layers Zstandard compression over storage readers and
// writers. Compared to gzip it decompresses much faster, which matters
// when large files are streamed out of a store in chunks.
package zstd

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// CompressionLevel selects the zstd encoder level.
type CompressionLevel int

const (
	SpeedFastest CompressionLevel = iota + 1
	SpeedDefault
	SpeedBetterCompression
	SpeedBestCompression
)

func (l CompressionLevel) encoderLevel() zstd.EncoderLevel {
	switch l {
	case SpeedFastest:
		return zstd.SpeedFastest
	case SpeedBetterCompression:
		return zstd.SpeedBetterCompression
	case SpeedBestCompression:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// Writer compresses data into an underlying io.WriteCloser. Closing the
// Writer flushes the zstd frame and closes the underlying writer.
type Writer struct {
	zw     *zstd.Encoder
	closer io.Closer
	closed bool
	mu     sync.Mutex
}

// NewWriter creates a writer that compresses data into w at the default
// encoder level.
func NewWriter(w io.WriteCloser) (*Writer, error) {
	return NewWriterLevel(w, SpeedDefault)
}

// NewWriterLevel creates a writer that compresses data into w at the
// given level.
func NewWriterLevel(w io.WriteCloser, level CompressionLevel) (*Writer, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level.encoderLevel()))
	if err != nil {
		return nil, err
	}
	return &Writer{zw: zw, closer: w}, nil
}

func (w *Writer) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, io.ErrClosedPipe
	}
	return w.zw.Write(p)
}

// Flush forces all buffered data to be encoded and written out.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return io.ErrClosedPipe
	}
	return w.zw.Flush()
}

// Close flushes remaining data and closes both the encoder and the
// underlying writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.zw.Close(); err != nil {
		_ = w.closer.Close()
		return err
	}
	return w.closer.Close()
}

var _ io.WriteCloser = (*Writer)(nil)
