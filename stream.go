package polystore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"

	pgzip "github.com/polystore/polystore/compress/gzip"
	pzstd "github.com/polystore/polystore/compress/zstd"
)

// DefaultBufferSize is the chunk size used when a stream is opened with a
// non-positive buffer size.
const DefaultBufferSize = 1024

// StreamOptions configures a Stream.
type StreamOptions struct {
	// Format optionally decompresses the content while streaming.
	// Supported values: "gzip", "zstd". Empty means raw bytes.
	Format string
}

// Stream is a lazy, finite, forward-only sequence of byte chunks.
//
// Chunks are produced on demand: each Next call pulls at most one buffer
// from the source, so no data is buffered ahead of the consumer beyond one
// chunk in flight. The returned slice is valid until the next call.
//
// A stream over a variant without native streaming support is backed by a
// scoped temporary download; the temporary file and its directory are
// removed on every exit path; exhaustion, failure, or an early Close. A
// consumer that abandons iteration must call Close, which is idempotent
// and also runs automatically once Next returns an error.
type Stream struct {
	src     io.ReadCloser
	buf     []byte
	cleanup func()
	eof     bool
	closed  bool
	mu      sync.Mutex
}

// Next returns the next chunk, of length at most the stream's buffer size;
// the final chunk may be shorter. It returns io.EOF when the sequence is
// exhausted, after releasing the stream's resources.
func (s *Stream) Next() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.eof {
		s.closeLocked()
		return nil, io.EOF
	}

	n, err := io.ReadFull(s.src, s.buf)
	switch err {
	case nil:
		return s.buf[:n], nil
	case io.ErrUnexpectedEOF:
		// short final chunk; report EOF on the next pull
		s.eof = true
		return s.buf[:n], nil
	case io.EOF:
		s.closeLocked()
		return nil, io.EOF
	default:
		s.closeLocked()
		return nil, fmt.Errorf("%w: %v", ErrTransfer, err)
	}
}

// Close releases the stream's resources, including any temporary file
// backing a non-streaming variant. It is safe to call multiple times and
// after exhaustion.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Stream) closeLocked() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.src != nil {
		err = s.src.Close()
	}
	if s.cleanup != nil {
		s.cleanup()
	}
	return err
}

// OpenStream opens a chunked stream over the file at path on st.
//
// Variants with native streaming serve chunks straight from the remote
// connection. For the rest, the file is first downloaded into a scoped
// temporary directory and replayed from there; the temporary location is
// guaranteed removed when the stream ends, fails, or is closed early.
func OpenStream(ctx context.Context, st Storage, filePath string, bufferSize int, opts StreamOptions) (*Stream, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	var src io.ReadCloser
	var cleanup func()

	if st.Features().CanStream {
		r, err := st.NewReader(ctx, filePath)
		if err != nil {
			return nil, err
		}
		src = r
	} else {
		tmpDir, err := os.MkdirTemp("", "polystore-stream-")
		if err != nil {
			return nil, fmt.Errorf("%w: creating temporary directory: %v", ErrTransfer, err)
		}
		cleanup = func() { _ = os.RemoveAll(tmpDir) }

		base := path.Base(filePath)
		if base == "/" || base == "." || base == "" {
			base = "payload"
		}
		local := filepath.Join(tmpDir, base)
		if _, err := GetFile(ctx, st, filePath, local, TransferOptions{}); err != nil {
			cleanup()
			return nil, err
		}

		f, err := os.Open(local)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("%w: %v", ErrTransfer, err)
		}
		src = f
	}

	src, err := wrapDecompression(src, opts.Format)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, err
	}

	return &Stream{
		src:     src,
		buf:     make([]byte, bufferSize),
		cleanup: cleanup,
	}, nil
}

// wrapDecompression layers a decompressor over the source when a stream
// format is requested. Closing the returned reader closes the source too.
func wrapDecompression(src io.ReadCloser, format string) (io.ReadCloser, error) {
	switch format {
	case "":
		return src, nil
	case "gzip":
		r, err := pgzip.NewReader(src)
		if err != nil {
			_ = src.Close()
			return nil, fmt.Errorf("%w: opening gzip stream: %v", ErrTransfer, err)
		}
		return r, nil
	case "zstd":
		r, err := pzstd.NewReader(src)
		if err != nil {
			_ = src.Close()
			return nil, fmt.Errorf("%w: opening zstd stream: %v", ErrTransfer, err)
		}
		return r, nil
	default:
		_ = src.Close()
		return nil, fmt.Errorf("%w: stream format %q", ErrNotSupported, format)
	}
}
