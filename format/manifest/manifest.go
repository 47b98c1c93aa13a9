// Package manifest reads and writes directory listings as NDJSON, one
// entry per line. Manifests travel well through pipes and diff cleanly,
// which makes them the exchange format for listing output and for
// snapshotting a remote tree.
package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/polystore/polystore"
)

const defaultBufferSize = 64 * 1024

// Entry is one line of a manifest.
type Entry struct {
	Path         string            `json:"path"`
	Size         int64             `json:"size,omitempty"`
	LastModified int64             `json:"last_modified,omitempty"`
	IsDir        bool              `json:"is_dir,omitempty"`
	Hashes       map[string]string `json:"hashes,omitempty"`
}

// FromStat builds an entry from a listing stat.
func FromStat(path string, stat polystore.FileStat) Entry {
	e := Entry{
		Path:  path,
		Size:  stat.Size,
		IsDir: stat.IsDir,
	}
	if !stat.ModTime.IsZero() {
		e.LastModified = stat.ModTime.Unix()
	}
	if len(stat.Hashes) > 0 {
		e.Hashes = make(map[string]string, len(stat.Hashes))
		for ht, sum := range stat.Hashes {
			e.Hashes[string(ht)] = sum
		}
	}
	return e
}

// Stat converts the entry back into a listing stat.
func (e Entry) Stat() polystore.FileStat {
	stat := polystore.FileStat{
		Size:  e.Size,
		IsDir: e.IsDir,
	}
	if e.LastModified > 0 {
		stat.ModTime = time.Unix(e.LastModified, 0)
	}
	if len(e.Hashes) > 0 {
		stat.Hashes = make(polystore.HashSet, len(e.Hashes))
		for ht, sum := range e.Hashes {
			stat.Hashes[polystore.HashType(ht)] = sum
		}
	}
	return stat
}

// Writer emits manifest entries to an underlying writer, buffered.
type Writer struct {
	w      *bufio.Writer
	closer io.Closer
	closed bool
	mu     sync.Mutex
}

// NewWriter wraps w. Closing the Writer flushes and closes w.
func NewWriter(w io.WriteCloser) *Writer {
	return &Writer{
		w:      bufio.NewWriterSize(w, defaultBufferSize),
		closer: w,
	}
}

// WriteEntry appends one entry line.
func (w *Writer) WriteEntry(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return io.ErrClosedPipe
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// WriteListing appends every entry of a listing in name order.
func (w *Writer) WriteListing(listing polystore.Listing) error {
	for _, name := range listing.Names() {
		if err := w.WriteEntry(FromStat(name, listing[name])); err != nil {
			return err
		}
	}
	return nil
}

// Flush forces buffered lines through to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return io.ErrClosedPipe
	}
	return w.w.Flush()
}

// Close flushes and closes the underlying writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.w.Flush(); err != nil {
		_ = w.closer.Close()
		return err
	}
	return w.closer.Close()
}

// Reader decodes manifest entries from an underlying reader.
type Reader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	closed  bool
	mu      sync.Mutex
}

// NewReader wraps r. Closing the Reader closes r.
func NewReader(r io.ReadCloser) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, defaultBufferSize), defaultBufferSize)
	return &Reader{
		scanner: scanner,
		closer:  r,
	}
}

// Next returns the next entry, skipping blank lines. It returns io.EOF
// when the manifest is exhausted.
func (r *Reader) Next() (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Entry{}, io.ErrClosedPipe
	}

	for r.scanner.Scan() {
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return Entry{}, err
		}
		return e, nil
	}

	if err := r.scanner.Err(); err != nil {
		return Entry{}, err
	}
	return Entry{}, io.EOF
}

// ReadListing consumes the whole manifest into a listing keyed by path.
func (r *Reader) ReadListing() (polystore.Listing, error) {
	listing := polystore.Listing{}
	for {
		e, err := r.Next()
		if err == io.EOF {
			return listing, nil
		}
		if err != nil {
			return nil, err
		}
		listing[e.Path] = e.Stat()
	}
}

// Close releases the reader.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.closer.Close()
}
