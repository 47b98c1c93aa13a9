package gzip

import (
	"bytes"
	"io"
	"testing"
)

type closeBuffer struct {
	*bytes.Buffer
	closed bool
}

func (b *closeBuffer) Close() error {
	b.closed = true
	return nil
}

type closeReader struct {
	*bytes.Reader
	closed bool
}

func (r *closeReader) Close() error {
	r.closed = true
	return nil
}

func TestRoundTrip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	buf := &closeBuffer{Buffer: new(bytes.Buffer)}
	w, err := NewWriter(buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !buf.closed {
		t.Error("underlying writer not closed")
	}

	src := &closeReader{Reader: bytes.NewReader(buf.Bytes())}
	r, err := NewReader(src)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !src.closed {
		t.Error("underlying reader not closed")
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}
}

func TestWriterLevels(t *testing.T) {
	data := bytes.Repeat([]byte("compressible payload "), 50)

	for _, level := range []CompressionLevel{NoCompression, BestSpeed, DefaultCompression, BestCompression} {
		buf := &closeBuffer{Buffer: new(bytes.Buffer)}
		w, err := NewWriterLevel(buf, level)
		if err != nil {
			t.Fatalf("NewWriterLevel(%d): %v", level, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("Write at level %d: %v", level, err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close at level %d: %v", level, err)
		}
		if buf.Len() == 0 {
			t.Errorf("level %d produced no output", level)
		}
	}
}

func TestWriterUseAfterClose(t *testing.T) {
	buf := &closeBuffer{Buffer: new(bytes.Buffer)}
	w, err := NewWriter(buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := w.Write([]byte("x")); err != io.ErrClosedPipe {
		t.Errorf("Write after Close = %v, want io.ErrClosedPipe", err)
	}
	if err := w.Flush(); err != io.ErrClosedPipe {
		t.Errorf("Flush after Close = %v, want io.ErrClosedPipe", err)
	}
}

func TestReaderUseAfterClose(t *testing.T) {
	buf := &closeBuffer{Buffer: new(bytes.Buffer)}
	w, _ := NewWriter(buf)
	w.Write([]byte("data"))
	w.Close()

	r, err := NewReader(&closeReader{Reader: bytes.NewReader(buf.Bytes())})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := r.Read(make([]byte, 1)); err != io.ErrClosedPipe {
		t.Errorf("Read after Close = %v, want io.ErrClosedPipe", err)
	}
}

func TestReaderRejectsGarbage(t *testing.T) {
	src := &closeReader{Reader: bytes.NewReader([]byte("not gzip at all"))}
	if _, err := NewReader(src); err == nil {
		t.Error("NewReader accepted invalid input")
	}
}
