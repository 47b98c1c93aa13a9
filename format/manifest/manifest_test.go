package manifest

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/polystore/polystore"
)

type closeBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closeBuffer) Close() error {
	b.closed = true
	return nil
}

func TestWriteRead(t *testing.T) {
	modTime := time.Unix(1700000000, 0)
	listing := polystore.Listing{
		"words.txt": {Size: 42, ModTime: modTime, Hashes: polystore.HashSet{polystore.HashMD5: "abc123"}},
		"sub":       {IsDir: true},
	}

	var buf closeBuffer
	w := NewWriter(&buf)
	if err := w.WriteListing(listing); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if !buf.closed {
		t.Error("underlying writer not closed")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("manifest has %d lines: %q", len(lines), buf.String())
	}
	// entries come out in name order
	if !strings.Contains(lines[0], `"sub"`) || !strings.Contains(lines[1], `"words.txt"`) {
		t.Errorf("lines = %v", lines)
	}

	r := NewReader(io.NopCloser(strings.NewReader(buf.String())))
	defer r.Close()
	decoded, err := r.ReadListing()
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded = %v", decoded.Names())
	}
	words := decoded["words.txt"]
	if words.Size != 42 || !words.ModTime.Equal(modTime) {
		t.Errorf("words.txt = %+v", words)
	}
	if words.Hashes[polystore.HashMD5] != "abc123" {
		t.Errorf("hashes = %v", words.Hashes)
	}
	if !decoded["sub"].IsDir {
		t.Error("sub lost its directory flag")
	}
}

func TestReaderSkipsBlankLines(t *testing.T) {
	input := "\n{\"path\":\"a\"}\n\n{\"path\":\"b\",\"size\":2}\n\n"
	r := NewReader(io.NopCloser(strings.NewReader(input)))
	defer r.Close()

	var paths []string
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		paths = append(paths, e.Path)
	}
	if len(paths) != 2 || paths[0] != "a" || paths[1] != "b" {
		t.Errorf("paths = %v", paths)
	}
}

func TestReaderMalformedLine(t *testing.T) {
	r := NewReader(io.NopCloser(strings.NewReader("{not json}\n")))
	defer r.Close()
	if _, err := r.Next(); err == nil {
		t.Error("malformed line accepted")
	}
}

func TestUseAfterClose(t *testing.T) {
	var buf closeBuffer
	w := NewWriter(&buf)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteEntry(Entry{Path: "x"}); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("write after close = %v", err)
	}

	r := NewReader(io.NopCloser(strings.NewReader("")))
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Next(); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("read after close = %v", err)
	}
}

func TestRoundTripEntry(t *testing.T) {
	stat := polystore.FileStat{Size: 7, ModTime: time.Unix(1690000000, 0)}
	got := FromStat("dir/f", stat).Stat()
	if got.Size != stat.Size || !got.ModTime.Equal(stat.ModTime) || got.IsDir {
		t.Errorf("round trip = %+v", got)
	}
}
