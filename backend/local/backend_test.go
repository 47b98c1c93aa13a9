package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/polystore/polystore"
)

func newBackend(t *testing.T) (*Backend, string) {
	t.Helper()
	dir := t.TempDir()
	return New(Config{BaseDir: dir}), dir
}

func writeFile(t *testing.T, b *Backend, path, content string) {
	t.Helper()
	w, err := b.NewWriter(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestWriteRead(t *testing.T) {
	b, dir := newBackend(t)
	ctx := context.Background()

	writeFile(t, b, "nested/deep/f.txt", "hello")

	// parents were created under the base directory
	if _, err := os.Stat(filepath.Join(dir, "nested", "deep", "f.txt")); err != nil {
		t.Fatal(err)
	}

	r, err := b.NewReader(ctx, "nested/deep/f.txt")
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	r.Close()
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}

	if _, err := b.NewReader(ctx, "missing"); !errors.Is(err, polystore.ErrNotFound) {
		t.Errorf("missing file = %v", err)
	}
}

func TestReaderRange(t *testing.T) {
	b, _ := newBackend(t)
	ctx := context.Background()
	writeFile(t, b, "f", "0123456789")

	r, err := b.NewReader(ctx, "f", polystore.WithOffset(3), polystore.WithLimit(4))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "3456" {
		t.Errorf("range read = %q, want %q", data, "3456")
	}
}

func TestTraversalRejected(t *testing.T) {
	b, _ := newBackend(t)
	ctx := context.Background()

	for _, path := range []string{"..", "../escape", "a/../../escape"} {
		if _, err := b.NewReader(ctx, path); !errors.Is(err, polystore.ErrInvalidPath) {
			t.Errorf("NewReader(%q) = %v, want ErrInvalidPath", path, err)
		}
	}

	// dot segments that stay inside the base are fine
	writeFile(t, b, "a/f", "x")
	if _, err := b.Stat(ctx, "a/../a/f"); err != nil {
		t.Errorf("internal dot segments = %v", err)
	}

	// rename validates the target path too
	if err := b.Rename(ctx, "a/f", "../out"); !errors.Is(err, polystore.ErrInvalidPath) {
		t.Errorf("rename target traversal = %v", err)
	}
}

func TestStatAndExists(t *testing.T) {
	b, _ := newBackend(t)
	ctx := context.Background()
	writeFile(t, b, "d/f", "abc")

	stat, err := b.Stat(ctx, "d/f")
	if err != nil {
		t.Fatal(err)
	}
	if stat.IsDir || stat.Size != 3 || stat.ModTime.IsZero() {
		t.Errorf("stat = %+v", stat)
	}

	stat, err = b.Stat(ctx, "d")
	if err != nil || !stat.IsDir {
		t.Errorf("dir stat = %+v, %v", stat, err)
	}

	// the empty path is the base directory
	stat, err = b.Stat(ctx, "")
	if err != nil || !stat.IsDir {
		t.Errorf("base stat = %+v, %v", stat, err)
	}

	exists, err := b.Exists(ctx, "d/f")
	if err != nil || !exists {
		t.Errorf("exists = %v, %v", exists, err)
	}
	exists, err = b.Exists(ctx, "ghost")
	if err != nil || exists {
		t.Errorf("ghost exists = %v, %v", exists, err)
	}
}

func TestListDir(t *testing.T) {
	b, _ := newBackend(t)
	ctx := context.Background()
	writeFile(t, b, "d/a.txt", "a")
	writeFile(t, b, "d/sub/b.txt", "b")

	listing, err := b.ListDir(ctx, "d")
	if err != nil {
		t.Fatal(err)
	}
	if len(listing) != 2 {
		t.Fatalf("listing = %v", listing.Names())
	}
	if listing["a.txt"].IsDir || listing["a.txt"].Size != 1 {
		t.Errorf("a.txt = %+v", listing["a.txt"])
	}
	if !listing["sub"].IsDir {
		t.Errorf("sub = %+v", listing["sub"])
	}

	if _, err := b.ListDir(ctx, "ghost"); !errors.Is(err, polystore.ErrNotFound) {
		t.Errorf("listing absent dir = %v", err)
	}
}

func TestMkdirDeleteRename(t *testing.T) {
	b, dir := newBackend(t)
	ctx := context.Background()

	if err := b.Mkdir(ctx, "x/y/z"); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(filepath.Join(dir, "x", "y", "z")); err != nil || !info.IsDir() {
		t.Fatalf("mkdir result: %v", err)
	}

	writeFile(t, b, "x/y/z/f", "1")

	// delete refuses a populated directory, removes files and empty dirs
	if err := b.Delete(ctx, "x/y/z"); err == nil {
		t.Error("delete of populated directory succeeded")
	}
	if err := b.Delete(ctx, "x/y/z/f"); err != nil {
		t.Fatal(err)
	}
	if err := b.Delete(ctx, "x/y/z"); err != nil {
		t.Fatal(err)
	}
	// missing targets are tolerated
	if err := b.Delete(ctx, "x/y/z"); err != nil {
		t.Errorf("repeat delete = %v", err)
	}

	writeFile(t, b, "from/f", "2")
	if err := b.Rename(ctx, "from/f", "to/deep/f"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "to", "deep", "f")); err != nil {
		t.Errorf("rename target missing: %v", err)
	}
	if err := b.Rename(ctx, "ghost", "anywhere"); !errors.Is(err, polystore.ErrNotFound) {
		t.Errorf("rename missing = %v", err)
	}
}

func TestClosedBackend(t *testing.T) {
	b, _ := newBackend(t)
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Stat(context.Background(), "f"); !errors.Is(err, polystore.ErrStorageClosed) {
		t.Errorf("stat after close = %v", err)
	}
}

func TestNewFromOptions(t *testing.T) {
	dir := t.TempDir()
	st, err := NewFromOptions(map[string]string{"basedir": dir})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	w, err := st.NewWriter(context.Background(), "f")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "f")); err != nil {
		t.Errorf("file not under configured base: %v", err)
	}
}
