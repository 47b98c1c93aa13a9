package polystore_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/polystore/polystore"
	"github.com/polystore/polystore/backend/memory"
	"github.com/polystore/polystore/filter"
)

func seedTree(t *testing.T, st *memory.Backend) {
	t.Helper()
	modTime := time.Now().Add(-time.Hour)
	st.Put("corpus/readme.txt", []byte("top"), modTime)
	st.Put("corpus/en/a.txt", []byte("alpha"), modTime)
	st.Put("corpus/en/b.txt", []byte("beta"), modTime)
	st.Put("corpus/fr/a.txt", []byte("alpha-fr"), modTime)
	if err := st.Mkdir(context.Background(), "corpus/empty"); err != nil {
		t.Fatal(err)
	}
}

func TestGetDirectoryMirrors(t *testing.T) {
	st := memory.New(memory.Config{Streaming: true})
	seedTree(t, st)

	local := t.TempDir()
	ctx := context.Background()

	result, err := polystore.GetDirectory(ctx, st, "corpus", local, polystore.DirectoryOptions{})
	if err != nil {
		t.Fatalf("GetDirectory: %v", err)
	}
	if !result.Success() {
		t.Fatalf("errors: %v", result.Errors)
	}
	if result.Transferred != 4 {
		t.Errorf("transferred = %d, want 4", result.Transferred)
	}

	for rel, want := range map[string]string{
		"readme.txt": "top",
		"en/a.txt":   "alpha",
		"en/b.txt":   "beta",
		"fr/a.txt":   "alpha-fr",
	} {
		data, err := os.ReadFile(filepath.Join(local, filepath.FromSlash(rel)))
		if err != nil {
			t.Errorf("reading %s: %v", rel, err)
			continue
		}
		if string(data) != want {
			t.Errorf("%s = %q, want %q", rel, data, want)
		}
	}
	if info, err := os.Stat(filepath.Join(local, "empty")); err != nil || !info.IsDir() {
		t.Errorf("empty directory not mirrored: %v", err)
	}

	// a second run must skip everything
	result, err = polystore.GetDirectory(ctx, st, "corpus", local, polystore.DirectoryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Skipped != 4 || result.Transferred != 0 {
		t.Errorf("second run transferred %d, skipped %d", result.Transferred, result.Skipped)
	}
}

func TestGetDirectoryMissingRoot(t *testing.T) {
	st := memory.New(memory.Config{Streaming: true})
	_, err := polystore.GetDirectory(context.Background(), st, "nope", t.TempDir(), polystore.DirectoryOptions{})
	if !errors.Is(err, polystore.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// failOneRead fails NewReader for a single path.
type failOneRead struct {
	polystore.Storage
	path string
}

func (f *failOneRead) NewReader(ctx context.Context, path string, opts ...polystore.ReaderOption) (io.ReadCloser, error) {
	if path == f.path {
		return nil, fmt.Errorf("connection reset")
	}
	return f.Storage.NewReader(ctx, path, opts...)
}

func TestGetDirectoryCollectsFailures(t *testing.T) {
	base := memory.New(memory.Config{Streaming: true})
	seedTree(t, base)
	st := &failOneRead{Storage: base, path: "corpus/en/b.txt"}

	local := t.TempDir()
	result, err := polystore.GetDirectory(context.Background(), st, "corpus", local, polystore.DirectoryOptions{})
	if err != nil {
		t.Fatalf("GetDirectory: %v", err)
	}
	if result.Transferred != 3 {
		t.Errorf("transferred = %d, want 3", result.Transferred)
	}
	if len(result.Errors) != 1 || result.Errors[0].Path != "en/b.txt" {
		t.Fatalf("errors = %v", result.Errors)
	}

	var walkErr *polystore.WalkError
	if !errors.As(result.Err(), &walkErr) {
		t.Fatalf("Err() = %T", result.Err())
	}
	if failed := walkErr.Failed(); len(failed) != 1 || failed[0] != "en/b.txt" {
		t.Errorf("Failed() = %v", failed)
	}

	// the sibling next to the failure still arrived
	if _, err := os.Stat(filepath.Join(local, "en", "a.txt")); err != nil {
		t.Errorf("sibling not transferred: %v", err)
	}
}

func TestListDirRecursive(t *testing.T) {
	st := memory.New(memory.Config{Streaming: true})
	modTime := time.Now()
	// "data" appears at two depths; relative keys keep them distinct
	st.Put("corpus/data", []byte("shallow"), modTime)
	st.Put("corpus/x/data", []byte("deep"), modTime)
	st.Put("corpus/x/y/z.txt", []byte("zz"), modTime)

	listing, err := polystore.ListDirRecursive(context.Background(), st, "corpus")
	if err != nil {
		t.Fatalf("ListDirRecursive: %v", err)
	}

	want := []string{"data", "x/data", "x/y/z.txt"}
	if len(listing) != len(want) {
		t.Fatalf("listing has %d entries: %v", len(listing), listing.Names())
	}
	for _, key := range want {
		if _, ok := listing[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
	if listing["x/y/z.txt"].Size != 2 {
		t.Errorf("size = %d", listing["x/y/z.txt"].Size)
	}
}

// cyclicListings is a misbehaving storage whose listing contains an entry
// that resolves back to an ancestor.
type cyclicListings struct {
	polystore.Storage
}

func (c *cyclicListings) ListDir(ctx context.Context, path string) (polystore.Listing, error) {
	switch path {
	case "loop":
		return polystore.Listing{"a": {IsDir: true}}, nil
	case "loop/a":
		return polystore.Listing{"b": {IsDir: true}}, nil
	default:
		return polystore.Listing{"..": {IsDir: true}}, nil
	}
}

func (c *cyclicListings) Features() polystore.Features {
	return polystore.Features{Read: true, List: true, Stat: true}
}

func (c *cyclicListings) Stat(ctx context.Context, path string) (polystore.FileStat, error) {
	return polystore.FileStat{IsDir: true}, nil
}

func TestWalkDetectsCycle(t *testing.T) {
	st := &cyclicListings{Storage: memory.New(memory.Config{})}
	_, err := polystore.ListDirRecursive(context.Background(), st, "loop")
	if !errors.Is(err, polystore.ErrCycle) {
		t.Errorf("error = %v, want ErrCycle", err)
	}
}

// malformedListings is a misbehaving storage whose root listing contains
// an entry name that is not a plain child name.
type malformedListings struct {
	polystore.Storage
	entry string
}

func (m *malformedListings) ListDir(ctx context.Context, path string) (polystore.Listing, error) {
	return polystore.Listing{m.entry: {IsDir: false, Size: 1}}, nil
}

func (m *malformedListings) Features() polystore.Features {
	return polystore.Features{Read: true, List: true, Stat: true}
}

func (m *malformedListings) Stat(ctx context.Context, path string) (polystore.FileStat, error) {
	return polystore.FileStat{IsDir: true}, nil
}

func TestWalkRejectsMalformedEntryNames(t *testing.T) {
	for _, entry := range []string{"..", ".", "", "x/y"} {
		t.Run(fmt.Sprintf("%q", entry), func(t *testing.T) {
			st := &malformedListings{Storage: memory.New(memory.Config{}), entry: entry}
			if _, err := polystore.ListDirRecursive(context.Background(), st, "root"); !errors.Is(err, polystore.ErrInvalidPath) {
				t.Errorf("error = %v, want ErrInvalidPath", err)
			}
		})
	}

	// a parent reference at the root must not reach the local filesystem
	st := &malformedListings{Storage: memory.New(memory.Config{}), entry: ".."}
	parent := t.TempDir()
	dest := filepath.Join(parent, "mirror")
	if _, err := polystore.GetDirectory(context.Background(), st, "root", dest, polystore.DirectoryOptions{}); !errors.Is(err, polystore.ErrInvalidPath) {
		t.Errorf("GetDirectory error = %v, want ErrInvalidPath", err)
	}
	names, err := os.ReadDir(parent)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range names {
		if e.Name() != "mirror" {
			t.Errorf("transfer escaped the destination: %s", e.Name())
		}
	}
}

func TestPushDirectory(t *testing.T) {
	st := memory.New(memory.Config{Streaming: true})

	local := t.TempDir()
	if err := os.MkdirAll(filepath.Join(local, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(local, "top.txt"), []byte("t"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(local, "sub", "leaf.txt"), []byte("l"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := polystore.PushDirectory(context.Background(), st, local, "up", polystore.DirectoryOptions{})
	if err != nil {
		t.Fatalf("PushDirectory: %v", err)
	}
	if !result.Success() || result.Transferred != 2 {
		t.Fatalf("result = %+v", result)
	}
	if got := readObject(t, st, "up/top.txt"); string(got) != "t" {
		t.Errorf("top.txt = %q", got)
	}
	if got := readObject(t, st, "up/sub/leaf.txt"); string(got) != "l" {
		t.Errorf("leaf.txt = %q", got)
	}
}

func TestGetDirectoryFiltered(t *testing.T) {
	st := memory.New(memory.Config{Streaming: true})
	modTime := time.Now().Add(-time.Hour)
	st.Put("corpus/keep.txt", []byte("k"), modTime)
	st.Put("corpus/skip.tmp", []byte("s"), modTime)
	st.Put("corpus/sub/keep.txt", []byte("k2"), modTime)

	local := t.TempDir()
	result, err := polystore.GetDirectory(context.Background(), st, "corpus", local, polystore.DirectoryOptions{
		Filter: filter.New(filter.Exclude("*.tmp")),
	})
	if err != nil {
		t.Fatalf("GetDirectory: %v", err)
	}
	if result.Transferred != 2 || result.Filtered != 1 {
		t.Errorf("transferred = %d, filtered = %d", result.Transferred, result.Filtered)
	}
	if _, err := os.Stat(filepath.Join(local, "skip.tmp")); !os.IsNotExist(err) {
		t.Error("excluded file was transferred")
	}
}

func TestPushDirectoryFiltered(t *testing.T) {
	st := memory.New(memory.Config{Streaming: true})
	local := t.TempDir()
	if err := os.WriteFile(filepath.Join(local, "keep.txt"), []byte("k"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(local, "skip.log"), []byte("s"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := polystore.PushDirectory(context.Background(), st, local, "up", polystore.DirectoryOptions{
		Filter: filter.New(filter.Include("*.txt")),
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Transferred != 1 || result.Filtered != 1 {
		t.Errorf("transferred = %d, filtered = %d", result.Transferred, result.Filtered)
	}
	exists, err := st.Exists(context.Background(), "up/skip.log")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("excluded file was pushed")
	}
}

func TestDeleteRecursive(t *testing.T) {
	st := memory.New(memory.Config{Streaming: true})
	seedTree(t, st)
	ctx := context.Background()

	// the memory variant refuses to delete a non-empty directory, so a
	// clean sweep proves children go before parents
	if err := polystore.DeleteRecursive(ctx, st, "corpus", nil); err != nil {
		t.Fatalf("DeleteRecursive: %v", err)
	}

	exists, err := st.Exists(ctx, "corpus")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("root still exists after recursive delete")
	}
}

// failOneDelete fails Delete for a single path.
type failOneDelete struct {
	polystore.Storage
	path string
}

func (f *failOneDelete) Delete(ctx context.Context, path string) error {
	if path == f.path {
		return fmt.Errorf("locked")
	}
	return f.Storage.Delete(ctx, path)
}

func TestDeleteRecursivePartialFailure(t *testing.T) {
	base := memory.New(memory.Config{Streaming: true})
	seedTree(t, base)
	st := &failOneDelete{Storage: base, path: "corpus/en/b.txt"}
	ctx := context.Background()

	err := polystore.DeleteRecursive(ctx, st, "corpus", nil)
	var walkErr *polystore.WalkError
	if !errors.As(err, &walkErr) {
		t.Fatalf("error = %v, want *WalkError", err)
	}

	failed := walkErr.Failed()
	found := false
	for _, p := range failed {
		if p == "corpus/en/b.txt" {
			found = true
		}
	}
	if !found {
		t.Errorf("Failed() = %v, missing locked path", failed)
	}

	// the locked file must survive
	exists, err := base.Exists(ctx, "corpus/en/b.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("locked file was removed")
	}
}
