// Package memory provides an in-process storage variant. It backs tests
// and acts as a scratch space; nothing survives the process.
//
// Objects live in a flat map keyed by path. Directories are simulated:
// a directory exists when it was created explicitly or when any object
// lives beneath it, the same way object stores fake hierarchy with key
// prefixes.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/polystore/polystore"
)

func init() {
	polystore.Register("memory", polystore.Driver{
		New: NewFromOptions,
	})
}

type object struct {
	data    []byte
	modTime time.Time
}

// Config holds configuration for the memory variant.
type Config struct {
	// Streaming controls whether the variant advertises native streaming.
	// Disabling it forces stream consumers onto the temp-file fallback,
	// which tests rely on.
	Streaming bool

	// ReportHashes makes Stat report an MD5 content hash, imitating
	// object stores that expose checksums in their listings.
	ReportHashes bool
}

// Backend implements polystore.Storage in process memory.
type Backend struct {
	config Config

	mu      sync.RWMutex
	objects map[string]*object
	dirs    map[string]bool
	closed  bool
}

// New creates an empty memory variant.
func New(config Config) *Backend {
	return &Backend{
		config:  config,
		objects: make(map[string]*object),
		dirs:    make(map[string]bool),
	}
}

// NewFromOptions creates a memory variant from an options map.
// Supported keys:
//   - streaming: "false" disables native streaming (default "true")
//   - hashes: "true" makes Stat report MD5 hashes (default "false")
func NewFromOptions(options map[string]string) (polystore.Storage, error) {
	config := Config{Streaming: true}
	if options["streaming"] == "false" {
		config.Streaming = false
	}
	if options["hashes"] == "true" {
		config.ReportHashes = true
	}
	return New(config), nil
}

// NewWriter returns a writer whose content becomes visible atomically
// when it is closed.
func (b *Backend) NewWriter(ctx context.Context, p string, opts ...polystore.WriterOption) (io.WriteCloser, error) {
	if err := b.preflight(ctx, p); err != nil {
		return nil, err
	}
	return &memWriter{backend: b, path: p}, nil
}

// NewReader returns a reader over the object's content at the time of the
// call.
func (b *Backend) NewReader(ctx context.Context, p string, opts ...polystore.ReaderOption) (io.ReadCloser, error) {
	if err := b.preflight(ctx, p); err != nil {
		return nil, err
	}

	b.mu.RLock()
	obj, ok := b.objects[p]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", polystore.ErrNotFound, p)
	}

	data := obj.data
	config := polystore.ApplyReaderOptions(opts...)
	if config.Offset > 0 {
		if config.Offset >= int64(len(data)) {
			data = nil
		} else {
			data = data[config.Offset:]
		}
	}
	if config.Limit > 0 && config.Limit < int64(len(data)) {
		data = data[:config.Limit]
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Stat returns metadata for a file or a simulated directory.
func (b *Backend) Stat(ctx context.Context, p string) (polystore.FileStat, error) {
	if err := b.preflight(ctx, p); err != nil {
		return polystore.FileStat{}, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if obj, ok := b.objects[p]; ok {
		stat := polystore.FileStat{
			Size:    int64(len(obj.data)),
			ModTime: obj.modTime,
		}
		if b.config.ReportHashes {
			sum := md5.Sum(obj.data)
			stat.Hashes = polystore.HashSet{
				polystore.HashMD5: hex.EncodeToString(sum[:]),
			}
		}
		return stat, nil
	}
	if b.dirExistsLocked(p) {
		return polystore.FileStat{IsDir: true}, nil
	}
	return polystore.FileStat{}, fmt.Errorf("%w: %s", polystore.ErrNotFound, p)
}

// Exists checks if a file or simulated directory exists.
func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	if err := b.preflight(ctx, p); err != nil {
		return false, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[p]
	return ok || b.dirExistsLocked(p), nil
}

// ListDir lists the immediate children of a simulated directory, keyed by
// name.
func (b *Backend) ListDir(ctx context.Context, p string) (polystore.Listing, error) {
	if err := b.preflight(ctx, p); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.objects[p]; ok {
		return nil, fmt.Errorf("%w: %s is not a directory", polystore.ErrInvalidPath, p)
	}
	if !b.dirExistsLocked(p) {
		return nil, fmt.Errorf("%w: %s", polystore.ErrNotFound, p)
	}

	prefix := childPrefix(p)
	listing := make(polystore.Listing)

	for objPath, obj := range b.objects {
		if !strings.HasPrefix(objPath, prefix) {
			continue
		}
		rest := objPath[len(prefix):]
		if name, _, nested := strings.Cut(rest, "/"); nested {
			listing[name] = polystore.FileStat{IsDir: true}
		} else {
			stat := polystore.FileStat{
				Size:    int64(len(obj.data)),
				ModTime: obj.modTime,
			}
			if b.config.ReportHashes {
				sum := md5.Sum(obj.data)
				stat.Hashes = polystore.HashSet{
					polystore.HashMD5: hex.EncodeToString(sum[:]),
				}
			}
			listing[name] = stat
		}
	}
	for dir := range b.dirs {
		if !strings.HasPrefix(dir, prefix) {
			continue
		}
		rest := dir[len(prefix):]
		name, _, _ := strings.Cut(rest, "/")
		if _, taken := listing[name]; !taken {
			listing[name] = polystore.FileStat{IsDir: true}
		}
	}
	return listing, nil
}

// Mkdir records a directory so it exists even while empty.
func (b *Backend) Mkdir(ctx context.Context, p string) error {
	if err := b.preflight(ctx, p); err != nil {
		return err
	}
	if p == "" {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[p]; ok {
		return fmt.Errorf("%w: %s is a file", polystore.ErrInvalidPath, p)
	}
	b.dirs[p] = true
	return nil
}

// Delete removes a file or an empty simulated directory.
func (b *Backend) Delete(ctx context.Context, p string) error {
	if err := b.preflight(ctx, p); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.objects[p]; ok {
		delete(b.objects, p)
		return nil
	}
	if !b.dirExistsLocked(p) {
		return nil
	}

	prefix := childPrefix(p)
	for objPath := range b.objects {
		if strings.HasPrefix(objPath, prefix) {
			return fmt.Errorf("%w: %s", polystore.ErrDirectoryNotEmpty, p)
		}
	}
	for dir := range b.dirs {
		if strings.HasPrefix(dir, prefix) {
			return fmt.Errorf("%w: %s", polystore.ErrDirectoryNotEmpty, p)
		}
	}
	delete(b.dirs, p)
	return nil
}

// Rename moves a file, or a simulated directory with everything beneath
// it, to a new path.
func (b *Backend) Rename(ctx context.Context, p, newPath string) error {
	if err := b.preflight(ctx, p); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if obj, ok := b.objects[p]; ok {
		delete(b.objects, p)
		b.objects[newPath] = obj
		return nil
	}
	if !b.dirExistsLocked(p) {
		return fmt.Errorf("%w: %s", polystore.ErrNotFound, p)
	}

	prefix := childPrefix(p)
	for objPath, obj := range b.objects {
		if strings.HasPrefix(objPath, prefix) {
			delete(b.objects, objPath)
			b.objects[path.Join(newPath, objPath[len(prefix):])] = obj
		}
	}
	for dir := range b.dirs {
		switch {
		case dir == p:
			delete(b.dirs, dir)
			b.dirs[newPath] = true
		case strings.HasPrefix(dir, prefix):
			delete(b.dirs, dir)
			b.dirs[path.Join(newPath, dir[len(prefix):])] = true
		}
	}
	return nil
}

// Features describes the variant's capabilities.
func (b *Backend) Features() polystore.Features {
	f := polystore.Features{
		Read:             true,
		Push:             true,
		List:             true,
		Exists:           true,
		Stat:             true,
		Mkdir:            true,
		Delete:           true,
		Rename:           true,
		AtomicRename:     true,
		CanStream:        b.config.Streaming,
		RangeRead:        true,
		PreservesModTime: true,
	}
	if b.config.ReportHashes {
		f.Hashes = []polystore.HashType{polystore.HashMD5}
	}
	return f
}

// Close releases the variant and drops its contents.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.objects = nil
	b.dirs = nil
	return nil
}

// Put stores content directly, bypassing the writer. Test helper.
func (b *Backend) Put(p string, data []byte, modTime time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[p] = &object{data: append([]byte(nil), data...), modTime: modTime}
}

func (b *Backend) preflight(ctx context.Context, p string) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return polystore.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.HasPrefix(p, "/") {
		return polystore.ErrInvalidPath
	}
	return nil
}

// dirExistsLocked reports whether p is the root, an explicit directory,
// or implied by an object beneath it. Callers hold at least a read lock.
func (b *Backend) dirExistsLocked(p string) bool {
	if p == "" || b.dirs[p] {
		return true
	}
	prefix := childPrefix(p)
	for objPath := range b.objects {
		if strings.HasPrefix(objPath, prefix) {
			return true
		}
	}
	for dir := range b.dirs {
		if strings.HasPrefix(dir, prefix) {
			return true
		}
	}
	return false
}

func childPrefix(p string) string {
	if p == "" {
		return ""
	}
	return p + "/"
}

// memWriter buffers writes and commits the object on Close.
type memWriter struct {
	backend *Backend
	path    string
	buf     bytes.Buffer
	closed  bool
	mu      sync.Mutex
}

func (w *memWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, polystore.ErrWriterClosed
	}
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	w.backend.mu.Lock()
	defer w.backend.mu.Unlock()
	if w.backend.closed {
		return polystore.ErrStorageClosed
	}
	w.backend.objects[w.path] = &object{
		data:    append([]byte(nil), w.buf.Bytes()...),
		modTime: time.Now(),
	}
	return nil
}

var _ polystore.Storage = (*Backend)(nil)
