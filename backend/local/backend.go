// Package local provides a storage variant over a directory of the local
// filesystem. It is mainly useful for tests and for treating a mounted
// share like any other remote.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/polystore/polystore"
)

func init() {
	polystore.Register("local", polystore.Driver{
		New: NewFromOptions,
	})
}

// Config holds configuration for the local variant.
type Config struct {
	// BaseDir is the directory all paths are resolved against.
	BaseDir string

	// DirPermissions is the mode for created directories. Default 0755.
	DirPermissions os.FileMode

	// FilePermissions is the mode for created files. Default 0644.
	FilePermissions os.FileMode
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseDir:         ".",
		DirPermissions:  0755,
		FilePermissions: 0644,
	}
}

// Backend implements polystore.Storage over the local filesystem.
type Backend struct {
	config Config
	closed bool
	mu     sync.RWMutex
}

// New creates a local variant with the given configuration.
func New(config Config) *Backend {
	if config.BaseDir == "" {
		config.BaseDir = "."
	}
	if config.DirPermissions == 0 {
		config.DirPermissions = 0755
	}
	if config.FilePermissions == 0 {
		config.FilePermissions = 0644
	}
	return &Backend{config: config}
}

// NewFromOptions creates a local variant from an options map.
// Supported keys:
//   - basedir: directory all paths are resolved against (default ".")
func NewFromOptions(options map[string]string) (polystore.Storage, error) {
	config := DefaultConfig()
	if basedir := options["basedir"]; basedir != "" {
		config.BaseDir = basedir
	}
	return New(config), nil
}

// NewWriter creates a writer for the given path, creating missing parent
// directories.
func (b *Backend) NewWriter(ctx context.Context, path string, opts ...polystore.WriterOption) (io.WriteCloser, error) {
	if err := b.preflight(ctx, path); err != nil {
		return nil, err
	}

	fullPath := b.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(fullPath), b.config.DirPermissions); err != nil {
		return nil, fmt.Errorf("creating directory for %s: %w", path, err)
	}

	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, b.config.FilePermissions)
	if err != nil {
		return nil, translateError(path, err)
	}
	return f, nil
}

// NewReader creates a reader for the given path.
func (b *Backend) NewReader(ctx context.Context, path string, opts ...polystore.ReaderOption) (io.ReadCloser, error) {
	if err := b.preflight(ctx, path); err != nil {
		return nil, err
	}

	f, err := os.Open(b.fullPath(path))
	if err != nil {
		return nil, translateError(path, err)
	}

	config := polystore.ApplyReaderOptions(opts...)
	if config.Offset > 0 {
		if _, err := f.Seek(config.Offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("seeking to offset %d: %w", config.Offset, err)
		}
	}
	if config.Limit > 0 {
		return &limitedReadCloser{
			r:      io.LimitReader(f, config.Limit),
			closer: f,
		}, nil
	}
	return f, nil
}

// Stat returns metadata for the given path.
func (b *Backend) Stat(ctx context.Context, path string) (polystore.FileStat, error) {
	if err := b.preflight(ctx, path); err != nil {
		return polystore.FileStat{}, err
	}

	info, err := os.Stat(b.fullPath(path))
	if err != nil {
		return polystore.FileStat{}, translateError(path, err)
	}
	return polystore.FileStat{
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Exists checks if a path exists.
func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	if err := b.preflight(ctx, path); err != nil {
		return false, err
	}

	_, err := os.Stat(b.fullPath(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking existence of %s: %w", path, err)
}

// ListDir lists the immediate entries of a directory, keyed by name.
func (b *Backend) ListDir(ctx context.Context, path string) (polystore.Listing, error) {
	if err := b.preflight(ctx, path); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(b.fullPath(path))
	if err != nil {
		return nil, translateError(path, err)
	}

	listing := make(polystore.Listing, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// entry removed between ReadDir and Info
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("listing %s: %w", path, err)
		}
		listing[entry.Name()] = polystore.FileStat{
			IsDir:   info.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
	}
	return listing, nil
}

// Mkdir creates a directory, including missing parents.
func (b *Backend) Mkdir(ctx context.Context, path string) error {
	if err := b.preflight(ctx, path); err != nil {
		return err
	}

	if err := os.MkdirAll(b.fullPath(path), b.config.DirPermissions); err != nil {
		return translateError(path, err)
	}
	return nil
}

// Delete removes a file or an empty directory.
func (b *Backend) Delete(ctx context.Context, path string) error {
	if err := b.preflight(ctx, path); err != nil {
		return err
	}

	err := os.Remove(b.fullPath(path))
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return translateError(path, err)
}

// Rename moves a file or directory to a new path within the variant.
func (b *Backend) Rename(ctx context.Context, path, newPath string) error {
	if err := b.preflight(ctx, path); err != nil {
		return err
	}
	if err := validatePath(newPath); err != nil {
		return err
	}

	target := b.fullPath(newPath)
	if err := os.MkdirAll(filepath.Dir(target), b.config.DirPermissions); err != nil {
		return fmt.Errorf("creating directory for %s: %w", newPath, err)
	}
	if err := os.Rename(b.fullPath(path), target); err != nil {
		return translateError(path, err)
	}
	return nil
}

// Features describes the variant's capabilities.
func (b *Backend) Features() polystore.Features {
	return polystore.Features{
		Read:             true,
		Push:             true,
		List:             true,
		Exists:           true,
		Stat:             true,
		Mkdir:            true,
		Delete:           true,
		Rename:           true,
		AtomicRename:     true,
		CanStream:        true,
		RangeRead:        true,
		PreservesModTime: true,
	}
}

// Close releases the variant. Further operations fail.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Backend) preflight(ctx context.Context, path string) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return polystore.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return validatePath(path)
}

// fullPath resolves a storage path against the base directory.
func (b *Backend) fullPath(path string) string {
	return filepath.Join(b.config.BaseDir, filepath.FromSlash(path))
}

// validatePath rejects traversal outside the base directory. The empty
// path names the base directory itself.
func validatePath(path string) error {
	if path == "" {
		return nil
	}
	cleaned := filepath.ToSlash(filepath.Clean(path))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return polystore.ErrInvalidPath
	}
	return nil
}

func translateError(path string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", polystore.ErrNotFound, path)
	}
	if os.IsPermission(err) {
		return fmt.Errorf("%w: %s", polystore.ErrPermissionDenied, path)
	}
	return err
}

type limitedReadCloser struct {
	r      io.Reader
	closer io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (n int, err error) {
	return l.r.Read(p)
}

func (l *limitedReadCloser) Close() error {
	return l.closer.Close()
}

var _ polystore.Storage = (*Backend)(nil)
