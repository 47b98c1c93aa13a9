// Package swift provides a storage variant over OpenStack Swift object
// storage.
//
// Like S3, Swift has a flat object namespace; directories are simulated
// with name prefixes and "application/directory" marker objects.
package swift

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/ncw/swift/v2"

	"github.com/polystore/polystore"
)

func init() {
	polystore.Register("swift", polystore.Driver{
		New:      NewFromOptions,
		Required: []string{"container_name", "auth_url"},
	})
}

const directoryContentType = "application/directory"

// Backend implements polystore.Storage over a Swift container.
type Backend struct {
	conn   *swift.Connection
	config Config
	closed bool
	mu     sync.RWMutex
}

// New creates a Swift variant and authenticates against the configured
// endpoint.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn := &swift.Connection{
		UserName:    cfg.UserName,
		ApiKey:      cfg.APIKey,
		AuthUrl:     cfg.AuthURL,
		Domain:      cfg.Domain,
		Tenant:      cfg.Tenant,
		Region:      cfg.Region,
		AuthVersion: cfg.AuthVersion,
	}
	if err := conn.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("swift: authentication failed: %w", err)
	}

	return &Backend{conn: conn, config: cfg}, nil
}

// NewFromOptions creates a Swift variant from an options map.
func NewFromOptions(options map[string]string) (polystore.Storage, error) {
	return New(context.Background(), ConfigFromOptions(options))
}

// NewWriter streams content into a new object, replacing any existing
// one when the writer is closed.
func (b *Backend) NewWriter(ctx context.Context, p string, opts ...polystore.WriterOption) (io.WriteCloser, error) {
	if err := b.preflight(ctx); err != nil {
		return nil, err
	}

	cfg := polystore.ApplyWriterOptions(opts...)
	headers := swift.Headers{}
	for k, v := range cfg.Metadata {
		headers["X-Object-Meta-"+k] = v
	}

	f, err := b.conn.ObjectCreate(ctx, b.config.Container, b.objectName(p), false, "", cfg.ContentType, headers)
	if err != nil {
		return nil, translateError(p, err)
	}
	return f, nil
}

// NewReader streams the object at the given path.
func (b *Backend) NewReader(ctx context.Context, p string, opts ...polystore.ReaderOption) (io.ReadCloser, error) {
	if err := b.preflight(ctx); err != nil {
		return nil, err
	}

	f, _, err := b.conn.ObjectOpen(ctx, b.config.Container, b.objectName(p), false, nil)
	if err != nil {
		return nil, translateError(p, err)
	}

	cfg := polystore.ApplyReaderOptions(opts...)
	if cfg.Offset > 0 {
		if _, err := f.Seek(ctx, cfg.Offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("swift: seeking to offset %d: %w", cfg.Offset, err)
		}
	}
	if cfg.Limit > 0 {
		return &limitedReader{r: f, remaining: cfg.Limit}, nil
	}
	return f, nil
}

// Stat returns metadata for an object or a simulated directory.
func (b *Backend) Stat(ctx context.Context, p string) (polystore.FileStat, error) {
	if err := b.preflight(ctx); err != nil {
		return polystore.FileStat{}, err
	}

	name := b.objectName(p)
	obj, _, err := b.conn.Object(ctx, b.config.Container, name)
	if err == nil {
		if obj.ContentType == directoryContentType {
			return polystore.FileStat{IsDir: true}, nil
		}
		stat := polystore.FileStat{
			Size:    obj.Bytes,
			ModTime: obj.LastModified,
		}
		if obj.Hash != "" {
			stat.Hashes = polystore.HashSet{polystore.HashMD5: obj.Hash}
		}
		return stat, nil
	}
	if !errors.Is(err, swift.ObjectNotFound) {
		return polystore.FileStat{}, translateError(p, err)
	}

	ok, err := b.dirExists(ctx, name)
	if err != nil {
		return polystore.FileStat{}, err
	}
	if ok {
		return polystore.FileStat{IsDir: true}, nil
	}
	return polystore.FileStat{}, fmt.Errorf("%w: %s", polystore.ErrNotFound, p)
}

// Exists checks if an object or simulated directory exists.
func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	_, err := b.Stat(ctx, p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, polystore.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// ListDir lists the immediate entries under a name prefix, keyed by name.
func (b *Backend) ListDir(ctx context.Context, p string) (polystore.Listing, error) {
	if err := b.preflight(ctx); err != nil {
		return nil, err
	}

	name := b.objectName(p)
	prefix := childPrefix(name)

	ok, err := b.dirExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", polystore.ErrNotFound, p)
	}

	objects, err := b.conn.Objects(ctx, b.config.Container, &swift.ObjectsOpts{
		Prefix:    prefix,
		Delimiter: '/',
	})
	if err != nil {
		return nil, fmt.Errorf("swift: listing %s: %w", p, err)
	}

	listing := make(polystore.Listing, len(objects))
	for _, obj := range objects {
		if obj.SubDir != "" {
			entry := strings.TrimSuffix(strings.TrimPrefix(obj.SubDir, prefix), "/")
			if entry != "" {
				listing[entry] = polystore.FileStat{IsDir: true}
			}
			continue
		}
		if obj.Name == prefix {
			// the directory marker itself
			continue
		}
		entry := strings.TrimPrefix(obj.Name, prefix)
		if obj.PseudoDirectory || obj.ContentType == directoryContentType {
			listing[strings.TrimSuffix(entry, "/")] = polystore.FileStat{IsDir: true}
			continue
		}
		stat := polystore.FileStat{
			Size:    obj.Bytes,
			ModTime: obj.LastModified,
		}
		if obj.Hash != "" {
			stat.Hashes = polystore.HashSet{polystore.HashMD5: obj.Hash}
		}
		listing[entry] = stat
	}
	return listing, nil
}

// Mkdir creates an "application/directory" marker so the prefix exists
// while empty.
func (b *Backend) Mkdir(ctx context.Context, p string) error {
	if err := b.preflight(ctx); err != nil {
		return err
	}
	if p == "" {
		return nil
	}

	f, err := b.conn.ObjectCreate(ctx, b.config.Container, b.objectName(p), false, "", directoryContentType, nil)
	if err != nil {
		return fmt.Errorf("swift: creating directory marker for %s: %w", p, err)
	}
	return f.Close()
}

// Delete removes an object or a directory marker. Missing names are not
// an error.
func (b *Backend) Delete(ctx context.Context, p string) error {
	if err := b.preflight(ctx); err != nil {
		return err
	}

	err := b.conn.ObjectDelete(ctx, b.config.Container, b.objectName(p))
	if err != nil && !errors.Is(err, swift.ObjectNotFound) {
		return translateError(p, err)
	}
	return nil
}

// Rename moves an object, or every object under a directory prefix, with
// server-side copies followed by deletes. Not atomic.
func (b *Backend) Rename(ctx context.Context, p, newPath string) error {
	if err := b.preflight(ctx); err != nil {
		return err
	}

	name := b.objectName(p)
	newName := b.objectName(newPath)

	err := b.conn.ObjectMove(ctx, b.config.Container, name, b.config.Container, newName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, swift.ObjectNotFound) {
		return translateError(p, err)
	}

	prefix := childPrefix(name)
	names, err := b.conn.ObjectNames(ctx, b.config.Container, &swift.ObjectsOpts{Prefix: prefix})
	if err != nil {
		return fmt.Errorf("swift: listing %s: %w", p, err)
	}
	if len(names) == 0 {
		return fmt.Errorf("%w: %s", polystore.ErrNotFound, p)
	}
	for _, objName := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := path.Join(newName, strings.TrimPrefix(objName, prefix))
		if strings.HasSuffix(objName, "/") {
			target += "/"
		}
		if err := b.conn.ObjectMove(ctx, b.config.Container, objName, b.config.Container, target); err != nil {
			return translateError(objName, err)
		}
	}
	return nil
}

// Features describes the variant's capabilities. Modification times are
// upload times, so fingerprint comparisons should prefer checksum mode.
func (b *Backend) Features() polystore.Features {
	return polystore.Features{
		Read:      true,
		Push:      true,
		List:      true,
		Exists:    true,
		Stat:      true,
		Mkdir:     true,
		Delete:    true,
		Rename:    true,
		CanStream: true,
		RangeRead: true,
		Hashes:    []polystore.HashType{polystore.HashMD5},
	}
}

// Close releases the variant. Further operations fail.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Backend) preflight(ctx context.Context) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return polystore.ErrStorageClosed
	}
	return ctx.Err()
}

// dirExists reports whether any object lives at or under the prefix.
func (b *Backend) dirExists(ctx context.Context, name string) (bool, error) {
	if name == "" || name == b.config.Prefix {
		return true, nil
	}
	names, err := b.conn.ObjectNames(ctx, b.config.Container, &swift.ObjectsOpts{
		Prefix: childPrefix(name),
		Limit:  1,
	})
	if err != nil {
		return false, fmt.Errorf("swift: listing %s: %w", name, err)
	}
	return len(names) > 0, nil
}

func (b *Backend) objectName(p string) string {
	if b.config.Prefix == "" {
		return p
	}
	return path.Join(b.config.Prefix, p)
}

func childPrefix(name string) string {
	if name == "" || strings.HasSuffix(name, "/") {
		return name
	}
	return name + "/"
}

// translateError converts client errors to storage errors.
func translateError(p string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, swift.ObjectNotFound) || errors.Is(err, swift.ContainerNotFound) {
		return fmt.Errorf("%w: %s", polystore.ErrNotFound, p)
	}
	if errors.Is(err, swift.AuthorizationFailed) || errors.Is(err, swift.Forbidden) {
		return fmt.Errorf("%w: %s", polystore.ErrPermissionDenied, p)
	}
	return fmt.Errorf("swift: %w", err)
}

// limitedReader wraps a reader with a byte limit.
type limitedReader struct {
	r         io.ReadCloser
	remaining int64
}

func (lr *limitedReader) Read(p []byte) (n int, err error) {
	if lr.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > lr.remaining {
		p = p[:lr.remaining]
	}
	n, err = lr.r.Read(p)
	lr.remaining -= int64(n)
	return
}

func (lr *limitedReader) Close() error {
	return lr.r.Close()
}

var _ polystore.Storage = (*Backend)(nil)
