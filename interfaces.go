// Package polystore provides a uniform abstraction over heterogeneous
// remote file stores.
//
// Every file is addressed as "storage-id:/path", where the storage-id
// selects a configured backend instance (local filesystem, SSH, S3, Swift,
// or a pattern-driven HTTP store) and the path is a virtual, slash-delimited,
// absolute path inside that storage's namespace.
//
// Basic usage:
//
//	client, _ := polystore.NewClient(map[string]polystore.StorageConfig{
//	    "models": {Type: "s3", Options: map[string]string{"bucket_name": "models"}},
//	}, polystore.Options{})
//	status, _ := client.GetFile(ctx, "models:/en-fr/model.bin", "/tmp/model.bin")
package polystore

import (
	"context"
	"io"
)

// Storage is the capability contract implemented by every concrete storage
// variant. All operations act on a single virtual path, relative to the
// storage root, with forward slashes and no leading slash; recursion is
// layered on top by the client using only these flat primitives.
//
// Not every variant supports every operation. Features reports which
// operations are available; calling an unsupported operation returns
// ErrNotSupported. Implementations are safe for concurrent use as long as
// the underlying native client is, or they serialize access internally.
type Storage interface {
	// NewReader opens the file at path for reading.
	// Returns ErrNotFound if the path does not exist.
	// Range reads (WithOffset/WithLimit) are honored when
	// Features().RangeRead is true.
	NewReader(ctx context.Context, path string, opts ...ReaderOption) (io.ReadCloser, error)

	// NewWriter opens the file at path for writing, truncating any existing
	// content. Intermediate directories are created implicitly by variants
	// without real directory objects; variants with real directories create
	// the missing parents as well. The returned writer must be closed to
	// flush the content.
	NewWriter(ctx context.Context, path string, opts ...WriterOption) (io.WriteCloser, error)

	// Stat returns metadata for the file or directory at path.
	// Returns ErrNotFound if the path does not exist.
	Stat(ctx context.Context, path string) (FileStat, error)

	// Exists reports whether path exists. A missing path is reported as
	// (false, nil), never as ErrNotFound.
	Exists(ctx context.Context, path string) (bool, error)

	// ListDir returns the immediate children of the directory at path,
	// keyed by entry name. Returns ErrNotFound if the path does not exist
	// or is not a directory.
	ListDir(ctx context.Context, path string) (Listing, error)

	// Mkdir creates the directory at path, including missing parents.
	// Variants with simulated hierarchies create a directory marker.
	Mkdir(ctx context.Context, path string) error

	// Delete removes a single file, or a directory only if it is empty.
	// Deleting a path that does not exist is a no-op, which keeps retried
	// and concurrent sweeps idempotent.
	Delete(ctx context.Context, path string) error

	// Rename moves the object at path to newPath. Atomic where the variant
	// supports it (Features().AtomicRename); emulated as copy+delete on
	// object stores, in which case a failure midway can leave both the
	// source and a partial destination present.
	Rename(ctx context.Context, path, newPath string) error

	// Features returns the capability set of this storage variant.
	Features() Features

	// Close releases any resources held by the storage.
	// After Close, all other methods return ErrStorageClosed.
	Close() error
}
