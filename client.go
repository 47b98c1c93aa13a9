package polystore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/polystore/polystore/filter"
	"github.com/polystore/polystore/multi"
)

// StorageConfig declares one named storage in a client's storage map.
type StorageConfig struct {
	// Type names the registered driver, e.g. "local", "ssh", "s3".
	Type string

	// Description is free-form text shown when listing storages.
	Description string

	// Options holds the driver-specific settings validated against the
	// driver's required keys at client construction.
	Options map[string]string
}

// Options configures a Client.
type Options struct {
	// Logger receives structured logging for transfers and deletions.
	// Nil disables logging.
	Logger *slog.Logger

	// Concurrency bounds parallel file transfers within a directory
	// operation. Zero or negative selects the default.
	Concurrency int

	// Checksum enables content-hash fingerprint comparison on variants
	// that report hashes.
	Checksum bool

	// SkipUnchanged makes pushes skip uploads whose remote copy already
	// matches the local fingerprint. Downloads always skip unchanged
	// files regardless of this setting.
	SkipUnchanged bool

	// Retry configures retry with backoff for failed transfers.
	Retry *RetryConfig

	// Filter selects which files take part in directory transfers.
	// Nil admits every file.
	Filter *filter.Filter
}

// Client routes address-based operations to the storages in its map.
//
// Construction validates every declared storage eagerly: an unregistered
// type or a missing required option fails NewClient rather than the first
// operation that touches the storage. The storage handles themselves are
// built lazily, so a client over many remotes only dials the ones it
// actually uses.
type Client struct {
	configs map[string]StorageConfig
	opts    Options
	logger  *slog.Logger

	mu      sync.Mutex
	handles map[string]Storage
	closed  bool
}

// NewClient builds a client over the given storage map.
func NewClient(configs map[string]StorageConfig, opts Options) (*Client, error) {
	for id, cfg := range configs {
		if id == "" {
			return nil, fmt.Errorf("%w: empty storage identifier", ErrConfig)
		}
		if strings.Contains(id, ":") {
			return nil, fmt.Errorf("%w: storage identifier %q must not contain ':'", ErrConfig, id)
		}
		driver, ok := lookupDriver(cfg.Type)
		if !ok {
			return nil, fmt.Errorf("%w: storage %q has type %q", ErrUnknownType, id, cfg.Type)
		}
		for _, key := range driver.Required {
			if cfg.Options[key] == "" {
				return nil, fmt.Errorf("%w: storage %q is missing required option %q", ErrConfig, id, key)
			}
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = nullLogger()
	}

	return &Client{
		configs: configs,
		opts:    opts,
		logger:  logger,
		handles: make(map[string]Storage),
	}, nil
}

// Storages returns the declared storage identifiers in sorted order.
func (c *Client) Storages() []string {
	ids := make([]string, 0, len(c.configs))
	for id := range c.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Describe returns the declared configuration for a storage identifier.
func (c *Client) Describe(storageID string) (StorageConfig, bool) {
	cfg, ok := c.configs[storageID]
	return cfg, ok
}

// IsManaged reports whether the address names a storage declared in this
// client's map.
func (c *Client) IsManaged(address string) bool {
	addr, err := ParseAddress(address)
	if err != nil {
		return false
	}
	_, ok := c.configs[addr.StorageID]
	return ok
}

// resolve returns the live handle for a storage identifier, opening it on
// first use.
func (c *Client) resolve(storageID string) (Storage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrStorageClosed
	}
	if st, ok := c.handles[storageID]; ok {
		return st, nil
	}

	cfg, ok := c.configs[storageID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStorage, storageID)
	}

	st, err := Open(cfg.Type, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("opening storage %q: %w", storageID, err)
	}
	c.handles[storageID] = st
	return st, nil
}

// target parses an address and resolves its storage handle.
func (c *Client) target(address string) (Storage, Address, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, Address{}, err
	}
	st, err := c.resolve(addr.StorageID)
	if err != nil {
		return nil, Address{}, err
	}
	return st, addr, nil
}

func (c *Client) transferOptions() TransferOptions {
	return TransferOptions{
		Checksum:      c.opts.Checksum,
		SkipUnchanged: c.opts.SkipUnchanged,
		Retry:         c.opts.Retry,
		Logger:        c.logger,
	}
}

func (c *Client) directoryOptions() DirectoryOptions {
	return DirectoryOptions{
		TransferOptions: c.transferOptions(),
		Concurrency:     c.opts.Concurrency,
		Filter:          c.opts.Filter,
	}
}

// GetFile synchronizes the remote file at address to localPath. A local
// copy whose fingerprint matches the remote is left alone and reported as
// StatusSkipped.
func (c *Client) GetFile(ctx context.Context, address, localPath string) (TransferStatus, error) {
	st, addr, err := c.target(address)
	if err != nil {
		return "", err
	}
	return GetFile(ctx, st, addr.Rel(), localPath, c.transferOptions())
}

// GetDirectory mirrors the remote tree at address into localDir. Individual
// file failures do not abort the walk; they are collected in the result.
func (c *Client) GetDirectory(ctx context.Context, address, localDir string) (*DirectoryResult, error) {
	st, addr, err := c.target(address)
	if err != nil {
		return nil, err
	}
	return GetDirectory(ctx, st, addr.Rel(), localDir, c.directoryOptions())
}

// Push uploads the local file to the remote address.
func (c *Client) Push(ctx context.Context, localPath, address string) (TransferStatus, error) {
	st, addr, err := c.target(address)
	if err != nil {
		return "", err
	}
	return Push(ctx, st, localPath, addr.Rel(), c.transferOptions())
}

// PushDirectory uploads the local tree rooted at localDir to the remote
// address.
func (c *Client) PushDirectory(ctx context.Context, localDir, address string) (*DirectoryResult, error) {
	st, addr, err := c.target(address)
	if err != nil {
		return nil, err
	}
	return PushDirectory(ctx, st, localDir, addr.Rel(), c.directoryOptions())
}

// PushAll uploads the local file to every address in one pass, writing
// each chunk to all destinations before reading the next. All addresses
// must name storages that accept pushes; any destination failing mid-way
// fails the whole upload.
func (c *Client) PushAll(ctx context.Context, localPath string, addresses ...string) error {
	if len(addresses) == 0 {
		return fmt.Errorf("%w: no destination addresses", ErrInvalidAddress)
	}

	f, err := os.Open(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, localPath)
		}
		return err
	}
	defer f.Close()

	// Resolve every destination before opening any writer, so a bad
	// address costs nothing at the good ones.
	type destination struct {
		st  Storage
		rel string
	}
	dests := make([]destination, 0, len(addresses))
	for _, address := range addresses {
		st, addr, err := c.target(address)
		if err != nil {
			return err
		}
		if !st.Features().Push {
			return fmt.Errorf("%w: push on storage %q", ErrNotSupported, addr.StorageID)
		}
		dests = append(dests, destination{st: st, rel: addr.Rel()})
	}

	writers := make([]io.WriteCloser, 0, len(dests))
	// Closing a writer commits whatever it buffered, so aborting has to
	// close and then remove the object at each destination already opened.
	abort := func() {
		for i, w := range writers {
			_ = w.Close()
			_ = dests[i].st.Delete(ctx, dests[i].rel)
		}
	}

	for i, d := range dests {
		w, err := d.st.NewWriter(ctx, d.rel)
		if err != nil {
			abort()
			return fmt.Errorf("opening %s: %w", addresses[i], err)
		}
		writers = append(writers, w)
	}

	fanout, err := multi.NewWriter(multi.FailFast, writers...)
	if err != nil {
		abort()
		return err
	}

	if _, err := io.Copy(fanout, f); err != nil {
		_ = fanout.Close()
		for _, d := range dests {
			_ = d.st.Delete(ctx, d.rel)
		}
		return err
	}
	if err := fanout.Close(); err != nil {
		for _, d := range dests {
			_ = d.st.Delete(ctx, d.rel)
		}
		return err
	}

	c.logger.Info("pushed file to all destinations",
		slog.String("local", localPath),
		slog.Int("destinations", len(addresses)),
	)
	return nil
}

// Stream opens a chunked stream over the remote file at address. The
// caller must drain or Close the returned stream.
func (c *Client) Stream(ctx context.Context, address string, bufferSize int, opts StreamOptions) (*Stream, error) {
	st, addr, err := c.target(address)
	if err != nil {
		return nil, err
	}
	return OpenStream(ctx, st, addr.Rel(), bufferSize, opts)
}

// Stat returns metadata for the file or directory at address.
func (c *Client) Stat(ctx context.Context, address string) (FileStat, error) {
	st, addr, err := c.target(address)
	if err != nil {
		return FileStat{}, err
	}
	if !st.Features().Stat {
		return FileStat{}, fmt.Errorf("%w: stat on storage %q", ErrNotSupported, addr.StorageID)
	}
	return st.Stat(ctx, addr.Rel())
}

// Exists reports whether the address names an existing file or directory.
func (c *Client) Exists(ctx context.Context, address string) (bool, error) {
	st, addr, err := c.target(address)
	if err != nil {
		return false, err
	}
	if !st.Features().Exists {
		return false, fmt.Errorf("%w: exists on storage %q", ErrNotSupported, addr.StorageID)
	}
	return st.Exists(ctx, addr.Rel())
}

// ListDir lists the entries under the directory at address. With recursive
// set, the listing is flattened to every file in the subtree, keyed by
// path relative to address.
func (c *Client) ListDir(ctx context.Context, address string, recursive bool) (Listing, error) {
	st, addr, err := c.target(address)
	if err != nil {
		return nil, err
	}
	if !st.Features().List {
		return nil, fmt.Errorf("%w: listdir on storage %q", ErrNotSupported, addr.StorageID)
	}
	if recursive {
		return ListDirRecursive(ctx, st, addr.Rel())
	}
	return st.ListDir(ctx, addr.Rel())
}

// Mkdir creates the directory at address, including missing parents on
// variants that track directories.
func (c *Client) Mkdir(ctx context.Context, address string) error {
	st, addr, err := c.target(address)
	if err != nil {
		return err
	}
	if !st.Features().Mkdir {
		return fmt.Errorf("%w: mkdir on storage %q", ErrNotSupported, addr.StorageID)
	}
	return st.Mkdir(ctx, addr.Rel())
}

// Delete removes the file or directory at address. A directory requires
// recursive unless it is empty; a non-empty directory without recursive
// fails with ErrDirectoryNotEmpty and leaves the tree untouched.
func (c *Client) Delete(ctx context.Context, address string, recursive bool) error {
	st, addr, err := c.target(address)
	if err != nil {
		return err
	}
	if !st.Features().Delete {
		return fmt.Errorf("%w: delete on storage %q", ErrNotSupported, addr.StorageID)
	}

	rel := addr.Rel()
	stat, err := st.Stat(ctx, rel)
	if err != nil {
		return err
	}
	if !stat.IsDir {
		return st.Delete(ctx, rel)
	}

	if recursive {
		return DeleteRecursive(ctx, st, rel, c.logger)
	}

	listing, err := st.ListDir(ctx, rel)
	if err != nil {
		return err
	}
	if len(listing) > 0 {
		return fmt.Errorf("%w: %s", ErrDirectoryNotEmpty, address)
	}
	return st.Delete(ctx, rel)
}

// Rename moves the object at oldAddress to newAddress. Both addresses
// must name the same storage; moving between storages is a copy concern,
// not a rename.
func (c *Client) Rename(ctx context.Context, oldAddress, newAddress string) error {
	oldAddr, err := ParseAddress(oldAddress)
	if err != nil {
		return err
	}
	newAddr, err := ParseAddress(newAddress)
	if err != nil {
		return err
	}
	if oldAddr.StorageID != newAddr.StorageID {
		return fmt.Errorf("%w: rename across storages %q and %q", ErrInvalidAddress, oldAddr.StorageID, newAddr.StorageID)
	}

	st, err := c.resolve(oldAddr.StorageID)
	if err != nil {
		return err
	}
	if !st.Features().Rename {
		return fmt.Errorf("%w: rename on storage %q", ErrNotSupported, oldAddr.StorageID)
	}
	return st.Rename(ctx, oldAddr.Rel(), newAddr.Rel())
}

// Close releases every storage handle the client has opened. The client
// is unusable afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for id, st := range c.handles {
		if err := st.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing storage %q: %w", id, err))
		}
	}
	c.handles = nil
	return errors.Join(errs...)
}
