// Package ssh provides a storage variant over SFTP.
//
// Password authentication:
//
//	st, err := ssh.New(ssh.Config{
//	    Server:   "example.com",
//	    User:     "username",
//	    Password: "password",
//	})
//
// Key authentication, with the key inline or from a file:
//
//	st, err := ssh.New(ssh.Config{
//	    Server:  "example.com",
//	    User:    "username",
//	    KeyFile: "/path/to/id_rsa",
//	})
package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/polystore/polystore"
)

func init() {
	polystore.Register("ssh", polystore.Driver{
		New:      NewFromOptions,
		Required: []string{"server", "user"},
	})
}

// Backend implements polystore.Storage over SFTP.
type Backend struct {
	sshClient  *ssh.Client
	sftpClient *sftp.Client
	config     Config
	closed     bool
	mu         sync.RWMutex
}

// New creates an SSH variant with the given configuration and dials the
// server.
func New(cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30
	}

	var authMethods []ssh.AuthMethod
	if cfg.Password != "" {
		authMethods = append(authMethods, ssh.Password(cfg.Password))
	}
	if cfg.PrivateKey != "" {
		auth, err := keyAuth([]byte(cfg.PrivateKey), cfg.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("ssh: parsing inline key: %w", err)
		}
		authMethods = append(authMethods, auth)
	}
	if cfg.KeyFile != "" {
		keyData, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("ssh: reading key file: %w", err)
		}
		auth, err := keyAuth(keyData, cfg.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("ssh: parsing key file: %w", err)
		}
		authMethods = append(authMethods, auth)
	}

	// NOTE: host key verification is disabled. Remotes in a storage map
	// are operator-declared, not user-supplied.
	sshConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		Timeout:         time.Duration(cfg.Timeout) * time.Second,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server, cfg.Port)
	sshClient, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("ssh: connection failed: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, fmt.Errorf("ssh: SFTP session failed: %w", err)
	}

	return &Backend{
		sshClient:  sshClient,
		sftpClient: sftpClient,
		config:     cfg,
	}, nil
}

// NewFromOptions creates an SSH variant from an options map.
func NewFromOptions(options map[string]string) (polystore.Storage, error) {
	return New(ConfigFromOptions(options))
}

// keyAuth creates an SSH auth method from PEM-encoded key data.
func keyAuth(keyData []byte, passphrase string) (ssh.AuthMethod, error) {
	var signer ssh.Signer
	var err error
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyData)
	}
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}

// NewWriter creates a writer for the given path, creating missing parent
// directories on the remote.
func (b *Backend) NewWriter(ctx context.Context, p string, opts ...polystore.WriterOption) (io.WriteCloser, error) {
	if err := b.preflight(ctx); err != nil {
		return nil, err
	}

	fullPath := b.fullPath(p)
	if err := b.sftpClient.MkdirAll(path.Dir(fullPath)); err != nil {
		return nil, fmt.Errorf("ssh: creating directory for %s: %w", p, err)
	}

	f, err := b.sftpClient.Create(fullPath)
	if err != nil {
		return nil, translateError(p, err)
	}
	return f, nil
}

// NewReader creates a reader for the given path.
func (b *Backend) NewReader(ctx context.Context, p string, opts ...polystore.ReaderOption) (io.ReadCloser, error) {
	if err := b.preflight(ctx); err != nil {
		return nil, err
	}

	f, err := b.sftpClient.Open(b.fullPath(p))
	if err != nil {
		return nil, translateError(p, err)
	}

	cfg := polystore.ApplyReaderOptions(opts...)
	if cfg.Offset > 0 {
		if _, err := f.Seek(cfg.Offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("ssh: seeking to offset %d: %w", cfg.Offset, err)
		}
	}
	if cfg.Limit > 0 {
		return &limitedReader{r: f, remaining: cfg.Limit}, nil
	}
	return f, nil
}

// Stat returns metadata for the given path.
func (b *Backend) Stat(ctx context.Context, p string) (polystore.FileStat, error) {
	if err := b.preflight(ctx); err != nil {
		return polystore.FileStat{}, err
	}

	info, err := b.sftpClient.Stat(b.fullPath(p))
	if err != nil {
		return polystore.FileStat{}, translateError(p, err)
	}
	return polystore.FileStat{
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Exists checks if a path exists.
func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	if err := b.preflight(ctx); err != nil {
		return false, err
	}

	_, err := b.sftpClient.Stat(b.fullPath(p))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, translateError(p, err)
}

// ListDir lists the immediate entries of a directory, keyed by name.
func (b *Backend) ListDir(ctx context.Context, p string) (polystore.Listing, error) {
	if err := b.preflight(ctx); err != nil {
		return nil, err
	}

	entries, err := b.sftpClient.ReadDir(b.fullPath(p))
	if err != nil {
		return nil, translateError(p, err)
	}

	listing := make(polystore.Listing, len(entries))
	for _, info := range entries {
		listing[info.Name()] = polystore.FileStat{
			IsDir:   info.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
	}
	return listing, nil
}

// Mkdir creates a directory, including missing parents.
func (b *Backend) Mkdir(ctx context.Context, p string) error {
	if err := b.preflight(ctx); err != nil {
		return err
	}

	if err := b.sftpClient.MkdirAll(b.fullPath(p)); err != nil {
		return translateError(p, err)
	}
	return nil
}

// Delete removes a file or an empty directory.
func (b *Backend) Delete(ctx context.Context, p string) error {
	if err := b.preflight(ctx); err != nil {
		return err
	}

	err := b.sftpClient.Remove(b.fullPath(p))
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return translateError(p, err)
}

// Rename moves a file or directory to a new path on the same server.
func (b *Backend) Rename(ctx context.Context, p, newPath string) error {
	if err := b.preflight(ctx); err != nil {
		return err
	}

	target := b.fullPath(newPath)
	if err := b.sftpClient.MkdirAll(path.Dir(target)); err != nil {
		return fmt.Errorf("ssh: creating directory for %s: %w", newPath, err)
	}

	// PosixRename overwrites an existing target; plain Rename is a
	// fallback for servers without the extension.
	err := b.sftpClient.PosixRename(b.fullPath(p), target)
	if err != nil {
		err = b.sftpClient.Rename(b.fullPath(p), target)
	}
	if err != nil {
		return translateError(p, err)
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

// Close terminates the SFTP session and the SSH connection.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if b.sftpClient != nil {
		if err := b.sftpClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.sshClient != nil {
		if err := b.sshClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("ssh: close errors: %v", errs)
	}
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

func (b *Backend) fullPath(p string) string {
	if b.config.BaseDir == "" {
		return p
	}
	return path.Join(b.config.BaseDir, p)
}

func translateError(p string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", polystore.ErrNotFound, p)
	}
	if os.IsPermission(err) {
		return fmt.Errorf("%w: %s", polystore.ErrPermissionDenied, p)
	}
	return err
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
