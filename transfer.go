package polystore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// TransferStatus reports the outcome of a single-file synchronization.
type TransferStatus string

const (
	// StatusTransferred indicates the file content was actually moved.
	StatusTransferred TransferStatus = "transferred"

	// StatusSkipped indicates the destination was already current and no
	// content was moved.
	StatusSkipped TransferStatus = "skipped"
)

// modTimePrecision is the tolerance applied when comparing modification
// times across filesystems with different timestamp resolutions.
const modTimePrecision = time.Second

// TransferOptions configures single-file and directory transfers.
type TransferOptions struct {
	// Checksum compares content hashes (when the variant reports one)
	// instead of relying on size and modification time alone.
	Checksum bool

	// SkipUnchanged makes Push skip uploads whose remote copy already
	// matches the local fingerprint. Off by default: pushes are
	// unconditional, since a remote overwrite is assumed cheap relative to
	// the risk of a stale upload.
	SkipUnchanged bool

	// Retry configures retry with backoff for failed transfers.
	// Nil or MaxRetries 0 disables retries.
	Retry *RetryConfig

	// Logger receives structured transfer logging. Nil disables logging.
	Logger *slog.Logger
}

func (o TransferOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return nullLogger()
}

// GetFile synchronizes one remote file to a local path.
//
// The remote stat is compared against the local candidate first: when size,
// modification time (within the variant's precision) and, in checksum mode,
// content hash all match, the transfer is skipped and StatusSkipped is
// returned. Otherwise the content is downloaded to a temporary file beside
// the target and atomically renamed into place, so a crash mid-transfer
// never leaves a half-written file at the final path. The downloaded file
// carries the remote modification time, keeping the fingerprint stable for
// the next call.
//
// If the remote path does not exist, GetFile fails with ErrNotFound and
// leaves any pre-existing local file untouched.
func GetFile(ctx context.Context, st Storage, remotePath, localPath string, opts TransferOptions) (TransferStatus, error) {
	logger := opts.logger()
	feats := st.Features()

	// Variants without stat support cannot be fingerprinted; every call
	// downloads.
	var remote FileStat
	if feats.Stat {
		var err error
		remote, err = st.Stat(ctx, remotePath)
		if err != nil {
			return "", err
		}
		if remote.IsDir {
			return "", fmt.Errorf("polystore: %s is a directory, use GetDirectory", remotePath)
		}

		if localMatchesRemote(remote, feats, localPath, opts.Checksum) {
			logger.Debug("local copy is current, skipping transfer",
				slog.String("remote", remotePath),
				slog.String("local", localPath),
			)
			return StatusSkipped, nil
		}
	}

	download := func() error {
		return downloadToTemp(ctx, st, remotePath, localPath, remote.ModTime)
	}
	var err error
	if opts.Retry != nil && opts.Retry.MaxRetries > 0 {
		err = retryOperation(ctx, *opts.Retry, download)
	} else {
		err = download()
	}
	if err != nil {
		return "", err
	}

	logger.Debug("transferred file",
		slog.String("remote", remotePath),
		slog.String("local", localPath),
		slog.Int64("size", remote.Size),
	)
	return StatusTransferred, nil
}

// downloadToTemp writes the remote content to a temporary file in the
// target's directory and renames it over the target on success.
func downloadToTemp(ctx context.Context, st Storage, remotePath, localPath string, modTime time.Time) error {
	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrTransfer, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(localPath)+".*")
	if err != nil {
		return fmt.Errorf("%w: creating temporary file: %v", ErrTransfer, err)
	}
	tmpName := tmp.Name()

	reader, err := st.NewReader(ctx, remotePath)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		if IsNotFound(err) {
			return err
		}
		return fmt.Errorf("%w: opening %s: %v", ErrTransfer, remotePath, err)
	}

	_, copyErr := io.Copy(tmp, reader)
	readCloseErr := reader.Close()
	tmpCloseErr := tmp.Close()

	if copyErr == nil {
		copyErr = readCloseErr
	}
	if copyErr == nil {
		copyErr = tmpCloseErr
	}
	if copyErr != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: downloading %s: %v", ErrTransfer, remotePath, copyErr)
	}

	// Carry the remote modification time so the next GetFile can skip.
	if !modTime.IsZero() {
		_ = os.Chtimes(tmpName, modTime, modTime)
	}

	if err := os.Rename(tmpName, localPath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: replacing %s: %v", ErrTransfer, localPath, err)
	}
	return nil
}

// Push uploads one local file to a remote path.
//
// Pushes are unconditional unless TransferOptions.SkipUnchanged is set,
// in which case a remote copy with a matching fingerprint short-circuits
// the upload with StatusSkipped.
func Push(ctx context.Context, st Storage, localPath, remotePath string, opts TransferOptions) (TransferStatus, error) {
	logger := opts.logger()

	info, err := os.Stat(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: local file %s", ErrNotFound, localPath)
		}
		return "", fmt.Errorf("%w: %v", ErrTransfer, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("polystore: %s is a directory, use PushDirectory", localPath)
	}

	if opts.SkipUnchanged {
		remote, err := st.Stat(ctx, remotePath)
		if err == nil && !remote.IsDir &&
			localMatchesRemote(remote, st.Features(), localPath, opts.Checksum) {
			logger.Debug("remote copy is current, skipping upload",
				slog.String("local", localPath),
				slog.String("remote", remotePath),
			)
			return StatusSkipped, nil
		}
	}

	upload := func() error {
		return uploadFile(ctx, st, localPath, remotePath)
	}
	if opts.Retry != nil && opts.Retry.MaxRetries > 0 {
		err = retryOperation(ctx, *opts.Retry, upload)
	} else {
		err = upload()
	}
	if err != nil {
		return "", err
	}

	logger.Debug("pushed file",
		slog.String("local", localPath),
		slog.String("remote", remotePath),
		slog.Int64("size", info.Size()),
	)
	return StatusTransferred, nil
}

func uploadFile(ctx context.Context, st Storage, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrTransfer, localPath, err)
	}
	defer func() { _ = f.Close() }()

	w, err := st.NewWriter(ctx, remotePath)
	if err != nil {
		return fmt.Errorf("%w: opening %s for write: %v", ErrTransfer, remotePath, err)
	}

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("%w: uploading %s: %v", ErrTransfer, remotePath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: finishing %s: %v", ErrTransfer, remotePath, err)
	}
	return nil
}

// localMatchesRemote reports whether the local file at localPath is already
// current with respect to the remote stat. In checksum mode the strongest
// hash the variant reports wins over the time comparison; otherwise size
// plus modification time within modTimePrecision decides.
func localMatchesRemote(remote FileStat, feats Features, localPath string, checksum bool) bool {
	info, err := os.Stat(localPath)
	if err != nil || info.IsDir() {
		return false
	}
	if info.Size() != remote.Size {
		return false
	}

	if checksum {
		if t := feats.PreferredHash(); t != HashNone && remote.Hashes.Has(t) {
			sum, err := HashFile(localPath, t)
			return err == nil && sum == remote.Hash(t)
		}
	}

	if remote.ModTime.IsZero() {
		return false
	}
	diff := remote.ModTime.Sub(info.ModTime())
	if diff < 0 {
		diff = -diff
	}
	return diff <= modTimePrecision
}
