package polystore

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/polystore/polystore/filter"
)

// DirectoryOptions configures recursive transfers.
type DirectoryOptions struct {
	TransferOptions

	// Concurrency bounds the number of sibling file transfers running in
	// parallel. Default 4. Ordering between siblings is not significant;
	// failures from all siblings are still collected.
	Concurrency int

	// Filter selects which files take part in the transfer. Nil admits
	// every file. Directories are always traversed.
	Filter *filter.Filter
}

func (o DirectoryOptions) concurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return 4
}

// DirectoryResult reports the outcome of a recursive transfer.
// Errors lists every sub-path that failed together with its cause; the
// remaining sub-paths were processed, so a re-run only re-transfers what
// failed or changed.
type DirectoryResult struct {
	Transferred int
	Skipped     int
	Filtered    int
	Errors      []FileError
}

// Success returns true if every sub-path was processed.
func (r *DirectoryResult) Success() bool {
	return len(r.Errors) == 0
}

// Err returns the collected failures as a *WalkError, or nil on success.
func (r *DirectoryResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return &WalkError{Op: "get_directory", Errors: r.Errors}
}

// walkEntry is one node discovered by a tree walk, with its path relative
// to the walk root.
type walkEntry struct {
	rel  string
	stat FileStat
}

// collectTree walks the directory tree rooted at root depth-first,
// visiting each level's entries in sorted name order so traversal is
// deterministic. Directories appear before their contents (pre-order).
//
// Listing failures below the root are collected per sub-path rather than
// aborting the walk. The returned error is non-nil only for failures that
// invalidate the whole walk: a root listing failure, cancellation, a
// child entry resolving to one of its own ancestors (ErrCycle), or an
// entry name that is not a plain child name (ErrInvalidPath). The last
// two guard against malformed listings from a misbehaving variant.
func collectTree(ctx context.Context, st Storage, root string) ([]walkEntry, []FileError, error) {
	var entries []walkEntry
	var failures []FileError
	ancestors := map[string]bool{}

	var walk func(rel string) error
	walk = func(rel string) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		full := joinVirtual(root, rel)
		if ancestors[full] {
			return fmt.Errorf("%w: %s revisits an ancestor", ErrCycle, full)
		}
		ancestors[full] = true
		defer delete(ancestors, full)

		listing, err := st.ListDir(ctx, full)
		if err != nil {
			if rel == "" {
				return err
			}
			failures = append(failures, FileError{Path: full, Op: "list", Err: err})
			return nil
		}

		for _, name := range listing.Names() {
			stat := listing[name]
			childRel := path.Join(rel, name)
			child := joinVirtual(root, childRel)
			if ancestors[child] {
				return fmt.Errorf("%w: entry %q of %s resolves to an ancestor", ErrCycle, name, full)
			}
			if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
				return fmt.Errorf("%w: listing entry %q under %s", ErrInvalidPath, name, full)
			}

			entries = append(entries, walkEntry{rel: childRel, stat: stat})
			if stat.IsDir {
				if err := walk(childRel); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(""); err != nil {
		return nil, nil, err
	}
	return entries, failures, nil
}

// joinVirtual joins a root-relative storage path with a walk-relative one.
func joinVirtual(root, rel string) string {
	if rel == "" {
		return root
	}
	if root == "" {
		return rel
	}
	return root + "/" + rel
}

// ListDirRecursive lists every file below root in one flat Listing keyed
// by path relative to root, so nested entries sharing a terminal name
// cannot collide. Directories are traversed but not listed, matching the
// non-recursive listing convention where directories only mark structure.
func ListDirRecursive(ctx context.Context, st Storage, root string) (Listing, error) {
	entries, failures, err := collectTree(ctx, st, root)
	if err != nil {
		return nil, err
	}
	if len(failures) > 0 {
		return nil, &WalkError{Op: "listdir", Errors: failures}
	}

	listing := make(Listing, len(entries))
	for _, e := range entries {
		if !e.stat.IsDir {
			listing[e.rel] = e.stat
		}
	}
	return listing, nil
}

// GetDirectory synchronizes a remote directory tree to a local directory.
//
// The remote tree is scanned first; the corresponding local directory tree
// is created, then every file is synchronized individually through GetFile,
// with sibling transfers running on a bounded worker pool. Files already
// current locally are skipped, so an interrupted download can be resumed by
// re-running: only changed or missing files are re-transferred.
//
// A missing remote root fails the whole operation with ErrNotFound.
// Individual file failures are collected into the result instead of
// aborting the walk.
func GetDirectory(ctx context.Context, st Storage, remoteDir, localDir string, opts DirectoryOptions) (*DirectoryResult, error) {
	logger := opts.logger()
	result := &DirectoryResult{}

	if st.Features().Stat {
		rootStat, err := st.Stat(ctx, remoteDir)
		if err != nil {
			return nil, err
		}
		if !rootStat.IsDir {
			return nil, fmt.Errorf("polystore: %s is not a directory", remoteDir)
		}
	}

	entries, failures, err := collectTree(ctx, st, remoteDir)
	if err != nil {
		return nil, err
	}
	result.Errors = append(result.Errors, failures...)

	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrTransfer, localDir, err)
	}

	var files []walkEntry
	for _, e := range entries {
		if e.stat.IsDir {
			if err := os.MkdirAll(filepath.Join(localDir, filepath.FromSlash(e.rel)), 0o755); err != nil {
				result.Errors = append(result.Errors, FileError{Path: e.rel, Op: "mkdir", Err: err})
			}
			continue
		}
		if opts.Filter != nil && !opts.Filter.Match(filter.File{Path: e.rel, Size: e.stat.Size, ModTime: e.stat.ModTime}) {
			result.Filtered++
			continue
		}
		files = append(files, e)
	}

	logger.Info("synchronizing directory",
		slog.String("remote", remoteDir),
		slog.String("local", localDir),
		slog.Int("files", len(files)),
		slog.Int("concurrency", opts.concurrency()),
	)

	var transferred, skipped atomic.Int64
	var errorsMu sync.Mutex

	workCh := make(chan walkEntry)
	var wg sync.WaitGroup
	for i := 0; i < opts.concurrency(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range workCh {
				if ctx.Err() != nil {
					return
				}
				remotePath := joinVirtual(remoteDir, e.rel)
				localPath := filepath.Join(localDir, filepath.FromSlash(e.rel))

				status, err := GetFile(ctx, st, remotePath, localPath, opts.TransferOptions)
				if err != nil {
					errorsMu.Lock()
					result.Errors = append(result.Errors, FileError{Path: e.rel, Op: "get", Err: err})
					errorsMu.Unlock()
					continue
				}
				if status == StatusSkipped {
					skipped.Add(1)
				} else {
					transferred.Add(1)
				}
			}
		}()
	}

sendLoop:
	for _, e := range files {
		select {
		case <-ctx.Done():
			break sendLoop
		case workCh <- e:
		}
	}
	close(workCh)
	wg.Wait()

	result.Transferred = int(transferred.Load())
	result.Skipped = int(skipped.Load())

	if err := ctx.Err(); err != nil {
		return result, err
	}

	logger.Info("directory synchronized",
		slog.String("remote", remoteDir),
		slog.Int("transferred", result.Transferred),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// PushDirectory uploads a local directory tree to a remote directory.
// Remote directories are created first on variants with real directories;
// file uploads run on the same bounded worker pool as GetDirectory and
// failures are collected per sub-path.
func PushDirectory(ctx context.Context, st Storage, localDir, remoteDir string, opts DirectoryOptions) (*DirectoryResult, error) {
	logger := opts.logger()
	result := &DirectoryResult{}

	info, err := os.Stat(localDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: local directory %s", ErrNotFound, localDir)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransfer, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("polystore: %s is not a directory", localDir)
	}

	var files []string
	err = filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(localDir, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if st.Features().Mkdir {
				if mkErr := st.Mkdir(ctx, joinVirtual(remoteDir, rel)); mkErr != nil {
					result.Errors = append(result.Errors, FileError{Path: rel, Op: "mkdir", Err: mkErr})
				}
			}
			return nil
		}
		if opts.Filter != nil {
			info, infoErr := d.Info()
			if infoErr != nil {
				return infoErr
			}
			if !opts.Filter.Match(filter.File{Path: rel, Size: info.Size(), ModTime: info.ModTime()}) {
				result.Filtered++
				return nil
			}
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scanning %s: %v", ErrTransfer, localDir, err)
	}

	logger.Info("uploading directory",
		slog.String("local", localDir),
		slog.String("remote", remoteDir),
		slog.Int("files", len(files)),
	)

	var transferred, skipped atomic.Int64
	var errorsMu sync.Mutex

	workCh := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < opts.concurrency(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range workCh {
				if ctx.Err() != nil {
					return
				}
				status, err := Push(ctx, st, filepath.Join(localDir, filepath.FromSlash(rel)), joinVirtual(remoteDir, rel), opts.TransferOptions)
				if err != nil {
					errorsMu.Lock()
					result.Errors = append(result.Errors, FileError{Path: rel, Op: "push", Err: err})
					errorsMu.Unlock()
					continue
				}
				if status == StatusSkipped {
					skipped.Add(1)
				} else {
					transferred.Add(1)
				}
			}
		}()
	}

pushLoop:
	for _, rel := range files {
		select {
		case <-ctx.Done():
			break pushLoop
		case workCh <- rel:
		}
	}
	close(workCh)
	wg.Wait()

	result.Transferred = int(transferred.Load())
	result.Skipped = int(skipped.Load())

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// DeleteRecursive removes the tree rooted at root bottom-up: every entry
// is deleted after its own descendants, files before their parent
// directory, and the root last. A failure partway does not abort the
// sweep; the returned *WalkError names exactly the sub-paths that were
// not removed.
func DeleteRecursive(ctx context.Context, st Storage, root string, logger *slog.Logger) error {
	if logger == nil {
		logger = nullLogger()
	}

	entries, failures, err := collectTree(ctx, st, root)
	if err != nil {
		return err
	}

	var errs []FileError
	errs = append(errs, failures...)

	// Reversed pre-order visits every node after its descendants.
	for i := len(entries) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		full := joinVirtual(root, entries[i].rel)
		if err := st.Delete(ctx, full); err != nil && !IsNotFound(err) {
			errs = append(errs, FileError{Path: full, Op: "delete", Err: err})
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := st.Delete(ctx, root); err != nil && !IsNotFound(err) {
		errs = append(errs, FileError{Path: root, Op: "delete", Err: err})
	}

	logger.Info("recursive delete finished",
		slog.String("root", root),
		slog.Int("deleted", len(entries)+1-len(errs)),
		slog.Int("failed", len(errs)),
	)

	if len(errs) > 0 {
		return &WalkError{Op: "delete", Errors: errs}
	}
	return nil
}
