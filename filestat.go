package polystore

import (
	"sort"
	"time"
)

// FileStat describes a file or directory on a storage.
// For directories only IsDir is meaningful; size and modification time are
// reported for files, with whatever precision the variant can supply.
type FileStat struct {
	// IsDir reports whether the entry is a directory (real or simulated).
	IsDir bool

	// Size is the file size in bytes. Zero for directories.
	Size int64

	// ModTime is the last modification time.
	// Zero for directories and for variants that cannot supply one.
	ModTime time.Time

	// Hashes holds the content hashes the variant reports (e.g. the MD5
	// ETag on object stores). Nil when none are available.
	Hashes HashSet
}

// Hash returns the hash value for the given type, or "" if not reported.
func (s FileStat) Hash(t HashType) string {
	return s.Hashes.Get(t)
}

// Listing maps entry names to their stats for one directory level.
// Recursive listings instead use paths relative to the listed root as keys,
// so nested entries sharing a terminal name cannot collide.
type Listing map[string]FileStat

// Names returns the listing keys in sorted order.
// Walk order is derived from this, keeping traversal deterministic.
func (l Listing) Names() []string {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Files returns the sorted keys of non-directory entries.
func (l Listing) Files() []string {
	var names []string
	for name, stat := range l {
		if !stat.IsDir {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Dirs returns the sorted keys of directory entries.
func (l Listing) Dirs() []string {
	var names []string
	for name, stat := range l {
		if stat.IsDir {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
