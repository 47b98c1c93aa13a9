// Package filter selects which files participate in directory transfers.
//
// A filter combines include and exclude glob patterns with size and age
// bounds. Excludes win over includes; a filter without include patterns
// admits everything not excluded.
//
//	f := filter.New(
//	    filter.Include("*.txt"),
//	    filter.Exclude("*.tmp"),
//	    filter.MaxSize(100*filter.MB),
//	)
package filter

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"
	"time"
)

// Size units for the size bounds.
const (
	KB int64 = 1024
	MB       = 1024 * KB
	GB       = 1024 * MB
)

// File is the slice of metadata a filter decides on. Path is relative to
// the transfer root, forward-slash separated.
type File struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Filter decides whether a file takes part in a directory transfer.
// The zero value and nil admit every file.
type Filter struct {
	includes []string
	excludes []string
	minSize  int64
	maxSize  int64
	minAge   time.Duration
	maxAge   time.Duration
}

// Option configures a Filter.
type Option func(*Filter)

// New builds a filter from the given options.
func New(opts ...Option) *Filter {
	f := &Filter{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Include admits only files matching at least one include pattern.
// Patterns use path.Match syntax and are tried against both the full
// relative path and the base name.
func Include(pattern string) Option {
	return func(f *Filter) { f.includes = append(f.includes, pattern) }
}

// Exclude rejects files matching the pattern, regardless of includes.
func Exclude(pattern string) Option {
	return func(f *Filter) { f.excludes = append(f.excludes, pattern) }
}

// MinSize rejects files smaller than size bytes.
func MinSize(size int64) Option {
	return func(f *Filter) { f.minSize = size }
}

// MaxSize rejects files larger than size bytes.
func MaxSize(size int64) Option {
	return func(f *Filter) { f.maxSize = size }
}

// MinAge rejects files modified more recently than d ago.
func MinAge(d time.Duration) Option {
	return func(f *Filter) { f.minAge = d }
}

// MaxAge rejects files modified longer than d ago.
func MaxAge(d time.Duration) Option {
	return func(f *Filter) { f.maxAge = d }
}

// FromFile reads patterns from a rules file, one per line. Lines starting
// with "+ " are includes, lines starting with "- " are excludes, and bare
// lines are excludes. Blank lines and lines starting with "#" are skipped.
func FromFile(rulesPath string) (Option, error) {
	file, err := os.Open(rulesPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var opts []Option
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
		case strings.HasPrefix(line, "+ "):
			opts = append(opts, Include(strings.TrimPrefix(line, "+ ")))
		case strings.HasPrefix(line, "- "):
			opts = append(opts, Exclude(strings.TrimPrefix(line, "- ")))
		default:
			opts = append(opts, Exclude(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading rules from %s: %w", rulesPath, err)
	}

	return func(f *Filter) {
		for _, opt := range opts {
			opt(f)
		}
	}, nil
}

// Match reports whether the file passes the filter.
func (f *Filter) Match(file File) bool {
	if f.IsEmpty() {
		return true
	}

	if len(f.includes) > 0 {
		included := false
		for _, pattern := range f.includes {
			if matchPattern(pattern, file.Path) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	for _, pattern := range f.excludes {
		if matchPattern(pattern, file.Path) {
			return false
		}
	}

	if f.minSize > 0 && file.Size < f.minSize {
		return false
	}
	if f.maxSize > 0 && file.Size > f.maxSize {
		return false
	}
	if f.minAge > 0 && time.Since(file.ModTime) < f.minAge {
		return false
	}
	if f.maxAge > 0 && time.Since(file.ModTime) > f.maxAge {
		return false
	}
	return true
}

// MatchPath matches by path alone, ignoring size and age bounds.
func (f *Filter) MatchPath(p string) bool {
	if f.IsEmpty() {
		return true
	}
	saved := *f
	saved.minSize, saved.maxSize = 0, 0
	saved.minAge, saved.maxAge = 0, 0
	return saved.Match(File{Path: p})
}

// IsEmpty reports whether the filter has no rules at all.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.includes) == 0 && len(f.excludes) == 0 &&
		f.minSize == 0 && f.maxSize == 0 && f.minAge == 0 && f.maxAge == 0)
}

// matchPattern tries the pattern against the full relative path and
// against the base name, so "*.txt" catches nested files too.
func matchPattern(pattern, p string) bool {
	if ok, _ := path.Match(pattern, p); ok {
		return true
	}
	ok, _ := path.Match(pattern, path.Base(p))
	return ok
}
