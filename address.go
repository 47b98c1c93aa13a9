package polystore

import (
	"fmt"
	"strings"
)

// Address identifies a file on a configured storage: "storage-id:/path".
// Path is the normalized virtual path, always absolute, slash-delimited,
// with no "." or ".." segments and no repeated slashes.
type Address struct {
	StorageID string
	Path      string
}

// String returns the address in "storage-id:/path" form.
func (a Address) String() string {
	return a.StorageID + ":" + a.Path
}

// Segments returns the path split into its non-empty segments.
func (a Address) Segments() []string {
	trimmed := strings.Trim(a.Path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Rel returns the path relative to the storage root, the form passed to
// storage primitives ("/a/b" becomes "a/b", "/" becomes "").
func (a Address) Rel() string {
	return strings.TrimPrefix(a.Path, "/")
}

// Dir returns the address of the parent directory.
func (a Address) Dir() Address {
	segs := a.Segments()
	if len(segs) <= 1 {
		return Address{StorageID: a.StorageID, Path: "/"}
	}
	return Address{StorageID: a.StorageID, Path: "/" + strings.Join(segs[:len(segs)-1], "/")}
}

// Base returns the terminal path segment, or "/" for the root.
func (a Address) Base() string {
	segs := a.Segments()
	if len(segs) == 0 {
		return "/"
	}
	return segs[len(segs)-1]
}

// Join returns the address extended with additional path segments.
func (a Address) Join(elems ...string) Address {
	segs := a.Segments()
	segs = append(segs, elems...)
	return Address{StorageID: a.StorageID, Path: "/" + strings.Join(segs, "/")}
}

// ParseAddress parses a "storage-id:/path" string into an Address.
//
// It fails with ErrInvalidAddress when no ":" separator is present or the
// storage-id is empty, and with ErrInvalidPath when the path does not start
// with "/" or contains a "." or ".." segment. Repeated slashes are
// collapsed. The validation guarantees that virtual paths form a proper
// tree with no escape segments, which matters for variants that simulate
// hierarchy from key-prefix matching.
func ParseAddress(address string) (Address, error) {
	id, rawPath, ok := strings.Cut(address, ":")
	if !ok || id == "" {
		return Address{}, fmt.Errorf("%w: %q (want \"storage-id:/path\")", ErrInvalidAddress, address)
	}

	path, err := normalizeVirtualPath(rawPath)
	if err != nil {
		return Address{}, fmt.Errorf("%w in %q", err, address)
	}

	return Address{StorageID: id, Path: path}, nil
}

// IsManagedAddress reports whether the string has the "storage-id:/path"
// shape, without validating the path.
func IsManagedAddress(address string) bool {
	id, rest, ok := strings.Cut(address, ":")
	return ok && id != "" && strings.HasPrefix(rest, "/")
}

// normalizeVirtualPath validates an absolute virtual path and collapses
// repeated slashes. A trailing slash is dropped except for the root.
func normalizeVirtualPath(raw string) (string, error) {
	if !strings.HasPrefix(raw, "/") {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, raw)
	}

	var segs []string
	for _, seg := range strings.Split(raw, "/") {
		switch seg {
		case "":
			// repeated or trailing slash
		case ".", "..":
			return "", fmt.Errorf("%w: %q contains a %q segment", ErrInvalidPath, raw, seg)
		default:
			segs = append(segs, seg)
		}
	}

	if len(segs) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(segs, "/"), nil
}
