package polystore

import (
	"crypto/md5"  //nolint:gosec // MD5 used for content fingerprints, not security
	"crypto/sha1" //nolint:gosec // SHA1 used for content fingerprints, not security
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"hash/crc32"
	"io"
	"os"
)

// HashType identifies a content hash algorithm used for fingerprints.
type HashType string

const (
	// HashNone indicates no hash.
	HashNone HashType = ""

	// HashMD5 is reported by S3 and Swift as the object ETag.
	HashMD5 HashType = "md5"

	// HashSHA1 is the SHA-1 hash algorithm.
	HashSHA1 HashType = "sha1"

	// HashSHA256 is the SHA-256 hash algorithm.
	HashSHA256 HashType = "sha256"

	// HashCRC32C is the CRC32C checksum.
	HashCRC32C HashType = "crc32c"
)

// String returns the string representation of the hash type.
func (h HashType) String() string {
	return string(h)
}

// NewHash creates a hash.Hash for the given hash type.
// Returns nil if the hash type is not supported.
func NewHash(t HashType) hash.Hash {
	switch t {
	case HashMD5:
		return md5.New() //nolint:gosec // fingerprint comparison
	case HashSHA1:
		return sha1.New() //nolint:gosec // fingerprint comparison
	case HashSHA256:
		return sha256.New()
	case HashCRC32C:
		return crc32.New(crc32.MakeTable(crc32.Castagnoli))
	default:
		return nil
	}
}

// HashReader computes the hex-encoded hash of all data from r.
func HashReader(r io.Reader, t HashType) (string, error) {
	h := NewHash(t)
	if h == nil {
		return "", ErrNotSupported
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile computes the hex-encoded hash of a local file.
func HashFile(path string, t HashType) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	return HashReader(f, t)
}

// HashSet holds hash values by type for one object.
type HashSet map[HashType]string

// Get returns the hash value for the given type, or "" if not present.
func (hs HashSet) Get(t HashType) string {
	if hs == nil {
		return ""
	}
	return hs[t]
}

// Has returns true if the set contains a value for the given hash type.
func (hs HashSet) Has(t HashType) bool {
	_, ok := hs[t]
	return ok
}
