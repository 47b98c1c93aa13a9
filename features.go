package polystore

// Features describes the capability set of a storage variant.
// The client checks the relevant flag before dispatching an operation and
// surfaces ErrNotSupported when it is absent, so "unsupported" is a
// first-class outcome rather than a call-time failure.
type Features struct {
	// Read indicates the variant can serve file content.
	// All variants set this.
	Read bool

	// Push indicates the variant accepts uploads.
	// The HTTP variant only sets this when a push pattern is configured.
	Push bool

	// List indicates the variant can list directory contents.
	// The HTTP variant only sets this when a list pattern is configured.
	List bool

	// Exists indicates existence checks are available.
	Exists bool

	// Stat indicates file metadata (size, modification time) is available.
	Stat bool

	// Mkdir indicates directories can be created. Object stores create
	// zero-byte marker objects to simulate directories.
	Mkdir bool

	// Delete indicates single-path deletion is available.
	Delete bool

	// Rename indicates rename is available in some form.
	Rename bool

	// AtomicRename indicates Rename is a single native operation.
	// When false, Rename is emulated as copy+delete and is not atomic:
	// a failure midway can leave source and destination coexisting.
	AtomicRename bool

	// CanStream indicates NewReader streams directly from the remote
	// connection. When false, the streaming adapter downloads to a scoped
	// temporary file first and replays it.
	CanStream bool

	// RangeRead indicates NewReader honors byte offsets and limits.
	RangeRead bool

	// Hashes lists the content hash types the variant reports in FileStat,
	// usable for fingerprint comparison during sync.
	Hashes []HashType

	// PreservesModTime indicates downloads can carry the remote
	// modification time, making time-based fingerprints reliable.
	PreservesModTime bool
}

// SupportsHash returns true if the variant reports the given hash type.
func (f Features) SupportsHash(t HashType) bool {
	for _, h := range f.Hashes {
		if h == t {
			return true
		}
	}
	return false
}

// PreferredHash returns the strongest hash type the variant reports.
// Returns HashNone if no hashes are reported.
func (f Features) PreferredHash() HashType {
	for _, t := range []HashType{HashSHA256, HashSHA1, HashMD5, HashCRC32C} {
		if f.SupportsHash(t) {
			return t
		}
	}
	return HashNone
}
