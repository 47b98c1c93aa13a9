package polystore

import (
	"errors"
	"strconv"
)

// Common errors returned by polystore storages and the client.
var (
	// ErrNotFound is returned when a remote path does not exist.
	ErrNotFound = errors.New("polystore: not found")

	// ErrInvalidAddress is returned when a storage address cannot be parsed.
	ErrInvalidAddress = errors.New("polystore: invalid address")

	// ErrInvalidPath is returned when a virtual path is malformed
	// (relative, empty, or containing "." / ".." segments).
	ErrInvalidPath = errors.New("polystore: invalid path")

	// ErrUnknownStorage is returned when an address references a storage
	// identifier that is not configured on the client.
	ErrUnknownStorage = errors.New("polystore: unknown storage")

	// ErrUnknownType is returned when a configuration entry names a storage
	// type that is not registered.
	ErrUnknownType = errors.New("polystore: unknown storage type")

	// ErrConfig is returned for invalid storage configuration, detected at
	// client construction time.
	ErrConfig = errors.New("polystore: invalid configuration")

	// ErrNotSupported is returned when an operation is not supported by the
	// storage variant it is dispatched to.
	ErrNotSupported = errors.New("polystore: operation not supported")

	// ErrDirectoryNotEmpty is returned when deleting a non-empty directory
	// without the recursive flag.
	ErrDirectoryNotEmpty = errors.New("polystore: directory not empty")

	// ErrTransfer is returned when an I/O failure interrupts a transfer.
	ErrTransfer = errors.New("polystore: transfer failed")

	// ErrCycle is returned when a recursive listing observes a child entry
	// that resolves to one of its own ancestors.
	ErrCycle = errors.New("polystore: listing cycle detected")

	// ErrStorageClosed is returned when operating on a closed storage.
	ErrStorageClosed = errors.New("polystore: storage closed")

	// ErrPermissionDenied is returned when access to a path is denied.
	ErrPermissionDenied = errors.New("polystore: permission denied")

	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("polystore: writer closed")

	// ErrStreamClosed is returned when pulling from a closed stream.
	ErrStreamClosed = errors.New("polystore: stream closed")
)

// IsNotFound returns true if the error indicates a path was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNotSupported returns true if the error indicates an unsupported operation.
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

// IsInvalidAddress returns true if the error indicates a malformed address.
func IsInvalidAddress(err error) bool {
	return errors.Is(err, ErrInvalidAddress) || errors.Is(err, ErrInvalidPath)
}

// IsPermissionDenied returns true if the error indicates permission was denied.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// FileError records a failure for one sub-path during a multi-file operation.
type FileError struct {
	Path string
	Op   string // "get", "push", "delete", "list", "stat"
	Err  error
}

func (e FileError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e FileError) Unwrap() error {
	return e.Err
}

// WalkError aggregates per-path failures from a recursive operation.
// The operation processed every sub-path it could; Errors names each one
// that failed together with its cause, so a retried walk only needs to
// re-process the failed sub-paths.
type WalkError struct {
	Op     string
	Errors []FileError
}

func (e *WalkError) Error() string {
	if len(e.Errors) == 1 {
		return e.Op + ": 1 path failed: " + e.Errors[0].Error()
	}
	msg := e.Op + ": " + strconv.Itoa(len(e.Errors)) + " paths failed"
	for i, fe := range e.Errors {
		if i == 3 {
			msg += "; ..."
			break
		}
		msg += "; " + fe.Error()
	}
	return msg
}

// Failed returns the sub-paths that were not processed successfully.
func (e *WalkError) Failed() []string {
	paths := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		paths = append(paths, fe.Path)
	}
	return paths
}
