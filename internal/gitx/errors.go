package gitx

import "errors"

// Common errors returned by git operations.
//
// These can be checked with errors.Is. The push taxonomy matters most:
// ErrPushRejected marks the recoverable non-fast-forward case that the sync
// coordinator resolves by fetching and merging; every other push failure
// (auth, network, permission) is terminal and surfaces as-is.
var (
	// ErrNotInRepo is returned when the operation requires being inside
	// a git repository but none was found.
	ErrNotInRepo = errors.New("not in a git repository")

	// ErrRefNotFound is returned when a reference does not exist.
	ErrRefNotFound = errors.New("reference not found")

	// ErrNoRemote is returned when an operation requires a remote
	// but none is configured.
	ErrNoRemote = errors.New("no remote configured")

	// ErrPushRejected is returned when the remote rejects a push as
	// non-fast-forward. The caller can recover by fetching and merging.
	ErrPushRejected = errors.New("push rejected by remote (non-fast-forward)")

	// ErrFileNotInRef is returned when extracting a file from a ref
	// that does not contain it.
	ErrFileNotInRef = errors.New("file not present in ref")

	// ErrStaleRef is returned when a compare-and-swap ref update fails
	// because the branch moved underneath the operation.
	ErrStaleRef = errors.New("branch ref changed during commit")
)

// IsRetryable reports whether a sync-level retry (fetch + merge + push)
// can resolve the error.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPushRejected)
}
