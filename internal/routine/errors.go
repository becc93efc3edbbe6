package routine

import "errors"

// Common errors returned by the sync layer.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, routine.ErrTransient) {
//	    // Serve cached data and surface a non-blocking indicator.
//	}
var (
	// ErrTransient is returned when a remote call failed in a way that is
	// recoverable by retrying or by falling back to the local store.
	ErrTransient = errors.New("transient remote error")

	// ErrValidation is returned when required fields are missing or
	// malformed. The operation is rejected before any network call.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a bulk import detects a time overlap,
	// or a sync-verification read shows a mutation did not take effect.
	ErrConflict = errors.New("conflict detected")

	// ErrNotFound is returned when operating on an id that is absent both
	// locally and remotely. Deletes treat this as already satisfied.
	ErrNotFound = errors.New("entity not found")

	// ErrUnsupportedOffline is returned when an operation that requires
	// connectivity (bulk import) is attempted while offline.
	ErrUnsupportedOffline = errors.New("operation not supported offline")

	// ErrOffline is returned when an online-only code path is reached
	// without connectivity and there is no cached fallback.
	ErrOffline = errors.New("offline and no cached data available")
)

// IsRetryable returns true if the error is likely to succeed on a later
// reconciliation pass once connectivity recovers.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrOffline)
}

// IsRejected returns true if the error indicates the input itself was bad
// and retrying without changing it cannot succeed.
func IsRejected(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict)
}
