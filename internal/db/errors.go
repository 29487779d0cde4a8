package db

import "errors"

var (
	// ErrNoSubscription is returned when unwatching an unknown subscription
	ErrNoSubscription = errors.New("no such subscription")

	// ErrConflict is returned when a store rejected a write because of a
	// concurrent one; the write may be retried
	ErrConflict = errors.New("write conflict")

	// ErrUnavailable is returned when the store cannot be reached
	ErrUnavailable = errors.New("store unavailable")

	// ErrInvalidValue is returned for values that cannot be stored
	ErrInvalidValue = errors.New("invalid value")

	// ErrOverlappingPaths is returned when a multi-path write names a path
	// and one of its descendants
	ErrOverlappingPaths = errors.New("overlapping paths in multi-path write")

	// ErrClosed is returned by a store after Close
	ErrClosed = errors.New("store closed")
)

// IsConflict returns true if the error is a retryable write conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsUnavailable returns true if the store could not be reached
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
