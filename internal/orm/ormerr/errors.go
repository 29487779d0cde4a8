// Package ormerr defines the error kinds shared by the model layer.
package ormerr

import (
	"errors"
)

// Error kinds. Each sentinel's message is its stable code so callers and
// logs can match on it.
var (
	// ErrInvalidPath is returned when a record path is requested before an id is known
	ErrInvalidPath = errors.New("record/invalid-path")

	// ErrNotAllowed is returned when re-setting an immutable field or passing an invalid finder argument
	ErrNotAllowed = errors.New("NotAllowed")

	// ErrInvalidSave is returned when saving a record that already has an id
	ErrInvalidSave = errors.New("InvalidSave")

	// ErrNoDatabase is returned when an operation needs a database client and none is bound
	ErrNoDatabase = errors.New("NoDatabase")

	// ErrNotFound is returned when a lookup finds nothing and no default was supplied
	ErrNotFound = errors.New("NotFound")

	// ErrInvalidRelationship is returned when a relationship operation doesn't match the declared cardinality
	ErrInvalidRelationship = errors.New("InvalidRelationship")

	// ErrNotPushKey is returned when pushing onto a property not declared as a push-key
	ErrNotPushKey = errors.New("invalid-operation/not-pushkey")

	// ErrNotOnDB is returned when pushing onto a record that was never saved
	ErrNotOnDB = errors.New("invalid-operation/not-on-db")

	// ErrWriteFailed wraps a failed multi-path write
	ErrWriteFailed = errors.New("multi-path/write-error")

	// ErrInvalidHashcode is returned when looking up an unknown watcher
	ErrInvalidHashcode = errors.New("InvalidHashcode")

	// ErrForbidden is returned when stopping a watcher that is not active
	ErrForbidden = errors.New("Forbidden")

	// ErrUnknownModel is returned when resolving a model that was never registered
	ErrUnknownModel = errors.New("UnknownModel")
)

var kinds = []error{
	ErrInvalidPath,
	ErrNotAllowed,
	ErrInvalidSave,
	ErrNoDatabase,
	ErrNotFound,
	ErrInvalidRelationship,
	ErrNotPushKey,
	ErrNotOnDB,
	ErrWriteFailed,
	ErrInvalidHashcode,
	ErrForbidden,
	ErrUnknownModel,
}

// Code returns the code of the first error kind found in err's chain, or
// an empty string when err carries none.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return ""
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNotAllowed returns true if the error is ErrNotAllowed
func IsNotAllowed(err error) bool {
	return errors.Is(err, ErrNotAllowed)
}

// IsNoDatabase returns true if the error is ErrNoDatabase
func IsNoDatabase(err error) bool {
	return errors.Is(err, ErrNoDatabase)
}

// IsInvalidPath returns true if the error is ErrInvalidPath
func IsInvalidPath(err error) bool {
	return errors.Is(err, ErrInvalidPath)
}

// IsWriteFailed returns true if the error is a wrapped multi-path write failure
func IsWriteFailed(err error) bool {
	return errors.Is(err, ErrWriteFailed)
}
