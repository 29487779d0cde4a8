package db

import "context"

// Write replaces the value at Path; a nil Value deletes it
type Write struct {
	Path  string
	Value interface{}
}

// Store persists the value tree. Values handed to Write are already
// normalized.
type Store interface {
	// Read returns the value at path, or nil when absent
	Read(ctx context.Context, path string) (interface{}, error)
	// Write applies writes in order as one atomic change
	Write(ctx context.Context, writes []Write) error
	// Close releases the store's resources
	Close() error
}
