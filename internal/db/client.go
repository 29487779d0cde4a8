// Package db is the realtime database port used by the model layer: a
// tree of JSON values addressed by slash separated paths, with ordered
// queries, atomic multi-path writes and live change events.
package db

import (
	"context"

	"github.com/nickmessing/firemodel/internal/orm/query"
)

// EventType classifies a live change event
type EventType int

const (
	// EventValue carries the whole value at the watched location
	EventValue EventType = iota
	// EventChildAdded is emitted when a child enters the query results
	EventChildAdded
	// EventChildChanged is emitted when a child's value changed
	EventChildChanged
	// EventChildMoved is emitted when a child changed position in the results
	EventChildMoved
	// EventChildRemoved is emitted when a child left the query results
	EventChildRemoved
)

// String returns the wire name of the event type
func (t EventType) String() string {
	switch t {
	case EventValue:
		return "value"
	case EventChildAdded:
		return "child_added"
	case EventChildChanged:
		return "child_changed"
	case EventChildMoved:
		return "child_moved"
	case EventChildRemoved:
		return "child_removed"
	default:
		return "unknown"
	}
}

// ChildEvents returns the four child event types
func ChildEvents() []EventType {
	return []EventType{EventChildAdded, EventChildRemoved, EventChildChanged, EventChildMoved}
}

// Event is a raw change notification. Key is the child key for child
// events and the last path segment for value events.
type Event struct {
	Type    EventType
	Path    string
	Key     string
	Value   interface{}
	PrevKey string
}

// Listener receives raw change events
type Listener func(Event)

// Subscription identifies an active watch
type Subscription string

// Client is the realtime database contract consumed by records, lists and
// watchers
type Client interface {
	// Get returns the value at path, or nil when nothing is stored there
	Get(ctx context.Context, path string) (interface{}, error)
	// Set replaces the value at path; a nil value removes it
	Set(ctx context.Context, path string, value interface{}) error
	// Update atomically sets each child path of path
	Update(ctx context.Context, path string, values map[string]interface{}) error
	// Remove deletes the value at path
	Remove(ctx context.Context, path string) error
	// MultiPathSet atomically sets every absolute path in updates
	MultiPathSet(ctx context.Context, updates map[string]interface{}) error
	// RunQuery evaluates q and returns the matching children as records
	// with "id" set to the child key
	RunQuery(ctx context.Context, q *query.Query) ([]map[string]interface{}, error)
	// Watch delivers the current state and every later change of q
	Watch(ctx context.Context, q *query.Query, types []EventType, listener Listener) (Subscription, error)
	// Unwatch cancels one subscription
	Unwatch(sub Subscription) error
	// UnwatchAll cancels every subscription
	UnwatchAll() error
}
