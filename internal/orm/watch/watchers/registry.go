// Package watchers keeps the bookkeeping of active database watchers
package watchers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nickmessing/firemodel/internal/db"
	"github.com/nickmessing/firemodel/internal/orm/dispatch"
	"github.com/nickmessing/firemodel/internal/orm/ormerr"
	"github.com/nickmessing/firemodel/internal/orm/query"
)

// Entry is the registration of one started watcher
type Entry struct {
	Hash           string
	Classification string
	Query          query.Descriptor
	Dispatch       dispatch.DispatchFunc
	DBPath         string
	LocalPath      string
	CreatedAt      int64
	Subscription   db.Subscription
	// Client is the database the watcher was attached to
	Client db.Client
}

// Registry holds the active watchers of a session keyed by hash
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Add registers e. It returns false when a watcher with the same hash is
// already registered, leaving the existing entry in place.
func (r *Registry) Add(e Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[e.Hash]; exists {
		return false
	}
	r.entries[e.Hash] = e
	return true
}

// Lookup returns the registration for hash
func (r *Registry) Lookup(hash string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[hash]
	if !ok {
		return Entry{}, fmt.Errorf("%w: no watcher is registered under %q", ormerr.ErrInvalidHashcode, hash)
	}
	return e, nil
}

// Has reports whether hash is registered
func (r *Registry) Has(hash string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[hash]
	return ok
}

// Remove drops the registration for hash and reports whether it existed
func (r *Registry) Remove(hash string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[hash]
	delete(r.entries, hash)
	return ok
}

// Entries returns every registration ordered by hash
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

// Hashes returns the sorted hashes of every registration
func (r *Registry) Hashes() []string {
	entries := r.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Hash
	}
	return out
}

// Count returns the number of registrations
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reset clears the bookkeeping without touching database subscriptions
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Entry)
}
