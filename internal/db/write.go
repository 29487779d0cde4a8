package db

import (
	"context"
	"fmt"
	"sort"

	"github.com/nickmessing/firemodel/internal/orm/ormerr"
	"github.com/nickmessing/firemodel/internal/orm/paths"
)

// MultiPathWrite collects updates relative to a base path and executes them
// as one atomic write
type MultiPathWrite struct {
	client  Client
	base    string
	updates map[string]interface{}
}

// NewMultiPathWrite creates an empty multi-path write under base
func NewMultiPathWrite(client Client, base string) *MultiPathWrite {
	return &MultiPathWrite{
		client:  client,
		base:    CleanPath(base),
		updates: make(map[string]interface{}),
	}
}

// Add sets value at path relative to the base
func (w *MultiPathWrite) Add(path string, value interface{}) *MultiPathWrite {
	w.updates[paths.Join(w.base, path)] = value
	return w
}

// Len returns the number of collected updates
func (w *MultiPathWrite) Len() int {
	return len(w.updates)
}

// Paths returns the absolute paths of the collected updates
func (w *MultiPathWrite) Paths() []string {
	out := make([]string, 0, len(w.updates))
	for p := range w.updates {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Updates returns a copy of the collected updates keyed by absolute path
func (w *MultiPathWrite) Updates() map[string]interface{} {
	out := make(map[string]interface{}, len(w.updates))
	for p, v := range w.updates {
		out[p] = v
	}
	return out
}

// Execute writes every collected update. Failures are wrapped in
// ormerr.ErrWriteFailed with the cause preserved.
func (w *MultiPathWrite) Execute(ctx context.Context) error {
	if w.client == nil {
		return fmt.Errorf("%w: multi-path write without a database", ormerr.ErrNoDatabase)
	}
	if len(w.updates) == 0 {
		return nil
	}
	if err := w.client.MultiPathSet(ctx, w.updates); err != nil {
		return fmt.Errorf("%w: %d paths under %q: %w", ormerr.ErrWriteFailed, len(w.updates), w.base, err)
	}
	return nil
}
