// Package memory is an in-process db.Store holding the tree as nested maps
package memory

import (
	"context"
	"sync"

	"github.com/nickmessing/firemodel/internal/db"
	"github.com/nickmessing/firemodel/internal/orm/paths"
)

// Store keeps the value tree in memory
type Store struct {
	mu     sync.RWMutex
	root   map[string]interface{}
	closed bool
}

// New creates an empty store
func New() *Store {
	return &Store{root: make(map[string]interface{})}
}

// Read returns a copy of the value at path
func (s *Store) Read(ctx context.Context, path string) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, db.ErrClosed
	}

	var node interface{} = s.root
	if path != "" {
		node = db.Lookup(s.root, path)
	} else if len(s.root) == 0 {
		return nil, nil
	}
	return db.Clone(node), nil
}

// Write applies writes in order under one lock
func (s *Store) Write(ctx context.Context, writes []db.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return db.ErrClosed
	}

	for _, w := range writes {
		s.apply(paths.Segments(w.Path), db.Clone(w.Value))
	}
	return nil
}

func (s *Store) apply(segments []string, value interface{}) {
	if len(segments) == 0 {
		if m, ok := value.(map[string]interface{}); ok {
			s.root = m
		} else {
			s.root = make(map[string]interface{})
		}
		return
	}

	if value == nil {
		remove(s.root, segments)
		return
	}

	node := s.root
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]interface{})
		if !ok {
			child = make(map[string]interface{})
			node[seg] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = value
}

// remove deletes the path and prunes parents left empty
func remove(node map[string]interface{}, segments []string) {
	key := segments[0]
	if len(segments) == 1 {
		delete(node, key)
		return
	}
	child, ok := node[key].(map[string]interface{})
	if !ok {
		return
	}
	remove(child, segments[1:])
	if len(child) == 0 {
		delete(node, key)
	}
}

// Close marks the store closed
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
