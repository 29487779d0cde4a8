// Package tracking detects which paths of a record payload differ from the
// last state known to be persisted.
package tracking

import (
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/nickmessing/firemodel/internal/orm/query"
)

// FieldChange represents a change at one slash separated path
type FieldChange struct {
	Path     string
	OldValue interface{}
	NewValue interface{}
}

// ChangeTracker compares a record's current payload with its persisted one.
// Nested mappings are compared per key so a push key added under "tags"
// reports "tags/<key>" rather than the whole mapping.
type ChangeTracker struct {
	mu       sync.RWMutex
	original map[string]interface{}
	current  map[string]interface{}
	changes  map[string]*FieldChange
}

// NewChangeTracker creates a tracker whose original and current state are
// both a copy of persisted
func NewChangeTracker(persisted map[string]interface{}) *ChangeTracker {
	ct := &ChangeTracker{
		original: DeepCopyMap(persisted),
		current:  DeepCopyMap(persisted),
		changes:  make(map[string]*FieldChange),
	}
	return ct
}

// DeepCopyMap creates a deep copy of a payload; nil yields an empty map
func DeepCopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return make(map[string]interface{})
	}
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		result[k] = DeepCopyValue(v)
	}
	return result
}

// DeepCopyValue creates a deep copy of a payload value
func DeepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		return DeepCopyMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = DeepCopyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

func (ct *ChangeTracker) recompute() {
	ct.changes = make(map[string]*FieldChange)
	diff("", ct.original, ct.current, ct.changes)
}

// diff records every path where old and cur disagree. Mappings on both
// sides are descended into; anything else is compared whole.
func diff(prefix string, old, cur map[string]interface{}, out map[string]*FieldChange) {
	for key, newValue := range cur {
		path := join(prefix, key)
		oldValue, had := old[key]
		oldMap, oldIsMap := oldValue.(map[string]interface{})
		newMap, newIsMap := newValue.(map[string]interface{})
		if had && oldIsMap && newIsMap {
			diff(path, oldMap, newMap, out)
			continue
		}
		if !had || !Equal(oldValue, newValue) {
			out[path] = &FieldChange{Path: path, OldValue: oldValue, NewValue: newValue}
		}
	}
	for key, oldValue := range old {
		if _, exists := cur[key]; !exists {
			path := join(prefix, key)
			out[path] = &FieldChange{Path: path, OldValue: oldValue}
		}
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// Equal compares payload values, treating numbers of different Go types as
// equal when their values match
func Equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, aNum := query.ToFloat(a)
	fb, bNum := query.ToFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	ma, aMap := a.(map[string]interface{})
	mb, bMap := b.(map[string]interface{})
	if aMap && bMap {
		if len(ma) != len(mb) {
			return false
		}
		for k, va := range ma {
			vb, ok := mb[k]
			if !ok || !Equal(va, vb) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// Set writes value at a slash separated path of the current payload,
// creating intermediate mappings as needed. A nil value deletes the path.
func (ct *ChangeTracker) Set(path string, value interface{}) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	setPath(ct.current, path, DeepCopyValue(value))
	ct.recompute()
}

func setPath(m map[string]interface{}, path string, value interface{}) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	node := m
	for _, seg := range segments[:len(segments)-1] {
		child, ok := node[seg].(map[string]interface{})
		if !ok {
			if value == nil {
				return
			}
			child = make(map[string]interface{})
			node[seg] = child
		}
		node = child
	}
	last := segments[len(segments)-1]
	if value == nil {
		delete(node, last)
		return
	}
	node[last] = value
}

// Replace swaps the whole current payload
func (ct *ChangeTracker) Replace(current map[string]interface{}) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.current = DeepCopyMap(current)
	ct.recompute()
}

// Changed returns true if path, or anything below it, changed
func (ct *ChangeTracker) Changed(path string) bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	if _, ok := ct.changes[path]; ok {
		return true
	}
	for p := range ct.changes {
		if strings.HasPrefix(p, path+"/") {
			return true
		}
	}
	return false
}

// ChangedPaths returns the sorted list of changed paths
func (ct *ChangeTracker) ChangedPaths() []string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	paths := make([]string, 0, len(ct.changes))
	for p := range ct.changes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// GetChange returns the change at path, or nil if unchanged
func (ct *ChangeTracker) GetChange(path string) *FieldChange {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.changes[path]
}

// HasChanges returns true if the current payload differs from the persisted one
func (ct *ChangeTracker) HasChanges() bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.changes) > 0
}

// ChangedData returns a multi-path update of every changed path; removed
// paths map to nil
func (ct *ChangeTracker) ChangedData() map[string]interface{} {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	result := make(map[string]interface{}, len(ct.changes))
	for p, change := range ct.changes {
		result[p] = DeepCopyValue(change.NewValue)
	}
	return result
}

// Current returns a copy of the current payload
func (ct *ChangeTracker) Current() map[string]interface{} {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return DeepCopyMap(ct.current)
}

// Value returns a copy of the current value at a slash separated path, or
// nil when nothing is set there
func (ct *ChangeTracker) Value(path string) interface{} {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return DeepCopyValue(lookup(ct.current, path))
}

// Persisted returns a copy of the last committed payload
func (ct *ChangeTracker) Persisted() map[string]interface{} {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return DeepCopyMap(ct.original)
}

// Commit marks the given paths as persisted. With no paths the whole
// current payload becomes the persisted state.
func (ct *ChangeTracker) Commit(paths ...string) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if len(paths) == 0 {
		ct.original = DeepCopyMap(ct.current)
		ct.changes = make(map[string]*FieldChange)
		return
	}
	for _, p := range paths {
		setPath(ct.original, p, DeepCopyValue(lookup(ct.current, p)))
	}
	ct.recompute()
}

// Rollback discards uncommitted changes
func (ct *ChangeTracker) Rollback() {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.current = DeepCopyMap(ct.original)
	ct.changes = make(map[string]*FieldChange)
}

func lookup(m map[string]interface{}, path string) interface{} {
	var node interface{} = m
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		child, ok := node.(map[string]interface{})
		if !ok {
			return nil
		}
		node = child[seg]
	}
	return node
}
