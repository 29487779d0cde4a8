package db

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/nickmessing/firemodel/internal/orm/paths"
)

// Normalize converts v to the JSON value model stored in the tree: numbers
// become float64, structs become mappings, and nil children and empty
// mappings are dropped. A value that normalizes to nothing returns nil.
func Normalize(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return prune(out), nil
}

func prune(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	for k, child := range m {
		pruned := prune(child)
		if pruned == nil {
			delete(m, k)
			continue
		}
		m[k] = pruned
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Clone deep copies a normalized value
func Clone(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[k] = Clone(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = Clone(child)
		}
		return out
	default:
		return v
	}
}

// CleanPath returns path without leading, trailing or repeated slashes
func CleanPath(path string) string {
	return paths.Join(path)
}

// Contains returns true if path equals base or lies below it. The root
// path "" contains everything.
func Contains(base, path string) bool {
	if base == "" || base == path {
		return true
	}
	return strings.HasPrefix(path, base+"/")
}

// Overlaps returns true if one path contains the other
func Overlaps(a, b string) bool {
	return Contains(a, b) || Contains(b, a)
}

// Ancestors returns the proper ancestors of path, nearest last
func Ancestors(path string) []string {
	segments := paths.Segments(path)
	out := make([]string, 0, len(segments))
	for i := 1; i < len(segments); i++ {
		out = append(out, strings.Join(segments[:i], "/"))
	}
	return out
}

// Relative returns path relative to base; path must be contained in base
func Relative(base, path string) string {
	if base == "" {
		return path
	}
	return strings.TrimPrefix(strings.TrimPrefix(path, base), "/")
}

// Lookup returns the value at a relative path of tree
func Lookup(tree interface{}, path string) interface{} {
	node := tree
	for _, seg := range paths.Segments(path) {
		m, ok := node.(map[string]interface{})
		if !ok {
			return nil
		}
		node = m[seg]
	}
	return node
}

// Leaf is one stored scalar (or list) and its absolute path
type Leaf struct {
	Path  string
	Value interface{}
}

// Flatten splits a normalized value at path into leaves sorted by path.
// Mappings are descended into; every other value is a leaf.
func Flatten(path string, value interface{}) []Leaf {
	var leaves []Leaf
	flatten(path, value, &leaves)
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Path < leaves[j].Path })
	return leaves
}

func flatten(path string, value interface{}, out *[]Leaf) {
	switch val := value.(type) {
	case nil:
		return
	case map[string]interface{}:
		for k, child := range val {
			flatten(paths.Join(path, k), child, out)
		}
	default:
		*out = append(*out, Leaf{Path: path, Value: val})
	}
}

// Assemble rebuilds the value at base from leaves keyed by absolute path.
// Leaves outside base are ignored.
func Assemble(base string, leaves map[string]interface{}) interface{} {
	if v, ok := leaves[base]; ok && base != "" {
		return v
	}
	var root map[string]interface{}
	for path, v := range leaves {
		if path == base || !Contains(base, path) {
			continue
		}
		segments := paths.Segments(Relative(base, path))
		if len(segments) == 0 {
			continue
		}
		if root == nil {
			root = make(map[string]interface{})
		}
		node := root
		for _, seg := range segments[:len(segments)-1] {
			child, ok := node[seg].(map[string]interface{})
			if !ok {
				child = make(map[string]interface{})
				node[seg] = child
			}
			node = child
		}
		node[segments[len(segments)-1]] = v
	}
	if root == nil {
		return nil
	}
	return root
}

// Plan is a batch of writes reduced to leaf operations
type Plan struct {
	Deletes []string
	Sets    []Leaf
}

// PlanWrites reduces writes, applied in order, to the leaf paths to delete
// and the leaves to store. existing lists the stored leaf paths at or
// below a path.
func PlanWrites(writes []Write, existing func(path string) ([]string, error)) (*Plan, error) {
	deletes := make(map[string]bool)
	sets := make(map[string]interface{})

	for _, w := range writes {
		path := CleanPath(w.Path)
		stored, err := existing(path)
		if err != nil {
			return nil, err
		}
		for _, p := range stored {
			deletes[p] = true
		}
		for p := range sets {
			if Contains(path, p) {
				delete(sets, p)
			}
		}
		for _, a := range Ancestors(path) {
			deletes[a] = true
			delete(sets, a)
		}
		for _, leaf := range Flatten(path, w.Value) {
			sets[leaf.Path] = leaf.Value
			delete(deletes, leaf.Path)
		}
	}

	plan := &Plan{}
	for p := range deletes {
		plan.Deletes = append(plan.Deletes, p)
	}
	sort.Strings(plan.Deletes)
	for p, v := range sets {
		plan.Sets = append(plan.Sets, Leaf{Path: p, Value: v})
	}
	sort.Slice(plan.Sets, func(i, j int) bool { return plan.Sets[i].Path < plan.Sets[j].Path })
	return plan, nil
}
