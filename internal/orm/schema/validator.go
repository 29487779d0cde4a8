package schema

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nickmessing/firemodel/internal/orm/ormerr"
)

// Validate checks cross-model consistency of every registered model.
// Relationships may reference models registered later, so this runs once
// all declarations are in.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		m := r.models[name]

		props := make(map[string]bool, len(m.properties))
		for _, p := range m.properties {
			props[p.Property] = true
		}

		for _, rel := range m.relationships {
			if props[rel.Property] {
				errs = append(errs, fmt.Errorf("%s.%s is declared as both a property and a relationship", name, rel.Property))
			}

			target, ok := r.models[rel.FKModelName]
			if !ok {
				errs = append(errs, fmt.Errorf("%w: %s.%s references unregistered model %s",
					ormerr.ErrInvalidRelationship, name, rel.Property, rel.FKModelName))
				continue
			}

			if rel.Inverse != "" && !hasRelationship(target, rel.Inverse) {
				errs = append(errs, fmt.Errorf("%w: %s.%s names inverse %s.%s which is not declared",
					ormerr.ErrInvalidRelationship, name, rel.Property, rel.FKModelName, rel.Inverse))
			}
		}

		for _, idx := range m.indexes {
			if !props[idx.Property] && !isBaseField(idx.Property) {
				errs = append(errs, fmt.Errorf("%s: index on undeclared property %s", name, idx.Property))
			}
		}
	}

	return errors.Join(errs...)
}

func hasRelationship(m *model, property string) bool {
	for _, rel := range m.relationships {
		if rel.Property == property {
			return true
		}
	}
	return false
}

func isBaseField(name string) bool {
	return name == FieldID || name == FieldLastUpdated || name == FieldCreatedAt
}
