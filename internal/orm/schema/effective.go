package schema

import (
	"fmt"
	"strings"

	"github.com/nickmessing/firemodel/internal/orm/ormerr"
)

// EffectiveSchema is the resolved, read-only metadata view of a model.
// It merges the model's own declarations with the base fields every model
// inherits. Values are computed at resolve time and never change afterwards.
type EffectiveSchema struct {
	name          string
	modelName     string
	plural        string
	options       ModelOptions
	properties    []PropertyMeta
	relationships []RelationshipMeta
	indexes       []IndexMeta
	pushKeys      []string
	propertyIdx   map[string]int
	relIdx        map[string]int
}

func newEffectiveSchema(m *model) *EffectiveSchema {
	s := &EffectiveSchema{
		name:        m.name,
		modelName:   strings.ToLower(m.name),
		options:     m.options,
		propertyIdx: make(map[string]int),
		relIdx:      make(map[string]int),
	}

	// own fields first, base fields after unless overridden
	for _, p := range m.properties {
		s.propertyIdx[p.Property] = len(s.properties)
		s.properties = append(s.properties, p)
	}
	for _, p := range baseProperties() {
		if _, exists := s.propertyIdx[p.Property]; exists {
			continue
		}
		s.propertyIdx[p.Property] = len(s.properties)
		s.properties = append(s.properties, p)
	}

	for _, rel := range m.relationships {
		s.relIdx[rel.Property] = len(s.relationships)
		s.relationships = append(s.relationships, rel)
	}

	seen := make(map[string]bool)
	for _, idx := range m.indexes {
		seen[idx.Property] = true
		s.indexes = append(s.indexes, idx)
	}
	for _, idx := range baseIndexes() {
		if !seen[idx.Property] {
			s.indexes = append(s.indexes, idx)
		}
	}

	for _, p := range s.properties {
		if p.PushKey {
			s.pushKeys = append(s.pushKeys, p.Property)
		}
	}

	s.plural = m.options.Plural
	if s.plural == "" {
		s.plural = Pluralize(s.modelName)
	}
	return s
}

// Name returns the declared model name
func (s *EffectiveSchema) Name() string { return s.name }

// ModelName returns the lowercased model name used in events
func (s *EffectiveSchema) ModelName() string { return s.modelName }

// Plural returns the plural name used in database paths
func (s *EffectiveSchema) Plural() string { return s.plural }

// DBOffset returns the database path prefix of the model
func (s *EffectiveSchema) DBOffset() string { return s.options.DBOffset }

// LocalOffset returns the local state path prefix of the model
func (s *EffectiveSchema) LocalOffset() string { return s.options.LocalOffset }

// LocalPostfix returns the local state path suffix of the model
func (s *EffectiveSchema) LocalPostfix() string { return s.options.LocalPostfix }

// Audit reports whether changes to the model are written to the audit log
func (s *EffectiveSchema) Audit() bool { return s.options.Audit }

// PushKeys returns the names of properties declared as push-keys
func (s *EffectiveSchema) PushKeys() []string {
	return append([]string(nil), s.pushKeys...)
}

// IsPushKey reports whether name is a push-key property
func (s *EffectiveSchema) IsPushKey(name string) bool {
	for _, k := range s.pushKeys {
		if k == name {
			return true
		}
	}
	return false
}

// Properties returns own then base properties
func (s *EffectiveSchema) Properties() []PropertyMeta {
	return append([]PropertyMeta(nil), s.properties...)
}

// Relationships returns the declared relationships
func (s *EffectiveSchema) Relationships() []RelationshipMeta {
	return append([]RelationshipMeta(nil), s.relationships...)
}

// Indexes returns own then base indexes
func (s *EffectiveSchema) Indexes() []IndexMeta {
	return append([]IndexMeta(nil), s.indexes...)
}

// HasManyProperties returns the names of hasMany relationships
func (s *EffectiveSchema) HasManyProperties() []string {
	var names []string
	for _, rel := range s.relationships {
		if rel.RelType == RelationHasMany {
			names = append(names, rel.Property)
		}
	}
	return names
}

// IsProperty reports whether name is a declared or base property
func (s *EffectiveSchema) IsProperty(name string) bool {
	_, ok := s.propertyIdx[name]
	return ok
}

// IsRelationship reports whether name is a declared relationship
func (s *EffectiveSchema) IsRelationship(name string) bool {
	_, ok := s.relIdx[name]
	return ok
}

// Property returns the metadata of a property
func (s *EffectiveSchema) Property(name string) (PropertyMeta, error) {
	i, ok := s.propertyIdx[name]
	if !ok {
		return PropertyMeta{}, fmt.Errorf("%w: %s is not a property of %s", ormerr.ErrNotFound, name, s.name)
	}
	return s.properties[i], nil
}

// Relationship returns the metadata of a relationship
func (s *EffectiveSchema) Relationship(name string) (RelationshipMeta, error) {
	i, ok := s.relIdx[name]
	if !ok {
		return RelationshipMeta{}, fmt.Errorf("%w: %s is not a relationship of %s", ormerr.ErrNotFound, name, s.name)
	}
	return s.relationships[i], nil
}

// Describe returns the property or relationship metadata for name, failing
// with ErrNotFound when it is neither
func (s *EffectiveSchema) Describe(name string) (Entry, error) {
	if p, err := s.Property(name); err == nil {
		return p, nil
	}
	if rel, err := s.Relationship(name); err == nil {
		return rel, nil
	}
	return nil, fmt.Errorf("%w: %s is neither a property nor a relationship of %s", ormerr.ErrNotFound, name, s.name)
}
