package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nickmessing/firemodel/internal/orm/ormerr"
)

// model is the accumulated metadata of a single model name
type model struct {
	name          string
	options       ModelOptions
	properties    []PropertyMeta
	relationships []RelationshipMeta
	indexes       []IndexMeta
}

func (m *model) add(entry Entry) {
	switch e := entry.(type) {
	case PropertyMeta:
		for i := range m.properties {
			if m.properties[i].Property == e.Property {
				m.properties[i] = m.properties[i].merge(e)
				return
			}
		}
		m.properties = append(m.properties, e)
	case RelationshipMeta:
		for i := range m.relationships {
			if m.relationships[i].Property == e.Property {
				m.relationships[i] = m.relationships[i].merge(e)
				return
			}
		}
		m.relationships = append(m.relationships, e)
	case IndexMeta:
		for i := range m.indexes {
			if m.indexes[i].Property == e.Property {
				m.indexes[i] = m.indexes[i].merge(e)
				return
			}
		}
		m.indexes = append(m.indexes, e.normalize())
	}
}

// Registry manages the metadata of every model in a session
type Registry struct {
	models map[string]*model
	mu     sync.RWMutex
}

// NewRegistry creates a new, empty model registry
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]*model),
	}
}

// checkEntry validates a single entry before it is stored
func checkEntry(modelName string, entry Entry) error {
	if modelName == "" {
		return fmt.Errorf("model name is required")
	}
	if entry == nil {
		return fmt.Errorf("model %s: nil metadata entry", modelName)
	}
	if entry.Name() == "" {
		return fmt.Errorf("model %s: %s entry has no property name", modelName, entry.Kind())
	}
	switch e := entry.(type) {
	case PropertyMeta, IndexMeta:
		return nil
	case RelationshipMeta:
		if !e.RelType.Valid() {
			return fmt.Errorf("%w: %s.%s has cardinality %d", ormerr.ErrInvalidRelationship, modelName, e.Property, int(e.RelType))
		}
		if e.FKModelName == "" {
			return fmt.Errorf("%w: %s.%s does not name a related model", ormerr.ErrInvalidRelationship, modelName, e.Property)
		}
		return nil
	default:
		return fmt.Errorf("model %s: unsupported metadata entry %T", modelName, entry)
	}
}

// Add stores a metadata entry for a model. An entry for a property that was
// already registered is shallow-merged into the existing one.
func (r *Registry) Add(modelName string, entry Entry) error {
	if err := checkEntry(modelName, entry); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensure(modelName).add(entry)
	return nil
}

// SetOptions merges static options into a model's settings
func (r *Registry) SetOptions(modelName string, options ModelOptions) error {
	if modelName == "" {
		return fmt.Errorf("model name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.ensure(modelName)
	m.options = m.options.merge(options)
	return nil
}

// Register applies a complete model definition. Nothing is stored when any
// entry of the definition is invalid.
func (r *Registry) Register(def *ModelDefinition) error {
	if def == nil {
		return fmt.Errorf("model definition is nil")
	}

	entries := def.Entries()
	for _, entry := range entries {
		if err := checkEntry(def.Name, entry); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", def.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.ensure(def.Name)
	m.options = m.options.merge(def.Options)
	for _, entry := range entries {
		m.add(entry)
	}
	return nil
}

// ensure returns the model entry for name, creating it when missing.
// Callers must hold the write lock.
func (r *Registry) ensure(name string) *model {
	m, ok := r.models[name]
	if !ok {
		m = &model{name: name}
		r.models[name] = m
	}
	return m
}

// Properties returns the model's own properties in registration order
func (r *Registry) Properties(modelName string) []PropertyMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[modelName]
	if !ok {
		return []PropertyMeta{}
	}
	return append([]PropertyMeta(nil), m.properties...)
}

// Relationships returns the model's own relationships in registration order
func (r *Registry) Relationships(modelName string) []RelationshipMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[modelName]
	if !ok {
		return []RelationshipMeta{}
	}
	return append([]RelationshipMeta(nil), m.relationships...)
}

// Indexes returns the model's own indexes in registration order
func (r *Registry) Indexes(modelName string) []IndexMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[modelName]
	if !ok {
		return []IndexMeta{}
	}
	return append([]IndexMeta(nil), m.indexes...)
}

// Lookup returns the entries of one kind for a model in registration order
func (r *Registry) Lookup(modelName string, kind EntryKind) []Entry {
	var entries []Entry
	switch kind {
	case KindProperty:
		for _, p := range r.Properties(modelName) {
			entries = append(entries, p)
		}
	case KindRelationship:
		for _, rel := range r.Relationships(modelName) {
			entries = append(entries, rel)
		}
	case KindIndex:
		for _, i := range r.Indexes(modelName) {
			entries = append(entries, i)
		}
	}
	if entries == nil {
		return []Entry{}
	}
	return entries
}

// Options returns the static options of a model
func (r *Registry) Options(modelName string) (ModelOptions, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[modelName]
	if !ok {
		return ModelOptions{}, false
	}
	return m.options, true
}

// Resolve computes the effective schema of a model from the registry's
// current contents
func (r *Registry) Resolve(modelName string) (*EffectiveSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[modelName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ormerr.ErrUnknownModel, modelName)
	}
	return newEffectiveSchema(m), nil
}

// Exists checks if a model has been registered
func (r *Registry) Exists(modelName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.models[modelName]
	return exists
}

// Count returns the number of registered models
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.models)
}

// List returns the sorted names of all registered models
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear removes all registered models (useful for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models = make(map[string]*model)
}

// RegistryStats summarizes the registry contents
type RegistryStats struct {
	TotalModels        int `json:"models"`
	TotalProperties    int `json:"properties"`
	TotalRelationships int `json:"relationships"`
	TotalIndexes       int `json:"indexes"`
	AuditedModels      int `json:"audited"`
	PushKeyProperties  int `json:"pushKeys"`
}

// GetStats returns statistics about the registry
func (r *Registry) GetStats() *RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &RegistryStats{TotalModels: len(r.models)}
	for _, m := range r.models {
		stats.TotalProperties += len(m.properties)
		stats.TotalRelationships += len(m.relationships)
		stats.TotalIndexes += len(m.indexes)
		if m.options.Audit {
			stats.AuditedModels++
		}
		for _, p := range m.properties {
			if p.PushKey {
				stats.PushKeyProperties++
			}
		}
	}
	return stats
}
