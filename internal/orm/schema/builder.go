package schema

import (
	"errors"
	"fmt"
)

// PropertyOption customizes a property declared through a ModelBuilder
type PropertyOption func(*PropertyMeta)

// Length sets the maximum length of a string property
func Length(n int) PropertyOption {
	return func(p *PropertyMeta) { p.Length = n }
}

// Min sets the minimum value of a numeric property
func Min(v float64) PropertyOption {
	return func(p *PropertyMeta) { p.Min = &v }
}

// Max sets the maximum value of a numeric property
func Max(v float64) PropertyOption {
	return func(p *PropertyMeta) { p.Max = &v }
}

// Mock sets the mock generator name used by test fixtures
func Mock(mockType string) PropertyOption {
	return func(p *PropertyMeta) { p.MockType = mockType }
}

// Desc sets the human readable description of a property
func Desc(desc string) PropertyOption {
	return func(p *PropertyMeta) { p.Desc = desc }
}

// ModelBuilder declares a model explicitly. Errors are collected while
// chaining and reported by Build.
type ModelBuilder struct {
	def    ModelDefinition
	errors []error
}

// NewModel starts the declaration of a model
func NewModel(name string) *ModelBuilder {
	b := &ModelBuilder{def: ModelDefinition{Name: name}}
	if name == "" {
		b.errors = append(b.errors, fmt.Errorf("model name is required"))
	}
	return b
}

// DBOffset sets the database path prefix
func (b *ModelBuilder) DBOffset(offset string) *ModelBuilder {
	b.def.Options.DBOffset = offset
	return b
}

// LocalOffset sets the local state path prefix
func (b *ModelBuilder) LocalOffset(offset string) *ModelBuilder {
	b.def.Options.LocalOffset = offset
	return b
}

// LocalPostfix sets the local state path suffix
func (b *ModelBuilder) LocalPostfix(postfix string) *ModelBuilder {
	b.def.Options.LocalPostfix = postfix
	return b
}

// Plural overrides the derived plural name
func (b *ModelBuilder) Plural(plural string) *ModelBuilder {
	b.def.Options.Plural = plural
	return b
}

// Audit turns on audit logging for the model
func (b *ModelBuilder) Audit() *ModelBuilder {
	b.def.Options.Audit = true
	return b
}

// Property declares a property
func (b *ModelBuilder) Property(name string, t PrimitiveType, opts ...PropertyOption) *ModelBuilder {
	if name == "" {
		b.errors = append(b.errors, fmt.Errorf("%s: property name is required", b.def.Name))
		return b
	}
	p := PropertyMeta{Property: name, Type: t}
	for _, opt := range opts {
		opt(&p)
	}
	b.def.Properties = append(b.def.Properties, p)
	return b
}

// PushKey declares a mapping-valued property whose entries are appended
// under generated keys
func (b *ModelBuilder) PushKey(name string, opts ...PropertyOption) *ModelBuilder {
	opts = append(opts, func(p *PropertyMeta) { p.PushKey = true })
	return b.Property(name, TypeObject, opts...)
}

// HasMany declares a relationship holding a mapping of foreign keys
func (b *ModelBuilder) HasMany(name, fkModel string, inverse ...string) *ModelBuilder {
	return b.relationship(name, RelationHasMany, fkModel, inverse)
}

// BelongsTo declares a relationship holding a single foreign key
func (b *ModelBuilder) BelongsTo(name, fkModel string, inverse ...string) *ModelBuilder {
	return b.relationship(name, RelationBelongsTo, fkModel, inverse)
}

func (b *ModelBuilder) relationship(name string, relType RelationType, fkModel string, inverse []string) *ModelBuilder {
	if name == "" || fkModel == "" {
		b.errors = append(b.errors, fmt.Errorf("%s: %s relationship needs a property and a related model", b.def.Name, relType))
		return b
	}
	rel := RelationshipMeta{Property: name, RelType: relType, FKModelName: fkModel}
	if len(inverse) > 0 {
		rel.Inverse = inverse[0]
	}
	b.def.Relationships = append(b.def.Relationships, rel)
	return b
}

// Index marks a property as indexed
func (b *ModelBuilder) Index(name string) *ModelBuilder {
	b.def.Indexes = append(b.def.Indexes, IndexMeta{Property: name, IsIndex: true})
	return b
}

// UniqueIndex marks a property as uniquely indexed
func (b *ModelBuilder) UniqueIndex(name string) *ModelBuilder {
	b.def.Indexes = append(b.def.Indexes, IndexMeta{Property: name, IsIndex: true, IsUniqueIndex: true})
	return b
}

// Build returns the model definition or every error collected while building
func (b *ModelBuilder) Build() (*ModelDefinition, error) {
	errs := append([]error(nil), b.errors...)

	props := make(map[string]bool, len(b.def.Properties))
	for _, p := range b.def.Properties {
		props[p.Property] = true
	}
	for _, rel := range b.def.Relationships {
		if props[rel.Property] {
			errs = append(errs, fmt.Errorf("%s: %s is declared as both a property and a relationship", b.def.Name, rel.Property))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	def := b.def
	def.Properties = append([]PropertyMeta(nil), b.def.Properties...)
	def.Relationships = append([]RelationshipMeta(nil), b.def.Relationships...)
	def.Indexes = append([]IndexMeta(nil), b.def.Indexes...)
	return &def, nil
}

// MustBuild is like Build but panics on error
func (b *ModelBuilder) MustBuild() *ModelDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}
