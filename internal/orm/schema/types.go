// Package schema provides the model metadata registry for firemodel.
// It holds the declared properties, relationships and indexes of every
// model and resolves them into read-only effective schemas.
package schema

import (
	"fmt"
)

// PrimitiveType represents the value type of a model property
type PrimitiveType int

const (
	// TypeAny accepts any JSON value; it is also the unset type
	TypeAny PrimitiveType = iota
	// TypeString is a text value
	TypeString
	// TypeNumber is a numeric value (epoch timestamps included)
	TypeNumber
	// TypeBoolean is a true/false value
	TypeBoolean
	// TypeObject is a nested mapping
	TypeObject
	// TypeArray is an ordered list
	TypeArray
)

// String returns the string representation of the primitive type
func (p PrimitiveType) String() string {
	switch p {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBoolean:
		return "boolean"
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	case TypeAny:
		return "any"
	default:
		return "unknown"
	}
}

// ParsePrimitiveType converts a string to a PrimitiveType
func ParsePrimitiveType(s string) (PrimitiveType, error) {
	switch s {
	case "string":
		return TypeString, nil
	case "number":
		return TypeNumber, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "object":
		return TypeObject, nil
	case "array":
		return TypeArray, nil
	case "any", "":
		return TypeAny, nil
	default:
		return 0, fmt.Errorf("unknown primitive type: %s", s)
	}
}

// RelationType represents the cardinality of a relationship
type RelationType int

const (
	// RelationHasMany stores a mapping of foreign keys on the owning record
	RelationHasMany RelationType = iota
	// RelationBelongsTo stores a single foreign key on the owning record
	RelationBelongsTo
)

// String returns the string representation of the relationship type
func (r RelationType) String() string {
	switch r {
	case RelationHasMany:
		return "hasMany"
	case RelationBelongsTo:
		return "belongsTo"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the declared cardinalities
func (r RelationType) Valid() bool {
	return r == RelationHasMany || r == RelationBelongsTo
}

// ParseRelationType converts a string to a RelationType
func ParseRelationType(s string) (RelationType, error) {
	switch s {
	case "hasMany":
		return RelationHasMany, nil
	case "belongsTo", "ownedBy", "hasOne":
		return RelationBelongsTo, nil
	default:
		return 0, fmt.Errorf("unknown relationship type: %s", s)
	}
}

// EntryKind identifies which metadata collection an entry belongs to
type EntryKind int

const (
	// KindProperty is a PropertyMeta entry
	KindProperty EntryKind = iota
	// KindRelationship is a RelationshipMeta entry
	KindRelationship
	// KindIndex is an IndexMeta entry
	KindIndex
)

// String returns the string representation of the entry kind
func (k EntryKind) String() string {
	switch k {
	case KindProperty:
		return "property"
	case KindRelationship:
		return "relationship"
	case KindIndex:
		return "index"
	default:
		return "unknown"
	}
}

// Entry is a single piece of model metadata keyed by property name
type Entry interface {
	Name() string
	Kind() EntryKind
}

// PropertyMeta describes one declared field of a model
type PropertyMeta struct {
	Property string
	Type     PrimitiveType
	Length   int
	Min      *float64
	Max      *float64
	PushKey  bool
	MockType string
	Desc     string
}

// Name implements Entry
func (p PropertyMeta) Name() string { return p.Property }

// Kind implements Entry
func (p PropertyMeta) Kind() EntryKind { return KindProperty }

// merge overlays the non-zero fields of next onto p
func (p PropertyMeta) merge(next PropertyMeta) PropertyMeta {
	if next.Type != TypeAny {
		p.Type = next.Type
	}
	if next.Length != 0 {
		p.Length = next.Length
	}
	if next.Min != nil {
		p.Min = next.Min
	}
	if next.Max != nil {
		p.Max = next.Max
	}
	if next.PushKey {
		p.PushKey = true
	}
	if next.MockType != "" {
		p.MockType = next.MockType
	}
	if next.Desc != "" {
		p.Desc = next.Desc
	}
	return p
}

// RelationshipMeta describes a relationship to another model
type RelationshipMeta struct {
	Property    string
	RelType     RelationType
	FKModelName string
	Inverse     string
}

// Name implements Entry
func (r RelationshipMeta) Name() string { return r.Property }

// Kind implements Entry
func (r RelationshipMeta) Kind() EntryKind { return KindRelationship }

// IsToOne reports whether the relationship holds a single foreign key
func (r RelationshipMeta) IsToOne() bool {
	return r.RelType == RelationBelongsTo
}

func (r RelationshipMeta) merge(next RelationshipMeta) RelationshipMeta {
	r.RelType = next.RelType
	if next.FKModelName != "" {
		r.FKModelName = next.FKModelName
	}
	if next.Inverse != "" {
		r.Inverse = next.Inverse
	}
	return r
}

// IndexMeta describes a database index on a property
type IndexMeta struct {
	Property      string
	IsIndex       bool
	IsUniqueIndex bool
}

// Name implements Entry
func (i IndexMeta) Name() string { return i.Property }

// Kind implements Entry
func (i IndexMeta) Kind() EntryKind { return KindIndex }

func (i IndexMeta) normalize() IndexMeta {
	if i.IsUniqueIndex {
		i.IsIndex = true
	}
	return i
}

func (i IndexMeta) merge(next IndexMeta) IndexMeta {
	i.IsIndex = i.IsIndex || next.IsIndex
	i.IsUniqueIndex = i.IsUniqueIndex || next.IsUniqueIndex
	return i.normalize()
}

// ModelOptions are the static per-model settings
type ModelOptions struct {
	DBOffset     string
	LocalOffset  string
	LocalPostfix string
	Plural       string
	Audit        bool
}

func (o ModelOptions) merge(next ModelOptions) ModelOptions {
	if next.DBOffset != "" {
		o.DBOffset = next.DBOffset
	}
	if next.LocalOffset != "" {
		o.LocalOffset = next.LocalOffset
	}
	if next.LocalPostfix != "" {
		o.LocalPostfix = next.LocalPostfix
	}
	if next.Plural != "" {
		o.Plural = next.Plural
	}
	if next.Audit {
		o.Audit = true
	}
	return o
}

// ModelDefinition is a complete declaration of one model
type ModelDefinition struct {
	Name          string
	Options       ModelOptions
	Properties    []PropertyMeta
	Relationships []RelationshipMeta
	Indexes       []IndexMeta
}

// Entries returns every entry of the definition in declaration order:
// properties, then relationships, then indexes
func (d *ModelDefinition) Entries() []Entry {
	entries := make([]Entry, 0, len(d.Properties)+len(d.Relationships)+len(d.Indexes))
	for _, p := range d.Properties {
		entries = append(entries, p)
	}
	for _, r := range d.Relationships {
		entries = append(entries, r)
	}
	for _, i := range d.Indexes {
		entries = append(entries, i)
	}
	return entries
}

// Base field names present on every model
const (
	FieldID          = "id"
	FieldLastUpdated = "lastUpdated"
	FieldCreatedAt   = "createdAt"
)

// baseProperties returns the fields every model inherits
func baseProperties() []PropertyMeta {
	return []PropertyMeta{
		{Property: FieldID, Type: TypeString},
		{Property: FieldLastUpdated, Type: TypeNumber, MockType: "dateRecentMiliseconds"},
		{Property: FieldCreatedAt, Type: TypeNumber, MockType: "datePastMiliseconds"},
	}
}

// baseIndexes returns the indexes every model inherits
func baseIndexes() []IndexMeta {
	return []IndexMeta{
		{Property: FieldID, IsIndex: true, IsUniqueIndex: true},
		{Property: FieldLastUpdated, IsIndex: true},
		{Property: FieldCreatedAt, IsIndex: true},
	}
}
