package schema

import (
	"errors"
	"testing"

	"github.com/nickmessing/firemodel/internal/orm/ormerr"
)

func mustResolve(t *testing.T, r *Registry, name string) *EffectiveSchema {
	t.Helper()
	s, err := r.Resolve(name)
	if err != nil {
		t.Fatalf("resolve %s: %v", name, err)
	}
	return s
}

func TestEffectiveSchema(t *testing.T) {
	registry := NewRegistry()
	registry.Register(personDefinition())
	s := mustResolve(t, registry, "Person")

	t.Run("own fields precede base fields", func(t *testing.T) {
		props := s.Properties()
		want := []string{"name", "age", "tags", FieldID, FieldLastUpdated, FieldCreatedAt}
		if len(props) != len(want) {
			t.Fatalf("expected %d properties, got %d", len(want), len(props))
		}
		for i, name := range want {
			if props[i].Property != name {
				t.Errorf("position %d: expected %s, got %s", i, name, props[i].Property)
			}
		}
	})

	t.Run("base indexes", func(t *testing.T) {
		var unique, indexed int
		for _, idx := range s.Indexes() {
			if idx.IsUniqueIndex {
				unique++
			}
			if idx.IsIndex {
				indexed++
			}
		}
		if unique != 1 || indexed != 3 {
			t.Errorf("expected 1 unique of 3 indexes, got %d of %d", unique, indexed)
		}
	})

	t.Run("names and offsets", func(t *testing.T) {
		if s.ModelName() != "person" {
			t.Errorf("expected person, got %s", s.ModelName())
		}
		if s.Name() != "Person" || s.DBOffset() != "authenticated" {
			t.Errorf("unexpected schema: %s %s", s.Name(), s.DBOffset())
		}
	})

	t.Run("query helpers", func(t *testing.T) {
		if !s.IsProperty("name") || !s.IsProperty(FieldID) {
			t.Error("expected properties")
		}
		if s.IsProperty("children") {
			t.Error("relationship is not a property")
		}
		if !s.IsRelationship("children") {
			t.Error("expected relationship")
		}

		rel, err := s.Relationship("employer")
		if err != nil || !rel.IsToOne() {
			t.Errorf("expected to-one relationship, got %+v %v", rel, err)
		}

		if _, err := s.Property("nope"); !errors.Is(err, ormerr.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := s.Describe("nope"); !errors.Is(err, ormerr.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if entry, err := s.Describe("children"); err != nil || entry.Kind() != KindRelationship {
			t.Errorf("expected relationship entry, got %v %v", entry, err)
		}
	})

	t.Run("push keys and has many", func(t *testing.T) {
		if keys := s.PushKeys(); len(keys) != 1 || keys[0] != "tags" {
			t.Errorf("unexpected push keys: %v", keys)
		}
		if !s.IsPushKey("tags") || s.IsPushKey("name") {
			t.Error("IsPushKey mismatch")
		}
		if hm := s.HasManyProperties(); len(hm) != 1 || hm[0] != "children" {
			t.Errorf("unexpected hasMany: %v", hm)
		}
	})

	t.Run("returned slices are copies", func(t *testing.T) {
		props := s.Properties()
		props[0].Property = "changed"
		if s.Properties()[0].Property != "name" {
			t.Error("schema should not be mutable through returned slices")
		}
	})

	t.Run("own property overrides base field", func(t *testing.T) {
		r := NewRegistry()
		r.Add("Event", PropertyMeta{Property: FieldCreatedAt, Type: TypeString})
		props := mustResolve(t, r, "Event").Properties()
		if len(props) != 3 {
			t.Fatalf("expected 3 properties, got %d", len(props))
		}
		if props[0].Property != FieldCreatedAt || props[0].Type != TypeString {
			t.Errorf("own entry should win: %+v", props[0])
		}
	})

	t.Run("resolve reflects later registrations", func(t *testing.T) {
		r := NewRegistry()
		r.Register(NewModel("Tag").MustBuild())
		before := mustResolve(t, r, "Tag")
		r.Add("Tag", PropertyMeta{Property: "label", Type: TypeString})
		after := mustResolve(t, r, "Tag")

		if before.IsProperty("label") {
			t.Error("earlier resolution must not change")
		}
		if !after.IsProperty("label") {
			t.Error("new resolution should see the new property")
		}
	})
}

func TestPluralize(t *testing.T) {
	tests := map[string]string{
		"person":  "people",
		"company": "companies",
		"day":     "days",
		"box":     "boxes",
		"status":  "statuses",
		"church":  "churches",
		"user":    "users",
		"sheep":   "sheep",
		"child":   "children",
		"human":   "humans",
		"":        "",
	}
	for in, want := range tests {
		if got := Pluralize(in); got != want {
			t.Errorf("Pluralize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDefaultPlural(t *testing.T) {
	r := NewRegistry()
	r.Register(NewModel("Company").MustBuild())
	if got := mustResolve(t, r, "Company").Plural(); got != "companies" {
		t.Errorf("expected companies, got %s", got)
	}
}
