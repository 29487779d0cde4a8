package schema

import (
	"strings"
	"testing"
)

func TestModelBuilder(t *testing.T) {
	t.Run("builds a complete definition", func(t *testing.T) {
		def, err := NewModel("Person").
			DBOffset("authenticated").
			LocalOffset("people").
			LocalPostfix("all").
			Audit().
			Property("name", TypeString, Length(64), Desc("full name")).
			Property("age", TypeNumber, Min(0), Max(150)).
			PushKey("tags").
			HasMany("companies", "Company", "employees").
			BelongsTo("father", "Person").
			UniqueIndex("name").
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if def.Name != "Person" {
			t.Errorf("expected Person, got %s", def.Name)
		}
		if def.Options.DBOffset != "authenticated" || !def.Options.Audit {
			t.Errorf("unexpected options: %+v", def.Options)
		}
		if len(def.Properties) != 3 {
			t.Fatalf("expected 3 properties, got %d", len(def.Properties))
		}
		if def.Properties[0].Length != 64 || def.Properties[0].Desc != "full name" {
			t.Errorf("property options not applied: %+v", def.Properties[0])
		}
		if *def.Properties[1].Min != 0 || *def.Properties[1].Max != 150 {
			t.Errorf("min/max not applied: %+v", def.Properties[1])
		}
		if !def.Properties[2].PushKey || def.Properties[2].Type != TypeObject {
			t.Errorf("push key not applied: %+v", def.Properties[2])
		}
		if len(def.Relationships) != 2 || def.Relationships[0].Inverse != "employees" {
			t.Errorf("unexpected relationships: %+v", def.Relationships)
		}
		if !def.Indexes[0].IsUniqueIndex {
			t.Error("expected unique index")
		}
	})

	t.Run("collects errors", func(t *testing.T) {
		_, err := NewModel("").
			Property("", TypeString).
			HasMany("friends", "").
			Build()
		if err == nil {
			t.Fatal("expected error")
		}
		msg := err.Error()
		for _, want := range []string{"model name is required", "property name is required", "needs a property and a related model"} {
			if !strings.Contains(msg, want) {
				t.Errorf("expected %q in %q", want, msg)
			}
		}
	})

	t.Run("rejects property and relationship with same name", func(t *testing.T) {
		_, err := NewModel("Person").
			Property("company", TypeString).
			BelongsTo("company", "Company").
			Build()
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("must build panics on error", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		NewModel("").MustBuild()
	})
}
