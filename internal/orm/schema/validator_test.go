package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/nickmessing/firemodel/internal/orm/ormerr"
)

func TestRegistryValidate(t *testing.T) {
	t.Run("forward references resolve once registered", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(NewModel("Person").BelongsTo("employer", "Company", "employees").MustBuild())
		registry.Register(NewModel("Company").HasMany("employees", "Person", "employer").MustBuild())

		if err := registry.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("missing related model", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(NewModel("Person").BelongsTo("employer", "Company").MustBuild())

		err := registry.Validate()
		if !errors.Is(err, ormerr.ErrInvalidRelationship) {
			t.Fatalf("expected ErrInvalidRelationship, got %v", err)
		}
		if !strings.Contains(err.Error(), "unregistered model Company") {
			t.Errorf("unexpected message: %v", err)
		}
	})

	t.Run("missing inverse", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(NewModel("Person").BelongsTo("employer", "Company", "staff").MustBuild())
		registry.Register(NewModel("Company").MustBuild())

		if err := registry.Validate(); err == nil {
			t.Error("expected error for undeclared inverse")
		}
	})

	t.Run("index on undeclared property", func(t *testing.T) {
		registry := NewRegistry()
		registry.Add("Person", IndexMeta{Property: "email", IsIndex: true})

		if err := registry.Validate(); err == nil {
			t.Error("expected error for index on unknown property")
		}
	})

	t.Run("index on base field is fine", func(t *testing.T) {
		registry := NewRegistry()
		registry.Add("Person", IndexMeta{Property: FieldLastUpdated, IsIndex: true})

		if err := registry.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
