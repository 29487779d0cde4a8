package ui

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/nickmessing/firemodel/internal/cli/config"
	"github.com/nickmessing/firemodel/internal/db"
	"github.com/nickmessing/firemodel/internal/orm/ormerr"
)

func TestFormatError(t *testing.T) {
	// Disable color for testing
	color.NoColor = true
	defer func() { color.NoColor = false }()

	tests := []struct {
		name     string
		opts     ErrorOptions
		contains []string
	}{
		{
			name: "basic error",
			opts: ErrorOptions{
				Level:   ErrorLevelError,
				Context: "UNKNOWN MODEL",
				Problem: "Cannot find model 'Person'.",
			},
			contains: []string{
				"❌",
				"UNKNOWN MODEL",
				"Cannot find model 'Person'.",
			},
		},
		{
			name: "error with suggestions",
			opts: ErrorOptions{
				Level:       ErrorLevelError,
				Context:     "UNKNOWN MODEL",
				Problem:     "Cannot find model 'Persn'.",
				Suggestions: []string{"Person", "Company"},
			},
			contains: []string{
				"Did you mean: Person, Company?",
			},
		},
		{
			name: "error with help commands",
			opts: ErrorOptions{
				Level:   ErrorLevelError,
				Context: "DATABASE ERROR",
				Problem: "store unavailable",
				HelpCommands: []string{
					"See all models: firemodel models",
					"Get help: firemodel --help",
				},
			},
			contains: []string{
				"→ See all models: firemodel models",
				"→ Get help: firemodel --help",
			},
		},
		{
			name: "warning message",
			opts: ErrorOptions{
				Level:   ErrorLevelWarning,
				Problem: "foreign key already exists",
			},
			contains: []string{
				"⚠️",
				"foreign key already exists",
			},
		},
		{
			name: "info message",
			opts: ErrorOptions{
				Level:   ErrorLevelInfo,
				Problem: "watcher started",
			},
			contains: []string{
				"ℹ️",
				"watcher started",
			},
		},
		{
			name: "error with consequence",
			opts: ErrorOptions{
				Level:       ErrorLevelError,
				Context:     "DATABASE ERROR",
				Problem:     "Database connection lost",
				Consequence: "No data was read or written.",
			},
			contains: []string{
				"Database connection lost",
				"No data was read or written.",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatError(tt.opts)

			for _, expected := range tt.contains {
				if !strings.Contains(result, expected) {
					t.Errorf("FormatError() output missing expected string:\nExpected to contain: %q\nGot: %q", expected, result)
				}
			}
		})
	}
}

func TestModelNotFoundError(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := ModelNotFoundError("Persn", []string{"Person", "Company", "Invoice"}, true)

	expected := []string{
		"UNKNOWN MODEL",
		"Cannot find model 'Persn'.",
		"Did you mean: Person?",
		"See all models: firemodel models",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("ModelNotFoundError() missing expected string: %q", exp)
		}
	}
}

func TestDatabaseError(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := DatabaseError("connection refused", "No data was read or written.", true)

	expected := []string{
		"DATABASE ERROR",
		"connection refused",
		"No data was read or written.",
		"Check the database section: cat firemodel.yaml",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("DatabaseError() missing expected string: %q", exp)
		}
	}
}

func TestErrorFor(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	known := []string{"Person", "Company"}
	tests := []struct {
		name     string
		err      error
		contains []string
	}{
		{
			name:     "unknown model",
			err:      fmt.Errorf("%w: %s", ormerr.ErrUnknownModel, "Persn"),
			contains: []string{"UNKNOWN MODEL", "Cannot find model 'Persn'.", "Did you mean: Person?", "firemodel models"},
		},
		{
			name:     "invalid config",
			err:      fmt.Errorf("%w: database.url is required for the sqlite backend", config.ErrInvalidConfig),
			contains: []string{"CONFIGURATION ERROR", "database.url is required", "firemodel init"},
		},
		{
			name:     "not found",
			err:      fmt.Errorf("%w: no person with id p1", ormerr.ErrNotFound),
			contains: []string{"⚠️", "NOT FOUND", "no person with id p1"},
		},
		{
			name:     "no database",
			err:      ormerr.ErrNoDatabase,
			contains: []string{"DATABASE ERROR", "No data was read or written."},
		},
		{
			name:     "unavailable store",
			err:      fmt.Errorf("failed to save person: %w", db.ErrUnavailable),
			contains: []string{"DATABASE ERROR", "store unavailable"},
		},
		{
			name:     "conflict",
			err:      fmt.Errorf("%w: %w", ormerr.ErrWriteFailed, db.ErrConflict),
			contains: []string{"DATABASE ERROR", "retry the command"},
		},
		{
			name:     "other kind",
			err:      fmt.Errorf("%w: id already set", ormerr.ErrNotAllowed),
			contains: []string{"NOTALLOWED", "id already set"},
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			contains: []string{"FAILED", "boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ErrorFor(tt.err, known, true)
			for _, exp := range tt.contains {
				if !strings.Contains(result, exp) {
					t.Errorf("ErrorFor() missing expected string: %q\nGot: %q", exp, result)
				}
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer
	opts := ErrorOptions{
		Level:   ErrorLevelError,
		Context: "TEST ERROR",
		Problem: "This is a test",
	}

	WriteError(&buf, opts)

	output := buf.String()
	if !strings.Contains(output, "TEST ERROR") {
		t.Errorf("WriteError() did not write to buffer correctly")
	}
}

func TestFormatSuccess(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := FormatSuccess("Saved person p1", true)

	if !strings.Contains(result, "✓") {
		t.Errorf("FormatSuccess() missing checkmark")
	}
	if !strings.Contains(result, "Saved person p1") {
		t.Errorf("FormatSuccess() missing message")
	}
}

func TestWriteSuccess(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer
	WriteSuccess(&buf, "Test success", true)

	output := buf.String()
	if !strings.Contains(output, "✓") {
		t.Errorf("WriteSuccess() missing checkmark")
	}
	if !strings.Contains(output, "Test success") {
		t.Errorf("WriteSuccess() missing message")
	}
}

func TestWarning(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := Warning("Watcher already running", []string{"firemodel watch stop"}, true)

	expected := []string{
		"⚠️",
		"Watcher already running",
		"Did you mean: firemodel watch stop?",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("Warning() missing expected string: %q", exp)
		}
	}
}

func TestInfo(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := Info("Relay listening", true)

	expected := []string{
		"ℹ️",
		"Relay listening",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("Info() missing expected string: %q", exp)
		}
	}
}

func TestConfigError(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	result := ConfigError("Invalid YAML syntax", []string{"Check indentation"}, true)

	expected := []string{
		"CONFIGURATION ERROR",
		"Invalid YAML syntax",
		"Did you mean: Check indentation?",
	}

	for _, exp := range expected {
		if !strings.Contains(result, exp) {
			t.Errorf("ConfigError() missing expected string: %q", exp)
		}
	}
}
