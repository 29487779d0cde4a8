package ui

import (
	"reflect"
	"testing"
)

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		s1       string
		s2       string
		expected int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"Person", "Person", 0},
		{"kitten", "sitting", 3},
		{"Person", "Persn", 1},
		{"company", "companies", 3},
	}

	for _, tt := range tests {
		t.Run(tt.s1+"_"+tt.s2, func(t *testing.T) {
			result := LevenshteinDistance(tt.s1, tt.s2)
			if result != tt.expected {
				t.Errorf("LevenshteinDistance(%q, %q) = %d; want %d", tt.s1, tt.s2, result, tt.expected)
			}
		})
	}
}

func TestFindSimilar(t *testing.T) {
	models := []string{"Person", "Company", "Invoice", "Invitation", "Tag"}

	tests := []struct {
		name       string
		target     string
		candidates []string
		opts       *FuzzyMatchOptions
		expected   []string
	}{
		{name: "typo", target: "Persn", candidates: models, expected: []string{"Person"}},
		{name: "case insensitive", target: "invoce", candidates: models, expected: []string{"Invoice"}},
		{
			name:       "case sensitive",
			target:     "person",
			candidates: models,
			opts:       &FuzzyMatchOptions{CaseSensitive: true},
			expected:   []string{"Person"},
		},
		{name: "no match too far", target: "Zebra", candidates: models, expected: []string{}},
		{
			name:       "ties ordered by name",
			target:     "Tag",
			candidates: []string{"Tags", "Tag", "Tab"},
			expected:   []string{"Tag", "Tab", "Tags"},
		},
		{
			name:       "max suggestions limit",
			target:     "Tag",
			candidates: []string{"Tags", "Tag", "Tab"},
			opts:       &FuzzyMatchOptions{MaxSuggestions: 1},
			expected:   []string{"Tag"},
		},
		{name: "empty candidates", target: "Person", candidates: nil, expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FindSimilar(tt.target, tt.candidates, tt.opts)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("FindSimilar(%q) = %v; want %v", tt.target, result, tt.expected)
			}
		})
	}
}

func TestFindSimilarDoesNotMutateOptions(t *testing.T) {
	opts := &FuzzyMatchOptions{}
	FindSimilar("Persn", []string{"Person"}, opts)
	if opts.MaxDistance != 0 || opts.MaxSuggestions != 0 {
		t.Errorf("expected options to stay untouched, got %+v", opts)
	}
}
