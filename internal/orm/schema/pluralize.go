package schema

import "strings"

var irregularPlurals = map[string]string{
	"person": "people",
	"man":    "men",
	"woman":  "women",
	"child":  "children",
	"mouse":  "mice",
	"goose":  "geese",
	"tooth":  "teeth",
	"foot":   "feet",
	"ox":     "oxen",
}

var uncountable = map[string]bool{
	"sheep":       true,
	"fish":        true,
	"deer":        true,
	"series":      true,
	"species":     true,
	"money":       true,
	"information": true,
	"equipment":   true,
}

// Pluralize returns a best-effort English plural of a lowercase noun. It
// covers a handful of irregular and uncountable words plus the common suffix
// rules and is not a full pluralization grammar; models that need anything
// else set ModelOptions.Plural.
func Pluralize(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	if uncountable[lower] {
		return s
	}
	if plural, ok := irregularPlurals[lower]; ok {
		return plural
	}

	switch {
	case strings.HasSuffix(lower, "s"),
		strings.HasSuffix(lower, "x"),
		strings.HasSuffix(lower, "z"),
		strings.HasSuffix(lower, "ch"),
		strings.HasSuffix(lower, "sh"):
		return s + "es"
	case strings.HasSuffix(lower, "y") && len(lower) > 1 && !isVowel(lower[len(lower)-2]):
		return s[:len(s)-1] + "ies"
	default:
		return s + "s"
	}
}

func isVowel(c byte) bool {
	switch c {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
