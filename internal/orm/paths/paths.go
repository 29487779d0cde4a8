// Package paths derives database and local state paths for models
package paths

import (
	"fmt"
	"strings"

	"github.com/nickmessing/firemodel/internal/orm/ormerr"
	"github.com/nickmessing/firemodel/internal/orm/schema"
)

// Join joins path segments with "/", dropping empty segments and
// collapsing repeated separators
func Join(parts ...string) string {
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		for _, seg := range strings.Split(part, "/") {
			if seg != "" {
				segments = append(segments, seg)
			}
		}
	}
	return strings.Join(segments, "/")
}

// DotNotation converts a slash separated path to the dotted form used by
// local state stores
func DotNotation(path string) string {
	return strings.ReplaceAll(Join(path), "/", ".")
}

// SlashNotation converts a dotted path back to slash form
func SlashNotation(path string) string {
	return Join(strings.ReplaceAll(path, ".", "/"))
}

// Segments splits a path into its non-empty segments
func Segments(path string) []string {
	joined := Join(path)
	if joined == "" {
		return nil
	}
	return strings.Split(joined, "/")
}

// DBPath returns {dbOffset}/{plural}/{id}. It fails with ErrInvalidPath
// when id is empty.
func DBPath(s *schema.EffectiveSchema, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: you can not ask for the dbPath of a %s before setting an id", ormerr.ErrInvalidPath, s.ModelName())
	}
	return Join(s.DBOffset(), s.Plural(), id), nil
}

// ListDBPath returns {dbOffset}/{plural}
func ListDBPath(s *schema.EffectiveSchema) string {
	return Join(s.DBOffset(), s.Plural())
}

// LocalPath returns {localOffset}/{plural}/{id}/{localPostfix} for a
// record. It fails with ErrInvalidPath when id is empty.
func LocalPath(s *schema.EffectiveSchema, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: you can not ask for the localPath of a %s before setting an id", ormerr.ErrInvalidPath, s.ModelName())
	}
	return Join(s.LocalOffset(), s.Plural(), id, s.LocalPostfix()), nil
}

// ListLocalPath returns the dotted local path of a model's collection
func ListLocalPath(s *schema.EffectiveSchema) string {
	return DotNotation(Join(s.LocalOffset(), s.Plural(), s.LocalPostfix()))
}

// SinceLocalPath returns the dotted local path where the timestamp of the
// last "since" query is kept
func SinceLocalPath(s *schema.EffectiveSchema) string {
	return DotNotation(Join(s.LocalOffset(), s.Plural(), "since"))
}
