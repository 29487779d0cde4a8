package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/nickmessing/firemodel/internal/cli/config"
	"github.com/nickmessing/firemodel/internal/db"
	"github.com/nickmessing/firemodel/internal/orm/ormerr"
)

// ErrorLevel represents the severity of an error message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Consequence  string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError creates a standardized error message with suggestions and help commands
//
// Example output:
//
//	❌ UNKNOWN MODEL: Persn
//	   Cannot find model 'Persn'.
//
//	   Did you mean: Person?
//
//	   → See all models: firemodel models
//	   → Get help: firemodel --help
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	// Determine colors and symbol based on level
	var headerColor, bodyColor *color.Color
	var symbol string

	switch opts.Level {
	case ErrorLevelError:
		headerColor = color.New(color.FgRed, color.Bold)
		bodyColor = color.New(color.FgRed)
		symbol = "❌"
	case ErrorLevelWarning:
		headerColor = color.New(color.FgYellow, color.Bold)
		bodyColor = color.New(color.FgYellow)
		symbol = "⚠️"
	case ErrorLevelInfo:
		headerColor = color.New(color.FgCyan, color.Bold)
		bodyColor = color.New(color.FgCyan)
		symbol = "ℹ️"
	}

	// Disable colors if requested
	if opts.NoColor {
		headerColor.DisableColor()
		bodyColor.DisableColor()
	}

	// Header line with context
	if opts.Context != "" {
		headerColor.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		headerColor.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	// Problem description with indentation
	if opts.Problem != "" && opts.Context != "" {
		bodyColor.Fprintf(&b, "   %s\n", opts.Problem)
	}

	// Consequence (if provided)
	if opts.Consequence != "" {
		b.WriteString("\n")
		bodyColor.Fprintf(&b, "   %s\n", opts.Consequence)
	}

	// Suggestions
	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow := color.New(color.FgYellow)
		if opts.NoColor {
			yellow.DisableColor()
		}
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	// Help commands
	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		cyan := color.New(color.FgCyan)
		if opts.NoColor {
			cyan.DisableColor()
		}
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted error message to the writer
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// ModelNotFoundError creates a standardized unknown model error. Suggestions
// are the known models closest to modelName.
func ModelNotFoundError(modelName string, known []string, noColor bool) string {
	opts := ErrorOptions{
		Level:       ErrorLevelError,
		Context:     "UNKNOWN MODEL",
		Problem:     fmt.Sprintf("Cannot find model '%s'.", modelName),
		Suggestions: FindSimilar(modelName, known, nil),
		HelpCommands: []string{
			"See all models: firemodel models",
			"Get help: firemodel --help",
		},
		NoColor: noColor,
	}
	return FormatError(opts)
}

// DatabaseError creates a standardized database error
func DatabaseError(message string, consequence string, noColor bool) string {
	opts := ErrorOptions{
		Level:       ErrorLevelError,
		Context:     "DATABASE ERROR",
		Problem:     message,
		Consequence: consequence,
		HelpCommands: []string{
			"Check the database section: cat firemodel.yaml",
			"Get help: firemodel --help",
		},
		NoColor: noColor,
	}
	return FormatError(opts)
}

// ConfigError creates a standardized configuration error
func ConfigError(message string, suggestions []string, noColor bool) string {
	opts := ErrorOptions{
		Level:       ErrorLevelError,
		Context:     "CONFIGURATION ERROR",
		Problem:     message,
		Suggestions: suggestions,
		HelpCommands: []string{
			"View config: cat firemodel.yaml",
			"Create a config: firemodel init",
		},
		NoColor: noColor,
	}
	return FormatError(opts)
}

// ErrorFor formats err according to its kind. known lists the registered
// model names used for suggestions.
func ErrorFor(err error, known []string, noColor bool) string {
	var opts ErrorOptions
	switch {
	case errors.Is(err, ormerr.ErrUnknownModel):
		if name := unknownModelName(err); name != "" {
			return ModelNotFoundError(name, known, noColor)
		}
		opts = ErrorOptions{
			Context: "UNKNOWN MODEL",
			Problem: err.Error(),
			HelpCommands: []string{
				"See all models: firemodel models",
			},
		}
	case errors.Is(err, config.ErrInvalidConfig):
		return ConfigError(err.Error(), []string{
			"Check the database, audit, dispatch and models sections",
		}, noColor)
	case errors.Is(err, ormerr.ErrNotFound):
		opts = ErrorOptions{
			Level:   ErrorLevelWarning,
			Context: "NOT FOUND",
			Problem: err.Error(),
			HelpCommands: []string{
				"List records: firemodel list <model>",
			},
		}
	case errors.Is(err, ormerr.ErrNoDatabase), db.IsUnavailable(err):
		return DatabaseError(err.Error(), "No data was read or written.", noColor)
	case db.IsConflict(err), errors.Is(err, ormerr.ErrWriteFailed):
		return DatabaseError(err.Error(), "The write was not applied; retry the command.", noColor)
	default:
		context := "FAILED"
		if code := ormerr.Code(err); code != "" {
			context = code
		}
		opts = ErrorOptions{Context: context, Problem: err.Error()}
	}
	opts.NoColor = noColor
	return FormatError(opts)
}

// unknownModelName extracts the model name following the error code
func unknownModelName(err error) string {
	msg := err.Error()
	prefix := ormerr.ErrUnknownModel.Error() + ": "
	i := strings.LastIndex(msg, prefix)
	if i < 0 {
		return ""
	}
	name := msg[i+len(prefix):]
	if end := strings.IndexAny(name, " :"); end >= 0 {
		name = name[:end]
	}
	return name
}

// Warning creates a standardized warning message
func Warning(message string, suggestions []string, noColor bool) string {
	opts := ErrorOptions{
		Level:       ErrorLevelWarning,
		Problem:     message,
		Suggestions: suggestions,
		NoColor:     noColor,
	}
	return FormatError(opts)
}

// Info creates a standardized info message
func Info(message string, noColor bool) string {
	opts := ErrorOptions{
		Level:   ErrorLevelInfo,
		Problem: message,
		NoColor: noColor,
	}
	return FormatError(opts)
}
