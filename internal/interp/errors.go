// Package interp turns declarative bundle entries into executable pressures,
// templates, actions and systems.
//
// Every constructor validates the shape of its input (required fields, known
// operators and variants, resolvable references) and fails fast with a
// *ConfigError. Compile runs the constructors over a whole bundle once at
// setup; the resulting Program is immutable and builds fresh systems for
// each run.
package interp

import "fmt"

// ConfigError reports an invalid declarative entry.
type ConfigError struct {
	// Kind is the bundle section: pressure, template, action, system, era.
	Kind    string
	ID      string
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s %q: %s", e.Kind, e.ID, e.Message)
	}
	return fmt.Sprintf("%s %q: %s: %s", e.Kind, e.ID, e.Field, e.Message)
}

func configErr(kind, id, field, format string, args ...any) *ConfigError {
	return &ConfigError{Kind: kind, ID: id, Field: field, Message: fmt.Sprintf(format, args...)}
}

// fieldError is an internal error carrying the failing field path; callers
// wrap it into a ConfigError with their section and id.
type fieldError struct {
	field string
	msg   string
}

func (e fieldError) Error() string { return e.field + ": " + e.msg }

func wrap(kind, id string, err error) error {
	if err == nil {
		return nil
	}
	if fe, ok := err.(fieldError); ok {
		return configErr(kind, id, fe.field, "%s", fe.msg)
	}
	return configErr(kind, id, "", "%v", err)
}
