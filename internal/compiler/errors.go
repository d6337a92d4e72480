package compiler

import (
	"errors"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError represents a load or compile error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// compileErr reports a problem with field of v.
func compileErr(v cue.Value, field, format string, args ...any) *CompileError {
	return &CompileError{
		Field:   joinPath(v, field),
		Message: fmt.Sprintf(format, args...),
		Pos:     v.Pos(),
	}
}

func joinPath(v cue.Value, field string) string {
	p := v.Path().String()
	switch {
	case p == "":
		return field
	case field == "":
		return p
	default:
		return p + "." + field
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	first := errs[0]
	positions := cueerrors.Positions(first)
	field := "cue"
	if path := first.Path(); len(path) > 0 {
		field = strings.Join(path, ".")
	}
	ce := &CompileError{Field: field, Message: first.Error()}
	if len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}

// ErrorsFrom converts a load or compile error into validation errors
// carrying code. Errors that are not CompileErrors keep their message.
func ErrorsFrom(err error, code string) []ValidationError {
	if err == nil {
		return nil
	}
	var ce *CompileError
	if errors.As(err, &ce) {
		ve := ValidationError{Field: ce.Field, Message: ce.Message, Code: code}
		if ce.Pos.IsValid() {
			ve.Line = ce.Pos.Line()
		}
		return []ValidationError{ve}
	}
	return []ValidationError{{Field: "file", Message: err.Error(), Code: code}}
}
