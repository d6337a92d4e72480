// Package compiler loads declarative bundles and world seeds.
//
// Files may be CUE, YAML or JSON. Every format is read through the CUE SDK
// and unified with an embedded schema (#Bundle or #World) before the value
// is compiled into package ir types. Rule expressions are tagged variants
// selected by their "type" field; unknown types and unknown fields are
// compile errors.
package compiler

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
	cueyaml "cuelang.org/go/encoding/yaml"

	"github.com/roach88/loreweave/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// Schema definitions.
const (
	DefBundle = "#Bundle"
	DefWorld  = "#World"
)

// Formats lists the accepted file extensions.
var Formats = []string{".cue", ".yaml", ".yml", ".json"}

// LoadBundle reads, checks and compiles a bundle file.
func LoadBundle(path string) (*ir.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load bundle: %w", err)
	}
	return ParseBundle(path, data)
}

// LoadWorld reads, checks and compiles a world seed file.
func LoadWorld(path string) (*ir.World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load world: %w", err)
	}
	return ParseWorld(path, data)
}

// ParseBundle compiles bundle source. The extension of name selects the
// format.
func ParseBundle(name string, data []byte) (*ir.Bundle, error) {
	v, err := Parse(name, data, DefBundle)
	if err != nil {
		return nil, err
	}
	return CompileBundle(v)
}

// ParseWorld compiles world seed source. The extension of name selects the
// format.
func ParseWorld(name string, data []byte) (*ir.World, error) {
	v, err := Parse(name, data, DefWorld)
	if err != nil {
		return nil, err
	}
	return CompileWorld(v)
}

// Parse builds a CUE value from source and unifies it with the schema
// definition def. The result is concrete.
func Parse(name string, data []byte, def string) (cue.Value, error) {
	ctx := cuecontext.New()

	var v cue.Value
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".cue":
		v = ctx.CompileBytes(data, cue.Filename(name))
	case ".yaml", ".yml":
		f, err := cueyaml.Extract(name, data)
		if err != nil {
			return cue.Value{}, formatCUEError(err)
		}
		v = ctx.BuildFile(f)
	case ".json":
		expr, err := cuejson.Extract(name, data)
		if err != nil {
			return cue.Value{}, formatCUEError(err)
		}
		v = ctx.BuildExpr(expr)
	default:
		return cue.Value{}, &CompileError{
			Field:   "file",
			Message: fmt.Sprintf("unsupported format %q (want one of %s)", ext, strings.Join(Formats, ", ")),
		}
	}
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compiler: schema: %w", err)
	}
	defVal := schema.LookupPath(cue.ParsePath(def))
	if !defVal.Exists() {
		return cue.Value{}, fmt.Errorf("compiler: schema has no definition %s", def)
	}

	v = v.Unify(defVal)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

// IsSupported reports whether path has an accepted extension.
func IsSupported(path string) bool {
	return slices.Contains(Formats, strings.ToLower(filepath.Ext(path)))
}
