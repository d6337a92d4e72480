package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/loreweave/internal/compiler"
	"github.com/roach88/loreweave/internal/interp"
	"github.com/roach88/loreweave/internal/ir"
)

// Inputs are a loaded bundle and world seed with the compiled program.
// World is nil when no world path was given.
type Inputs struct {
	BundlePath string
	WorldPath  string
	Bundle     *ir.Bundle
	World      *ir.World
	Program    *interp.Program
}

// LoadError represents an error that occurred while loading inputs.
type LoadError struct {
	Code     string
	Message  string
	Findings []compiler.ValidationError
}

func (e *LoadError) Error() string {
	if len(e.Findings) == 1 {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Findings[0].Error())
	}
	if len(e.Findings) > 1 {
		return fmt.Sprintf("%s: %s (%d findings)", e.Code, e.Message, len(e.Findings))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadInputs loads, cross-validates and compiles a bundle and an optional
// world seed. Every finding is collected before returning; a LoadError
// carries them.
func LoadInputs(bundlePath, worldPath string) (*Inputs, error) {
	if err := checkFile("bundle", bundlePath); err != nil {
		return nil, err
	}
	if worldPath != "" {
		if err := checkFile("world", worldPath); err != nil {
			return nil, err
		}
	}

	in := &Inputs{BundlePath: bundlePath, WorldPath: worldPath}
	var findings []compiler.ValidationError

	bundle, err := compiler.LoadBundle(bundlePath)
	if err != nil {
		findings = append(findings, compiler.ErrorsFrom(err, compiler.ErrBundleSchema)...)
	}
	if worldPath != "" {
		world, err := compiler.LoadWorld(worldPath)
		if err != nil {
			findings = append(findings, compiler.ErrorsFrom(err, compiler.ErrWorldSchema)...)
		}
		in.World = world
	}
	if len(findings) > 0 {
		return nil, &LoadError{Code: findings[0].Code, Message: "failed to load inputs", Findings: findings}
	}
	in.Bundle = bundle

	if verrs := compiler.Validate(in.Bundle, in.World); len(verrs) > 0 {
		return nil, &LoadError{Code: verrs[0].Code, Message: "validation failed", Findings: verrs}
	}

	program, err := interp.Compile(in.Bundle)
	if err != nil {
		verrs := compiler.ErrorsFrom(err, compiler.ErrInvalidRule)
		return nil, &LoadError{Code: compiler.ErrInvalidRule, Message: "bundle rejected", Findings: verrs}
	}
	in.Program = program
	return in, nil
}

func checkFile(what, path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found: %s", what, path)}
	}
	if err != nil {
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", what, err)}
	}
	if info.IsDir() {
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s is a directory: %s", what, path)}
	}
	if !compiler.IsSupported(path) {
		return &LoadError{
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("%s %s: unsupported format, want one of %v", what, path, compiler.Formats),
		}
	}
	return nil
}

// reportLoadError writes a load failure and returns the matching
// ExitError. Missing files are command errors; findings are failures.
func reportLoadError(f *OutputFormatter, err error) error {
	var le *LoadError
	if !errors.As(err, &le) {
		_ = f.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load inputs", err)
	}
	if len(le.Findings) == 0 {
		_ = f.Error(le.Code, le.Message, nil)
		return NewExitError(ExitCommandError, le.Message)
	}

	if f.Format == "json" {
		_ = f.Error(le.Code, le.Message, le.Findings)
	} else {
		fmt.Fprintf(f.Writer, "%s:\n", le.Message)
		for _, v := range le.Findings {
			fmt.Fprintf(f.Writer, "  %s\n", v.Error())
		}
	}
	return WrapExitError(ExitFailure, le.Message, le)
}
