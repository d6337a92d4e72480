package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/loreweave/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	World  string // optional world seed
	Output string // output file path
}

// SystemEntry describes one compiled system in run order.
type SystemEntry struct {
	ID       string        `json:"id"`
	Type     ir.SystemType `json:"type"`
	Disabled bool          `json:"disabled,omitempty"`
	Eras     []string      `json:"eras,omitempty"`
}

// CompilationResult is the catalog of a compiled bundle.
type CompilationResult struct {
	Bundle         string            `json:"bundle"`
	BundleVersion  string            `json:"bundle_version"`
	World          string            `json:"world,omitempty"`
	ConflictPolicy ir.ConflictPolicy `json:"conflict_policy"`
	Pressures      []string          `json:"pressures"`
	Templates      []string          `json:"templates"`
	Actions        []string          `json:"actions"`
	Eras           []string          `json:"eras"`
	Systems        []SystemEntry     `json:"systems"`
	Kinds          []string          `json:"kinds,omitempty"`
	Entities       int               `json:"entities,omitempty"`
	Relationships  int               `json:"relationships,omitempty"`
}

// WriteText implements textRenderer.
func (r CompilationResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Compiled %s (conflict policy %s)\n", r.Bundle, r.ConflictPolicy)
	fmt.Fprintf(w, "  pressures: %s\n", listOrDash(r.Pressures))
	fmt.Fprintf(w, "  templates: %s\n", listOrDash(r.Templates))
	fmt.Fprintf(w, "  actions:   %s\n", listOrDash(r.Actions))
	fmt.Fprintf(w, "  eras:      %s\n", listOrDash(r.Eras))
	fmt.Fprintf(w, "  systems:\n")
	for i, s := range r.Systems {
		line := fmt.Sprintf("    %d. %s (%s)", i+1, s.ID, s.Type)
		if len(s.Eras) > 0 {
			line += " eras=" + strings.Join(s.Eras, ",")
		}
		if s.Disabled {
			line += " disabled"
		}
		fmt.Fprintln(w, line)
	}
	if r.World != "" {
		fmt.Fprintf(w, "World %s: %d entities, %d relationships, kinds %s\n",
			r.World, r.Entities, r.Relationships, listOrDash(r.Kinds))
	}
	return nil
}

func listOrDash(xs []string) string {
	if len(xs) == 0 {
		return "-"
	}
	return strings.Join(xs, ", ")
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <bundle>",
		Short: "Compile a rule bundle and print its catalog",
		Long: `Compile a rule bundle (CUE, YAML or JSON) and print the resulting catalog:
pressures, templates, actions, eras and systems in run order.

With --world the world seed is compiled and cross-checked as well.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the catalog as JSON to this file")
	cmd.Flags().StringVarP(&opts.World, "world", "w", "", "world seed to cross-check")

	return cmd
}

func runCompile(opts *CompileOptions, bundlePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	in, err := LoadInputs(bundlePath, opts.World)
	if err != nil {
		return reportLoadError(formatter, err)
	}
	formatter.VerboseLog("Compiled %s", bundlePath)

	result := catalog(in)

	if opts.Output != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to marshal catalog", err)
		}
		if err := os.WriteFile(opts.Output, append(data, '\n'), 0o644); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		formatter.VerboseLog("Wrote %s", opts.Output)
	}
	return formatter.Success(result)
}

func catalog(in *Inputs) CompilationResult {
	b := in.Bundle
	r := CompilationResult{
		Bundle:         in.BundlePath,
		BundleVersion:  ir.BundleVersion,
		ConflictPolicy: b.ConflictPolicy,
		Pressures:      []string{},
		Templates:      []string{},
		Actions:        []string{},
		Eras:           []string{},
		Systems:        []SystemEntry{},
	}
	if r.ConflictPolicy == "" {
		r.ConflictPolicy = ir.ConflictSequential
	}
	for _, p := range b.Pressures {
		r.Pressures = append(r.Pressures, p.ID)
	}
	for _, t := range b.Templates {
		r.Templates = append(r.Templates, t.ID)
	}
	for _, a := range b.Actions {
		r.Actions = append(r.Actions, a.ID)
	}
	for _, e := range b.Eras {
		r.Eras = append(r.Eras, e.ID)
	}
	for _, s := range b.Systems {
		r.Systems = append(r.Systems, SystemEntry{ID: s.ID, Type: s.Type, Disabled: s.Disabled, Eras: s.Eras})
	}
	if w := in.World; w != nil {
		r.World = in.WorldPath
		for _, k := range w.Kinds {
			r.Kinds = append(r.Kinds, k.Name)
		}
		r.Entities = len(w.Entities)
		r.Relationships = len(w.Relationships)
	}
	return r
}
