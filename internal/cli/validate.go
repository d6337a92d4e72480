package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/loreweave/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Bundle string                     `json:"bundle"`
	World  string                     `json:"world,omitempty"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// WriteText implements textRenderer.
func (r ValidationResult) WriteText(w io.Writer) error {
	if r.World != "" {
		_, err := fmt.Fprintf(w, "Valid: %s with %s\n", r.Bundle, r.World)
		return err
	}
	_, err := fmt.Fprintf(w, "Valid: %s\n", r.Bundle)
	return err
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <bundle> [world]",
		Short: "Validate a rule bundle and optional world seed",
		Long: `Validate a rule bundle, and optionally a world seed, without running.

Checks the files against the embedded schema, resolves every reference
(templates, actions, pressures, eras), asks the interpreter to accept each
rule and, with a world, checks that the bundle only creates declared kinds.
All findings are reported with their codes.

Exit codes:
  0 - Valid
  1 - One or more findings
  2 - Command error (file not found, unsupported format)`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			world := ""
			if len(args) == 2 {
				world = args[1]
			}
			return runValidate(rootOpts, args[0], world, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, bundlePath, worldPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	formatter.VerboseLog("Validating %s", bundlePath)
	if _, err := LoadInputs(bundlePath, worldPath); err != nil {
		return reportLoadError(formatter, err)
	}

	return formatter.Success(ValidationResult{Valid: true, Bundle: bundlePath, World: worldPath})
}
