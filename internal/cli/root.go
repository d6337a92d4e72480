package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/loreweave/internal/ir"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	LogLevel string
	Config   Config

	// configErr is reported before any command runs.
	configErr error
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the loreweave CLI.
func NewRootCommand() *cobra.Command {
	cfg, err := LoadConfig()
	if err != nil {
		cfg = Config{DB: "loreweave.db", LogLevel: "info", Format: "text"}
	}
	opts := &RootOptions{Config: cfg, configErr: err}

	cmd := &cobra.Command{
		Use:     "loreweave",
		Short:   "loreweave - procedural world history",
		Version: ir.EngineVersion,
		Long: `Run tick-driven world simulations from declarative rule bundles.

A bundle (CUE, YAML or JSON) declares pressures, templates, actions, eras,
systems and contracts. A world seed declares the starting entities. Runs
are deterministic for a given seed and are recorded in a SQLite database.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.configErr != nil {
				return WrapExitError(ExitCommandError, "invalid environment", opts.configErr)
			}
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if _, err := parseLevel(opts.LogLevel); err != nil {
				return NewExitError(ExitCommandError, err.Error())
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", cfg.Format, "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", cfg.LogLevel, "log level (debug|info|warn|error)")

	// Add subcommands
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// addDBFlag registers --db with the environment default.
func addDBFlag(cmd *cobra.Command, dst *string, opts *RootOptions) {
	cmd.Flags().StringVar(dst, "db", opts.Config.DB, "path to SQLite database")
}
