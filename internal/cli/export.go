package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database string
	Output   string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export [run-id]",
		Short: "Export a recorded run as JSON",
		Long: `Export a recorded run (run record, tick index, events and violations)
as one JSON document. The document is validated against the export schema
before it is written. Without a run id the most recent run is exported.

The document is always JSON; --format does not apply.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args, cmd)
		},
	}

	addDBFlag(cmd, &opts.Database, rootOpts)
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write to this file instead of stdout")

	return cmd
}

func runExport(opts *ExportOptions, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.ErrOrStderr(), cmd.ErrOrStderr())

	st, err := openExisting(opts.Database)
	if err != nil {
		return reportStoreError(formatter, err)
	}
	defer st.Close()

	run, err := resolveRun(ctx, st, args)
	if err != nil {
		return reportStoreError(formatter, err)
	}
	data, err := st.Export(ctx, run.ID)
	if err != nil {
		return reportStoreError(formatter, err)
	}
	data = append(data, '\n')

	if opts.Output == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
		_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to write export", err)
	}
	formatter.VerboseLog("Exported run %s to %s", run.ID, opts.Output)
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported run %s to %s\n", run.ID, opts.Output)
	return nil
}
