package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/loreweave/internal/store"
)

var errNoDatabase = errors.New("database not found")

// openExisting opens a store that must already exist.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", errNoDatabase, path)
	}
	return store.Open(path)
}

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
	Delete   string
}

// RunsResult lists stored runs, newest first.
type RunsResult struct {
	Runs    []store.Run `json:"runs"`
	Deleted string      `json:"deleted,omitempty"`
}

// WriteText implements textRenderer.
func (r RunsResult) WriteText(w io.Writer) error {
	if r.Deleted != "" {
		_, err := fmt.Fprintf(w, "Deleted run %s.\n", r.Deleted)
		return err
	}
	if len(r.Runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found in database.")
		return err
	}
	for _, run := range r.Runs {
		status := "running"
		switch {
		case run.Halted:
			status = "halted"
		case run.Finished():
			status = "finished"
		}
		fmt.Fprintf(w, "%s  seed=%-6d ticks=%-5d %-8s %s\n", run.ID, run.Seed, run.Ticks, status, run.StartedAt)
	}
	return nil
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List or delete recorded runs",
		Long: `List the runs recorded in the database, most recent first.

With --delete the named run and everything recorded for it is removed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	addDBFlag(cmd, &opts.Database, rootOpts)
	cmd.Flags().StringVar(&opts.Delete, "delete", "", "delete the run with this id")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openExisting(opts.Database)
	if err != nil {
		return reportStoreError(formatter, err)
	}
	defer st.Close()

	if opts.Delete != "" {
		if err := st.DeleteRun(ctx, opts.Delete); err != nil {
			return reportStoreError(formatter, err)
		}
		return formatter.Success(RunsResult{Runs: []store.Run{}, Deleted: opts.Delete})
	}

	runs, err := st.ListRuns(ctx)
	if err != nil {
		return reportStoreError(formatter, err)
	}
	return formatter.Success(RunsResult{Runs: runs})
}
