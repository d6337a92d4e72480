package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/store"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Database        string
	MinSignificance float64
	Kind            string
	Subject         string
	FromTick        int64
	ToTick          int64
	Limit           int
}

// EventsResult lists the narrative events of a run.
type EventsResult struct {
	RunID  string              `json:"run_id"`
	Events []ir.NarrativeEvent `json:"events"`
}

// WriteText implements textRenderer.
func (r EventsResult) WriteText(w io.Writer) error {
	if len(r.Events) == 0 {
		_, err := fmt.Fprintf(w, "No events recorded for run %s.\n", r.RunID)
		return err
	}
	fmt.Fprintf(w, "Run %s: %d events\n", r.RunID, len(r.Events))
	writeEvents(w, r.Events)
	return nil
}

func writeEvents(w io.Writer, events []ir.NarrativeEvent) {
	for _, ev := range events {
		era := ""
		if ev.Era != "" {
			era = " [" + string(ev.Era) + "]"
		}
		fmt.Fprintf(w, "  t%-4d %5s  %-12s %s%s\n",
			ev.Tick, strconv.FormatFloat(ev.Significance, 'f', 2, 64), ev.Kind, ev.Description, era)
	}
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events [run-id]",
		Short: "List the narrative events of a recorded run",
		Long: `List the narrative events of a recorded run, most significant first.

Events replaced by a coalesced successor are omitted. Without a run id the
most recent run is used.

Examples:
  loreweave events
  loreweave events 01936f8e-... --min-significance 0.5 --kind raid
  loreweave events --from 100 --to 200 --limit 20`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, args, cmd)
		},
	}

	addDBFlag(cmd, &opts.Database, rootOpts)
	cmd.Flags().Float64Var(&opts.MinSignificance, "min-significance", 0, "only events at or above this significance")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only events of this kind")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "only events about this entity id")
	cmd.Flags().Int64Var(&opts.FromTick, "from", 0, "only events at or after this tick")
	cmd.Flags().Int64Var(&opts.ToTick, "to", 0, "only events at or before this tick")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum events to list (0 = all)")

	return cmd
}

func runEvents(opts *EventsOptions, args []string, cmd *cobra.Command) error {
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

	run, err := resolveRun(ctx, st, args)
	if err != nil {
		return reportStoreError(formatter, err)
	}

	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must be non-negative")
	}
	events, err := st.QueryEvents(ctx, run.ID, store.EventFilter{
		MinSignificance: opts.MinSignificance,
		Kind:            opts.Kind,
		Subject:         ir.EntityID(opts.Subject),
		FromTick:        opts.FromTick,
		ToTick:          opts.ToTick,
		Limit:           opts.Limit,
	})
	if err != nil {
		return reportStoreError(formatter, err)
	}

	return formatter.Success(EventsResult{RunID: run.ID, Events: events})
}

// resolveRun returns the run named by args[0], or the latest run.
func resolveRun(ctx context.Context, st *store.Store, args []string) (*store.Run, error) {
	if len(args) > 0 && args[0] != "" {
		return st.ReadRun(ctx, args[0])
	}
	return st.LatestRun(ctx)
}

// reportStoreError writes a store failure and maps it to an exit code.
func reportStoreError(f *OutputFormatter, err error) error {
	code := ErrCodeStore
	if errors.Is(err, store.ErrRunNotFound) || errors.Is(err, errNoDatabase) {
		code = ErrCodeNotFound
	}
	_ = f.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, "store error", err)
}
