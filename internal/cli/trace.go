package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/loreweave/internal/engine"
	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Tick     int64  // optional - show one tick in full
	System   string // optional - filter mutations to one system
}

// TraceResult is the tick index of a run.
type TraceResult struct {
	RunID string          `json:"run_id"`
	Ticks []store.TickRow `json:"ticks"`
	Stats TraceStats      `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Ticks      int  `json:"ticks"`
	Mutations  int  `json:"mutations"`
	Events     int  `json:"events"`
	Violations int  `json:"violations"`
	Failures   int  `json:"failures"`
	Halted     bool `json:"halted"`
}

// WriteText implements textRenderer.
func (r TraceResult) WriteText(w io.Writer) error {
	if len(r.Ticks) == 0 {
		_, err := fmt.Fprintf(w, "No ticks recorded for run %s.\n", r.RunID)
		return err
	}
	fmt.Fprintf(w, "Run %s\n", r.RunID)
	fmt.Fprintf(w, "  %-6s %-14s %9s %6s %10s %8s\n", "tick", "era", "mutations", "events", "violations", "failures")
	for _, t := range r.Ticks {
		line := fmt.Sprintf("  %-6d %-14s %9d %6d %10d %8d", t.Tick, orDash(t.Era), t.Mutations, t.Events, t.Violations, t.Failures)
		if t.Halted {
			line += "  HALTED"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\n%d ticks, %d mutations, %d events, %d violations, %d failures\n",
		r.Stats.Ticks, r.Stats.Mutations, r.Stats.Events, r.Stats.Violations, r.Stats.Failures)
	return nil
}

// TickDetail is one recorded tick in full.
type TickDetail struct {
	RunID string             `json:"run_id"`
	Tick  *engine.TickResult `json:"tick"`
}

// WriteText implements textRenderer.
func (d TickDetail) WriteText(w io.Writer) error {
	t := d.Tick
	fmt.Fprintf(w, "Run %s tick %d", d.RunID, t.Tick)
	if t.Era != "" {
		fmt.Fprintf(w, " (era %s)", t.Era)
	}
	if t.Halted {
		fmt.Fprint(w, " HALTED")
	}
	fmt.Fprintln(w)

	if len(t.Pressures) > 0 {
		var parts []string
		for _, k := range slices.Sorted(maps.Keys(t.Pressures)) {
			parts = append(parts, fmt.Sprintf("%s=%.3g", k, t.Pressures[k]))
		}
		fmt.Fprintf(w, "  pressures: %s\n", strings.Join(parts, " "))
	}
	fmt.Fprintf(w, "  mutations (%d):\n", len(t.Mutations))
	for _, m := range t.Mutations {
		fmt.Fprintf(w, "    %s\n", describeMutation(m))
	}
	for _, f := range t.Failures {
		fmt.Fprintf(w, "  failure: %s [%s] %s\n", f.SystemID, f.Code, f.Message)
	}
	for _, v := range t.Violations {
		fmt.Fprintf(w, "  violation: %s/%s %s\n", v.Class, v.Severity, v.Message)
	}
	if len(t.Events) > 0 {
		fmt.Fprintf(w, "  events:\n")
		writeEvents(w, t.Events)
	}
	return nil
}

func describeMutation(m ir.MutationRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s", m.Seq, m.Op)
	if m.SystemID != "" {
		fmt.Fprintf(&b, " by %s", m.SystemID)
	}
	if m.Entity != "" {
		fmt.Fprintf(&b, " entity=%s", m.Entity)
	}
	if m.Relationship != "" {
		fmt.Fprintf(&b, " rel=%s", m.Relationship)
	}
	if m.Other != "" {
		fmt.Fprintf(&b, " other=%s", m.Other)
	}
	if m.Kind != "" {
		fmt.Fprintf(&b, " kind=%s", m.Kind)
	}
	if m.Key != "" {
		fmt.Fprintf(&b, " key=%s", m.Key)
	}
	if m.Before != 0 || m.After != 0 {
		fmt.Fprintf(&b, " %g->%g", m.Before, m.After)
	}
	if m.Note != "" {
		fmt.Fprintf(&b, " (%s)", m.Note)
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Show the recorded ticks of a run",
		Long: `Show the tick index of a recorded run, or one tick in full.

Without --tick every recorded tick is listed with its counts. With --tick
the stored delta is decompressed and its mutations, failures, violations
and events are printed. Without a run id the most recent run is used.

Examples:
  loreweave trace
  loreweave trace 01936f8e-... --tick 12
  loreweave trace --tick 12 --system growth --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args, cmd)
		},
	}

	addDBFlag(cmd, &opts.Database, rootOpts)
	cmd.Flags().Int64Var(&opts.Tick, "tick", 0, "show this tick in full")
	cmd.Flags().StringVar(&opts.System, "system", "", "with --tick, only mutations made by this system")

	return cmd
}

func runTrace(opts *TraceOptions, args []string, cmd *cobra.Command) error {
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

	if opts.Tick > 0 {
		res, err := st.ReadTickDelta(ctx, run.ID, opts.Tick)
		if err != nil {
			return reportStoreError(formatter, err)
		}
		if opts.System != "" {
			res.Mutations = slices.DeleteFunc(res.Mutations, func(m ir.MutationRecord) bool {
				return m.SystemID != opts.System
			})
		}
		return formatter.Success(TickDetail{RunID: run.ID, Tick: res})
	}

	ticks, err := st.ReadTicks(ctx, run.ID)
	if err != nil {
		return reportStoreError(formatter, err)
	}
	result := TraceResult{RunID: run.ID, Ticks: ticks}
	for _, t := range ticks {
		result.Stats.Ticks++
		result.Stats.Mutations += t.Mutations
		result.Stats.Events += t.Events
		result.Stats.Violations += t.Violations
		result.Stats.Failures += t.Failures
		result.Stats.Halted = result.Stats.Halted || t.Halted
	}
	return formatter.Success(result)
}
