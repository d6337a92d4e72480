package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/loreweave/internal/engine"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Bundle   string // optional - override the recorded bundle path
	World    string // optional - override the recorded world path
}

// ReplayResult holds the replay verdict for one run.
type ReplayResult struct {
	RunID         string `json:"run_id"`
	Bundle        string `json:"bundle"`
	World         string `json:"world"`
	Seed          int64  `json:"seed"`
	Ticks         int64  `json:"ticks"`
	Expected      string `json:"expected"`
	Actual        string `json:"actual"`
	Deterministic bool   `json:"deterministic"`
	Halted        bool   `json:"halted"`
}

// WriteText implements textRenderer.
func (r ReplayResult) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Replayed run %s: seed %d, %d ticks\n", r.RunID, r.Seed, r.Ticks)
	fmt.Fprintf(w, "  expected: %s\n", r.Expected)
	fmt.Fprintf(w, "  actual:   %s\n", r.Actual)
	if r.Deterministic {
		fmt.Fprintln(w, "  Result: deterministic")
	} else {
		fmt.Fprintln(w, "  Result: DIVERGED")
	}
	return nil
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [run-id]",
		Short: "Replay a recorded run and verify determinism",
		Long: `Rebuild a recorded run from its bundle, world seed and seed, run it for
the same number of ticks and compare the final state digest with the one
recorded. Without a run id the most recent finished run is used.

Exit codes:
  0 - The replay reproduced the recorded digest
  1 - Determinism verification failed (digests differ)
  2 - Command error (database not found, run not finished, inputs missing)

Examples:
  loreweave replay
  loreweave replay 01936f8e-... --db ./runs.db
  loreweave replay --bundle ./moved/rules.cue --world ./moved/world.yaml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args, cmd)
		},
	}

	addDBFlag(cmd, &opts.Database, rootOpts)
	cmd.Flags().StringVar(&opts.Bundle, "bundle", "", "bundle path (default: recorded path)")
	cmd.Flags().StringVar(&opts.World, "world", "", "world path (default: recorded path)")

	return cmd
}

func runReplay(opts *ReplayOptions, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	st, err := openExisting(opts.Database)
	if err != nil {
		return reportStoreError(formatter, err)
	}
	defer st.Close()

	run, err := resolveRun(ctx, st, args)
	if err != nil {
		return reportStoreError(formatter, err)
	}
	if !run.Finished() {
		_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("run %s has no recorded outcome", run.ID), nil)
		return NewExitError(ExitCommandError, "run not finished")
	}

	src := run.Source()
	if opts.Bundle != "" {
		src.BundlePath = opts.Bundle
	}
	if opts.World != "" {
		src.WorldPath = opts.World
	}
	in, err := LoadInputs(src.BundlePath, src.WorldPath)
	if err != nil {
		exitErr := reportLoadError(formatter, err)
		return WrapExitError(ExitCommandError, "cannot rebuild run inputs", exitErr)
	}
	formatter.VerboseLog("Replaying %s from %s and %s", run.ID, src.BundlePath, src.WorldPath)

	report, err := engine.Replay(ctx, in.World, in.Program, run.Seed, int(run.Ticks), run.Digest,
		engine.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	result := ReplayResult{
		RunID:         run.ID,
		Bundle:        src.BundlePath,
		World:         src.WorldPath,
		Seed:          report.Seed,
		Ticks:         report.Ticks,
		Expected:      report.Expected,
		Actual:        report.Actual,
		Deterministic: report.Match,
		Halted:        report.Halted,
	}
	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Deterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}
