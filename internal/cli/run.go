package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/loreweave/internal/emitter"
	"github.com/roach88/loreweave/internal/engine"
	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/stats"
	"github.com/roach88/loreweave/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database     string
	Ticks        int
	Seed         int64
	MaxMutations int
	MetricsAddr  string
	Events       int
	Follow       bool

	// RunIDGenerator allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator engine.RunIDGenerator
}

// RunReport is the output of the run command.
type RunReport struct {
	RunID       string              `json:"run_id"`
	Seed        int64               `json:"seed"`
	Ticks       int64               `json:"ticks"`
	Halted      bool                `json:"halted"`
	HaltReason  string              `json:"halt_reason,omitempty"`
	Interrupted bool                `json:"interrupted,omitempty"`
	Digest      string              `json:"digest"`
	EventDigest string              `json:"event_digest"`
	Summary     stats.RunSummary    `json:"summary"`
	Events      []ir.NarrativeEvent `json:"events"`
}

// WriteText implements textRenderer.
func (r RunReport) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Run %s (seed %d)\n", r.RunID, r.Seed)
	status := "completed"
	switch {
	case r.Halted:
		status = "halted: " + r.HaltReason
	case r.Interrupted:
		status = "interrupted"
	}
	fmt.Fprintf(w, "  %d ticks, %s\n", r.Ticks, status)
	fmt.Fprintf(w, "  entities: %d active of %d, relationships: %d\n",
		r.Summary.FinalActive, r.Summary.FinalEntities, r.Summary.FinalRelationships)
	fmt.Fprintf(w, "  mutations: %d, events: %d, violations: %d, system errors: %d\n",
		r.Summary.Mutations, r.Summary.Events, r.Summary.Violations, r.Summary.SystemErrors)
	fmt.Fprintf(w, "  digest: %s\n", r.Digest)
	if len(r.Events) > 0 {
		fmt.Fprintf(w, "\nMost significant events:\n")
		writeEvents(w, r.Events)
	}
	return nil
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <bundle> <world>",
		Short: "Run a simulation and record it",
		Long: `Run a world simulation from a rule bundle and a world seed.

Every tick is recorded in the SQLite database (created if it doesn't exist).
The seed and tick count default to the world params. A run that halts on a
hard contract violation is recorded and exits with code 1.

Example:
  loreweave run --db ./runs.db rules.cue world.yaml
  loreweave run rules.cue world.yaml --ticks 200 --seed 7 --metrics-addr :9090`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(opts, args[0], args[1], cmd)
		},
	}

	addDBFlag(cmd, &opts.Database, rootOpts)
	cmd.Flags().IntVar(&opts.Ticks, "ticks", 0, "ticks to run (default: world params)")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed (default: world params)")
	cmd.Flags().IntVar(&opts.MaxMutations, "max-mutations", engine.DefaultMaxMutations, "per-tick mutation quota (0 disables)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", rootOpts.Config.MetricsAddr, "serve prometheus metrics on this address while running")
	cmd.Flags().IntVar(&opts.Events, "events", 10, "most significant events to print")
	cmd.Flags().BoolVar(&opts.Follow, "follow", false, "print a line per tick to stderr")

	return cmd
}

func runSimulation(opts *RunOptions, bundlePath, worldPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	in, err := LoadInputs(bundlePath, worldPath)
	if err != nil {
		return reportLoadError(formatter, err)
	}
	if opts.Ticks < 0 {
		return NewExitError(ExitCommandError, "--ticks must be non-negative")
	}
	if opts.Ticks > 0 {
		in.World.Params.Ticks = opts.Ticks
	}

	logger.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	metrics := stats.NewMetrics()
	if opts.MetricsAddr != "" {
		stop, err := serveMetrics(opts.MetricsAddr, metrics, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to serve metrics", err)
		}
		defer stop()
	}

	em := emitter.New(logger)
	if opts.Follow {
		progress := emitter.Async(followHandler(formatter.GetErrWriter()), 256)
		unsubscribe := em.Subscribe(emitter.TopicTickComplete, progress.Handle)
		defer progress.Close()
		defer unsubscribe()
	}

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithSink(st.Recorder(sourceOf(in))),
		engine.WithMetrics(metrics),
		engine.WithEmitter(em),
		engine.WithMaxMutations(opts.MaxMutations),
	}
	if cmd.Flags().Changed("seed") {
		engineOpts = append(engineOpts, engine.WithSeed(opts.Seed))
	}
	if opts.RunIDGenerator != nil {
		engineOpts = append(engineOpts, engine.WithRunIDGenerator(opts.RunIDGenerator))
	}
	eng, err := engine.New(in.World, in.Program, engineOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build engine", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("run starting", "run_id", eng.RunID(), "seed", eng.Seed(), "ticks", in.World.Params.Ticks)
	interrupted := false
	if err := eng.RunTicks(ctx, in.World.Params.Ticks); err != nil {
		if !errors.Is(err, context.Canceled) {
			return WrapExitError(ExitFailure, "engine error", err)
		}
		interrupted = true
		logger.Warn("run interrupted", "tick", eng.Tick())
	}

	// Record the outcome even when interrupted.
	res, err := eng.Finish(context.WithoutCancel(ctx))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to finish run", err)
	}

	report := RunReport{
		RunID:       res.RunID,
		Seed:        res.Seed,
		Ticks:       res.Ticks,
		Halted:      res.Halted,
		HaltReason:  res.HaltReason,
		Interrupted: interrupted,
		Digest:      res.Digest,
		EventDigest: res.EventDigest,
		Summary:     res.Summary,
		Events:      eng.Events(opts.Events),
	}
	if opts.Events <= 0 {
		report.Events = []ir.NarrativeEvent{}
	}
	if err := formatter.Success(report); err != nil {
		return err
	}
	if res.Halted {
		return NewExitError(ExitFailure, "run halted: "+res.HaltReason)
	}
	return nil
}

// sourceOf records absolute input paths so a stored run can be replayed
// from any directory.
func sourceOf(in *Inputs) store.Source {
	src := store.Source{BundlePath: in.BundlePath, WorldPath: in.WorldPath}
	if abs, err := filepath.Abs(src.BundlePath); err == nil {
		src.BundlePath = abs
	}
	if abs, err := filepath.Abs(src.WorldPath); err == nil {
		src.WorldPath = abs
	}
	return src
}

func followHandler(w io.Writer) emitter.Handler {
	return func(ev emitter.Event) {
		res, ok := ev.Payload.(*engine.TickResult)
		if !ok {
			return
		}
		if res.Halted {
			fmt.Fprintf(w, "tick %d: halted\n", res.Tick)
			return
		}
		fmt.Fprintf(w, "tick %d: %d mutations, %d events, %d active entities\n",
			res.Tick, len(res.Mutations), len(res.Events), res.Stats.ActiveEntities)
	}
}

// serveMetrics exposes the run registry on /metrics until stop is called.
func serveMetrics(addr string, m *stats.Metrics, logger *slog.Logger) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
