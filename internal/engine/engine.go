package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/roach88/loreweave/internal/contract"
	"github.com/roach88/loreweave/internal/coords"
	"github.com/roach88/loreweave/internal/emitter"
	"github.com/roach88/loreweave/internal/graph"
	"github.com/roach88/loreweave/internal/interp"
	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/narrative"
	"github.com/roach88/loreweave/internal/rules"
	"github.com/roach88/loreweave/internal/stats"
	"github.com/roach88/loreweave/internal/systems"
)

// Engine runs one simulation.
//
// Thread-safety model:
//   - Step, RunTicks, RunUntil, Run, Finish: one goroutine at a time
//   - Emitter subscribers are called synchronously from that goroutine
//
// INVARIANTS:
//   - systems order NEVER changes after construction
//   - all randomness comes from rng, seeded once in New
//   - a tick either commits completely or is rolled back
type Engine struct {
	world   *ir.World
	program *interp.Program
	systems []systems.System

	graph      *graph.Graph
	coords     *coords.Context
	pressures  *rules.PressureTable
	saturation *rules.SaturationTracker
	rng        *rand.Rand
	seed       int64
	clock      *Clock

	tracker   *narrative.Tracker
	builder   *narrative.EventBuilder
	enforcer  *contract.Enforcer
	collector *stats.Collector
	quota     *QuotaEnforcer

	emitter *emitter.Emitter
	sink    Sink
	metrics *stats.Metrics
	logger  *slog.Logger
	runID   string
	idGen   RunIDGenerator

	maxMutations int
	extra        []systems.System
	seedSet      bool
	began        bool
	violations   []ir.Violation
	haltErr      error
	result       *RunResult
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSeed overrides the seed from the world params.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.seed = seed
		e.seedSet = true
	}
}

// WithSink sets the sink that receives every tick result.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithEmitter sets the emitter lifecycle events are published on.
// Default: a fresh emitter per engine.
func WithEmitter(em *emitter.Emitter) Option {
	return func(e *Engine) { e.emitter = em }
}

// WithMetrics exports tick statistics to m.
func WithMetrics(m *stats.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRunIDGenerator sets how the run id is generated.
// Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) { e.idGen = g }
}

// WithMaxMutations sets the per-tick mutation quota.
//
// Default: DefaultMaxMutations. Zero or negative disables the quota.
func WithMaxMutations(n int) Option {
	return func(e *Engine) { e.maxMutations = n }
}

// WithSystem appends a system after the program's catalog. Hosts use it
// for behavior that cannot be expressed as bundle data.
func WithSystem(sys systems.System) Option {
	return func(e *Engine) { e.extra = append(e.extra, sys) }
}

// New builds an engine: it seeds the graph from world, seeds the random
// source and builds fresh system instances from program.
func New(world *ir.World, program *interp.Program, opts ...Option) (*Engine, error) {
	if world == nil {
		return nil, fmt.Errorf("engine: nil world")
	}
	if program == nil {
		return nil, fmt.Errorf("engine: nil program")
	}

	e := &Engine{
		world:        world,
		program:      program,
		seed:         world.Params.Seed,
		logger:       slog.Default(),
		idGen:        UUIDv7Generator{},
		maxMutations: DefaultMaxMutations,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.emitter == nil {
		e.emitter = emitter.New(e.logger)
	}
	e.runID = e.idGen.Generate()
	e.logger = e.logger.With("run_id", e.runID)

	bundle := program.Bundle()
	policy := bundle.ConflictPolicy
	if policy == "" {
		policy = ir.ConflictSequential
	}
	e.tracker = narrative.NewTracker()
	e.graph = graph.New(
		graph.WithListener(e.tracker),
		graph.WithConflictPolicy(policy),
		graph.WithHistoricalEdgeKinds(bundle.Contracts.HistoricalEdgeKinds...),
	)
	if err := e.seedGraph(); err != nil {
		return nil, err
	}
	e.tracker.Reset()

	e.rng = rand.New(rand.NewPCG(uint64(e.seed), uint64(e.seed)^0x9e3779b97f4a7c15))
	e.coords = coords.New(world.Planes, e.seed)
	e.pressures = rules.NewPressureTable()
	program.InitPressures(e.pressures)
	e.saturation = rules.NewSaturationTracker()
	compiled, err := program.Systems()
	if err != nil {
		return nil, err
	}
	e.systems = append(compiled, e.extra...)
	e.clock = NewClock()

	e.builder = narrative.NewEventBuilder(bundle.Narrative, narrative.NewLog())
	e.enforcer = contract.New(bundle.Contracts)
	e.collector = stats.NewCollector(e.metrics)
	e.quota = NewQuotaEnforcer(e.maxMutations)
	return e, nil
}

func (e *Engine) seedGraph() error {
	e.graph.SetActor("seed")
	defer e.graph.SetActor("")
	for i, init := range e.world.Entities {
		if !e.world.HasKind(init.Kind) {
			return fmt.Errorf("world entities[%d]: unknown kind %q", i, init.Kind)
		}
		if _, err := e.graph.AddEntity(init); err != nil {
			return fmt.Errorf("world entities[%d]: %w", i, err)
		}
	}
	for i, r := range e.world.Relationships {
		if _, err := e.graph.AddRelationship(r.Kind, r.Src, r.Dst, r.Strength); err != nil {
			return fmt.Errorf("world relationships[%d]: %w", i, err)
		}
	}
	return nil
}

// RunID returns the run id.
func (e *Engine) RunID() string { return e.runID }

// Seed returns the effective seed.
func (e *Engine) Seed() int64 { return e.seed }

// Tick returns the last completed tick.
func (e *Engine) Tick() int64 { return e.clock.Current() }

// Graph returns the live graph. Callers must not mutate it.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Pressures returns the current pressure values.
func (e *Engine) Pressures() map[string]float64 { return e.pressures.Snapshot() }

// Events returns the latest narrative events ranked by significance.
// limit <= 0 returns all.
func (e *Engine) Events(limit int) []ir.NarrativeEvent { return e.builder.Log().Ranked(limit) }

// Log returns the narrative event log.
func (e *Engine) Log() *narrative.Log { return e.builder.Log() }

// Stats returns the statistics collector.
func (e *Engine) Stats() *stats.Collector { return e.collector }

// Emitter returns the emitter lifecycle events are published on.
func (e *Engine) Emitter() *emitter.Emitter { return e.emitter }

// Violations returns every violation reported so far.
func (e *Engine) Violations() []ir.Violation { return e.violations }

// Halted reports whether a hard violation stopped the run.
func (e *Engine) Halted() bool { return e.haltErr != nil }

// HaltError returns the error that halted the run, or nil.
func (e *Engine) HaltError() error { return e.haltErr }

// RunTicks advances up to n ticks. It stops early, without error, when the
// run halts. Cancellation is checked before every tick.
func (e *Engine) RunTicks(ctx context.Context, n int) error {
	for range n {
		if _, err := e.Step(ctx); err != nil {
			if IsHaltError(err) {
				return nil
			}
			return err
		}
	}
	return nil
}

// RunUntil advances until cond holds for a tick result, the run halts, or
// maxTicks ticks have run. It reports whether cond was met.
func (e *Engine) RunUntil(ctx context.Context, cond func(*TickResult) bool, maxTicks int) (bool, error) {
	for range maxTicks {
		res, err := e.Step(ctx)
		if err != nil {
			if IsHaltError(err) {
				return false, nil
			}
			return false, err
		}
		if cond(res) {
			return true, nil
		}
	}
	return false, nil
}

// Run advances the number of ticks the world params request and finishes
// the run. A halted run is a result, not an error.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	if err := e.RunTicks(ctx, e.world.Params.Ticks); err != nil {
		return nil, err
	}
	return e.Finish(ctx)
}

// Result builds the run result as of the last completed tick.
func (e *Engine) Result() (*RunResult, error) {
	digest, err := e.graph.Digest()
	if err != nil {
		return nil, err
	}
	log := e.builder.Log()
	evDigest, err := ir.EventDigest(log.Events())
	if err != nil {
		return nil, err
	}
	res := &RunResult{
		RunID:       e.runID,
		Seed:        e.seed,
		Ticks:       e.clock.Current(),
		Events:      log.Latest(),
		Violations:  e.violations,
		Halted:      e.haltErr != nil,
		Summary:     e.collector.Summary(),
		Digest:      digest,
		EventDigest: evDigest,
	}
	if e.haltErr != nil {
		res.HaltReason = e.haltErr.Error()
	}
	return res, nil
}

// Finish closes the run: it builds the result, hands it to a RunSink and
// publishes run-complete. Finish is idempotent.
func (e *Engine) Finish(ctx context.Context) (*RunResult, error) {
	if e.result != nil {
		return e.result, nil
	}
	if err := e.begin(ctx); err != nil {
		return nil, err
	}
	res, err := e.Result()
	if err != nil {
		return nil, err
	}
	if rs, ok := e.sink.(RunSink); ok {
		if err := rs.EndRun(ctx, res); err != nil {
			return nil, fmt.Errorf("sink: end run: %w", err)
		}
	}
	e.result = res
	e.emitter.Publish(emitter.Event{Topic: emitter.TopicRunComplete, RunID: e.runID, Tick: res.Ticks, Payload: res})
	e.logger.Info("run complete",
		"ticks", res.Ticks,
		"events", len(res.Events),
		"violations", len(res.Violations),
		"halted", res.Halted,
		"digest", res.Digest,
	)
	return res, nil
}

// begin announces the run to a RunSink once, before the first tick.
func (e *Engine) begin(ctx context.Context) error {
	if e.began {
		return nil
	}
	e.began = true
	rs, ok := e.sink.(RunSink)
	if !ok {
		return nil
	}
	digest, err := e.graph.Digest()
	if err != nil {
		return err
	}
	info := RunInfo{RunID: e.runID, Seed: e.seed, PlannedTicks: e.world.Params.Ticks, InitialDigest: digest}
	if err := rs.BeginRun(ctx, info); err != nil {
		return fmt.Errorf("sink: begin run: %w", err)
	}
	return nil
}

func (e *Engine) refreshEra(ctx *rules.Context) {
	ctx.Era, ctx.EraID = "", ""
	if era, ok := systems.ActiveEra(ctx); ok {
		ctx.Era, ctx.EraID = era.ID, era.Subtype
	}
}

// runSystem runs one system, converting errors and panics into a
// RuntimeError.
func runSystem(sys systems.System, ctx *rules.Context) (rerr *RuntimeError) {
	defer func() {
		if r := recover(); r != nil {
			rerr = NewPanicError(ctx.Tick, sys.ID, r)
		}
	}()
	if err := sys.Run(ctx); err != nil {
		rerr = NewSystemError(ctx.Tick, sys.ID, err)
		if errors.Is(err, systems.ErrReentrantTransition) {
			rerr.Code = ErrCodeReentrantTransition
		}
	}
	return rerr
}
