package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"time"

	"github.com/roach88/loreweave/internal/compiler"
	"github.com/roach88/loreweave/internal/engine"
	"github.com/roach88/loreweave/internal/interp"
	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/store"
	"github.com/roach88/loreweave/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and run id.
type Harness struct {
	store   *store.Store
	world   *ir.World
	program *interp.Program
	seed    int64
	ticks   int
	maxMuts int
	runIDs  *testutil.FixedRunID
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Load, validate and compile the bundle and world
// 3. Run the engine for the scenario's ticks, recording every tick
// 4. Evaluate assertions against the trace and the store
// 5. Return result with pass/fail, trace, and errors
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	clock := testutil.NewStepClock(time.Time{}, 0)
	st, err := store.Open(":memory:", store.WithNow(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	eng, err := h.execute(ctx, store.Source{BundlePath: scenario.Bundle, WorldPath: scenario.World}, result)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	actx := &AssertionContext{
		Ctx:     ctx,
		Store:   st,
		Engine:  eng,
		Harness: h,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario) (*Harness, error) {
	bundle, err := compiler.LoadBundle(scenario.Bundle)
	if err != nil {
		return nil, fmt.Errorf("load bundle: %w", err)
	}
	world, err := compiler.LoadWorld(scenario.World)
	if err != nil {
		return nil, fmt.Errorf("load world: %w", err)
	}
	if verrs := compiler.Validate(bundle, world); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, errors.Join(errs...))
	}
	program, err := interp.Compile(bundle)
	if err != nil {
		return nil, fmt.Errorf("compile bundle: %w", err)
	}

	h := &Harness{
		store:   st,
		world:   world,
		program: program,
		seed:    world.Params.Seed,
		ticks:   world.Params.Ticks,
		maxMuts: scenario.MaxMutations,
		runIDs:  testutil.NewFixedRunID(scenario.Name),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	if scenario.Seed != nil {
		h.seed = *scenario.Seed
	}
	if scenario.Ticks > 0 {
		h.ticks = scenario.Ticks
	}
	return h, nil
}

// newEngine builds a fresh engine from the harness inputs.
func (h *Harness) newEngine(opts ...engine.Option) (*engine.Engine, error) {
	base := []engine.Option{
		engine.WithLogger(h.logger),
		engine.WithSeed(h.seed),
		engine.WithRunIDGenerator(h.runIDs),
	}
	switch {
	case h.maxMuts > 0:
		base = append(base, engine.WithMaxMutations(h.maxMuts))
	case h.maxMuts < 0:
		base = append(base, engine.WithMaxMutations(0))
	}
	return engine.New(h.world, h.program, append(base, opts...)...)
}

// execute runs the recorded pass and fills result.
func (h *Harness) execute(ctx context.Context, src store.Source, result *Result) (*engine.Engine, error) {
	sink := &traceSink{rec: h.store.Recorder(src), result: result}
	eng, err := h.newEngine(engine.WithSink(sink))
	if err != nil {
		return nil, err
	}
	if err := eng.RunTicks(ctx, h.ticks); err != nil {
		return nil, err
	}
	res, err := eng.Finish(ctx)
	if err != nil {
		return nil, err
	}

	result.RunID = res.RunID
	result.Seed = res.Seed
	result.Ticks = res.Ticks
	result.Halted = res.Halted
	result.Digest = res.Digest
	result.EventDigest = res.EventDigest
	return eng, nil
}

// rerun executes the scenario again without recording and returns the
// final digests.
func (h *Harness) rerun(ctx context.Context) (*engine.RunResult, error) {
	eng, err := h.newEngine()
	if err != nil {
		return nil, err
	}
	if err := eng.RunTicks(ctx, h.ticks); err != nil {
		return nil, err
	}
	return eng.Result()
}

// traceSink records every tick in the store and appends it to the trace.
type traceSink struct {
	rec    *store.Recorder
	result *Result
}

func (s *traceSink) BeginRun(ctx context.Context, info engine.RunInfo) error {
	return s.rec.BeginRun(ctx, info)
}

func (s *traceSink) WriteTick(ctx context.Context, res *engine.TickResult) error {
	s.result.Trace = append(s.result.Trace, tracePoint(res))
	return s.rec.WriteTick(ctx, res)
}

func (s *traceSink) EndRun(ctx context.Context, res *engine.RunResult) error {
	return s.rec.EndRun(ctx, res)
}

func tracePoint(res *engine.TickResult) TracePoint {
	p := TracePoint{
		Tick:          res.Tick,
		Era:           res.Era,
		ByKind:        maps.Clone(res.Stats.ByKind),
		Relationships: res.Stats.Relationships,
		Mutations:     len(res.Mutations),
		Events:        len(res.Events),
		Violations:    len(res.Violations),
		Failures:      len(res.Failures),
		Pressures:     maps.Clone(res.Pressures),
		Halted:        res.Halted,
	}
	if p.ByKind == nil {
		p.ByKind = map[string]int{}
	}
	return p
}
