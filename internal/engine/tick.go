package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/loreweave/internal/emitter"
	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/rules"
	"github.com/roach88/loreweave/internal/stats"
)

// Step runs exactly one tick.
//
// System failures do not fail the step; they are reported in
// TickResult.Failures. A hard contract violation or an exceeded mutation
// quota rolls the tick back, halts the run and returns a RuntimeError for
// which IsHaltError is true, together with the rolled-back TickResult.
// Once halted, Step returns ErrHalted.
func (e *Engine) Step(ctx context.Context) (*TickResult, error) {
	if e.haltErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrHalted, e.haltErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.begin(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	tick := e.clock.Next()
	e.emitter.Publish(emitter.Event{Topic: emitter.TopicTickStart, RunID: e.runID, Tick: tick})

	rollback := e.capture()
	e.tracker.Reset()
	e.graph.SetTick(tick)
	e.saturation.Reset()

	rctx := &rules.Context{
		Tick:       tick,
		Graph:      e.graph,
		Rand:       e.rng,
		Pressures:  e.pressures,
		Coords:     e.coords,
		Saturation: e.saturation,
		Logger:     e.logger.With("tick", tick),
	}
	e.refreshEra(rctx)
	e.program.EvaluatePressures(rctx)

	res := &TickResult{RunID: e.runID, Tick: tick}
	var failed []string
	for _, sys := range e.systems {
		e.refreshEra(rctx)
		if !sys.Active(rctx) {
			continue
		}
		e.graph.SetActor(sys.ID)
		rerr := runSystem(sys, rctx.WithSystem(sys.ID))
		e.graph.SetActor("")
		if rerr != nil {
			e.logger.Warn("system failed",
				"tick", tick,
				"system", sys.ID,
				"code", rerr.Code,
				"error", rerr.Message,
			)
			res.Failures = append(res.Failures, SystemFailure{SystemID: sys.ID, Code: rerr.Code, Message: rerr.Message})
			failed = append(failed, sys.ID)
		}
		if err := e.quota.Check(tick, sys.ID, e.tracker.Len()); err != nil {
			var me *MutationsExceededError
			if errors.As(err, &me) {
				return e.halt(ctx, rollback, res, newQuotaError(me))
			}
			return nil, err
		}
	}
	e.refreshEra(rctx)
	res.Era = rctx.EraID

	check := e.enforcer.Check(e.graph, tick)
	for _, v := range check.Violations {
		e.reportViolation(v)
	}
	res.Violations = check.Violations
	e.violations = append(e.violations, check.Violations...)
	if check.Halt() {
		hard := check.Hard()
		return e.halt(ctx, rollback, res, NewHaltError(tick, len(hard), hard[0].Message))
	}

	res.Mutations = e.tracker.Records()
	res.Events = e.builder.Build(e.graph, tick, rctx.Era, e.tracker.Changes())
	res.Pressures = e.pressures.Snapshot()

	ents, rels := e.graph.Snapshot()
	res.Stats = e.collector.Observe(stats.Observation{
		Tick:          tick,
		Entities:      ents,
		Relationships: rels,
		Pressures:     res.Pressures,
		Mutations:     len(res.Mutations),
		Events:        len(res.Events),
		Violations:    res.Violations,
		FailedSystems: failed,
		Duration:      time.Since(start),
	})

	if e.sink != nil {
		if err := e.sink.WriteTick(ctx, res); err != nil {
			return nil, fmt.Errorf("sink: tick %d: %w", tick, err)
		}
	}
	e.emitter.Publish(emitter.Event{Topic: emitter.TopicTickComplete, RunID: e.runID, Tick: tick, Payload: res})
	e.logger.Debug("tick complete",
		"tick", tick,
		"mutations", len(res.Mutations),
		"events", len(res.Events),
		"failures", len(res.Failures),
	)
	return res, nil
}

// capture clones everything a tick can change and returns the function
// that puts it back.
func (e *Engine) capture() func() {
	g := e.graph.Clone()
	c := e.coords.Clone()
	p := e.pressures.Clone()
	return func() {
		e.graph = g
		e.coords = c
		e.pressures = p
	}
}

// halt rolls the tick back and stops the run.
func (e *Engine) halt(ctx context.Context, rollback func(), res *TickResult, cause *RuntimeError) (*TickResult, error) {
	rollback()
	e.tracker.Reset()
	e.clock.rewind()
	e.haltErr = cause
	res.Halted = true
	res.Mutations = nil
	res.Events = nil

	e.logger.Error("run halted",
		"tick", res.Tick,
		"code", cause.Code,
		"error", cause.Message,
	)
	if e.sink != nil {
		if err := e.sink.WriteTick(ctx, res); err != nil {
			e.logger.Error("sink failed on halted tick", "tick", res.Tick, "error", err)
		}
	}
	e.emitter.Publish(emitter.Event{Topic: emitter.TopicTickComplete, RunID: e.runID, Tick: res.Tick, Payload: res})
	return res, cause
}

func (e *Engine) reportViolation(v ir.Violation) {
	attrs := []any{
		"tick", v.Tick,
		"class", v.Class,
		"severity", v.Severity,
		"message", v.Message,
	}
	if v.Severity == ir.SeverityHard {
		e.logger.Error("contract violation", attrs...)
	} else {
		e.logger.Warn("contract violation", attrs...)
	}
	e.emitter.Publish(emitter.Event{Topic: emitter.TopicViolation, RunID: e.runID, Tick: v.Tick, Payload: v})
}
