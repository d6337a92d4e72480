package engine

import (
	"context"

	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/stats"
)

// SystemFailure records one system that failed during a tick.
type SystemFailure struct {
	SystemID string           `json:"system_id"`
	Code     RuntimeErrorCode `json:"code"`
	Message  string           `json:"message"`
}

// TickResult is everything one tick produced.
type TickResult struct {
	RunID string `json:"run_id"`
	Tick  int64  `json:"tick"`
	// Era is the configured id of the era active at the end of the tick.
	Era        string              `json:"era,omitempty"`
	Mutations  []ir.MutationRecord `json:"mutations"`
	Events     []ir.NarrativeEvent `json:"events,omitempty"`
	Violations []ir.Violation      `json:"violations,omitempty"`
	Failures   []SystemFailure     `json:"failures,omitempty"`
	Pressures  map[string]float64  `json:"pressures,omitempty"`
	Stats      stats.TickStats     `json:"stats"`
	// Halted is set when a hard violation rolled the tick back. Mutations
	// and Events are then empty.
	Halted bool `json:"halted,omitempty"`
}

// RunInfo describes a run before its first tick.
type RunInfo struct {
	RunID         string `json:"run_id"`
	Seed          int64  `json:"seed"`
	PlannedTicks  int    `json:"planned_ticks"`
	InitialDigest string `json:"initial_digest"`
}

// RunResult summarizes a run.
type RunResult struct {
	RunID      string              `json:"run_id"`
	Seed       int64               `json:"seed"`
	Ticks      int64               `json:"ticks"`
	Events     []ir.NarrativeEvent `json:"events"`
	Violations []ir.Violation      `json:"violations"`
	Halted     bool                `json:"halted"`
	HaltReason string              `json:"halt_reason,omitempty"`
	Summary    stats.RunSummary    `json:"summary"`
	// Digest hashes the final graph state; EventDigest the event stream.
	Digest      string `json:"digest"`
	EventDigest string `json:"event_digest"`
}

// Sink receives every tick result in order. The run store implements it.
type Sink interface {
	WriteTick(ctx context.Context, res *TickResult) error
}

// RunSink is a Sink that also records run boundaries.
type RunSink interface {
	Sink
	BeginRun(ctx context.Context, info RunInfo) error
	EndRun(ctx context.Context, res *RunResult) error
}
