package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/loreweave/internal/engine"
	"github.com/roach88/loreweave/internal/ir"
)

// ErrRunNotFound is returned when a run id has no record.
var ErrRunNotFound = errors.New("run not found")

// Source names the inputs a run was built from, so it can be replayed.
type Source struct {
	BundlePath string `json:"bundle_path,omitempty"`
	WorldPath  string `json:"world_path,omitempty"`
}

// CreateRun records the start of a run.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - a second BeginRun for
// the same id is silently ignored.
func (s *Store) CreateRun(ctx context.Context, info engine.RunInfo, src Source) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, seed, planned_ticks, bundle_path, world_path, initial_digest, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		info.RunID,
		info.Seed,
		info.PlannedTicks,
		src.BundlePath,
		src.WorldPath,
		info.InitialDigest,
		s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// WriteTick stores one tick: the compressed delta, its events and its
// violations, in a single transaction.
//
// Note: The run referenced by res.RunID must exist (foreign key constraint).
func (s *Store) WriteTick(ctx context.Context, res *engine.TickResult) error {
	delta, err := compressDelta(res)
	if err != nil {
		return fmt.Errorf("write tick: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write tick: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ticks
		(run_id, tick, era, mutations, events, violations, failures, halted, delta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		res.RunID,
		res.Tick,
		res.Era,
		len(res.Mutations),
		len(res.Events),
		len(res.Violations),
		len(res.Failures),
		res.Halted,
		delta,
	)
	if err != nil {
		return fmt.Errorf("write tick %d: %w", res.Tick, err)
	}

	if err := insertEvents(ctx, tx, res.RunID, res.Events); err != nil {
		return fmt.Errorf("write tick %d: %w", res.Tick, err)
	}
	if err := insertViolations(ctx, tx, res.RunID, res.Violations); err != nil {
		return fmt.Errorf("write tick %d: %w", res.Tick, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write tick %d: commit: %w", res.Tick, err)
	}
	return nil
}

func insertEvents(ctx context.Context, tx *sqlx.Tx, runID string, events []ir.NarrativeEvent) error {
	if len(events) == 0 {
		return nil
	}
	var seq int64
	if err := tx.GetContext(ctx, &seq, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("event seq: %w", err)
	}
	for _, ev := range events {
		seq++
		participants, err := json.Marshal(nonNil(ev.Participants))
		if err != nil {
			return fmt.Errorf("marshal participants: %w", err)
		}
		tags, err := json.Marshal(nonNil(ev.Tags))
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events
			(run_id, seq, id, tick, era, kind, subject, magnitude, significance,
			 description, system_id, supersedes, participants, tags)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			runID, seq, ev.ID, ev.Tick, string(ev.Era), ev.Kind, string(ev.Subject),
			ev.Magnitude, ev.Significance, ev.Description, ev.SystemID, ev.Supersedes,
			string(participants), string(tags),
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
	}
	return nil
}

func insertViolations(ctx context.Context, tx *sqlx.Tx, runID string, violations []ir.Violation) error {
	if len(violations) == 0 {
		return nil
	}
	var seq int64
	if err := tx.GetContext(ctx, &seq, `SELECT COALESCE(MAX(seq), 0) FROM violations WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("violation seq: %w", err)
	}
	for _, v := range violations {
		seq++
		_, err := tx.ExecContext(ctx, `
			INSERT INTO violations
			(run_id, seq, tick, class, severity, message, entity_id, relationship_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			runID, seq, v.Tick, v.Class, string(v.Severity), v.Message,
			string(v.EntityID), string(v.RelationshipID),
		)
		if err != nil {
			return fmt.Errorf("insert violation: %w", err)
		}
	}
	return nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, res *engine.RunResult) error {
	summary, err := json.Marshal(res.Summary)
	if err != nil {
		return fmt.Errorf("finish run: marshal summary: %w", err)
	}
	out, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, ticks = ?, digest = ?, event_digest = ?,
		    halted = ?, halt_reason = ?, summary = ?
		WHERE id = ?
	`,
		s.timestamp(),
		res.Ticks,
		res.Digest,
		res.EventDigest,
		res.Halted,
		res.HaltReason,
		string(summary),
		res.RunID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", res.RunID, ErrRunNotFound)
	}
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}

// Recorder adapts a Store to engine.RunSink for one set of inputs.
//
// Usage:
//
//	rec := st.Recorder(store.Source{BundlePath: b, WorldPath: w})
//	e, err := engine.New(world, program, engine.WithSink(rec))
type Recorder struct {
	store  *Store
	source Source
}

// Recorder returns a RunSink that records runs built from src.
func (s *Store) Recorder(src Source) *Recorder {
	return &Recorder{store: s, source: src}
}

// BeginRun implements engine.RunSink.
func (r *Recorder) BeginRun(ctx context.Context, info engine.RunInfo) error {
	return r.store.CreateRun(ctx, info, r.source)
}

// WriteTick implements engine.Sink.
func (r *Recorder) WriteTick(ctx context.Context, res *engine.TickResult) error {
	return r.store.WriteTick(ctx, res)
}

// EndRun implements engine.RunSink.
func (r *Recorder) EndRun(ctx context.Context, res *engine.RunResult) error {
	return r.store.FinishRun(ctx, res)
}

var _ engine.RunSink = (*Recorder)(nil)
