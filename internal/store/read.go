package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/loreweave/internal/engine"
	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/queryir"
	"github.com/roach88/loreweave/internal/querysql"
	"github.com/roach88/loreweave/internal/stats"
)

// Run is a stored run record.
type Run struct {
	ID            string           `json:"id" db:"id"`
	Seed          int64            `json:"seed" db:"seed"`
	PlannedTicks  int              `json:"planned_ticks" db:"planned_ticks"`
	BundlePath    string           `json:"bundle_path,omitempty" db:"bundle_path"`
	WorldPath     string           `json:"world_path,omitempty" db:"world_path"`
	InitialDigest string           `json:"initial_digest" db:"initial_digest"`
	StartedAt     string           `json:"started_at" db:"started_at"`
	FinishedAt    string           `json:"finished_at,omitempty" db:"finished_at"`
	Ticks         int64            `json:"ticks" db:"ticks"`
	Digest        string           `json:"digest,omitempty" db:"digest"`
	EventDigest   string           `json:"event_digest,omitempty" db:"event_digest"`
	Halted        bool             `json:"halted" db:"halted"`
	HaltReason    string           `json:"halt_reason,omitempty" db:"halt_reason"`
	SummaryJSON   string           `json:"-" db:"summary"`
	Summary       stats.RunSummary `json:"summary" db:"-"`
}

// Finished reports whether FinishRun was recorded for the run.
func (r Run) Finished() bool { return r.FinishedAt != "" }

// Source returns the inputs the run was built from.
func (r Run) Source() Source {
	return Source{BundlePath: r.BundlePath, WorldPath: r.WorldPath}
}

// TickRow is the per-tick index row. The full result is read with
// ReadTickDelta.
type TickRow struct {
	Tick       int64  `json:"tick" db:"tick"`
	Era        string `json:"era,omitempty" db:"era"`
	Mutations  int    `json:"mutations" db:"mutations"`
	Events     int    `json:"events" db:"events"`
	Violations int    `json:"violations" db:"violations"`
	Failures   int    `json:"failures" db:"failures"`
	Halted     bool   `json:"halted" db:"halted"`
}

type eventRow struct {
	ID           string  `db:"id"`
	Tick         int64   `db:"tick"`
	Era          string  `db:"era"`
	Kind         string  `db:"kind"`
	Subject      string  `db:"subject"`
	Magnitude    float64 `db:"magnitude"`
	Significance float64 `db:"significance"`
	Description  string  `db:"description"`
	SystemID     string  `db:"system_id"`
	Supersedes   string  `db:"supersedes"`
	Participants string  `db:"participants"`
	Tags         string  `db:"tags"`
}

type violationRow struct {
	Tick           int64  `db:"tick"`
	Class          string `db:"class"`
	Severity       string `db:"severity"`
	Message        string `db:"message"`
	EntityID       string `db:"entity_id"`
	RelationshipID string `db:"relationship_id"`
}

const runColumns = `id, seed, planned_ticks, bundle_path, world_path, initial_digest,
	started_at, finished_at, ticks, digest, event_digest, halted, halt_reason, summary`

// ReadRun returns the run record for runID.
func (s *Store) ReadRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	err := s.db.GetContext(ctx, &r, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", runID, err)
	}
	if err := decodeSummary(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns every run, most recently started first. UUIDv7 run ids
// sort by creation time, so id breaks timestamp ties.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	runs := []Run{}
	err := s.db.SelectContext(ctx, &runs,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id COLLATE BINARY DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	for i := range runs {
		if err := decodeSummary(&runs[i]); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	runs, err := s.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("latest run: %w", ErrRunNotFound)
	}
	return &runs[0], nil
}

func decodeSummary(r *Run) error {
	if r.SummaryJSON == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(r.SummaryJSON), &r.Summary); err != nil {
		return fmt.Errorf("run %s: unmarshal summary: %w", r.ID, err)
	}
	return nil
}

// ReadTicks returns the tick index of a run in tick order.
//
// Returns an empty slice (not nil) if the run has no ticks.
func (s *Store) ReadTicks(ctx context.Context, runID string) ([]TickRow, error) {
	rows := []TickRow{}
	q := queryir.Select{
		From:    queryir.TableTicks,
		Columns: []string{"tick", "era", "mutations", "events", "violations", "failures", "halted"},
		Filter:  queryir.Equals{Field: "run_id", Value: runID},
	}
	if err := s.selectQuery(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("read ticks: %w", err)
	}
	return rows, nil
}

// ReadTickDelta returns the full result recorded for one tick.
func (s *Store) ReadTickDelta(ctx context.Context, runID string, tick int64) (*engine.TickResult, error) {
	var blob []byte
	err := s.db.GetContext(ctx, &blob, `SELECT delta FROM ticks WHERE run_id = ? AND tick = ?`, runID, tick)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read tick %d of %s: not recorded", tick, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("read tick %d of %s: %w", tick, runID, err)
	}
	return decompressDelta(blob)
}

// EventFilter narrows QueryEvents. Zero fields do not filter.
type EventFilter struct {
	MinSignificance float64
	Kind            string
	Subject         ir.EntityID
	FromTick        int64
	ToTick          int64
	Limit           int
}

// ReadEvents returns the current narrative events of a run with
// significance >= minSignificance. See QueryEvents.
func (s *Store) ReadEvents(ctx context.Context, runID string, minSignificance float64) ([]ir.NarrativeEvent, error) {
	return s.QueryEvents(ctx, runID, EventFilter{MinSignificance: minSignificance})
}

// QueryEvents returns the current narrative events of a run matching f,
// most significant first. Events replaced by a coalesced successor are
// omitted.
//
// Ordering: significance DESC, then recording order, matching
// narrative.Log.Ranked.
//
// Returns an empty slice (not nil) if no events match.
func (s *Store) QueryEvents(ctx context.Context, runID string, f EventFilter) ([]ir.NarrativeEvent, error) {
	preds := []queryir.Predicate{
		queryir.Equals{Field: "run_id", Value: runID},
		queryir.AtLeast{Field: "significance", Value: f.MinSignificance},
	}
	if f.Kind != "" {
		preds = append(preds, queryir.Equals{Field: "kind", Value: f.Kind})
	}
	if f.Subject != "" {
		preds = append(preds, queryir.Equals{Field: "subject", Value: string(f.Subject)})
	}
	if f.FromTick > 0 {
		preds = append(preds, queryir.AtLeast{Field: "tick", Value: f.FromTick})
	}
	if f.ToTick > 0 {
		preds = append(preds, queryir.AtMost{Field: "tick", Value: f.ToTick})
	}
	preds = append(preds, queryir.Current{})

	var rows []eventRow
	q := queryir.Select{
		From: queryir.TableEvents,
		Columns: []string{"id", "tick", "era", "kind", "subject", "magnitude", "significance",
			"description", "system_id", "supersedes", "participants", "tags"},
		Filter:  queryir.And{Predicates: preds},
		OrderBy: []queryir.Order{{Field: "significance", Desc: true}},
		Limit:   f.Limit,
	}
	if err := s.selectQuery(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	events := make([]ir.NarrativeEvent, 0, len(rows))
	for _, r := range rows {
		ev := ir.NarrativeEvent{
			ID:           r.ID,
			Tick:         r.Tick,
			Era:          ir.EntityID(r.Era),
			Kind:         r.Kind,
			Subject:      ir.EntityID(r.Subject),
			Magnitude:    r.Magnitude,
			Significance: r.Significance,
			Description:  r.Description,
			SystemID:     r.SystemID,
			Supersedes:   r.Supersedes,
		}
		if err := json.Unmarshal([]byte(r.Participants), &ev.Participants); err != nil {
			return nil, fmt.Errorf("event %s: unmarshal participants: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.Tags), &ev.Tags); err != nil {
			return nil, fmt.Errorf("event %s: unmarshal tags: %w", r.ID, err)
		}
		if len(ev.Participants) == 0 {
			ev.Participants = nil
		}
		if len(ev.Tags) == 0 {
			ev.Tags = nil
		}
		events = append(events, ev)
	}
	return events, nil
}

// ViolationFilter narrows QueryViolations. Zero fields do not filter.
type ViolationFilter struct {
	Severity ir.Severity
	Class    string
}

// ReadViolations returns the violations of a run in detection order.
//
// Returns an empty slice (not nil) if the run had none.
func (s *Store) ReadViolations(ctx context.Context, runID string) ([]ir.Violation, error) {
	return s.QueryViolations(ctx, runID, ViolationFilter{})
}

// QueryViolations returns the violations of a run matching f in detection
// order.
func (s *Store) QueryViolations(ctx context.Context, runID string, f ViolationFilter) ([]ir.Violation, error) {
	preds := []queryir.Predicate{queryir.Equals{Field: "run_id", Value: runID}}
	if f.Severity != "" {
		preds = append(preds, queryir.Equals{Field: "severity", Value: string(f.Severity)})
	}
	if f.Class != "" {
		preds = append(preds, queryir.Equals{Field: "class", Value: f.Class})
	}

	var rows []violationRow
	q := queryir.Select{
		From:    queryir.TableViolations,
		Columns: []string{"tick", "class", "severity", "message", "entity_id", "relationship_id"},
		Filter:  queryir.And{Predicates: preds},
	}
	if err := s.selectQuery(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("read violations: %w", err)
	}
	out := make([]ir.Violation, 0, len(rows))
	for _, r := range rows {
		out = append(out, ir.Violation{
			Class:          r.Class,
			Severity:       ir.Severity(r.Severity),
			Message:        r.Message,
			Tick:           r.Tick,
			EntityID:       ir.EntityID(r.EntityID),
			RelationshipID: ir.RelationshipID(r.RelationshipID),
		})
	}
	return out, nil
}

// selectQuery compiles q and scans every row into dest.
func (s *Store) selectQuery(ctx context.Context, dest any, q queryir.Query) error {
	query, args, err := querysql.Compile(q)
	if err != nil {
		return err
	}
	return s.db.SelectContext(ctx, dest, query, args...)
}
