package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loreweave/internal/engine"
	"github.com/roach88/loreweave/internal/interp"
	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/testutil"
)

// createTestStore creates a new store in a temp dir with a stepping clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	clock := testutil.NewStepClock(time.Time{}, 0)
	s, err := Open(path, WithNow(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestRun(t *testing.T, s *Store, id string) {
	t.Helper()
	info := engine.RunInfo{RunID: id, Seed: 1, PlannedTicks: 2, InitialDigest: "digest-0"}
	require.NoError(t, s.CreateRun(context.Background(), info, Source{}))
}

// growthRun records a ten tick growth run through a Recorder.
func growthRun(t *testing.T, s *Store) *engine.RunResult {
	t.Helper()
	world := &ir.World{
		Kinds:  []ir.KindSpec{{Name: "settlement"}},
		Params: ir.Params{Ticks: 10, Seed: 42},
	}
	for range 10 {
		world.Entities = append(world.Entities, ir.EntityInit{Kind: "settlement"})
	}
	program, err := interp.Compile(&ir.Bundle{
		Pressures: []ir.PressureConfig{{ID: "growth", Initial: 1, Max: 10}},
		Templates: []ir.TemplateConfig{{ID: "village", Weight: 1, Entity: ir.EntitySpec{Kind: "settlement"}}},
		Systems: []ir.SystemConfig{{
			ID:   "growth",
			Type: ir.SystemGrowth,
			Settings: ir.GrowthSettings{
				Templates:     []ir.TemplateRef{{Template: "village"}},
				Pressure:      "growth",
				PressureScale: 1,
			},
		}},
	})
	require.NoError(t, err)

	rec := s.Recorder(Source{BundlePath: "rules.cue", WorldPath: "world.json"})
	e, err := engine.New(world, program,
		engine.WithSink(rec),
		engine.WithRunIDGenerator(engine.NewFixedGenerator("run-1")),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	return res
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")

	s1, err := Open(path)
	require.NoError(t, err)
	createTestRun(t, s1, "kept")
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	run, err := s2.ReadRun(context.Background(), "kept")
	require.NoError(t, err)
	assert.Equal(t, "digest-0", run.InitialDigest)
}

func TestRecorder_PersistsRun(t *testing.T) {
	s := createTestStore(t)
	res := growthRun(t, s)
	ctx := context.Background()

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, run.Finished())
	assert.Equal(t, int64(42), run.Seed)
	assert.Equal(t, 10, run.PlannedTicks)
	assert.Equal(t, int64(10), run.Ticks)
	assert.Equal(t, res.Digest, run.Digest)
	assert.Equal(t, res.EventDigest, run.EventDigest)
	assert.False(t, run.Halted)
	assert.Equal(t, "2024-01-01T00:00:00Z", run.StartedAt)
	assert.Equal(t, "2024-01-01T00:00:01Z", run.FinishedAt)
	assert.Equal(t, Source{BundlePath: "rules.cue", WorldPath: "world.json"}, run.Source())
	assert.Equal(t, 10, run.Summary.Ticks)
	assert.Equal(t, res.Summary.FinalByKind, run.Summary.FinalByKind)

	ticks, err := s.ReadTicks(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, ticks, 10)
	for i, row := range ticks {
		assert.Equal(t, int64(i+1), row.Tick)
		assert.False(t, row.Halted)
	}

	delta, err := s.ReadTickDelta(ctx, "run-1", 5)
	require.NoError(t, err)
	assert.Equal(t, "run-1", delta.RunID)
	assert.Equal(t, int64(5), delta.Tick)
	assert.Len(t, delta.Mutations, ticks[4].Mutations)
	assert.Equal(t, int64(5), delta.Stats.Tick)

	_, err = s.ReadTickDelta(ctx, "run-1", 99)
	assert.Error(t, err)

	events, err := s.ReadEvents(ctx, "run-1", 0)
	require.NoError(t, err)
	assert.Len(t, events, len(res.Events))
}

func TestReadEvents_RankingAndSupersede(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "r")

	require.NoError(t, s.WriteTick(ctx, &engine.TickResult{
		RunID: "r",
		Tick:  1,
		Events: []ir.NarrativeEvent{
			{ID: "ev-1", Tick: 1, Kind: "rise", Subject: "a", Significance: 0.2, Magnitude: 1},
			{ID: "ev-2", Tick: 1, Kind: "war", Subject: "b", Significance: 0.9, Magnitude: 3,
				Participants: []ir.Participant{{Entity: "c", Effect: "attacked"}},
				Tags: []string{"conflict"}},
		},
	}))
	require.NoError(t, s.WriteTick(ctx, &engine.TickResult{
		RunID: "r",
		Tick:  2,
		Events: []ir.NarrativeEvent{
			{ID: "ev-3", Tick: 2, Kind: "rise", Subject: "a", Significance: 0.5, Magnitude: 2, Supersedes: "ev-1"},
			{ID: "ev-4", Tick: 2, Kind: "fall", Subject: "d", Significance: 0.5, Magnitude: 1},
		},
	}))

	ids := func(events []ir.NarrativeEvent) []string {
		var out []string
		for _, ev := range events {
			out = append(out, ev.ID)
		}
		return out
	}

	all, err := s.ReadEvents(ctx, "r", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ev-2", "ev-3", "ev-4"}, ids(all))
	assert.Equal(t, []ir.Participant{{Entity: "c", Effect: "attacked"}}, all[0].Participants)
	assert.Equal(t, []string{"conflict"}, all[0].Tags)
	assert.Nil(t, all[1].Participants)
	assert.Equal(t, "ev-1", all[1].Supersedes)

	significant, err := s.ReadEvents(ctx, "r", 0.6)
	require.NoError(t, err)
	assert.Equal(t, []string{"ev-2"}, ids(significant))

	none, err := s.ReadEvents(ctx, "missing", 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestReadViolations_DetectionOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "r")

	first := ir.Violation{Class: "prominence_range", Severity: ir.SeveritySoft, Message: "too high", Tick: 1, EntityID: "a"}
	second := ir.Violation{Class: "dangling_relationship", Severity: ir.SeverityHard, Message: "gone", Tick: 2, RelationshipID: "rel-1"}
	require.NoError(t, s.WriteTick(ctx, &engine.TickResult{RunID: "r", Tick: 1, Violations: []ir.Violation{first}}))
	require.NoError(t, s.WriteTick(ctx, &engine.TickResult{RunID: "r", Tick: 2, Violations: []ir.Violation{second}, Halted: true}))

	got, err := s.ReadViolations(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, []ir.Violation{first, second}, got)

	ticks, err := s.ReadTicks(ctx, "r")
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, 1, ticks[0].Violations)
	assert.True(t, ticks[1].Halted)
}

func TestQueryEvents_Filters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "r")

	for tick := int64(1); tick <= 4; tick++ {
		require.NoError(t, s.WriteTick(ctx, &engine.TickResult{
			RunID: "r",
			Tick:  tick,
			Events: []ir.NarrativeEvent{
				{ID: fmt.Sprintf("raid-%d", tick), Tick: tick, Kind: "raid", Subject: "a", Significance: 0.1 * float64(tick)},
				{ID: fmt.Sprintf("trade-%d", tick), Tick: tick, Kind: "trade", Subject: "b", Significance: 0.5},
			},
		}))
	}

	ids := func(events []ir.NarrativeEvent) []string {
		out := []string{}
		for _, ev := range events {
			out = append(out, ev.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter EventFilter
		want   []string
	}{
		{"kind", EventFilter{Kind: "raid"}, []string{"raid-4", "raid-3", "raid-2", "raid-1"}},
		{"subject", EventFilter{Subject: "b", Limit: 2}, []string{"trade-1", "trade-2"}},
		{"tick window", EventFilter{Kind: "raid", FromTick: 2, ToTick: 3}, []string{"raid-3", "raid-2"}},
		{"significance and kind", EventFilter{Kind: "raid", MinSignificance: 0.35}, []string{"raid-4"}},
		{"nothing", EventFilter{Kind: "plague"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.QueryEvents(ctx, "r", tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestQueryViolations_Severity(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "r")

	soft := ir.Violation{Class: "prominence_range", Severity: ir.SeveritySoft, Message: "too high", Tick: 1, EntityID: "a"}
	hard := ir.Violation{Class: "dangling_relationship", Severity: ir.SeverityHard, Message: "gone", Tick: 1, RelationshipID: "rel-1"}
	require.NoError(t, s.WriteTick(ctx, &engine.TickResult{RunID: "r", Tick: 1, Violations: []ir.Violation{soft, hard}}))

	got, err := s.QueryViolations(ctx, "r", ViolationFilter{Severity: ir.SeverityHard})
	require.NoError(t, err)
	assert.Equal(t, []ir.Violation{hard}, got)

	got, err = s.QueryViolations(ctx, "r", ViolationFilter{Class: "prominence_range"})
	require.NoError(t, err)
	assert.Equal(t, []ir.Violation{soft}, got)

	got, err = s.QueryViolations(ctx, "r", ViolationFilter{Severity: ir.SeverityHard, Class: "prominence_range"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteTick_RequiresRun(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteTick(context.Background(), &engine.TickResult{RunID: "ghost", Tick: 1})
	assert.Error(t, err)
}

func TestWriteTick_DuplicateTickRejected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "r")

	require.NoError(t, s.WriteTick(ctx, &engine.TickResult{RunID: "r", Tick: 1}))
	assert.Error(t, s.WriteTick(ctx, &engine.TickResult{RunID: "r", Tick: 1}))
}

func TestRunNotFound(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.ReadRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = s.FinishRun(ctx, &engine.RunResult{RunID: "nope"})
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = s.DeleteRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = s.LatestRun(ctx)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestCreateRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "r")
	createTestRun(t, s, "r")

	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "older")
	createTestRun(t, s, "newer")

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "newer", runs[0].ID)
	assert.Equal(t, "older", runs[1].ID)
	assert.False(t, runs[0].Finished())

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "newer", latest.ID)
}

func TestDeleteRun_Cascades(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "r")
	require.NoError(t, s.WriteTick(ctx, &engine.TickResult{
		RunID:  "r",
		Tick:   1,
		Events: []ir.NarrativeEvent{{ID: "ev-1", Kind: "rise", Significance: 1}},
	}))

	require.NoError(t, s.DeleteRun(ctx, "r"))

	ticks, err := s.ReadTicks(ctx, "r")
	require.NoError(t, err)
	assert.Empty(t, ticks)
	events, err := s.ReadEvents(ctx, "r", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestExport(t *testing.T) {
	s := createTestStore(t)
	growthRun(t, s)

	data, err := s.Export(context.Background(), "run-1")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, float64(ExportFormatVersion), doc["format_version"])
	assert.Equal(t, ir.EngineVersion, doc["engine_version"])
	run := doc["run"].(map[string]any)
	assert.Equal(t, "run-1", run["id"])
	assert.Len(t, doc["ticks"], 10)

	_, err = s.Export(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestValidateExport_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"wrong version", `{"format_version": 2, "run": {}, "ticks": [], "events": [], "violations": []}`},
		{"missing sections", `{"format_version": 1}`},
		{"bad severity", `{"format_version": 1,
			"run": {"id": "r", "seed": 1, "planned_ticks": 1, "initial_digest": "d", "started_at": "t", "ticks": 1, "halted": false, "summary": {}},
			"ticks": [], "events": [],
			"violations": [{"class": "x", "severity": "fatal", "message": "m", "tick": 1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidateExport([]byte(tt.doc)))
		})
	}
}

func TestDelta_RoundTrip(t *testing.T) {
	in := &engine.TickResult{
		RunID: "r",
		Tick:  3,
		Era:   "dawn",
		Mutations: []ir.MutationRecord{
			{Seq: 1, Tick: 3, SystemID: "growth", Op: ir.OpEntityCreated, Entity: "settlement-11", Kind: "settlement"},
		},
		Pressures: map[string]float64{"growth": 1.5},
	}
	blob, err := compressDelta(in)
	require.NoError(t, err)

	out, err := decompressDelta(blob)
	require.NoError(t, err)
	assert.Equal(t, in.Mutations, out.Mutations)
	assert.Equal(t, in.Pressures, out.Pressures)
	assert.Equal(t, "dawn", out.Era)

	_, err = decompressDelta([]byte("not zstd"))
	assert.Error(t, err)
}
