package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loreweave/internal/engine"
	"github.com/roach88/loreweave/internal/store"
)

func TestInspectNonExistentDatabase(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.db")
	for _, name := range []string{"runs", "trace", "events", "export", "replay"} {
		t.Run(name, func(t *testing.T) {
			root := NewRootCommand()
			stdout, stderr, err := execute(root, name, "--db", missing)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, stdout+stderr, "Error [E005]: database not found")
			_, statErr := os.Stat(missing)
			assert.True(t, os.IsNotExist(statErr), "inspection never creates a database")
		})
	}
}

func TestRunsList(t *testing.T) {
	dbPath := recordRun(t)

	stdout, _, err := execute(NewRunsCommand(testRootOptions("text")), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "run-growth  seed=42")
	assert.Contains(t, stdout, "finished")

	stdout, _, err = execute(NewRunsCommand(testRootOptions("json")), "--db", dbPath)
	require.NoError(t, err)
	var result RunsResult
	decodeData(t, stdout, &result)
	require.Len(t, result.Runs, 1)
	assert.Equal(t, "run-growth", result.Runs[0].ID)
	assert.Equal(t, int64(15), result.Runs[0].Ticks)
}

func TestRunsDelete(t *testing.T) {
	dbPath := recordRun(t)

	stdout, _, err := execute(NewRunsCommand(testRootOptions("text")), "--db", dbPath, "--delete", "run-growth")
	require.NoError(t, err)
	assert.Equal(t, "Deleted run run-growth.\n", stdout)

	stdout, _, err = execute(NewRunsCommand(testRootOptions("text")), "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, "No runs found in database.\n", stdout)

	stdout, _, err = execute(NewRunsCommand(testRootOptions("text")), "--db", dbPath, "--delete", "run-growth")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E005]")
}

func TestTraceIndex(t *testing.T) {
	dbPath := recordRun(t)

	stdout, _, err := execute(NewTraceCommand(testRootOptions("json")), "--db", dbPath, "run-growth")
	require.NoError(t, err)
	var result TraceResult
	decodeData(t, stdout, &result)
	assert.Equal(t, "run-growth", result.RunID)
	require.Len(t, result.Ticks, 15)
	assert.Equal(t, int64(1), result.Ticks[0].Tick)
	assert.Equal(t, 15, result.Stats.Ticks)
	assert.GreaterOrEqual(t, result.Stats.Mutations, 10, "ten settlements were created")
	assert.False(t, result.Stats.Halted)

	stdout, _, err = execute(NewTraceCommand(testRootOptions("text")), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Run run-growth\n")
	assert.Contains(t, stdout, "\n15 ticks, ")
}

func TestTraceTickDetail(t *testing.T) {
	dbPath := recordRun(t)

	stdout, _, err := execute(NewTraceCommand(testRootOptions("text")), "--db", dbPath, "--tick", "3")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Run run-growth tick 3")
	assert.Contains(t, stdout, "pressures: growth=1")
	assert.Contains(t, stdout, "by growth")

	stdout, _, err = execute(NewTraceCommand(testRootOptions("json")), "--db", dbPath, "--tick", "3", "--system", "nobody")
	require.NoError(t, err)
	var detail struct {
		RunID string `json:"run_id"`
		Tick  struct {
			Tick      int64 `json:"tick"`
			Mutations []any `json:"mutations"`
		} `json:"tick"`
	}
	decodeData(t, stdout, &detail)
	assert.Equal(t, int64(3), detail.Tick.Tick)
	assert.Empty(t, detail.Tick.Mutations)
}

func TestTraceUnknownRun(t *testing.T) {
	dbPath := recordRun(t)
	stdout, _, err := execute(NewTraceCommand(testRootOptions("text")), "--db", dbPath, "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E005]")
}

func TestEventsListing(t *testing.T) {
	dbPath := recordRun(t)

	stdout, _, err := execute(NewEventsCommand(testRootOptions("json")), "--db", dbPath)
	require.NoError(t, err)
	var result EventsResult
	decodeData(t, stdout, &result)
	assert.Equal(t, "run-growth", result.RunID)
	for i := 1; i < len(result.Events); i++ {
		assert.GreaterOrEqual(t, result.Events[i-1].Significance, result.Events[i].Significance)
	}

	stdout, _, err = execute(NewEventsCommand(testRootOptions("text")), "--db", dbPath, "--kind", "no_such_kind")
	require.NoError(t, err)
	assert.Equal(t, "No events recorded for run run-growth.\n", stdout)

	stdout, _, err = execute(NewEventsCommand(testRootOptions("json")), "--db", dbPath, "--limit", "1")
	require.NoError(t, err)
	decodeData(t, stdout, &result)
	assert.LessOrEqual(t, len(result.Events), 1)
}

func TestExportRun(t *testing.T) {
	dbPath := recordRun(t)

	stdout, _, err := execute(NewExportCommand(testRootOptions("text")), "--db", dbPath, "run-growth")
	require.NoError(t, err)
	require.NoError(t, store.ValidateExport([]byte(stdout)))

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	assert.Contains(t, doc, "run")
	assert.Contains(t, doc, "ticks")

	out := filepath.Join(t.TempDir(), "run.json")
	_, stderr, err := execute(NewExportCommand(testRootOptions("text")), "--db", dbPath, "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Exported run run-growth to "+out)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, stdout, string(data))
}

func TestReplayReproducesRun(t *testing.T) {
	dbPath := recordRun(t)

	stdout, _, err := execute(NewReplayCommand(testRootOptions("json")), "--db", dbPath)
	require.NoError(t, err)
	var result ReplayResult
	decodeData(t, stdout, &result)
	assert.Equal(t, "run-growth", result.RunID)
	assert.Equal(t, int64(42), result.Seed)
	assert.Equal(t, int64(15), result.Ticks)
	assert.True(t, result.Deterministic)
	assert.Equal(t, result.Expected, result.Actual)

	stdout, _, err = execute(NewReplayCommand(testRootOptions("text")), "--db", dbPath, "run-growth")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Replayed run run-growth: seed 42, 15 ticks")
	assert.Contains(t, stdout, "Result: deterministic")
}

func TestReplayDetectsDivergence(t *testing.T) {
	dbPath := recordRun(t)

	// A different bundle over the same world cannot reach the same state.
	stdout, _, err := execute(NewReplayCommand(testRootOptions("text")), "--db", dbPath, "--bundle", burstBundle)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "Result: DIVERGED")
}

func TestReplayUnfinishedRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.CreateRun(context.Background(), engine.RunInfo{RunID: "open", Seed: 1, PlannedTicks: 5}, store.Source{}))
	require.NoError(t, st.Close())

	stdout, _, err := execute(NewReplayCommand(testRootOptions("text")), "--db", dbPath, "open")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "run open has no recorded outcome")
}
