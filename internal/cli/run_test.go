package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loreweave/internal/emitter"
	"github.com/roach88/loreweave/internal/engine"
	"github.com/roach88/loreweave/internal/store"
)

func TestRunRecordsSimulation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	stdout, _, err := execute(NewRunCommand(testRootOptions("json")), "--db", dbPath, growthBundle, tenSettlements)
	require.NoError(t, err)

	var report RunReport
	decodeData(t, stdout, &report)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, int64(42), report.Seed)
	assert.Equal(t, int64(15), report.Ticks)
	assert.False(t, report.Halted)
	assert.False(t, report.Interrupted)
	assert.NotEmpty(t, report.Digest)
	assert.Equal(t, 20, report.Summary.FinalEntities)
	assert.Equal(t, 20, report.Summary.FinalByKind["settlement"])

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	run, err := st.ReadRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.True(t, run.Finished())
	assert.Equal(t, report.Digest, run.Digest)
	assert.True(t, filepath.IsAbs(run.BundlePath), "recorded paths are absolute")
	assert.True(t, filepath.IsAbs(run.WorldPath))

	ticks, err := st.ReadTicks(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Len(t, ticks, 15)
}

func TestRunFlagOverrides(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	stdout, _, err := execute(NewRunCommand(testRootOptions("json")),
		"--db", dbPath, "--ticks", "3", "--seed", "7", "--events", "0", growthBundle, tenSettlements)
	require.NoError(t, err)

	var report RunReport
	decodeData(t, stdout, &report)
	assert.Equal(t, int64(7), report.Seed)
	assert.Equal(t, int64(3), report.Ticks)
	assert.Equal(t, 13, report.Summary.FinalByKind["settlement"])
	assert.Empty(t, report.Events)
}

func TestRunTextReport(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	stdout, _, err := execute(NewRunCommand(testRootOptions("text")), "--db", dbPath, growthBundle, tenSettlements)
	require.NoError(t, err)

	assert.Contains(t, stdout, "(seed 42)")
	assert.Contains(t, stdout, "15 ticks, completed")
	assert.Contains(t, stdout, "entities: 20 active of 20, relationships: 0")
	assert.Contains(t, stdout, "digest: ")
}

func TestRunHaltsOnQuota(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	stdout, _, err := execute(NewRunCommand(testRootOptions("json")),
		"--db", dbPath, "--max-mutations", "3", "--ticks", "4", burstBundle, tenSettlements)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "run halted")

	var report RunReport
	decodeData(t, stdout, &report)
	assert.True(t, report.Halted)
	assert.NotEmpty(t, report.HaltReason)
	assert.Equal(t, int64(0), report.Ticks)
}

func TestRunInvalidInputs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	t.Run("missing world", func(t *testing.T) {
		_, _, err := execute(NewRunCommand(testRootOptions("text")), "--db", dbPath, growthBundle, "/nonexistent/world.yaml")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("bad bundle", func(t *testing.T) {
		bundle := writeFile(t, "rules.yaml", missingTemplateBundle)
		stdout, _, err := execute(NewRunCommand(testRootOptions("text")), "--db", dbPath, bundle, tenSettlements)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, stdout, "[E103]")
	})

	t.Run("negative ticks", func(t *testing.T) {
		_, _, err := execute(NewRunCommand(testRootOptions("text")), "--db", dbPath, "--ticks", "-1", growthBundle, tenSettlements)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("arg count", func(t *testing.T) {
		_, _, err := execute(NewRunCommand(testRootOptions("text")), growthBundle)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "accepts 2 arg(s)")
	})
}

func TestFollowHandler(t *testing.T) {
	buf := &bytes.Buffer{}
	handle := followHandler(buf)

	handle(emitter.Event{Topic: emitter.TopicTickComplete, Payload: &engine.TickResult{Tick: 4, Halted: true}})
	handle(emitter.Event{Topic: emitter.TopicTickComplete, Payload: "not a tick"})

	assert.Equal(t, "tick 4: halted\n", buf.String())
}

func TestSourceOfIsAbsolute(t *testing.T) {
	src := sourceOf(&Inputs{BundlePath: growthBundle, WorldPath: tenSettlements})
	assert.True(t, filepath.IsAbs(src.BundlePath))
	assert.True(t, filepath.IsAbs(src.WorldPath))
	assert.Equal(t, "growth.yaml", filepath.Base(src.BundlePath))
}
