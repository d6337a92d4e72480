package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCommandPassesScenarios(t *testing.T) {
	stdout, _, err := execute(NewTestCommand(testRootOptions("text")), scenarioDir, "--golden", goldenDir)
	require.NoError(t, err)

	assert.Contains(t, stdout, "\u2713 growth_to_twenty (golden matched)")
	assert.Contains(t, stdout, "\u2713 quota_halt (golden matched)")
	assert.Contains(t, stdout, "2 passed, 0 failed, 2 total")
}

func TestTestCommandJSON(t *testing.T) {
	stdout, _, err := execute(NewTestCommand(testRootOptions("json")), scenarioDir, "--golden", goldenDir, "--filter", "growth_*")
	require.NoError(t, err)

	var result TestResult
	decodeData(t, stdout, &result)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Passed)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "growth_to_twenty", result.Scenarios[0].Name)
	assert.Equal(t, "matched", result.Scenarios[0].Golden)
}

func TestTestCommandWithoutGolden(t *testing.T) {
	// No golden directory next to the scenarios: assertions only.
	stdout, _, err := execute(NewTestCommand(testRootOptions("text")), filepath.Join(scenarioDir, "quota_halt.yaml"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "\u2713 quota_halt\n")
}

func TestTestCommandUpdateAndMismatch(t *testing.T) {
	golden := t.TempDir()
	scenario := filepath.Join(scenarioDir, "growth_to_twenty.yaml")

	stdout, _, err := execute(NewTestCommand(testRootOptions("text")), scenario, "--golden", golden, "--update")
	require.NoError(t, err)
	assert.Contains(t, stdout, "(golden updated)")

	written, err := os.ReadFile(filepath.Join(golden, "growth_to_twenty.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join(goldenDir, "growth_to_twenty.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))

	require.NoError(t, os.WriteFile(filepath.Join(golden, "growth_to_twenty.golden"), []byte("scenario growth_to_twenty\n"), 0o644))
	stdout, _, err = execute(NewTestCommand(testRootOptions("text")), scenario, "--golden", golden)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "\u2717 growth_to_twenty")
	assert.Contains(t, stdout, "trace does not match golden file")
}

func TestTestCommandFailingAssertions(t *testing.T) {
	dir := t.TempDir()
	bundle, err := filepath.Abs(growthBundle)
	require.NoError(t, err)
	world, err := filepath.Abs(tenSettlements)
	require.NoError(t, err)

	scenario := "name: wrong_count\n" +
		"description: expects more settlements than the gate allows\n" +
		"bundle: " + bundle + "\n" +
		"world: " + world + "\n" +
		"assertions:\n" +
		"  - type: entity_count\n" +
		"    kind: settlement\n" +
		"    equals: 30\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(scenario), 0o644))

	stdout, _, err := execute(NewTestCommand(testRootOptions("text")), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 of 1 scenarios failed")
	assert.Contains(t, stdout, "\u2717 wrong_count")
	assert.Contains(t, stdout, "Assertion failed: entity_count")
	assert.Contains(t, stdout, "0 passed, 1 failed, 1 total")
}

func TestTestCommandBadScenarioFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0o644))

	stdout, _, err := execute(NewTestCommand(testRootOptions("text")), dir)
	require.Error(t, err)
	assert.Contains(t, stdout, "\u2717 broken.yaml")
	assert.Contains(t, stdout, "failed to load scenario")
}

func TestTestCommandEmptyDir(t *testing.T) {
	stdout, _, err := execute(NewTestCommand(testRootOptions("text")), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", stdout)
}

func TestTestCommandPathErrors(t *testing.T) {
	_, _, err := execute(NewTestCommand(testRootOptions("text")), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(NewTestCommand(testRootOptions("text")), scenarioDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(NewTestCommand(testRootOptions("text")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("scenarios", "golden", "raid.golden"), goldenFilePath("", filepath.Join("scenarios", "raid.yaml"), "raid"))
	assert.Equal(t, filepath.Join("out", "raid.golden"), goldenFilePath("out", filepath.Join("scenarios", "raid.yaml"), "raid"))
}
