package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loreweave/internal/engine"
)

const (
	growthBundle   = "../harness/testdata/bundles/growth.yaml"
	burstBundle    = "../harness/testdata/bundles/burst.yaml"
	tenSettlements = "../harness/testdata/worlds/ten_settlements.yaml"
	scenarioDir    = "../harness/testdata/scenarios"
	goldenDir      = "../harness/testdata/golden"
)

const missingTemplateBundle = `templates:
  - id: village
    entity:
      kind: settlement
systems:
  - id: growth
    type: growth
    settings:
      templates:
        - template: missing
`

const townWorld = `kinds:
  - name: town
entities:
  - kind: town
    name: Ashford
params:
  ticks: 3
  seed: 1
`

// writeFile writes content under a fresh temp dir and returns its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs cmd with args and returns what it wrote.
func execute(cmd *cobra.Command, args ...string) (stdout, stderr string, err error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func testRootOptions(format string) *RootOptions {
	return &RootOptions{
		Format:   format,
		LogLevel: "error",
		Config:   Config{DB: "loreweave.db", LogLevel: "error", Format: format},
	}
}

// recordRun runs the growth bundle over ten settlements into a new
// database and returns its path. The run id is "run-growth".
func recordRun(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	opts := &RunOptions{
		RootOptions:    testRootOptions("json"),
		Database:       dbPath,
		MaxMutations:   engine.DefaultMaxMutations,
		Events:         5,
		RunIDGenerator: engine.NewFixedGenerator("run-growth"),
	}
	cmd := NewRunCommand(opts.RootOptions)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, runSimulation(opts, growthBundle, tenSettlements, cmd))
	return dbPath
}

// decodeData unmarshals the data field of a JSON CLI response into v.
func decodeData(t *testing.T, output string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp), output)
	require.Equal(t, "ok", resp.Status, output)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}
