package cli

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "loreweave", cmd.Use)
	assert.Contains(t, cmd.Long, "deterministic")
	assert.Equal(t, "0.1.0", cmd.Version)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"compile", "validate", "run", "replay", "test", "trace", "events", "runs", "export"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	levelFlag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, levelFlag)
	assert.Equal(t, "info", levelFlag.DefValue)
}

func TestCompileCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	compileCmd, _, err := cmd.Find([]string{"compile"})
	require.NoError(t, err)

	outputFlag := compileCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)

	worldFlag := compileCmd.Flags().Lookup("world")
	require.NotNil(t, worldFlag)
	assert.Equal(t, "w", worldFlag.Shorthand)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	dbFlag := runCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "loreweave.db", dbFlag.DefValue)

	quota := runCmd.Flags().Lookup("max-mutations")
	require.NotNil(t, quota)
	assert.Equal(t, "100000", quota.DefValue)

	for _, name := range []string{"ticks", "seed", "metrics-addr", "events", "follow"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), name)
	}
}

func TestDBFlagFollowsEnvironment(t *testing.T) {
	t.Setenv("LOREWEAVE_DB", "/tmp/worlds.db")

	cmd := NewRootCommand()
	for _, name := range []string{"run", "replay", "trace", "events", "runs", "export"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		flag := sub.Flags().Lookup("db")
		require.NotNil(t, flag, name)
		assert.Equal(t, "/tmp/worlds.db", flag.DefValue, name)
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	require.NotNil(t, testCmd.Flags().Lookup("filter"))
	require.NotNil(t, testCmd.Flags().Lookup("golden"))
}

func TestTraceCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	traceCmd, _, err := cmd.Find([]string{"trace"})
	require.NoError(t, err)

	require.NotNil(t, traceCmd.Flags().Lookup("tick"))
	require.NotNil(t, traceCmd.Flags().Lookup("system"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "invalid", "compile", "rules.cue"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLogLevelValidation(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log-level", "loud", "compile", "rules.cue"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid log level "loud"`)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, Config{DB: "loreweave.db", LogLevel: "info", Format: "text"}, cfg)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("LOREWEAVE_DB", "runs.db")
		t.Setenv("LOREWEAVE_LOG_LEVEL", "debug")
		t.Setenv("LOREWEAVE_METRICS_ADDR", ":9090")
		t.Setenv("LOREWEAVE_FORMAT", "json")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, Config{DB: "runs.db", LogLevel: "debug", MetricsAddr: ":9090", Format: "json"}, cfg)

		root := NewRootCommand()
		assert.Equal(t, "json", root.PersistentFlags().Lookup("format").DefValue)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parseLevel("chatty")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}

	logger := newLogger(&RootOptions{LogLevel: "warn"}, buf)
	logger.Info("hidden")
	logger.Warn("shown", "tick", 3)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown tick=3")

	buf.Reset()
	logger = newLogger(&RootOptions{LogLevel: "error", Verbose: true}, buf)
	logger.Debug("traced")
	assert.Contains(t, buf.String(), "msg=traced")
}
