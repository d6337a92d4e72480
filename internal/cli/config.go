package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds settings read from the environment. Flags override them.
type Config struct {
	DB          string `env:"LOREWEAVE_DB" envDefault:"loreweave.db"`
	LogLevel    string `env:"LOREWEAVE_LOG_LEVEL" envDefault:"info"`
	MetricsAddr string `env:"LOREWEAVE_METRICS_ADDR"`
	Format      string `env:"LOREWEAVE_FORMAT" envDefault:"text"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// parseLevel maps a level name to a slog level.
func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// newLogger builds the command logger. Logs always go to w (stderr) so
// they never mix with command output. Verbose forces debug.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level, err := parseLevel(opts.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
