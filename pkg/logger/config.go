package logger

import (
	"fmt"
	"log/slog"
	"strings"
)

// Log output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config selects the log level, the output format and the optional Sentry
// destination. Fields carry yaml and env tags for the application config.
type Config struct {
	Level  string       `yaml:"level" env:"LEVEL"`
	Format string       `yaml:"format" env:"FORMAT"`
	Sentry SentryConfig `yaml:"sentry" envPrefix:"SENTRY_"`
}

// SentryConfig holds Sentry integration configuration.
// An empty DSN disables Sentry.
type SentryConfig struct {
	DSN         string `yaml:"dsn" env:"DSN"`
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
	// MinLevel is the lowest level forwarded to Sentry: "warn" or "error".
	MinLevel string `yaml:"min_level" env:"MIN_LEVEL"`
}

// DefaultConfig returns JSON logging at info level with Sentry disabled.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: FormatJSON,
		Sentry: SentryConfig{
			Environment: "production",
			MinLevel:    "warn",
		},
	}
}

// ParseLevel maps debug, info, warn and error (case-insensitive) to a slog level.
// An empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}
