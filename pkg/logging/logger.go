// Package logging configures zerolog for the offline cache and its proxy.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs per-request cache flow and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs lifecycle transitions and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs swallowed failures and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs activation and pruning failures only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// NewConfig builds a Config from the raw LOG_LEVEL / LOG_PRETTY values.
func NewConfig(level string, pretty bool) Config {
	cfg := DefaultConfig()
	if level != "" {
		cfg.Level = LogLevel(strings.ToLower(level))
	}
	cfg.Pretty = pretty
	return cfg
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level; unknown levels are info.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-request flow
//   - response cached / not cacheable
//   - network failure served from cache
//   - stores deleted during pruning
//
// Info: lifecycle
//   - generation installing, installed, activating, active, superseded
//   - pre-warm summary
//   - proxy startup/shutdown
//
// Warn: failures that are swallowed
//   - pre-warm fetch failed
//   - detached cache write failed
//   - cache lookup failed (offline response served)
//
// Error: failures that leave the runtime degraded
//   - install failed, generation discarded
//   - pruning stale stores failed (clients not claimed)
//
// Context Fields:
//   - component: package emitting the event
//   - generation: cache generation identifier
//   - key: request key ("GET https://host/path?query")
//   - path: pre-warmed path
//   - store: storage store name
//   - status: upstream HTTP status
