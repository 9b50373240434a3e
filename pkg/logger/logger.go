package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName tags every log line.
const ServiceName = "order-intake-gateway"

// New creates the process logger writing to stdout.
// level: debug, info, warn, error. pretty: human-readable console output.
func New(level string, pretty bool) zerolog.Logger {
	var w io.Writer = os.Stdout
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return build(w, level).With().Caller().Logger()
}

// NewWithWriter creates a logger writing to a custom writer (useful for testing).
func NewWithWriter(level string, w io.Writer) zerolog.Logger {
	return build(w, level)
}

func build(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("service", ServiceName).
		Logger()
}

// ForAttempt scopes a logger to a single webhook attempt.
func ForAttempt(log zerolog.Logger, attemptID, platform string) zerolog.Logger {
	return log.With().
		Str("attempt_id", attemptID).
		Str("platform", platform).
		Logger()
}

// parseLevel accepts zerolog level names; unknown or empty input means info.
func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
