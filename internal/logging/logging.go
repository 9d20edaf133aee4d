// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds a logger writing to out at the given level. Format "console" produces
// human-readable output for local development; anything else emits JSON lines.
func New(level, format string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "landing-api").Logger()
}

// Setup builds a logger with New and installs it as the global zerolog logger.
func Setup(level, format string, out io.Writer) zerolog.Logger {
	logger := New(level, format, out)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = logger
	return logger
}
