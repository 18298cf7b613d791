// Package logging builds the zerolog logger shared by the agent binaries.
package logging

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to w at the named level. format is "console" for human-readable
// output; anything else writes JSON lines. An empty level means info.
func New(w io.Writer, level, format string) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	lvl := zerolog.InfoLevel
	if strings.TrimSpace(level) != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("logging: invalid level %q: %w", level, err)
		}
		lvl = parsed
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// Std adapts logger to a standard library logger, for APIs such as http.Server.ErrorLog.
// Lines are logged at error level under component.
func Std(logger zerolog.Logger, component string) *stdlog.Logger {
	l := logger.With().Str("component", component).Logger()
	return stdlog.New(stdWriter{l}, "", 0)
}

type stdWriter struct{ logger zerolog.Logger }

func (s stdWriter) Write(p []byte) (int, error) {
	s.logger.Error().Msg(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
