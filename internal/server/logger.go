package server

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

const maxLoggedValue = 100

// NewLogger builds the process logger. format is "console" for human
// readable lines or "json".
func NewLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", level, err)
	}

	out := w
	switch format {
	case "console":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05.000"}
	case "json", "":
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", format)
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// sanitizeValue truncates client supplied values before they reach the log
func sanitizeValue(s string) string {
	if len(s) > maxLoggedValue {
		return s[:maxLoggedValue] + "...[truncated]"
	}
	return s
}
