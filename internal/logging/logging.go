// Package logging builds the slog loggers used by gupload.
//
// Components take a *slog.Logger; nothing here is process-wide. Besides the
// standard levels there is LevelCritical for failures the user must see even
// when the operation as a whole recovers from them.
package logging

import (
	"io"
	"log/slog"
)

// LevelCritical sits above slog.LevelError
const LevelCritical = slog.LevelError + 4

// New returns a text logger writing to w. Debug records are only emitted when debug is true.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevel,
	}))
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level >= LevelCritical {
		a.Value = slog.StringValue("CRITICAL")
	}
	return a
}
