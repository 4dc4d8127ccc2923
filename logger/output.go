package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// logOutput is the writer all handlers created by this package log to.
// Tests replace it to capture output.
var logOutput io.Writer = os.Stderr

// customHandler holds a handler installed via SetLogger. When set, Configure
// preserves it instead of rebuilding the default handler chain.
var customHandler slog.Handler

// ParseLevel converts a level name to a slog.Level. Unknown names fall back
// to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLogger installs a custom handler as the global logger. Passing nil
// reverts to the default text handler on the current output.
func SetLogger(handler slog.Handler) {
	customHandler = handler
	if handler == nil {
		SetLevel(slog.LevelInfo)
		return
	}
	DefaultLogger = slog.New(handler)
	slog.SetDefault(DefaultLogger)
}

// SetOutput redirects log output to the given writer. Passing nil resets to
// stderr. The logger is rebuilt so the change takes effect immediately.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	logOutput = w
	if customHandler != nil {
		return
	}
	handler := slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: slog.LevelInfo})
	DefaultLogger = slog.New(handler)
	slog.SetDefault(DefaultLogger)
}
