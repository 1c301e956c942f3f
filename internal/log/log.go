// Package log provides the process-wide structured logger for go-proctor.
//
// Logs go to stderr so that command output on stdout stays machine readable.
// GO_ENV=production or PROCTOR_LOG_FORMAT=json selects the JSON handler.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	level  = new(slog.LevelVar)
	logger *slog.Logger
	once   sync.Once
)

func setup(w io.Writer) {
	opts := &slog.HandlerOptions{Level: level}
	if os.Getenv("GO_ENV") == "production" || strings.EqualFold(os.Getenv("PROCTOR_LOG_FORMAT"), "json") {
		logger = slog.New(slog.NewJSONHandler(w, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(w, opts))
	}
	slog.SetDefault(logger)
}

// Init sets the log level, creating the global logger on first use. Unlike
// the handler, the level can be changed by later calls.
// Valid levels: "debug", "info", "warn", "error"
func Init(lvl string) {
	level.Set(ParseLevel(lvl))
	once.Do(func() { setup(os.Stderr) })
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
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

// Level returns the active level.
func Level() slog.Level { return level.Level() }

// L returns the global logger, at info level until Init is called.
func L() *slog.Logger {
	once.Do(func() { setup(os.Stderr) })
	return logger
}

// Component returns a logger tagged with the component name.
// A nil base falls back to the global logger.
func Component(base *slog.Logger, name string) *slog.Logger {
	if base == nil {
		base = L()
	}
	return base.With("component", name)
}

func Debug(msg string, args ...any) { L().Debug(msg, args...) }
func Info(msg string, args ...any)  { L().Info(msg, args...) }
func Warn(msg string, args ...any)  { L().Warn(msg, args...) }
func Error(msg string, args ...any) { L().Error(msg, args...) }
