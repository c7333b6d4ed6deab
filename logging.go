package brew

import (
	"log/slog"
	"os"
	"sync/atomic"
)

// The package logs through a single *slog.Logger. The default writes text
// to stderr at warn level so a library consumer sees nothing during normal
// operation; embedding applications install their own handler with
// SetLogger.

var packageLogger atomic.Pointer[slog.Logger]

func init() {
	packageLogger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))
}

// SetLogger replaces the package logger. Passing nil restores the default
// stderr logger.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		}))
	}
	packageLogger.Store(l)
}

func logger() *slog.Logger {
	return packageLogger.Load()
}

// SetLogLevel installs a default stderr logger at the named level. Custom
// handlers go through SetLogger instead.
func SetLogLevel(level string) {
	packageLogger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	})))
}

// parseLogLevel maps a config string to a slog level. Unknown strings keep
// the warn default.
func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning", "":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
