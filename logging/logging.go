// Package logging configures the process-wide structured logger used by
// every relaypool package, the way the teacher's root-level InitLogger
// configured slog for the whole webapp process.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init installs a JSON slog handler as the process default, with its
// level controlled by the LOG_LEVEL environment variable
// (debug/info/warn/error, defaulting to info). Call it once from a
// command's main(); library packages only ever log through
// slog.Default(), so this is the single place verbosity is configured.
func Init() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: levelFromEnv(),
	})))
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRelay returns a logger scoped to a single relay URL, the
// connection-oriented analogue of the teacher's per-request logger.
func WithRelay(url string) *slog.Logger {
	return slog.Default().With("relay", url)
}
