// Package testhelp builds configs and loggers shared by the package tests.
package testhelp

import (
	"io"
	"log/slog"
	"os"
)

// Logger writes JSON logs to stdout when TIERCACHE_TEST_LOGS is set and discards them otherwise.
func Logger() *slog.Logger {
	var w io.Writer = io.Discard
	if os.Getenv("TIERCACHE_TEST_LOGS") != "" {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}

	return slog.New(slog.NewJSONHandler(w, opts)).With(
		slog.String("service", "tierCache"),
		slog.String("env", "test"),
	)
}
