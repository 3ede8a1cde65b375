// Package clusterlog provides the structured logger shared by the master,
// worker, and supervisor runtimes.
package clusterlog

import (
	"io"
	"log/slog"
	"os"
)

// New creates a Logger using structured JSON logging via slog. logLevel can
// be "debug", "info", "warn", or "error"; an unrecognized level falls back
// to info.
func New(service, logLevel string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler).With("service", service)
}

// CloseOrLog attempts to close c and logs any error, useful for deferred
// closes where the caller has no better place to report a failure.
func CloseOrLog(logger *slog.Logger, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error("error closing resource", "error", err)
	}
}
