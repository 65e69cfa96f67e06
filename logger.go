package tablo

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/tablo/index"
)

// Logger wraps slog.Logger with tablo-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithTable adds the table's dataset path to the logger.
func (l *Logger) WithTable(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("table", path),
	}
}

// LogBuild logs a completed or failed index build.
func (l *Logger) LogBuild(ctx context.Context, summary *index.BuildSummary, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build failed",
			"error", err,
		)
		return
	}

	l.InfoContext(ctx, "build completed",
		"rows", summary.Rows,
		"included", summary.Included,
		"excluded", summary.Excluded,
		"skipped", summary.Skipped,
		"keys", summary.Keys,
		"duration", summary.Duration,
	)
}

// LogLookup logs a lookup operation.
func (l *Logger) LogLookup(ctx context.Context, key string, found bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "lookup failed",
			"key", key,
			"error", err,
		)
		return
	}

	l.DebugContext(ctx, "lookup completed",
		"key", key,
		"found", found,
	)
}

// LogScan logs a scan operation.
func (l *Logger) LogScan(ctx context.Context, rows int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "scan failed",
			"rows", rows,
			"error", err,
		)
		return
	}

	l.DebugContext(ctx, "scan completed",
		"rows", rows,
	)
}

// LogArtifact logs saving or loading a persisted index artifact.
func (l *Logger) LogArtifact(ctx context.Context, op, path string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "artifact "+op+" failed",
			"path", path,
			"error", err,
		)
		return
	}

	l.InfoContext(ctx, "artifact "+op+" completed",
		"path", path,
	)
}

// LogExport logs an export operation.
func (l *Logger) LogExport(ctx context.Context, rows int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "export failed",
			"error", err,
		)
		return
	}

	l.InfoContext(ctx, "export completed",
		"rows", rows,
	)
}
