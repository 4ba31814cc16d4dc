package vecdex

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with vecdex-specific context.
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

	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	return &Logger{Logger: slog.New(handler)}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})

	return &Logger{Logger: slog.New(handler)}
}

// WithIndex adds the index identity fields to the logger.
func (l *Logger) WithIndex(seq uint64, indexType IndexType, dims int) *Logger {
	return &Logger{
		Logger: l.Logger.With("index", seq, "type", string(indexType), "dims", dims),
	}
}

// LogTrain logs a training operation.
func (l *Logger) LogTrain(ctx context.Context, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "train failed", "count", count, "error", err)
	} else {
		l.InfoContext(ctx, "train completed", "count", count)
	}
}

// LogAdd logs an add operation.
func (l *Logger) LogAdd(ctx context.Context, count int, ntotal int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add failed", "count", count, "error", err)
	} else {
		l.DebugContext(ctx, "add completed", "count", count, "ntotal", ntotal)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, queries, k, found int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed", "queries", queries, "k", k, "error", err)
	} else {
		l.DebugContext(ctx, "search completed", "queries", queries, "k", k, "results", found)
	}
}

// LogMerge logs a merge operation.
func (l *Logger) LogMerge(ctx context.Context, moved int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "merge failed", "error", err)
	} else {
		l.InfoContext(ctx, "merge completed", "moved", moved)
	}
}

// LogSnapshot logs a snapshot operation.
func (l *Logger) LogSnapshot(ctx context.Context, target string, bytes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed", "target", target, "error", err)
	} else {
		l.InfoContext(ctx, "snapshot saved", "target", target, "bytes", bytes)
	}
}

// LogDispose logs index disposal.
func (l *Logger) LogDispose(ctx context.Context) {
	l.InfoContext(ctx, "index disposed")
}
