package graphstore

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with graphstore-specific context.
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

// WithTable adds a table field to the logger.
func (l *Logger) WithTable(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("table", name),
	}
}

// WithTx adds a transaction id field to the logger.
func (l *Logger) WithTx(id uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("tx", id),
	}
}

// LogCommit logs the outcome of a write transaction.
func (l *Logger) LogCommit(ctx context.Context, txID uint64, tables, inPlace, rewritten int, err error) {
	if err != nil {
		l.WarnContext(ctx, "commit failed, transaction rolled back",
			"tx", txID,
			"tables", tables,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "commit completed",
			"tx", txID,
			"tables", tables,
			"chunks_in_place", inPlace,
			"chunks_rewritten", rewritten,
		)
	}
}

// LogCheckpoint logs a checkpoint.
func (l *Logger) LogCheckpoint(ctx context.Context, manifestID uint64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "checkpoint completed",
			"manifest", manifestID,
			"duration", duration,
		)
	}
}

// LogBulkLoad logs a bulk load into a node table.
func (l *Logger) LogBulkLoad(ctx context.Context, table string, rows uint64, nodeGroups int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "bulk load failed",
			"table", table,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "bulk load completed",
			"table", table,
			"rows", rows,
			"node_groups", nodeGroups,
			"duration", duration,
		)
	}
}

// LogRecovery logs what Open found in the WAL. Transactions committed after
// the last checkpoint are reported, not replayed.
func (l *Logger) LogRecovery(ctx context.Context, records, unrecovered int, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "WAL inspection failed",
			"records", records,
			"error", err,
		)
	case unrecovered > 0:
		l.WarnContext(ctx, "transactions committed after the last checkpoint were lost",
			"records", records,
			"transactions", unrecovered,
		)
	default:
		l.InfoContext(ctx, "WAL inspection completed",
			"records", records,
		)
	}
}
