package blockstore

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/blockstore/model"
)

// Logger wraps slog.Logger with blockstore-specific context.
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
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogPut logs a put operation.
func (l *Logger) LogPut(ctx context.Context, id model.BlockID, size int64, mode model.MemoryMode, err error) {
	if err != nil {
		l.WarnContext(ctx, "put failed",
			"block", id.String(),
			"size", size,
			"mode", mode.String(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "block stored",
			"block", id.String(),
			"size", size,
			"mode", mode.String(),
		)
	}
}

// LogEviction logs one completed eviction pass.
func (l *Logger) LogEviction(ctx context.Context, blocks int, freed int64, mode model.MemoryMode) {
	l.InfoContext(ctx, "evicted blocks",
		"count", blocks,
		"freed_bytes", freed,
		"mode", mode.String(),
	)
}

// LogDropped logs a single block displaced from memory.
func (l *Logger) LogDropped(ctx context.Context, id model.BlockID, size int64, level model.StorageLevel) {
	l.DebugContext(ctx, "block dropped from memory",
		"block", id.String(),
		"size", size,
		"new_level", level.String(),
	)
}

// LogPartialUnroll logs an unroll that ran out of memory.
func (l *Logger) LogPartialUnroll(ctx context.Context, id model.BlockID, records int, held int64, mode model.MemoryMode) {
	l.WarnContext(ctx, "insufficient memory to unroll block",
		"block", id.String(),
		"records_unrolled", records,
		"reservation_bytes", held,
		"mode", mode.String(),
	)
}
