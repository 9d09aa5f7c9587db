package logging

import (
	"context"
	"log/slog"

	"relay/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldWorker is the standardized structured logging key for dispatcher worker indices.
	FieldWorker = "worker"
	// FieldItem is the standardized structured logging key for queue item file names.
	FieldItem = "item"
	// FieldRunID is the standardized structured logging key for processing cycle identifiers.
	FieldRunID = "run_id"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldPID carries the process id on every record.
	FieldPID = "pid"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if worker, ok := services.WorkerFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldWorker, worker))
	}
	if item, ok := services.ItemFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldItem, item))
	}
	if rid, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}

// WithStage returns a logger tagged with the stage name.
func WithStage(logger *slog.Logger, stage string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if stage == "" {
		return logger
	}
	return logger.With(String(FieldStage, stage))
}

// WithWorker returns a logger tagged with a dispatcher worker index.
func WithWorker(logger *slog.Logger, worker int) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(Int(FieldWorker, worker))
}
