package logging

import (
	"log/slog"
	"time"
)

// Tracer logs elapsed time between steps of a longer operation at debug level.
type Tracer struct {
	logger *slog.Logger
	now    func() time.Time
	start  time.Time
	last   time.Time
}

// NewTracer starts a tracer. A nil logger discards output.
func NewTracer(logger *slog.Logger) *Tracer {
	return newTracer(logger, time.Now)
}

func newTracer(logger *slog.Logger, now func() time.Time) *Tracer {
	if logger == nil {
		logger = NewNop()
	}
	start := now()
	return &Tracer{logger: logger, now: now, start: start, last: start}
}

// Step logs the time since the previous step (or since the tracer started).
func (t *Tracer) Step(msg string) time.Duration {
	current := t.now()
	step := current.Sub(t.last)
	t.last = current
	t.logger.Debug(msg, Duration("step", step), String(FieldEventType, "trace_step"))
	return step
}

// Total logs the time since the tracer started.
func (t *Tracer) Total(msg string) time.Duration {
	current := t.now()
	total := current.Sub(t.start)
	t.last = current
	t.logger.Debug(msg, Duration("total", total), String(FieldEventType, "trace_total"))
	return total
}
