// Package logging assembles structured slog loggers and formatting helpers used
// across relay.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so processor code can tag log
// lines with stage names, worker indices, and item names. The package also
// provides a no-op logger for tests, a debug step Tracer, and log retention.
package logging
