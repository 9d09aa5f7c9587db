package queueproc

import (
	"context"
	"log/slog"
)

// Outcome classifies how a stage handled one item.
type Outcome int

const (
	// OutcomeProcessed means the item is done and its source file can go.
	OutcomeProcessed Outcome = iota + 1
	// OutcomeSkipped leaves the item untouched for a later cycle.
	OutcomeSkipped
	// OutcomeFailed quarantines the item.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is a stage's verdict on one item.
type Result struct {
	Outcome Outcome
	// Next, when set on a processed item, is moved into the downstream queue.
	Next string
	Err  error
}

// Processed reports success. next may be empty when nothing is handed on.
func Processed(next string) Result {
	return Result{Outcome: OutcomeProcessed, Next: next}
}

// Skipped reports that the item cannot be handled yet.
func Skipped() Result {
	return Result{Outcome: OutcomeSkipped}
}

// Failed reports an unexpected failure; the item is quarantined.
func Failed(err error) Result {
	return Result{Outcome: OutcomeFailed, Err: err}
}

// Job is the execution scope of one stage invocation.
type Job struct {
	Path   string
	Name   string
	Seq    uint64
	Worker int
	Stage  string
	Logger *slog.Logger
	// Tx is the item's transaction when the processor has a Transactor.
	Tx Tx
}

// Stage processes one queue item.
type Stage interface {
	Process(ctx context.Context, job *Job) Result
}

// StageFunc adapts a function to Stage.
type StageFunc func(ctx context.Context, job *Job) Result

func (f StageFunc) Process(ctx context.Context, job *Job) Result {
	return f(ctx, job)
}

// Tx is a per-item transaction.
type Tx interface {
	Commit() error
	Rollback() error
}

// Transactor opens one transaction per item.
type Transactor interface {
	Begin(ctx context.Context) (Tx, error)
}

// TransactorFunc adapts a function to Transactor.
type TransactorFunc func(ctx context.Context) (Tx, error)

func (f TransactorFunc) Begin(ctx context.Context) (Tx, error) {
	return f(ctx)
}
