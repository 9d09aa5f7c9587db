package queueproc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"relay/internal/dispatch"
	"relay/internal/logging"
	"relay/internal/nextstage"
	"relay/internal/notifications"
	"relay/internal/services"
)

// DefaultChunkSize is the number of items fed between interval checkpoints.
const DefaultChunkSize = 100

// Downstream describes the stage that receives handed-off files.
type Downstream struct {
	QueueDir string
	LockDir  string
	Command  string
}

// Options configures a Processor.
type Options struct {
	Name           string
	QueueDir       string
	LockDir        string
	MaxConcurrency int
	SpeedFile      string
	HaltFile       string
	Next           *Downstream
	Launcher       nextstage.Launcher
	Notifier       notifications.Service
	// Logger receives stage output and is only written while the lock is held.
	Logger *slog.Logger
	// ShellLogger receives messages emitted outside the lock.
	ShellLogger *slog.Logger
	// Transactor, when set, wraps every item in its own transaction.
	Transactor  Transactor
	ChunkSize   int
	PreProcess  func(ctx context.Context) error
	PostProcess func(ctx context.Context) error
	Now         func() time.Time
	Stage       Stage
}

// CycleReport summarises the most recent cycle.
type CycleReport struct {
	Concurrency int
	Fed         int
	Processed   int
	Skipped     int
	Failed      int
	Chunks      int
	Duration    time.Duration
	Reenter     bool
	Err         error
}

// Processor drains one stage queue.
type Processor struct {
	opts   Options
	logger *slog.Logger
	shell  *slog.Logger

	mu   sync.Mutex
	last CycleReport
}

// New validates opts and returns an idle processor.
func New(opts Options) (*Processor, error) {
	switch {
	case opts.Name == "":
		return nil, errors.New("queueproc: stage name is required")
	case opts.QueueDir == "":
		return nil, errors.New("queueproc: queue dir is required")
	case opts.LockDir == "":
		return nil, errors.New("queueproc: lock dir is required")
	case opts.Stage == nil:
		return nil, errors.New("queueproc: stage is required")
	case opts.MaxConcurrency < 1:
		return nil, fmt.Errorf("queueproc: max concurrency must be at least 1, got %d", opts.MaxConcurrency)
	case opts.Next != nil && opts.Launcher == nil:
		return nil, errors.New("queueproc: launcher is required when a downstream stage is set")
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notifier == nil {
		opts.Notifier = notifications.NewNoop()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.ShellLogger == nil {
		opts.ShellLogger = opts.Logger
	}
	return &Processor{
		opts:   opts,
		logger: logging.WithStage(opts.Logger, opts.Name),
		shell:  logging.WithStage(opts.ShellLogger, opts.Name),
	}, nil
}

// Backlog counts the pending items in the queue directory.
func (p *Processor) Backlog() (int, error) {
	items, err := Scan(p.opts.QueueDir)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// LastCycle returns the report of the most recently finished cycle.
func (p *Processor) LastCycle() CycleReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Run processes the queue until it is empty, halted, cancelled, or another
// instance holds the stage lock. Contention and cancellation are not errors.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			p.shell.Warn("run interrupted before acquiring lock", logging.Error(ctx.Err()))
			return nil
		}
		backlog, err := p.Backlog()
		if err != nil {
			return &InfraError{Op: "scan queue", Path: p.opts.QueueDir, Err: err}
		}
		if backlog == 0 {
			p.shell.Debug("queue empty")
			return nil
		}

		acquired, err := p.acquire()
		if err != nil {
			err = &InfraError{Op: "create lock", Path: p.opts.LockDir, Err: err}
			logging.ErrorWithContext(p.shell, "stage lock failed", "lock_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the lock directory"),
			)
			p.notify(ctx, err, "lock")
			return err
		}
		if !acquired {
			p.shell.Info("stage already running; exiting", logging.String("lock_dir", p.opts.LockDir))
			return nil
		}

		reenter, cycleErr := p.processWithLock(ctx)
		if cycleErr != nil {
			logging.ErrorWithContext(p.logger, "cycle aborted", "cycle_aborted",
				logging.Error(cycleErr),
				logging.String(logging.FieldErrorHint, "remaining items stay queued; fix the cause and rerun the stage"),
			)
			p.notify(ctx, cycleErr, "cycle")
		}
		p.release(ctx)

		if cycleErr != nil {
			return cycleErr
		}
		if !reenter {
			return nil
		}
		p.shell.Info("re-entering cycle with more workers")
	}
}

func (p *Processor) acquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(p.opts.LockDir), 0o755); err != nil {
		return false, err
	}
	err := os.Mkdir(p.opts.LockDir, 0o755)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrExist):
		return false, nil
	default:
		return false, err
	}
}

func (p *Processor) release(ctx context.Context) {
	if err := os.Remove(p.opts.LockDir); err != nil {
		err = &InfraError{Op: "remove lock", Path: p.opts.LockDir, Err: err}
		logging.ErrorWithContext(p.logger, "stage lock release failed", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock directory by hand once no instance is running"),
		)
		p.notify(ctx, err, "lock release")
	}
}

func (p *Processor) notify(ctx context.Context, err error, label string) {
	if nerr := p.opts.Notifier.NotifyError(context.WithoutCancel(ctx), err, p.opts.Name+" "+label); nerr != nil {
		logging.WarnWithContext(p.logger, "error notification failed", "notification_failed",
			logging.Error(nerr),
			logging.String(logging.FieldImpact, "operators were not alerted"),
		)
	}
}

func (p *Processor) halted() bool {
	if p.opts.HaltFile == "" {
		return false
	}
	_, err := os.Stat(p.opts.HaltFile)
	return err == nil
}

func (p *Processor) concurrencyFor(backlog int) int {
	return min(p.opts.MaxConcurrency, max(1, backlog))
}

func (p *Processor) processWithLock(ctx context.Context) (reenter bool, err error) {
	ctx = services.WithStage(ctx, p.opts.Name)
	tracer := logging.NewTracer(p.logger)
	c := &cycle{p: p, start: p.opts.Now()}

	if p.opts.PreProcess != nil {
		if err := p.opts.PreProcess(ctx); err != nil {
			return false, fmt.Errorf("pre-process: %w", err)
		}
		tracer.Step("pre-process complete")
	}

	backlog, err := p.Backlog()
	if err != nil {
		return false, &InfraError{Op: "scan queue", Path: p.opts.QueueDir, Err: err}
	}
	c.concurrency = p.concurrencyFor(backlog)
	p.logger.Info("cycle started",
		logging.Int("backlog", backlog),
		logging.Int("concurrency", c.concurrency),
	)

	d, err := dispatch.New[string](c.concurrency, dispatch.HandlerFunc[string](c.handle),
		dispatch.WithFaultHandler[string](c),
		dispatch.WithLogger[string](p.logger),
	)
	if err != nil {
		return false, err
	}
	if err := d.Start(ctx); err != nil {
		return false, err
	}

	defer func() {
		if serr := d.Shutdown(); serr != nil {
			p.logger.Warn("dispatcher shutdown reported errors", logging.Error(serr))
		}
		c.recordSpeed()
		if p.opts.PostProcess != nil {
			if perr := p.opts.PostProcess(ctx); perr != nil && err == nil {
				err = fmt.Errorf("post-process: %w", perr)
			}
		}
		if err == nil {
			err = c.abortCause()
		}
		if err != nil {
			reenter = false
		}
		c.finish(ctx, reenter, err)
		tracer.Total("cycle complete")
	}()

	for {
		if ctx.Err() != nil {
			return false, c.stopped(ctx.Err())
		}
		if p.halted() {
			logging.WarnWithContext(p.logger, "halt file present; stopping cycle", "halted",
				logging.String("halt_file", p.opts.HaltFile),
				logging.String(logging.FieldImpact, "remaining items stay queued until the halt file is removed"),
			)
			return false, nil
		}
		items, err := Scan(p.opts.QueueDir)
		if err != nil {
			return false, &InfraError{Op: "scan queue", Path: p.opts.QueueDir, Err: err}
		}
		if len(items) == 0 {
			return false, nil
		}

		before := c.progress()
		c.fed += len(items)
		err = d.SubmitChunked(ctx, slices.Values(items), p.opts.ChunkSize, c.interval)
		if err == nil {
			err = d.WaitUntilDrained(ctx)
		}
		if err == nil {
			err = c.interval(ctx)
		}
		if err != nil {
			return false, c.stopped(err)
		}
		tracer.Step("pass complete")

		if c.progress() == before {
			p.logger.Debug("pass made no progress; ending cycle")
			return false, nil
		}
		backlog, err := p.Backlog()
		if err != nil {
			return false, &InfraError{Op: "scan queue", Path: p.opts.QueueDir, Err: err}
		}
		if next := p.concurrencyFor(backlog); next > c.concurrency {
			p.logger.Info("backlog grew; cycle will restart with more workers",
				logging.Int("backlog", backlog),
				logging.Int("concurrency", next),
			)
			return true, nil
		}
	}
}

type cycle struct {
	p           *Processor
	start       time.Time
	concurrency int
	fed         int
	chunks      int

	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64

	abortMu  sync.Mutex
	abortErr error
}

func (c *cycle) progress() int64 {
	return c.processed.Load() + c.failed.Load()
}

func (c *cycle) abort(err error) {
	c.abortMu.Lock()
	defer c.abortMu.Unlock()
	if c.abortErr == nil {
		c.abortErr = err
	}
}

func (c *cycle) abortCause() error {
	c.abortMu.Lock()
	defer c.abortMu.Unlock()
	return c.abortErr
}

// stopped maps the error that ended feeding to the cycle result. Halts and
// cancellation end the cycle cleanly.
func (c *cycle) stopped(err error) error {
	logger := c.p.logger
	switch {
	case errors.Is(err, errHalted):
		logging.WarnWithContext(logger, "halt file present; stopping cycle", "halted",
			logging.String("halt_file", c.p.opts.HaltFile),
			logging.String(logging.FieldImpact, "remaining items stay queued until the halt file is removed"),
		)
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logging.WarnWithContext(logger, "cycle interrupted", "interrupted",
			logging.Error(err),
			logging.String(logging.FieldImpact, "in-flight items finish; the rest stay queued"),
		)
		return nil
	case errors.Is(err, errAborted):
		return c.abortCause()
	default:
		return err
	}
}

// interval runs at every chunk boundary and once after each drained pass.
func (c *cycle) interval(ctx context.Context) error {
	c.chunks++
	c.recordSpeed()
	if c.abortCause() != nil {
		return errAborted
	}
	if c.p.halted() {
		return errHalted
	}
	next := c.p.opts.Next
	if next == nil || next.Command == "" {
		return nil
	}
	if !c.p.opts.Launcher.CanExecute(next.LockDir) {
		c.p.logger.Debug("next stage already running", logging.String("lock_dir", next.LockDir))
		return nil
	}
	if err := c.p.opts.Launcher.Execute(next.Command); err != nil {
		return &InfraError{Op: "launch next stage", Path: next.Command, Err: err}
	}
	c.p.logger.Info("next stage launched", logging.String("command", next.Command))
	return nil
}

func (c *cycle) recordSpeed() {
	if c.p.opts.SpeedFile == "" {
		return
	}
	if err := writeSpeed(c.p.opts.SpeedFile, c.processed.Load(), c.p.opts.Now().Sub(c.start)); err != nil {
		logging.WarnWithContext(c.p.logger, "speed record not written", "speed_write_failed",
			logging.Error(err),
			logging.String("speed_file", c.p.opts.SpeedFile),
			logging.String(logging.FieldImpact, "throughput reporting is stale"),
		)
	}
}

func (c *cycle) finish(ctx context.Context, reenter bool, err error) {
	report := CycleReport{
		Concurrency: c.concurrency,
		Fed:         c.fed,
		Processed:   int(c.processed.Load()),
		Skipped:     int(c.skipped.Load()),
		Failed:      int(c.failed.Load()),
		Chunks:      c.chunks,
		Duration:    c.p.opts.Now().Sub(c.start),
		Reenter:     reenter,
		Err:         err,
	}
	c.p.mu.Lock()
	c.p.last = report
	c.p.mu.Unlock()

	c.p.logger.Info("cycle finished",
		logging.Int("processed", report.Processed),
		logging.Int("skipped", report.Skipped),
		logging.Int("failed", report.Failed),
		logging.Int("chunks", report.Chunks),
		logging.Duration("duration", report.Duration),
	)
	if report.Failed > 0 {
		if nerr := c.p.opts.Notifier.NotifyCycleCompleted(context.WithoutCancel(ctx), c.p.opts.Name, report.Processed, report.Failed, report.Duration); nerr != nil {
			c.p.logger.Warn("cycle notification failed", logging.Error(nerr))
		}
	}
}

// handle runs one queue item on a dispatcher worker. Returned errors are
// infrastructure failures; item failures are quarantined here.
func (c *cycle) handle(ctx context.Context, seq uint64, path string) error {
	if c.p.halted() || ctx.Err() != nil || c.abortCause() != nil {
		return nil
	}
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	name := filepath.Base(path)
	worker, _ := services.WorkerFromContext(ctx)
	// Started items run to completion; cancellation only stops the feed.
	ctx = context.WithoutCancel(services.WithItem(ctx, name))
	job := &Job{
		Path:   path,
		Name:   name,
		Seq:    seq,
		Worker: worker,
		Stage:  c.p.opts.Name,
		Logger: logging.WithWorker(c.p.logger, worker).With(logging.String(logging.FieldItem, name)),
	}

	result, err := c.invoke(ctx, job)
	if err != nil {
		return err
	}
	switch result.Outcome {
	case OutcomeSkipped:
		c.skipped.Add(1)
		job.Logger.Debug("item skipped")
		return nil
	case OutcomeFailed:
		c.failed.Add(1)
		return c.quarantine(ctx, job, result.Err)
	}

	c.processed.Add(1)
	if next := c.p.opts.Next; next != nil && result.Next != "" {
		target, err := handoff(result.Next, next.QueueDir, c.p.opts.Now)
		if err != nil {
			return &InfraError{Op: "hand off", Path: result.Next, Err: err}
		}
		job.Logger.Debug("item handed off", logging.String("target", filepath.Base(target)))
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &InfraError{Op: "remove source", Path: path, Err: err}
	}
	return nil
}

// invoke runs the stage inside the item's transaction when one is configured.
func (c *cycle) invoke(ctx context.Context, job *Job) (Result, error) {
	if c.p.opts.Transactor == nil {
		return c.call(ctx, job), nil
	}
	tx, err := c.p.opts.Transactor.Begin(ctx)
	if err != nil {
		return Result{}, &InfraError{Op: "begin transaction", Path: job.Path, Err: err}
	}
	job.Tx = tx
	result := c.call(ctx, job)
	if result.Outcome == OutcomeProcessed {
		if err := tx.Commit(); err != nil {
			_ = tx.Rollback()
			return Result{}, &InfraError{Op: "commit transaction", Path: job.Path, Err: err}
		}
		return result, nil
	}
	if err := tx.Rollback(); err != nil {
		job.Logger.Warn("transaction rollback failed", logging.Error(err))
	}
	return result, nil
}

func (c *cycle) call(ctx context.Context, job *Job) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Failed(&dispatch.PanicError{Value: r, Stack: debug.Stack()})
		}
	}()
	result = c.p.opts.Stage.Process(ctx, job)
	switch {
	case result.Outcome < OutcomeProcessed || result.Outcome > OutcomeFailed:
		return Failed(fmt.Errorf("stage returned unknown outcome %d", result.Outcome))
	case result.Outcome == OutcomeFailed && result.Err == nil:
		result.Err = errors.New("stage reported failure without a cause")
	}
	return result
}

func (c *cycle) quarantine(ctx context.Context, job *Job, cause error) error {
	target, err := quarantine(job.Path, c.p.opts.Now())
	if errors.Is(err, fs.ErrNotExist) {
		if _, serr := os.Lstat(job.Path); errors.Is(serr, fs.ErrNotExist) {
			logging.ErrorWithContext(job.Logger, "item failed; source already gone", "item_failed_missing",
				logging.Error(cause),
				logging.String("failure_kind", services.FailureKind(cause)),
				logging.String(logging.FieldImpact, "nothing left to quarantine"),
			)
			c.p.notify(ctx, cause, job.Name)
			return nil
		}
	}
	if err != nil {
		return &InfraError{Op: "quarantine", Path: job.Path, Err: err}
	}
	logging.ErrorWithContext(job.Logger, "item failed; quarantined", "item_quarantined",
		logging.Error(cause),
		logging.String("quarantine", filepath.Base(target)),
		logging.String("failure_kind", services.FailureKind(cause)),
		logging.String(logging.FieldErrorHint, "inspect the quarantined file and fix it by hand"),
	)
	c.p.notify(ctx, cause, job.Name)
	return nil
}

// OnItemFault records an infrastructure failure as the cycle's abort cause.
func (c *cycle) OnItemFault(err error, seq uint64, path string) {
	c.abort(err)
	logging.ErrorWithContext(c.p.logger, "item infrastructure failure", "item_fault",
		logging.Error(err),
		logging.String(logging.FieldItem, filepath.Base(path)),
		logging.Int64("seq", int64(seq)),
		logging.String(logging.FieldErrorHint, "the cycle stops at the next checkpoint"),
	)
}

func (c *cycle) OnStartFault(err error) {
	c.abort(err)
	logging.ErrorWithContext(c.p.logger, "worker start failed", "worker_start_fault", logging.Error(err))
}

func (c *cycle) OnShutdownFault(err error) {
	c.p.logger.Warn("worker shutdown failed", logging.Error(err))
}
