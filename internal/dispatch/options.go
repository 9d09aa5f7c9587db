package dispatch

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultCapacity is the ring size used when none is configured.
	DefaultCapacity = 1024
	// DefaultDrainPoll bounds every wait inside WaitUntilDrained.
	DefaultDrainPoll = 500 * time.Millisecond
)

// Handler processes one item. seq is the item's publish sequence number; the
// worker index is available through services.WorkerFromContext.
type Handler[T any] interface {
	Handle(ctx context.Context, seq uint64, item T) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, seq uint64, item T) error

func (f HandlerFunc[T]) Handle(ctx context.Context, seq uint64, item T) error {
	return f(ctx, seq, item)
}

// FaultHandler receives failures that never propagate to the producer.
type FaultHandler[T any] interface {
	OnItemFault(err error, seq uint64, item T)
	OnStartFault(err error)
	OnShutdownFault(err error)
}

// FaultFuncs implements FaultHandler with optional callbacks.
type FaultFuncs[T any] struct {
	Item     func(err error, seq uint64, item T)
	Start    func(err error)
	Shutdown func(err error)
}

func (f FaultFuncs[T]) OnItemFault(err error, seq uint64, item T) {
	if f.Item != nil {
		f.Item(err, seq, item)
	}
}

func (f FaultFuncs[T]) OnStartFault(err error) {
	if f.Start != nil {
		f.Start(err)
	}
}

func (f FaultFuncs[T]) OnShutdownFault(err error) {
	if f.Shutdown != nil {
		f.Shutdown(err)
	}
}

// logFaults is the default fault handler.
type logFaults[T any] struct {
	logger *slog.Logger
}

func (l logFaults[T]) OnItemFault(err error, seq uint64, _ T) {
	l.logger.Error("item fault", slog.Uint64("seq", seq), slog.Any("error", err))
}

func (l logFaults[T]) OnStartFault(err error) {
	l.logger.Error("worker start fault", slog.Any("error", err))
}

func (l logFaults[T]) OnShutdownFault(err error) {
	l.logger.Error("worker shutdown fault", slog.Any("error", err))
}

// Option configures a Dispatcher.
type Option[T any] func(*Dispatcher[T])

// WithCapacity sets the ring size. It must be a power of two.
func WithCapacity[T any](capacity int) Option[T] {
	return func(d *Dispatcher[T]) { d.capacity = capacity }
}

// WithFaultHandler routes item, start, and shutdown faults to fh.
func WithFaultHandler[T any](fh FaultHandler[T]) Option[T] {
	return func(d *Dispatcher[T]) { d.faults = fh }
}

// WithWorkerInit runs fn once per worker during Start. A worker whose init
// fails is reported through OnStartFault and never runs.
func WithWorkerInit[T any](fn func(ctx context.Context, worker int) error) Option[T] {
	return func(d *Dispatcher[T]) { d.workerInit = fn }
}

// WithWorkerExit runs fn as each worker stops during Shutdown.
func WithWorkerExit[T any](fn func(worker int) error) Option[T] {
	return func(d *Dispatcher[T]) { d.workerExit = fn }
}

// WithLogger sets the logger used by the default fault handler.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(d *Dispatcher[T]) { d.logger = logger }
}

// WithDrainPoll overrides the bounded wait used by WaitUntilDrained.
func WithDrainPoll[T any](interval time.Duration) Option[T] {
	return func(d *Dispatcher[T]) { d.drainPoll = interval }
}
