package dispatch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"relay/internal/services"
)

// Stats is a point-in-time view of dispatcher counters.
type Stats struct {
	Capacity  int
	Workers   int
	Running   int
	Published uint64
	Completed uint64
	Faulted   uint64
}

// Outstanding reports items published but not yet completed.
func (s Stats) Outstanding() uint64 {
	return s.Published - s.Completed
}

// Dispatcher feeds items from a single producer to a fixed set of workers.
type Dispatcher[T any] struct {
	workers    int
	capacity   int
	handler    Handler[T]
	faults     FaultHandler[T]
	workerInit func(ctx context.Context, worker int) error
	workerExit func(worker int) error
	logger     *slog.Logger
	drainPoll  time.Duration

	mu        sync.Mutex
	notEmpty  *sync.Cond
	notFull   *sync.Cond
	ring      *ring[T]
	published uint64
	taken     uint64
	completed uint64
	faulted   uint64
	running   int
	started   bool
	closed    bool
	stopping  bool
	exitErrs  []error

	// drained receives a token whenever the outstanding count reaches zero.
	drained chan struct{}
	wg      sync.WaitGroup
}

// New validates the configuration and builds an idle dispatcher.
func New[T any](workers int, handler Handler[T], opts ...Option[T]) (*Dispatcher[T], error) {
	if workers < 1 {
		return nil, fmt.Errorf("dispatch: workers must be at least 1, got %d", workers)
	}
	if handler == nil {
		return nil, errors.New("dispatch: handler is required")
	}
	d := &Dispatcher[T]{
		workers:   workers,
		capacity:  DefaultCapacity,
		handler:   handler,
		drainPoll: DefaultDrainPoll,
		drained:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if !isPowerOfTwo(d.capacity) {
		return nil, fmt.Errorf("dispatch: capacity must be a positive power of two, got %d", d.capacity)
	}
	if d.drainPoll <= 0 {
		d.drainPoll = DefaultDrainPoll
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	if d.faults == nil {
		d.faults = logFaults[T]{logger: d.logger}
	}
	d.ring = newRing[T](d.capacity)
	d.notEmpty = sync.NewCond(&d.mu)
	d.notFull = sync.NewCond(&d.mu)
	return d, nil
}

// Start launches the workers. It may be called once; ctx is passed to every
// handler invocation.
func (d *Dispatcher[T]) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrShutdown
	}
	if d.started {
		d.mu.Unlock()
		d.faults.OnStartFault(ErrAlreadyStarted)
		return ErrAlreadyStarted
	}
	d.started = true
	d.mu.Unlock()

	running := 0
	for i := 0; i < d.workers; i++ {
		if d.workerInit != nil {
			if err := d.workerInit(ctx, i); err != nil {
				d.faults.OnStartFault(&WorkerError{Worker: i, Op: "init", Err: err})
				continue
			}
		}
		d.mu.Lock()
		d.running++
		d.mu.Unlock()
		running++
		d.wg.Add(1)
		go d.work(ctx, i)
	}
	if running == 0 {
		return ErrNoWorkers
	}
	return nil
}

// Submit publishes one item, blocking while every slot is outstanding.
func (d *Dispatcher[T]) Submit(ctx context.Context, item T) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.usableLocked(); err != nil {
		return err
	}
	if d.fullLocked() {
		stop := context.AfterFunc(ctx, d.wakeProducer)
		defer stop()
		for d.fullLocked() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := d.usableLocked(); err != nil {
				return err
			}
			d.notFull.Wait()
		}
	}

	d.ring.put(d.published, item)
	d.published++
	d.notEmpty.Signal()
	return nil
}

// SubmitAll publishes every item of the sequence in order.
func (d *Dispatcher[T]) SubmitAll(ctx context.Context, items iter.Seq[T]) error {
	for item := range items {
		if err := d.Submit(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// SubmitChunked publishes items and, after every chunkSize items, waits for
// the dispatcher to drain and then calls onChunk. An error from either stops
// feeding and is returned.
func (d *Dispatcher[T]) SubmitChunked(ctx context.Context, items iter.Seq[T], chunkSize int, onChunk func(context.Context) error) error {
	if chunkSize < 1 {
		return fmt.Errorf("dispatch: chunk size must be at least 1, got %d", chunkSize)
	}
	fed := 0
	for item := range items {
		if err := d.Submit(ctx, item); err != nil {
			return err
		}
		fed++
		if fed%chunkSize != 0 {
			continue
		}
		if err := d.WaitUntilDrained(ctx); err != nil {
			return err
		}
		if onChunk != nil {
			if err := onChunk(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// WaitUntilDrained blocks until every published item has completed. Each
// wait is bounded by the drain poll interval so a missed wakeup only costs
// one interval.
func (d *Dispatcher[T]) WaitUntilDrained(ctx context.Context) error {
	timer := time.NewTimer(d.drainPoll)
	defer timer.Stop()
	for {
		d.mu.Lock()
		outstanding := d.published - d.completed
		running := d.running
		d.mu.Unlock()

		if outstanding == 0 {
			return nil
		}
		if running == 0 {
			return ErrNoWorkers
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.drained:
		case <-timer.C:
		}
		timer.Reset(d.drainPoll)
	}
}

// Shutdown drains outstanding items, stops the workers, and waits for them
// to exit. Worker exit hook failures are reported and returned joined.
func (d *Dispatcher[T]) Shutdown() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.faults.OnShutdownFault(ErrShutdown)
		return ErrShutdown
	}
	d.closed = true
	started := d.started
	d.notFull.Broadcast()
	d.mu.Unlock()

	if started {
		if err := d.WaitUntilDrained(context.Background()); err != nil {
			d.logger.Warn("dispatcher shut down with undrained items", slog.Any("error", err))
		}
	}

	d.mu.Lock()
	d.stopping = true
	d.notEmpty.Broadcast()
	d.mu.Unlock()

	d.wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = 0
	return errors.Join(d.exitErrs...)
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher[T]) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Capacity:  d.capacity,
		Workers:   d.workers,
		Running:   d.running,
		Published: d.published,
		Completed: d.completed,
		Faulted:   d.faulted,
	}
}

func (d *Dispatcher[T]) usableLocked() error {
	switch {
	case d.closed:
		return ErrShutdown
	case !d.started:
		return ErrNotStarted
	case d.running == 0:
		return ErrNoWorkers
	}
	return nil
}

func (d *Dispatcher[T]) fullLocked() bool {
	return d.published-d.completed >= uint64(d.capacity)
}

func (d *Dispatcher[T]) wakeProducer() {
	d.mu.Lock()
	d.notFull.Broadcast()
	d.mu.Unlock()
}

func (d *Dispatcher[T]) work(ctx context.Context, worker int) {
	defer d.wg.Done()
	ctx = services.WithWorker(ctx, worker)
	for {
		seq, item, ok := d.next()
		if !ok {
			break
		}
		err := d.invoke(ctx, seq, item)
		if err != nil {
			d.faults.OnItemFault(err, seq, item)
		}
		d.complete(err != nil)
	}
	if d.workerExit == nil {
		return
	}
	if err := d.workerExit(worker); err != nil {
		werr := &WorkerError{Worker: worker, Op: "exit", Err: err}
		d.faults.OnShutdownFault(werr)
		d.mu.Lock()
		d.exitErrs = append(d.exitErrs, werr)
		d.mu.Unlock()
	}
}

func (d *Dispatcher[T]) next() (uint64, T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.taken == d.published && !d.stopping {
		d.notEmpty.Wait()
	}
	if d.taken == d.published {
		var zero T
		return 0, zero, false
	}
	seq := d.taken
	item := d.ring.take(seq)
	d.taken++
	return seq, item, true
}

func (d *Dispatcher[T]) invoke(ctx context.Context, seq uint64, item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return d.handler.Handle(ctx, seq, item)
}

func (d *Dispatcher[T]) complete(faulted bool) {
	d.mu.Lock()
	d.completed++
	if faulted {
		d.faulted++
	}
	idle := d.published == d.completed
	d.notFull.Signal()
	d.mu.Unlock()

	if idle {
		select {
		case d.drained <- struct{}{}:
		default:
		}
	}
}
