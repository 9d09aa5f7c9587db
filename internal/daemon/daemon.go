package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"

	"relay/internal/config"
	"relay/internal/logging"
)

// Runner drains one stage queue.
type Runner func(ctx context.Context, stage config.Stage) error

// Daemon wakes stage lanes and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	runner Runner
	poll   time.Duration

	lockPath string
	lock     *flock.Flock

	lanes  []*lane
	byDir  map[string]*lane
	wg     sync.WaitGroup
	cancel context.CancelFunc

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	LockFilePath string
	Lanes        []LaneStatus
}

// LaneStatus summarises one stage lane.
type LaneStatus struct {
	Stage   string
	Active  bool
	Runs    int
	LastRun time.Time
	LastErr error
}

type lane struct {
	stage config.Stage
	wake  chan struct{}

	mu      sync.Mutex
	active  bool
	runs    int
	lastRun time.Time
	lastErr error
}

func (l *lane) poke() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// New constructs a daemon for the configured stages.
func New(cfg *config.Config, logger *slog.Logger, runner Runner) (*Daemon, error) {
	if cfg == nil || runner == nil {
		return nil, errors.New("daemon requires config and runner")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	poll := time.Duration(cfg.Watch.PollInterval) * time.Second
	if poll <= 0 {
		poll = time.Minute
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "relay-watch.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "watch"),
		runner:   runner,
		poll:     poll,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		byDir:    make(map[string]*lane, len(cfg.Stages)),
	}
	for _, stage := range cfg.Stages {
		l := &lane{stage: stage, wake: make(chan struct{}, 1)}
		d.lanes = append(d.lanes, l)
		d.byDir[filepath.Clean(stage.QueueDir)] = l
	}
	return d, nil
}

// Start acquires the watch lock and launches the lanes.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another relay watch instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	for _, l := range d.lanes {
		d.wg.Add(1)
		go d.runLane(runCtx, l)
		l.poke()
	}
	d.wg.Add(1)
	go d.watchLoop(runCtx)

	d.running.Store(true)
	d.logger.Info("relay watch started",
		logging.String("lock", d.lockPath),
		logging.Int("stages", len(d.lanes)),
		logging.Duration("poll_interval", d.poll),
	)
	return nil
}

// Stop cancels the lanes, waits for in-flight cycles, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release watch lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("relay watch stopped")
}

// Wake asks the named stage's lane to run. It reports whether the stage exists.
func (d *Daemon) Wake(stage string) bool {
	for _, l := range d.lanes {
		if l.stage.Name == stage {
			l.poke()
			return true
		}
	}
	return false
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{Running: d.running.Load(), LockFilePath: d.lockPath}
	for _, l := range d.lanes {
		l.mu.Lock()
		status.Lanes = append(status.Lanes, LaneStatus{
			Stage:   l.stage.Name,
			Active:  l.active,
			Runs:    l.runs,
			LastRun: l.lastRun,
			LastErr: l.lastErr,
		})
		l.mu.Unlock()
	}
	return status
}

func (d *Daemon) runLane(ctx context.Context, l *lane) {
	defer d.wg.Done()
	logger := logging.WithStage(d.logger, l.stage.Name)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}

		l.mu.Lock()
		l.active = true
		l.mu.Unlock()

		err := d.runner(ctx, l.stage)

		l.mu.Lock()
		l.active = false
		l.runs++
		l.lastRun = time.Now()
		l.lastErr = err
		l.mu.Unlock()

		if err != nil && ctx.Err() == nil {
			logging.WarnWithContext(logger, "stage run failed", "lane_run_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the lane retries on the next wake"),
			)
		}
		if l.stage.HasNext() {
			// Work was probably handed off; give the downstream lane a turn.
			d.Wake(l.stage.Next)
		}
	}
}

// watchLoop wakes lanes on queue directory events, with a fallback poll as
// a safety net.
func (d *Daemon) watchLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Warn("fsnotify unavailable; polling only", logging.Error(err))
	} else {
		defer func() { _ = watcher.Close() }()
		for dir := range d.byDir {
			if err := watcher.Add(dir); err != nil {
				d.logger.Warn("cannot watch queue directory; polling only", logging.String("dir", dir), logging.Error(err))
			}
		}
		events, errs = watcher.Events, watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if l, found := d.byDir[filepath.Dir(event.Name)]; found {
				l.poke()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			d.logger.Warn("queue watcher error", logging.Error(err))
		case <-ticker.C:
			for _, l := range d.lanes {
				l.poke()
			}
		}
	}
}
