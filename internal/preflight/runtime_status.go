package preflight

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"relay/internal/config"
	"relay/internal/queueproc"
)

// StageProbe is a point-in-time view of one stage for status displays.
type StageProbe struct {
	Name        string
	Behavior    string
	Next        string
	Backlog     int
	Quarantined int
	Running     bool
	// Processed and Elapsed come from the stage's speed file.
	Processed int64
	Elapsed   time.Duration
	HasSpeed  bool
	Err       error
}

// ProbeStage reads a stage's queue, lock, and speed file without touching
// any of them.
func ProbeStage(stage config.Stage) StageProbe {
	probe := StageProbe{Name: stage.Name, Behavior: stage.Behavior, Next: stage.Next}

	items, err := queueproc.Scan(stage.QueueDir)
	if err != nil {
		probe.Err = err
		return probe
	}
	probe.Backlog = len(items)

	quarantined, err := queueproc.Quarantined(stage.QueueDir)
	if err != nil {
		probe.Err = err
		return probe
	}
	probe.Quarantined = len(quarantined)

	if _, err := os.Stat(stage.LockDir); err == nil {
		probe.Running = true
	}

	processed, elapsed, err := queueproc.ReadSpeed(stage.SpeedFile)
	switch {
	case err == nil:
		probe.Processed, probe.Elapsed, probe.HasSpeed = processed, elapsed, true
	case !errors.Is(err, fs.ErrNotExist):
		probe.Err = err
	}
	return probe
}

// Rate returns items per second from the speed record.
func (p StageProbe) Rate() float64 {
	if !p.HasSpeed || p.Elapsed <= 0 {
		return 0
	}
	return float64(p.Processed) / p.Elapsed.Seconds()
}

// Halted reports whether the configured halt file exists.
func Halted(cfg *config.Config) bool {
	if cfg == nil || cfg.Paths.HaltFile == "" {
		return false
	}
	_, err := os.Stat(cfg.Paths.HaltFile)
	return err == nil
}
