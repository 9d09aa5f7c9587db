package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrShutdown is returned by any operation on a dispatcher that has been shut down.
	ErrShutdown = errors.New("dispatch: dispatcher is shut down")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("dispatch: dispatcher already started")
	// ErrNotStarted is returned when items are submitted before Start.
	ErrNotStarted = errors.New("dispatch: dispatcher not started")
	// ErrNoWorkers is returned when every worker failed to initialise.
	ErrNoWorkers = errors.New("dispatch: no running workers")
)

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("dispatch: handler panic: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// WorkerError records a worker lifecycle hook failure.
type WorkerError struct {
	Worker int
	Op     string
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("dispatch: worker %d %s: %v", e.Worker, e.Op, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}
