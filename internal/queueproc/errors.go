package queueproc

import (
	"errors"
	"fmt"
)

var (
	errHalted  = errors.New("halt file present")
	errAborted = errors.New("cycle aborted")
)

// InfraError reports a filesystem or transaction failure that makes the
// current cycle unsafe to continue.
type InfraError struct {
	Op   string
	Path string
	Err  error
}

func (e *InfraError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *InfraError) Unwrap() error {
	return e.Err
}
