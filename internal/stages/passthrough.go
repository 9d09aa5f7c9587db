package stages

import (
	"context"

	"relay/internal/queueproc"
)

// Passthrough hands every item to the next stage untouched.
type Passthrough struct{}

func (Passthrough) Process(_ context.Context, job *queueproc.Job) queueproc.Result {
	return queueproc.Processed(job.Path)
}
