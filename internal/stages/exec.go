package stages

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"relay/internal/command"
	"relay/internal/logging"
	"relay/internal/queueproc"
	"relay/internal/services"
)

// ExitTempFail asks for the item to be retried in a later cycle.
const ExitTempFail = 75

// Exec runs Command with the item path as its last argument.
//
// On success the first non-empty stdout line names the file to forward; a
// relative name resolves against the item's directory. Without output the
// item itself is forwarded.
type Exec struct {
	Command string
}

func (e *Exec) Process(ctx context.Context, job *queueproc.Job) queueproc.Result {
	out, err := command.Run(ctx, e.Command, []string{job.Path}, nil)
	if err != nil {
		var exitErr *command.ExitError
		if errors.As(err, &exitErr) && exitErr.Code == ExitTempFail {
			job.Logger.Debug("stage command asked to retry later", logging.Int("exit_code", exitErr.Code))
			return queueproc.Skipped()
		}
		return queueproc.Failed(services.Wrap(services.ErrExternalTool, job.Stage, "exec", "stage command failed", err))
	}

	for _, line := range out {
		next := strings.TrimSpace(line)
		if next == "" {
			continue
		}
		if !filepath.IsAbs(next) {
			next = filepath.Join(filepath.Dir(job.Path), next)
		}
		return queueproc.Processed(next)
	}
	return queueproc.Processed(job.Path)
}
