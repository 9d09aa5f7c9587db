package stages

import (
	"context"

	"relay/internal/fileutil"
	"relay/internal/ledger"
	"relay/internal/logging"
	"relay/internal/queueproc"
	"relay/internal/services"
)

type recorder interface {
	Record(ctx context.Context, e ledger.Entry) (bool, error)
}

// Ledger records the item's size and SHA-256 in the item transaction. The
// first item with a given digest is forwarded; later copies are consumed.
type Ledger struct{}

func (Ledger) Process(ctx context.Context, job *queueproc.Job) queueproc.Result {
	tx, ok := job.Tx.(recorder)
	if !ok {
		return queueproc.Failed(services.Wrap(services.ErrConfiguration, job.Stage, "ledger", "stage runs without a ledger transaction", nil))
	}
	digest, size, err := fileutil.SHA256File(job.Path)
	if err != nil {
		return queueproc.Failed(services.Wrap(services.ErrValidation, job.Stage, "ledger", "hash item", err))
	}
	first, err := tx.Record(ctx, ledger.Entry{Stage: job.Stage, Name: job.Name, Size: size, SHA256: digest})
	if err != nil {
		// The database is unhealthy, not the item; leave it for a later cycle.
		logging.WarnWithContext(job.Logger, "ledger write failed; item left queued", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "item is retried on the next cycle"),
		)
		return queueproc.Skipped()
	}
	if !first {
		job.Logger.Info("duplicate content consumed", logging.String("sha256", digest))
		return queueproc.Processed("")
	}
	return queueproc.Processed(job.Path)
}
