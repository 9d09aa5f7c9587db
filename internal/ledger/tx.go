package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Entry is one recorded item.
type Entry struct {
	Stage      string
	Name       string
	Size       int64
	SHA256     string
	RecordedAt time.Time
}

// Tx is a single-item write transaction.
type Tx struct {
	tx *sql.Tx
}

// Record inserts e unless an entry with the same stage and digest exists.
// It reports whether this was the first occurrence.
func (t *Tx) Record(ctx context.Context, e Entry) (bool, error) {
	recorded := e.RecordedAt
	if recorded.IsZero() {
		recorded = time.Now()
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO entries (stage, name, size, sha256, recorded_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (stage, sha256) DO NOTHING`,
		e.Stage, e.Name, e.Size, e.SHA256, recorded.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("record ledger entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record ledger entry: %w", err)
	}
	return n == 1, nil
}

// Commit makes the transaction's writes durable.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback discards the transaction. Calling it after Commit is harmless.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
