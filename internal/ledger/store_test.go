package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"relay/internal/ledger"
)

func openStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(context.Background(), filepath.Join(t.TempDir(), "db", "relay.db"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordDeduplicatesByDigest(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	record := func(name, sum string) bool {
		t.Helper()
		tx, err := store.Begin(ctx)
		if err != nil {
			t.Fatalf("Begin: %v", err)
		}
		first, err := tx.Record(ctx, ledger.Entry{Stage: "ingest", Name: name, Size: 3, SHA256: sum})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		return first
	}

	if !record("a.job", "abc") {
		t.Fatal("expected first occurrence")
	}
	if record("b.job", "abc") {
		t.Fatal("expected duplicate digest to be reported")
	}
	if !record("c.job", "def") {
		t.Fatal("expected new digest to be recorded")
	}

	n, err := store.Count(ctx, "ingest")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 entries, got %d", n)
	}

	recent, err := store.Recent(ctx, "ingest", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Name != "c.job" || recent[0].RecordedAt.IsZero() {
		t.Fatalf("unexpected recent entries %+v", recent)
	}
}

func TestRollbackDiscardsEntry(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := tx.Record(ctx, ledger.Entry{Stage: "ingest", Name: "a.job", SHA256: "abc"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("second Rollback should be harmless: %v", err)
	}

	if n, _ := store.Count(ctx, ""); n != 0 {
		t.Fatalf("expected rollback to discard entry, got %d", n)
	}
}

func TestConcurrentTransactionsSerialize(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := store.Begin(ctx)
			if err != nil {
				errs <- err
				return
			}
			defer tx.Rollback()
			sum := string(rune('a' + i))
			if _, err := tx.Record(ctx, ledger.Entry{Stage: "ingest", Name: sum, SHA256: sum}); err != nil {
				errs <- err
				return
			}
			errs <- tx.Commit()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent writer failed: %v", err)
		}
	}
	if n, _ := store.Count(ctx, "ingest"); n != writers {
		t.Fatalf("expected %d entries, got %d", writers, n)
	}
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.db")
	ctx := context.Background()

	first, err := ledger.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tx, _ := first.Begin(ctx)
	if _, err := tx.Record(ctx, ledger.Entry{Stage: "s", Name: "n", SHA256: "x"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	first.Close()

	second, err := ledger.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if n, _ := second.Count(ctx, "s"); n != 1 {
		t.Fatalf("expected persisted entry, got %d", n)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := ledger.Open(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.db")
	ctx := context.Background()

	store, err := ledger.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := ledger.Open(ctx, path); !errors.Is(err, ledger.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
