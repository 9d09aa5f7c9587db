package testsupport

import (
	"context"
	"testing"

	"relay/internal/config"
	"relay/internal/ledger"
)

// MustOpenLedger opens the configured ledger database and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(context.Background(), cfg.Database.Path)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
