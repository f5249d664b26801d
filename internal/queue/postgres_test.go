package queue_test

import (
	"context"
	"os"
	"testing"

	"flowpool/internal/config"
	"flowpool/internal/queue"
	"flowpool/internal/testsupport"
)

// Requires a disposable database; the chains table is truncated.
func TestPostgresFindReady(t *testing.T) {
	dsn := os.Getenv("FLOWPOOL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FLOWPOOL_TEST_POSTGRES_DSN not set")
	}
	cfg := testsupport.NewConfig(t)
	cfg.Queue.Backend = config.BackendPostgres
	cfg.Queue.PostgresDSN = dsn
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.Clear(ctx, queue.AllStatuses()...); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	low := testsupport.Enqueue(t, store, "/docs/low.mf", 1, "")
	high := testsupport.Enqueue(t, store, "/docs/high.mf", 9, "")

	chains, err := store.FindReady(ctx, 5)
	if err != nil {
		t.Fatalf("FindReady: %v", err)
	}
	if len(chains) != 2 || chains[0].ID != high.ID || chains[1].ID != low.ID {
		t.Fatalf("unexpected claim order: %v", chains)
	}
	if err := store.UpdateStatus(ctx, chains[1], queue.StatusGeneralError); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := store.Delete(ctx, chains[0]); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[queue.StatusGeneralError] != 1 || stats.Total() != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}
