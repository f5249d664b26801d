package queue_test

import (
	"context"
	"errors"
	"testing"

	"flowpool/internal/config"
	"flowpool/internal/queue"
	"flowpool/internal/testsupport"
)

func TestFindReadyOrdersByPriorityThenID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	low := testsupport.Enqueue(t, store, "/docs/low.mf", 1, "low")
	highA := testsupport.Enqueue(t, store, "/docs/high-a.mf", 5, "a")
	highB := testsupport.Enqueue(t, store, "/docs/high-b.mf", 5, "b")

	chains, err := store.FindReady(ctx, 2)
	if err != nil {
		t.Fatalf("FindReady: %v", err)
	}
	if len(chains) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(chains))
	}
	if chains[0].ID != highA.ID || chains[1].ID != highB.ID {
		t.Fatalf("unexpected claim order: %d, %d", chains[0].ID, chains[1].ID)
	}
	for _, chain := range chains {
		if chain.Status != queue.StatusRunning {
			t.Fatalf("expected claimed chain running, got %s", chain.Status)
		}
		if chain.Attempts != 1 {
			t.Fatalf("expected attempts incremented, got %d", chain.Attempts)
		}
	}

	rest, err := store.FindReady(ctx, 10)
	if err != nil {
		t.Fatalf("FindReady: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != low.ID {
		t.Fatalf("expected only the low priority chain, got %v", rest)
	}

	none, err := store.FindReady(ctx, 10)
	if err != nil {
		t.Fatalf("FindReady: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("running chains must not be claimed twice, got %v", none)
	}
}

func TestFindReadyNonPositiveReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.Enqueue(t, store, "/docs/a.mf", 0, "")

	for _, n := range []int{0, -3} {
		chains, err := store.FindReady(context.Background(), n)
		if err != nil || chains != nil {
			t.Fatalf("FindReady(%d) = %v, %v", n, chains, err)
		}
	}
}

func TestFindReadyHonoursMaxAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Queue.MaxAttempts = 2
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.Enqueue(t, store, "/docs/a.mf", 0, "")

	for attempt := 1; attempt <= 2; attempt++ {
		chains, err := store.FindReady(ctx, 1)
		if err != nil {
			t.Fatalf("FindReady: %v", err)
		}
		if len(chains) != 1 {
			t.Fatalf("attempt %d: expected chain to be claimable", attempt)
		}
		if err := store.UpdateStatus(ctx, chains[0], queue.StatusInitialize); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
		if chains[0].Status != queue.StatusInitialize {
			t.Fatal("UpdateStatus should mirror the status onto the chain")
		}
	}

	chains, err := store.FindReady(ctx, 1)
	if err != nil {
		t.Fatalf("FindReady: %v", err)
	}
	if len(chains) != 0 {
		t.Fatalf("expected chain to be exhausted, got %v", chains)
	}

	retried, err := store.Retry(ctx)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried != 1 {
		t.Fatalf("expected 1 retried chain, got %d", retried)
	}
	chains, err = store.FindReady(ctx, 1)
	if err != nil || len(chains) != 1 {
		t.Fatalf("expected retried chain claimable, got %v, %v", chains, err)
	}
	if chains[0].Attempts != 1 {
		t.Fatalf("retry should reset attempts, got %d", chains[0].Attempts)
	}
}

func TestGeneralErrorIsNotClaimed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	chain := testsupport.Enqueue(t, store, "/docs/a.mf", 0, "")
	if err := store.UpdateStatus(ctx, chain, queue.StatusGeneralError); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	chains, err := store.FindReady(ctx, 5)
	if err != nil {
		t.Fatalf("FindReady: %v", err)
	}
	if len(chains) != 0 {
		t.Fatalf("general_error chains are terminal, got %v", chains)
	}
}

func TestDeleteAndStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.Enqueue(t, store, "/docs/a.mf", 0, "")
	testsupport.Enqueue(t, store, "/docs/b.mf", 0, "")
	c := testsupport.Enqueue(t, store, "/docs/c.mf", 0, "")
	if err := store.UpdateStatus(ctx, c, queue.StatusGeneralError); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := store.Delete(ctx, a); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, a); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[queue.StatusPending] != 1 || stats[queue.StatusGeneralError] != 1 || stats.Total() != 2 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	errored, err := store.List(ctx, queue.StatusGeneralError)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(errored) != 1 || errored[0].ID != c.ID {
		t.Fatalf("unexpected filtered list: %v", errored)
	}
}

func TestClearAndResetRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.Enqueue(t, store, "/docs/a.mf", 0, "")
	testsupport.Enqueue(t, store, "/docs/b.mf", 0, "")
	claimed, err := store.FindReady(ctx, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("FindReady: %v %v", claimed, err)
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 1 {
		t.Fatalf("Clear should keep running chains, removed %d", removed)
	}

	reset, err := store.ResetRunning(ctx)
	if err != nil {
		t.Fatalf("ResetRunning: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset chain, got %d", reset)
	}
	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Status != queue.StatusInitialize {
		t.Fatalf("unexpected remaining chains: %v", remaining)
	}
}

func TestEnqueueRequiresDocument(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if _, err := store.Enqueue(context.Background(), queue.NewChain{}); err == nil {
		t.Fatal("expected error without document path")
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	first, err := queue.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	chain := testsupport.Enqueue(t, first, "/docs/a.mf", 3, "out/a")
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	second := testsupport.MustOpenStore(t, cfg)
	chains, err := second.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(chains) != 1 || chains[0].ID != chain.ID || chains[0].RelativeDir != "out/a" || chains[0].Priority != 3 {
		t.Fatalf("unexpected chains after reopen: %+v", chains)
	}
	if chains[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at to round-trip")
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Queue.Backend = "mysql"
	if _, err := queue.New(&cfg); !errors.Is(err, queue.ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestClosedStoreReturnsError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := store.FindReady(context.Background(), 1); err == nil {
		t.Fatal("expected error before Open")
	}
}

func TestParseStatus(t *testing.T) {
	for _, status := range queue.AllStatuses() {
		got, ok := queue.ParseStatus(" " + string(status) + " ")
		if !ok || got != status {
			t.Fatalf("ParseStatus(%q) = %q, %v", status, got, ok)
		}
	}
	if _, ok := queue.ParseStatus("done"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}
