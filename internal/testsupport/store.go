package testsupport

import (
	"context"
	"testing"

	"flowpool/internal/config"
	"flowpool/internal/queue"
)

// MustOpenStore opens the configured queue backend for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) queue.Store {
	t.Helper()

	store, err := queue.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Enqueue adds a pending chain for tests using the provided store.
func Enqueue(t testing.TB, store queue.Admin, document string, priority int, relativeDir string) *queue.Chain {
	t.Helper()

	chain, err := store.Enqueue(context.Background(), queue.NewChain{
		DocumentPath: document,
		RelativeDir:  relativeDir,
		Priority:     priority,
		Owner:        "tester",
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return chain
}
