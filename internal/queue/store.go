package queue

import (
	"context"
	"errors"
	"fmt"

	"flowpool/internal/config"
)

// Client is the protocol the pool supervisor drives.
type Client interface {
	Open(ctx context.Context) error
	Close() error
	// FindReady claims up to n ready chains, marking them running.
	FindReady(ctx context.Context, n int) ([]*Chain, error)
	Delete(ctx context.Context, chain *Chain) error
	UpdateStatus(ctx context.Context, chain *Chain, status Status) error
}

// Admin backs the queue CLI and startup recovery.
type Admin interface {
	Enqueue(ctx context.Context, chain NewChain) (*Chain, error)
	List(ctx context.Context, statuses ...Status) ([]*Chain, error)
	Stats(ctx context.Context) (Stats, error)
	// Retry returns failed or retry-eligible chains to pending with a fresh
	// attempt count. No ids means every such chain.
	Retry(ctx context.Context, ids ...int64) (int64, error)
	// Clear deletes chains in the given statuses, or every chain that is not
	// running when none are given.
	Clear(ctx context.Context, statuses ...Status) (int64, error)
	// ResetRunning moves chains left running by a previous daemon back to
	// initialize.
	ResetRunning(ctx context.Context) (int64, error)
}

// Store is implemented by every backend.
type Store interface {
	Client
	Admin
}

// Backend names a Store implementation.
type Backend string

const (
	BackendSQLite   Backend = config.BackendSQLite
	BackendPostgres Backend = config.BackendPostgres
)

// ErrUnknownBackend is returned by New for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown queue backend")

// New builds the configured backend without connecting.
func New(cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("queue: nil config")
	}
	switch Backend(cfg.Queue.Backend) {
	case BackendSQLite:
		return NewSQLiteStore(cfg.Queue.SQLitePath, cfg.Queue.MaxAttempts), nil
	case BackendPostgres:
		return NewPostgresStore(cfg.Queue.PostgresDSN, cfg.Queue.MaxAttempts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Queue.Backend)
	}
}

// Open builds and connects the configured backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	store, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Open(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return out
}

func validateNewChain(chain NewChain) error {
	if chain.DocumentPath == "" {
		return errors.New("document path is required")
	}
	return nil
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
