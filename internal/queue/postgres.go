package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the shared-queue backend. FindReady uses SKIP LOCKED so
// several hosts may drain the same table.
type PostgresStore struct {
	dsn         string
	maxAttempts int
	pool        *pgxpool.Pool
}

const pgChainColumns = "id, priority, document_path, relative_dir, status, owner, attempts, created_at, updated_at"

// NewPostgresStore returns an unopened store for dsn.
func NewPostgresStore(dsn string, maxAttempts int) *PostgresStore {
	return &PostgresStore{dsn: dsn, maxAttempts: maxAttempts}
}

// Open connects the pool and ensures the table exists.
func (s *PostgresStore) Open(ctx context.Context) error {
	if s.dsn == "" {
		return errors.New("postgres dsn is empty")
	}
	pool, err := pgxpool.New(ctx, s.dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchemaSQL); err != nil {
		pool.Close()
		return fmt.Errorf("create schema: %w", err)
	}
	s.pool = pool
	return nil
}

// Close releases the pool. Safe to call twice.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	s.pool = nil
	return nil
}

func (s *PostgresStore) conn() (*pgxpool.Pool, error) {
	if s.pool == nil {
		return nil, errors.New("queue store is not open")
	}
	return s.pool, nil
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]*Chain, error) {
	pool, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Chain, error) {
		var (
			chain  Chain
			status string
		)
		if err := row.Scan(
			&chain.ID,
			&chain.Priority,
			&chain.DocumentPath,
			&chain.RelativeDir,
			&status,
			&chain.Owner,
			&chain.Attempts,
			&chain.CreatedAt,
			&chain.UpdatedAt,
		); err != nil {
			return nil, err
		}
		chain.Status = Status(status)
		return &chain, nil
	})
}

func (s *PostgresStore) exec(ctx context.Context, sql string, args ...any) (int64, error) {
	pool, err := s.conn()
	if err != nil {
		return 0, err
	}
	tag, err := pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FindReady claims ready chains; concurrent claimers skip each other's rows.
func (s *PostgresStore) FindReady(ctx context.Context, n int) ([]*Chain, error) {
	if n <= 0 {
		return nil, nil
	}
	chains, err := s.query(ctx, `
		UPDATE chains
		SET status = $1, attempts = attempts + 1, updated_at = now()
		WHERE id IN (
			SELECT id FROM chains
			WHERE status = $2 OR (status = $3 AND attempts < $4)
			ORDER BY priority DESC, id ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+pgChainColumns,
		string(StatusRunning), string(StatusPending), string(StatusInitialize), s.maxAttempts, n,
	)
	if err != nil {
		return nil, fmt.Errorf("claim ready chains: %w", err)
	}
	sortReady(chains)
	return chains, nil
}

// Delete removes the chain record.
func (s *PostgresStore) Delete(ctx context.Context, chain *Chain) error {
	if chain == nil {
		return errors.New("delete: nil chain")
	}
	if _, err := s.exec(ctx, "DELETE FROM chains WHERE id = $1", chain.ID); err != nil {
		return fmt.Errorf("delete chain %d: %w", chain.ID, err)
	}
	return nil
}

// UpdateStatus persists status and mirrors it onto chain.
func (s *PostgresStore) UpdateStatus(ctx context.Context, chain *Chain, status Status) error {
	if chain == nil {
		return errors.New("update status: nil chain")
	}
	pool, err := s.conn()
	if err != nil {
		return err
	}
	if err := pool.QueryRow(ctx,
		"UPDATE chains SET status = $1, updated_at = now() WHERE id = $2 RETURNING updated_at",
		string(status), chain.ID,
	).Scan(&chain.UpdatedAt); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update chain %d status: %w", chain.ID, err)
	}
	chain.Status = status
	return nil
}

// Enqueue inserts a pending chain.
func (s *PostgresStore) Enqueue(ctx context.Context, chain NewChain) (*Chain, error) {
	if err := validateNewChain(chain); err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, `
		INSERT INTO chains (priority, document_path, relative_dir, status, owner)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+pgChainColumns,
		chain.Priority, chain.DocumentPath, chain.RelativeDir, string(StatusPending), chain.Owner,
	)
	if err != nil {
		return nil, fmt.Errorf("insert chain: %w", err)
	}
	if len(rows) != 1 {
		return nil, errors.New("insert chain: no row returned")
	}
	return rows[0], nil
}

// List returns chains ordered by claim order, filtered by status when given.
func (s *PostgresStore) List(ctx context.Context, statuses ...Status) ([]*Chain, error) {
	query := "SELECT " + pgChainColumns + " FROM chains"
	var args []any
	if len(statuses) > 0 {
		query += " WHERE status = ANY($1)"
		args = append(args, statusStrings(statuses))
	}
	query += " ORDER BY priority DESC, id ASC"
	chains, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chains: %w", err)
	}
	return chains, nil
}

// Stats counts chains per status.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	pool, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, "SELECT status, COUNT(*) FROM chains GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()
	stats := Stats{}
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("queue stats: %w", err)
		}
		stats[Status(status)] = int(count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}

// Retry moves general_error and initialize chains back to pending.
func (s *PostgresStore) Retry(ctx context.Context, ids ...int64) (int64, error) {
	query := "UPDATE chains SET status = $1, attempts = 0, updated_at = now() WHERE status = ANY($2)"
	args := []any{string(StatusPending), statusStrings([]Status{StatusGeneralError, StatusInitialize})}
	if len(ids) > 0 {
		query += " AND id = ANY($3)"
		args = append(args, ids)
	}
	affected, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry chains: %w", err)
	}
	return affected, nil
}

// Clear deletes chains by status.
func (s *PostgresStore) Clear(ctx context.Context, statuses ...Status) (int64, error) {
	var (
		affected int64
		err      error
	)
	if len(statuses) == 0 {
		affected, err = s.exec(ctx, "DELETE FROM chains WHERE status <> $1", string(StatusRunning))
	} else {
		affected, err = s.exec(ctx, "DELETE FROM chains WHERE status = ANY($1)", statusStrings(statuses))
	}
	if err != nil {
		return 0, fmt.Errorf("clear chains: %w", err)
	}
	return affected, nil
}

// ResetRunning returns orphaned running chains to initialize.
func (s *PostgresStore) ResetRunning(ctx context.Context) (int64, error) {
	affected, err := s.exec(ctx, "UPDATE chains SET status = $1, updated_at = now() WHERE status = $2",
		string(StatusInitialize), string(StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("reset running chains: %w", err)
	}
	return affected, nil
}
