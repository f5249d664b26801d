package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the single-host queue backend.
type SQLiteStore struct {
	db          *sql.DB
	path        string
	maxAttempts int
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const chainColumns = "id, priority, document_path, relative_dir, status, owner, attempts, created_at, updated_at"

// NewSQLiteStore returns an unopened store for the database at path.
func NewSQLiteStore(path string, maxAttempts int) *SQLiteStore {
	return &SQLiteStore{path: path, maxAttempts: maxAttempts}
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Open connects to the database, applies pragmas and creates the schema.
func (s *SQLiteStore) Open(ctx context.Context) error {
	if s.path == "" {
		return errors.New("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create queue directory: %w", err)
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open sqlite db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	s.db = db
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Close closes the underlying database connection. Safe to call twice.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *SQLiteStore) conn() (*sql.DB, error) {
	if s.db == nil {
		return nil, errors.New("queue store is not open")
	}
	return s.db, nil
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var affected int64
	err = retryOnBusy(ctx, func() error {
		res, execErr := db.ExecContext(ctx, query, args...)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	return affected, err
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]*Chain, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var chains []*Chain
	err = retryOnBusy(ctx, func() error {
		chains = chains[:0]
		rows, queryErr := db.QueryContext(ctx, query, args...)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		for rows.Next() {
			chain, scanErr := scanSQLiteChain(rows)
			if scanErr != nil {
				return scanErr
			}
			chains = append(chains, chain)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return chains, nil
}

// FindReady claims pending chains and retry-eligible initialize chains in a
// single UPDATE ... RETURNING.
func (s *SQLiteStore) FindReady(ctx context.Context, n int) ([]*Chain, error) {
	if n <= 0 {
		return nil, nil
	}
	now := formatTime(time.Now())
	chains, err := s.query(ctx, `
		UPDATE chains
		SET status = ?, attempts = attempts + 1, updated_at = ?
		WHERE id IN (
			SELECT id FROM chains
			WHERE status = ? OR (status = ? AND attempts < ?)
			ORDER BY priority DESC, id ASC
			LIMIT ?
		)
		RETURNING `+chainColumns,
		StatusRunning, now, StatusPending, StatusInitialize, s.maxAttempts, n,
	)
	if err != nil {
		return nil, fmt.Errorf("claim ready chains: %w", err)
	}
	sortReady(chains)
	return chains, nil
}

// Delete removes the chain record.
func (s *SQLiteStore) Delete(ctx context.Context, chain *Chain) error {
	if chain == nil {
		return errors.New("delete: nil chain")
	}
	if _, err := s.exec(ctx, "DELETE FROM chains WHERE id = ?", chain.ID); err != nil {
		return fmt.Errorf("delete chain %d: %w", chain.ID, err)
	}
	return nil
}

// UpdateStatus persists status and mirrors it onto chain.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, chain *Chain, status Status) error {
	if chain == nil {
		return errors.New("update status: nil chain")
	}
	now := time.Now().UTC()
	if _, err := s.exec(ctx, "UPDATE chains SET status = ?, updated_at = ? WHERE id = ?",
		status, formatTime(now), chain.ID); err != nil {
		return fmt.Errorf("update chain %d status: %w", chain.ID, err)
	}
	chain.Status = status
	chain.UpdatedAt = now
	return nil
}

// Enqueue inserts a pending chain.
func (s *SQLiteStore) Enqueue(ctx context.Context, chain NewChain) (*Chain, error) {
	if err := validateNewChain(chain); err != nil {
		return nil, err
	}
	now := formatTime(time.Now())
	rows, err := s.query(ctx, `
		INSERT INTO chains (priority, document_path, relative_dir, status, owner, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		RETURNING `+chainColumns,
		chain.Priority, chain.DocumentPath, chain.RelativeDir, StatusPending, chain.Owner, now, now,
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
func (s *SQLiteStore) List(ctx context.Context, statuses ...Status) ([]*Chain, error) {
	query := "SELECT " + chainColumns + " FROM chains"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += " ORDER BY priority DESC, id ASC"
	chains, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chains: %w", err)
	}
	return chains, nil
}

// Stats counts chains per status.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	stats := Stats{}
	err = retryOnBusy(ctx, func() error {
		clear(stats)
		rows, queryErr := db.QueryContext(ctx, "SELECT status, COUNT(*) FROM chains GROUP BY status")
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()
		for rows.Next() {
			var status string
			var count int
			if scanErr := rows.Scan(&status, &count); scanErr != nil {
				return scanErr
			}
			stats[Status(status)] = count
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}

// Retry moves general_error and initialize chains back to pending.
func (s *SQLiteStore) Retry(ctx context.Context, ids ...int64) (int64, error) {
	query := "UPDATE chains SET status = ?, attempts = 0, updated_at = ? WHERE status IN (?, ?)"
	args := []any{StatusPending, formatTime(time.Now()), StatusGeneralError, StatusInitialize}
	if len(ids) > 0 {
		query += " AND id IN (" + makePlaceholders(len(ids)) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	affected, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry chains: %w", err)
	}
	return affected, nil
}

// Clear deletes chains by status.
func (s *SQLiteStore) Clear(ctx context.Context, statuses ...Status) (int64, error) {
	var (
		query string
		args  []any
	)
	if len(statuses) == 0 {
		query = "DELETE FROM chains WHERE status <> ?"
		args = []any{StatusRunning}
	} else {
		query = "DELETE FROM chains WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	affected, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear chains: %w", err)
	}
	return affected, nil
}

// ResetRunning returns orphaned running chains to initialize.
func (s *SQLiteStore) ResetRunning(ctx context.Context) (int64, error) {
	affected, err := s.exec(ctx, "UPDATE chains SET status = ?, updated_at = ? WHERE status = ?",
		StatusInitialize, formatTime(time.Now()), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("reset running chains: %w", err)
	}
	return affected, nil
}

func scanSQLiteChain(scanner interface{ Scan(dest ...any) error }) (*Chain, error) {
	var (
		chain      Chain
		status     string
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&chain.ID,
		&chain.Priority,
		&chain.DocumentPath,
		&chain.RelativeDir,
		&status,
		&chain.Owner,
		&chain.Attempts,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	chain.Status = Status(status)
	chain.CreatedAt = parseTimeString(createdRaw)
	chain.UpdatedAt = parseTimeString(updatedRaw)
	return &chain, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(raw sql.NullString) time.Time {
	if !raw.Valid || raw.String == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw.String); err == nil {
		return ts
	}
	return time.Time{}
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// sortReady restores claim order; RETURNING rows come back in storage order.
func sortReady(chains []*Chain) {
	sort.SliceStable(chains, func(i, j int) bool {
		if chains[i].Priority != chains[j].Priority {
			return chains[i].Priority > chains[j].Priority
		}
		return chains[i].ID < chains[j].ID
	})
}
