package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"distrihub-sync-api/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteQueueRepository implements QueueRepository using SQLite.
// Thread-safe with WAL mode; the queue survives process restarts and
// is independent of any in-memory cache eviction.
type SQLiteQueueRepository struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// NewSQLiteQueueRepository creates a new SQLite queue repository.
// dbPath is the path to the SQLite database file (e.g., "./data/queue.db")
func NewSQLiteQueueRepository(dbPath string) (*SQLiteQueueRepository, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createQueueTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteQueueRepository{db: db, path: dbPath}, nil
}

func createQueueTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS queue_operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		fingerprint TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_queue_status ON queue_operations(status, id);
	CREATE INDEX IF NOT EXISTS idx_queue_updated ON queue_operations(updated_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_active_fingerprint
		ON queue_operations(fingerprint)
		WHERE status IN ('pending', 'processing');
	`
	_, err := db.Exec(query)
	return err
}

// Enqueue inserts a new pending operation. The partial unique index on
// fingerprint rejects an insert while an equivalent operation is still
// pending or processing; that conflict is surfaced as ErrDuplicate.
func (r *SQLiteQueueRepository) Enqueue(ctx context.Context, op *model.PendingOperation) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	query := `
		INSERT INTO queue_operations (type, payload, status, retry_count, last_error, fingerprint, user_id, created_at, updated_at)
		VALUES (?, ?, ?, 0, '', ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		string(op.Type), string(op.Payload), string(model.StatusPending),
		op.Fingerprint, op.UserID, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("failed to enqueue operation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}

	op.ID = id
	op.Status = model.StatusPending
	op.CreatedAt = now
	op.UpdatedAt = now
	return id, nil
}

const queueColumns = `id, type, payload, status, retry_count, last_error, fingerprint, user_id, created_at, updated_at`

func scanOperation(scanner interface{ Scan(...interface{}) error }) (*model.PendingOperation, error) {
	var op model.PendingOperation
	var typ, payload, status string
	if err := scanner.Scan(&op.ID, &typ, &payload, &status, &op.RetryCount,
		&op.LastError, &op.Fingerprint, &op.UserID, &op.CreatedAt, &op.UpdatedAt); err != nil {
		return nil, err
	}
	op.Type = model.OperationType(typ)
	op.Payload = []byte(payload)
	op.Status = model.OperationStatus(status)
	return &op, nil
}

// ListPending returns up to limit pending/processing operations in
// creation order.
func (r *SQLiteQueueRepository) ListPending(ctx context.Context, limit int) ([]model.PendingOperation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT ` + queueColumns + `
		FROM queue_operations
		WHERE status IN ('pending', 'processing')
		ORDER BY id ASC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending operations: %w", err)
	}
	defer rows.Close()

	var ops []model.PendingOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

// GetByID returns a single operation regardless of status.
func (r *SQLiteQueueRepository) GetByID(ctx context.Context, id int64) (*model.PendingOperation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT ` + queueColumns + ` FROM queue_operations WHERE id = ?`
	op, err := scanOperation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get operation %d: %w", id, err)
	}
	return op, nil
}

func (r *SQLiteQueueRepository) transition(ctx context.Context, id int64, from []string, set string, args ...interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	placeholders := strings.Repeat("?,", len(from))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(`UPDATE queue_operations SET %s, updated_at = ? WHERE id = ? AND status IN (%s)`, set, placeholders)

	execArgs := append(args, time.Now().UTC(), id)
	for _, s := range from {
		execArgs = append(execArgs, s)
	}

	result, err := r.db.ExecContext(ctx, query, execArgs...)
	if err != nil {
		return fmt.Errorf("failed to update operation %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkProcessing transitions pending -> processing.
func (r *SQLiteQueueRepository) MarkProcessing(ctx context.Context, id int64) error {
	return r.transition(ctx, id, []string{"pending"}, `status = 'processing'`)
}

// MarkCompleted transitions processing -> completed.
func (r *SQLiteQueueRepository) MarkCompleted(ctx context.Context, id int64) error {
	return r.transition(ctx, id, []string{"processing"}, `status = 'completed', last_error = ''`)
}

// MarkFailed transitions processing -> failed, incrementing the retry
// count and recording the reason.
func (r *SQLiteQueueRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	return r.transition(ctx, id, []string{"processing"},
		`status = 'failed', retry_count = retry_count + 1, last_error = ?`, reason)
}

// ResetFailed moves all failed operations back to pending with a fresh
// retry count. Explicit caller action, never automatic.
func (r *SQLiteQueueRepository) ResetFailed(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `UPDATE queue_operations
		SET status = 'pending', retry_count = 0, last_error = '', updated_at = ?
		WHERE status = 'failed'`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed operations: %w", err)
	}
	return result.RowsAffected()
}

// Counts returns aggregate counts by status.
func (r *SQLiteQueueRepository) Counts(ctx context.Context) (model.QueueCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var counts model.QueueCounts
	query := `SELECT status, COUNT(*) FROM queue_operations GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return counts, fmt.Errorf("failed to count operations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return counts, err
		}
		switch model.OperationStatus(status) {
		case model.StatusPending:
			counts.Pending = n
		case model.StatusProcessing:
			counts.Processing = n
		case model.StatusFailed:
			counts.Failed = n
		}
	}
	return counts, rows.Err()
}

// CleanupOlderThan removes completed/failed operations last updated
// before the cutoff. Pending and processing rows are never touched.
func (r *SQLiteQueueRepository) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `DELETE FROM queue_operations
		WHERE status IN ('completed', 'failed') AND updated_at < ?`
	result, err := r.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup operations: %w", err)
	}
	return result.RowsAffected()
}

// Stats returns diagnostic statistics about the queue database.
func (r *SQLiteQueueRepository) Stats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]interface{})

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM queue_operations").Scan(&total); err != nil {
		return nil, err
	}
	stats["total_operations"] = total

	var oldest sql.NullTime
	if err := r.db.QueryRowContext(ctx,
		"SELECT MIN(created_at) FROM queue_operations WHERE status IN ('pending', 'processing')").Scan(&oldest); err == nil && oldest.Valid {
		stats["oldest_pending_at"] = oldest.Time
	}

	// Database file size (approximate from page count)
	var pageCount, pageSize int64
	r.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	r.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats["db_size_bytes"] = pageCount * pageSize

	return stats, nil
}

// Close closes the database connection.
func (r *SQLiteQueueRepository) Close() error {
	return r.db.Close()
}

// Ensure SQLiteQueueRepository implements QueueRepository
var _ QueueRepository = (*SQLiteQueueRepository)(nil)
