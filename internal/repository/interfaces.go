package repository

import (
	"context"
	"errors"
	"time"

	"distrihub-sync-api/internal/model"
)

// ErrDuplicate is returned by Enqueue when a pending or processing
// operation with the same idempotency fingerprint already exists.
var ErrDuplicate = errors.New("equivalent operation already queued")

// ErrNotFound is returned when no operation matches the id, or the
// operation is not in a status the transition allows.
var ErrNotFound = errors.New("operation not found")

// QueueRepository defines durable storage for pending operations. The
// store survives process restarts and owns the authoritative lifecycle
// state of every operation.
type QueueRepository interface {
	// Enqueue inserts a new operation with status pending and assigns its
	// id and timestamps. Returns ErrDuplicate without inserting when an
	// operation with the same fingerprint is still pending or processing.
	Enqueue(ctx context.Context, op *model.PendingOperation) (int64, error)

	// ListPending returns up to limit operations with status pending or
	// processing, oldest first (creation order).
	ListPending(ctx context.Context, limit int) ([]model.PendingOperation, error)

	// GetByID returns a single operation regardless of status.
	GetByID(ctx context.Context, id int64) (*model.PendingOperation, error)

	// MarkProcessing transitions pending -> processing.
	MarkProcessing(ctx context.Context, id int64) error

	// MarkCompleted transitions processing -> completed.
	MarkCompleted(ctx context.Context, id int64) error

	// MarkFailed transitions processing -> failed, increments the retry
	// count and records the failure reason.
	MarkFailed(ctx context.Context, id int64, reason string) error

	// ResetFailed moves every failed operation back to pending and resets
	// its retry count. Returns the number of operations reset.
	ResetFailed(ctx context.Context) (int64, error)

	// Counts returns aggregate counts by status for UI badges.
	Counts(ctx context.Context) (model.QueueCounts, error)

	// CleanupOlderThan deletes completed and failed operations last
	// updated before the cutoff. Pending and processing operations are
	// never deleted, regardless of age.
	CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Stats returns diagnostic statistics about the queue store.
	Stats(ctx context.Context) (map[string]interface{}, error)

	// Close closes the repository connection.
	Close() error
}
