package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"distrihub-sync-api/internal/model"
)

// MemoryQueueRepository implements QueueRepository with an in-process
// map. Not durable; used in tests and as a last-resort fallback when no
// embedded database is available.
type MemoryQueueRepository struct {
	mu     sync.RWMutex
	ops    map[int64]*model.PendingOperation
	nextID int64
}

// NewMemoryQueueRepository creates an empty in-memory queue repository.
func NewMemoryQueueRepository() *MemoryQueueRepository {
	return &MemoryQueueRepository{ops: make(map[int64]*model.PendingOperation)}
}

// Enqueue inserts a new pending operation, rejecting duplicates of any
// still-active fingerprint.
func (r *MemoryQueueRepository) Enqueue(ctx context.Context, op *model.PendingOperation) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.ops {
		if existing.Fingerprint == op.Fingerprint &&
			(existing.Status == model.StatusPending || existing.Status == model.StatusProcessing) {
			return 0, ErrDuplicate
		}
	}

	r.nextID++
	now := time.Now().UTC()
	op.ID = r.nextID
	op.Status = model.StatusPending
	op.RetryCount = 0
	op.CreatedAt = now
	op.UpdatedAt = now

	stored := *op
	stored.Payload = append([]byte(nil), op.Payload...)
	r.ops[op.ID] = &stored
	return op.ID, nil
}

// ListPending returns up to limit pending/processing operations, oldest
// first.
func (r *MemoryQueueRepository) ListPending(ctx context.Context, limit int) ([]model.PendingOperation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ops []model.PendingOperation
	for _, op := range r.ops {
		if op.Status == model.StatusPending || op.Status == model.StatusProcessing {
			ops = append(ops, *op)
		}
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].ID < ops[j].ID })
	if len(ops) > limit {
		ops = ops[:limit]
	}
	return ops, nil
}

// GetByID returns a single operation regardless of status.
func (r *MemoryQueueRepository) GetByID(ctx context.Context, id int64) (*model.PendingOperation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.ops[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *op
	return &clone, nil
}

func (r *MemoryQueueRepository) transition(id int64, from []model.OperationStatus, apply func(*model.PendingOperation)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.ops[id]
	if !ok {
		return ErrNotFound
	}
	allowed := false
	for _, s := range from {
		if op.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrNotFound
	}
	apply(op)
	op.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkProcessing transitions pending -> processing.
func (r *MemoryQueueRepository) MarkProcessing(ctx context.Context, id int64) error {
	return r.transition(id, []model.OperationStatus{model.StatusPending}, func(op *model.PendingOperation) {
		op.Status = model.StatusProcessing
	})
}

// MarkCompleted transitions processing -> completed.
func (r *MemoryQueueRepository) MarkCompleted(ctx context.Context, id int64) error {
	return r.transition(id, []model.OperationStatus{model.StatusProcessing}, func(op *model.PendingOperation) {
		op.Status = model.StatusCompleted
		op.LastError = ""
	})
}

// MarkFailed transitions processing -> failed, incrementing the retry
// count and recording the reason. The payload is left untouched.
func (r *MemoryQueueRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	return r.transition(id, []model.OperationStatus{model.StatusProcessing}, func(op *model.PendingOperation) {
		op.Status = model.StatusFailed
		op.RetryCount++
		op.LastError = reason
	})
}

// ResetFailed moves every failed operation back to pending.
func (r *MemoryQueueRepository) ResetFailed(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reset int64
	now := time.Now().UTC()
	for _, op := range r.ops {
		if op.Status == model.StatusFailed {
			op.Status = model.StatusPending
			op.RetryCount = 0
			op.LastError = ""
			op.UpdatedAt = now
			reset++
		}
	}
	return reset, nil
}

// Counts returns aggregate counts by status.
func (r *MemoryQueueRepository) Counts(ctx context.Context) (model.QueueCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var counts model.QueueCounts
	for _, op := range r.ops {
		switch op.Status {
		case model.StatusPending:
			counts.Pending++
		case model.StatusProcessing:
			counts.Processing++
		case model.StatusFailed:
			counts.Failed++
		}
	}
	return counts, nil
}

// CleanupOlderThan removes completed/failed operations last updated
// before the cutoff.
func (r *MemoryQueueRepository) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, op := range r.ops {
		if op.Status.Terminal() && op.UpdatedAt.Before(cutoff) {
			delete(r.ops, id)
			deleted++
		}
	}
	return deleted, nil
}

// Stats returns diagnostic statistics about the in-memory queue.
func (r *MemoryQueueRepository) Stats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]interface{}{"total_operations": int64(len(r.ops))}, nil
}

// Close is a no-op for the in-memory repository.
func (r *MemoryQueueRepository) Close() error {
	return nil
}

var _ QueueRepository = (*MemoryQueueRepository)(nil)
