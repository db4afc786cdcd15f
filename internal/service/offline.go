package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"distrihub-sync-api/internal/model"
	"distrihub-sync-api/internal/repository"
	"distrihub-sync-api/internal/stock"
	"distrihub-sync-api/internal/syncengine"
	"distrihub-sync-api/pkg/uid"

	"github.com/sirupsen/logrus"
)

// EnqueueResult tells the caller exactly what happened to an enqueue
// attempt: queued, suppressed as a duplicate, or rejected for stock.
type EnqueueResult struct {
	Queued        bool                 `json:"queued"`
	ID            int64                `json:"id,omitempty"`
	Duplicate     bool                 `json:"duplicate,omitempty"`
	ItemsSinStock []model.ItemSinStock `json:"itemsSinStock,omitempty"`
}

// QueuedOperation is the UI-facing projection of a stored operation,
// rebuilt from the queue store after every mutation.
type QueuedOperation struct {
	ID         int64                 `json:"id"`
	Type       model.OperationType   `json:"type"`
	Status     model.OperationStatus `json:"status"`
	RetryCount int                   `json:"retry_count"`
	LastError  string                `json:"last_error,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	Payload    model.Payload         `json:"payload"`
}

// OfflineService is the facade the rest of the application talks to:
// enqueue, sync, retry, cleanup, pending projections and observable
// sync state.
type OfflineService struct {
	repo      repository.QueueRepository
	resolver  *stock.Resolver
	engine    *syncengine.Engine
	retention time.Duration
	log       *logrus.Entry

	// enqueueMu serializes stock validation with the insert that
	// consumes the validated availability. Without it two concurrent
	// enqueues can both observe the same reservations and both pass.
	enqueueMu sync.Mutex
}

// NewOfflineService creates the offline queue facade.
// Returns nil if any required dependency is nil.
func NewOfflineService(
	repo repository.QueueRepository,
	resolver *stock.Resolver,
	engine *syncengine.Engine,
	retention time.Duration,
) *OfflineService {
	if repo == nil || resolver == nil || engine == nil {
		return nil
	}
	if retention == 0 {
		retention = 7 * 24 * time.Hour
	}
	return &OfflineService{
		repo:      repo,
		resolver:  resolver,
		engine:    engine,
		retention: retention,
		log:       logrus.WithField("component", "offline-service"),
	}
}

// Enqueue validates and durably persists a mutation intent. Orders go
// through the stock check; every payload gets an idempotency key before
// it is stored so the eventual replay can be deduplicated remotely.
// When the backend is reachable a background pass starts right away.
func (s *OfflineService) Enqueue(ctx context.Context, payload model.Payload, userID string) (*EnqueueResult, error) {
	if payload == nil {
		return nil, fmt.Errorf("nil payload")
	}
	if !payload.OperationType().Valid() {
		return nil, fmt.Errorf("unknown operation type %q", payload.OperationType())
	}

	s.enqueueMu.Lock()
	result, err := s.validateAndPersist(ctx, payload, userID)
	s.enqueueMu.Unlock()
	if err != nil {
		// a lost offline action is business-critical; surface it
		s.engine.RefreshCounts(ctx)
		return nil, err
	}
	if !result.Queued {
		return result, nil
	}

	s.log.WithFields(logrus.Fields{"operation_id": result.ID, "type": payload.OperationType()}).
		Info("operation queued")
	s.engine.RefreshCounts(ctx)

	if s.engine.IsOnline() {
		go func() {
			if _, err := s.engine.SyncNow(context.Background()); err != nil && err != syncengine.ErrSyncInProgress {
				s.log.WithError(err).Warn("background sync after enqueue failed")
			}
		}()
	}
	return result, nil
}

// validateAndPersist runs the stock check and the insert that consumes
// the checked availability as one critical section. Caller holds
// enqueueMu.
func (s *OfflineService) validateAndPersist(ctx context.Context, payload model.Payload, userID string) (*EnqueueResult, error) {
	if order, ok := payload.(*model.CreateOrderPayload); ok {
		snapshot, shortages, err := s.resolver.Validate(ctx, order.Items)
		if err != nil {
			return nil, err
		}
		if len(shortages) > 0 {
			return &EnqueueResult{ItemsSinStock: shortages}, nil
		}
		order.Snapshot = snapshot
	}

	mintIdempotencyKey(payload)

	fingerprint, err := model.Fingerprint(payload)
	if err != nil {
		return nil, err
	}
	raw, err := model.EncodePayload(payload)
	if err != nil {
		return nil, err
	}

	op := &model.PendingOperation{
		Type:        payload.OperationType(),
		Payload:     raw,
		Fingerprint: fingerprint,
		UserID:      userID,
	}
	id, err := s.repo.Enqueue(ctx, op)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.log.WithField("type", payload.OperationType()).Info("duplicate enqueue suppressed")
			return &EnqueueResult{Duplicate: true}, nil
		}
		return nil, fmt.Errorf("failed to persist operation: %w", err)
	}
	return &EnqueueResult{Queued: true, ID: id}, nil
}

// mintIdempotencyKey assigns a key to payloads that carry one and were
// enqueued without it.
func mintIdempotencyKey(payload model.Payload) {
	switch p := payload.(type) {
	case *model.CreateOrderPayload:
		if p.IdempotencyKey == "" {
			p.IdempotencyKey = uid.New()
		}
	case *model.CreateClientPayload:
		if p.IdempotencyKey == "" {
			p.IdempotencyKey = uid.New()
		}
	case *model.CreateStockWriteOffPayload:
		if p.IdempotencyKey == "" {
			p.IdempotencyKey = uid.New()
		}
	case *model.SyncPaymentPayload:
		if p.IdempotencyKey == "" {
			p.IdempotencyKey = uid.New()
		}
	}
}

// SyncNow runs one sync pass (manual trigger).
func (s *OfflineService) SyncNow(ctx context.Context) (syncengine.PassResult, error) {
	return s.engine.SyncNow(ctx)
}

// RetryFailed resets failed operations and runs a fresh pass.
func (s *OfflineService) RetryFailed(ctx context.Context) (syncengine.PassResult, error) {
	return s.engine.RetryFailed(ctx)
}

// Cleanup purges completed/failed operations older than the retention
// window and returns the number deleted.
func (s *OfflineService) Cleanup(ctx context.Context) (int64, error) {
	deleted, err := s.repo.CleanupOlderThan(ctx, time.Now().Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("cleanup failed: %w", err)
	}
	if deleted > 0 {
		s.log.WithField("deleted", deleted).Info("cleaned up old operations")
		s.engine.RefreshCounts(ctx)
	}
	return deleted, nil
}

// GetPending returns up to limit queued operations, oldest first, as
// UI-facing projections.
func (s *OfflineService) GetPending(ctx context.Context, limit int) ([]QueuedOperation, error) {
	if limit <= 0 {
		limit = 50
	}
	ops, err := s.repo.ListPending(ctx, limit)
	if err != nil {
		return nil, err
	}
	return s.project(ops), nil
}

// PendingOrders returns the queued-order projection (pedidos
// pendientes) for UI lists.
func (s *OfflineService) PendingOrders(ctx context.Context) ([]QueuedOperation, error) {
	return s.pendingOfType(ctx, model.OpCreateOrder)
}

// PendingWriteOffs returns the queued write-off projection (mermas
// pendientes) for UI lists.
func (s *OfflineService) PendingWriteOffs(ctx context.Context) ([]QueuedOperation, error) {
	return s.pendingOfType(ctx, model.OpCreateStockWriteOff)
}

func (s *OfflineService) pendingOfType(ctx context.Context, typ model.OperationType) ([]QueuedOperation, error) {
	ops, err := s.repo.ListPending(ctx, 1000)
	if err != nil {
		return nil, err
	}
	filtered := ops[:0]
	for _, op := range ops {
		if op.Type == typ {
			filtered = append(filtered, op)
		}
	}
	return s.project(filtered), nil
}

func (s *OfflineService) project(ops []model.PendingOperation) []QueuedOperation {
	projected := make([]QueuedOperation, 0, len(ops))
	for i := range ops {
		op := &ops[i]
		payload, err := op.DecodePayload()
		if err != nil {
			s.log.WithError(err).WithField("operation_id", op.ID).Warn("skipping undecodable operation")
			continue
		}
		projected = append(projected, QueuedOperation{
			ID:         op.ID,
			Type:       op.Type,
			Status:     op.Status,
			RetryCount: op.RetryCount,
			LastError:  op.LastError,
			CreatedAt:  op.CreatedAt,
			Payload:    payload,
		})
	}
	return projected
}

// State returns the observable sync state for badges and banners.
func (s *OfflineService) State() syncengine.SyncState {
	return s.engine.State()
}

// Subscribe registers a sync-state listener.
func (s *OfflineService) Subscribe(fn func(syncengine.SyncState)) func() {
	return s.engine.Subscribe(fn)
}

// Counts returns aggregate queue counts straight from the store.
func (s *OfflineService) Counts(ctx context.Context) (model.QueueCounts, error) {
	return s.repo.Counts(ctx)
}

// Stats returns queue store diagnostics for the status endpoint.
func (s *OfflineService) Stats(ctx context.Context) (map[string]interface{}, error) {
	return s.repo.Stats(ctx)
}
