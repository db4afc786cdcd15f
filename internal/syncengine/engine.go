package syncengine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"distrihub-sync-api/internal/model"
	"distrihub-sync-api/internal/remote"
	"distrihub-sync-api/internal/repository"

	"github.com/sirupsen/logrus"
)

// ErrSyncInProgress is returned when a sync pass is requested while
// another pass is still running. The second request is a no-op.
var ErrSyncInProgress = errors.New("sync already in progress")

// Status is the overall sync status exposed to the UI.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
)

// SyncState is the observable aggregate state for badges and banners.
type SyncState struct {
	Status          Status     `json:"status"`
	IsOnline        bool       `json:"is_online"`
	PendingCount    int64      `json:"pending_count"`
	ProcessingCount int64      `json:"processing_count"`
	FailedCount     int64      `json:"failed_count"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

// PassResult summarizes one sync pass.
type PassResult struct {
	Attempted int    `json:"attempted"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Status    Status `json:"status"`
}

// Config holds sync engine tunables.
type Config struct {
	BatchSize      int
	OperationDelay time.Duration
}

// Engine drains the durable queue against the processor registry:
// serially, in small batches, with per-operation status transitions.
// A single-flight guard keeps overlapping triggers (connectivity
// restored, manual button, visibility change) from running two passes
// concurrently.
type Engine struct {
	repo     repository.QueueRepository
	registry *Registry
	log      *logrus.Entry

	batchSize int
	opDelay   time.Duration

	syncing atomic.Bool
	online  atomic.Bool

	mu          sync.Mutex
	state       SyncState
	subscribers map[int]func(SyncState)
	nextSub     int

	audit AuditRecorder
}

// AuditRecorder receives one entry per replay attempt. Recording is
// best-effort; a failing recorder never affects the pass itself.
type AuditRecorder interface {
	InsertAttempt(ctx context.Context, attempt *model.SyncAttempt) error
}

// SetAuditRecorder attaches an optional audit trail. Call before Start.
func (e *Engine) SetAuditRecorder(audit AuditRecorder) {
	e.audit = audit
}

// NewEngine creates a sync engine over the queue store and registry.
func NewEngine(repo repository.QueueRepository, registry *Registry, cfg Config) *Engine {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 5
	}
	e := &Engine{
		repo:        repo,
		registry:    registry,
		log:         logrus.WithField("component", "sync-engine"),
		batchSize:   batchSize,
		opDelay:     cfg.OperationDelay,
		subscribers: make(map[int]func(SyncState)),
	}
	e.state = SyncState{Status: StatusOffline}
	return e
}

// SetOnline records a connectivity transition. Going offline does not
// abort an in-flight operation; it only stops further batches.
func (e *Engine) SetOnline(online bool) {
	was := e.online.Swap(online)
	if was == online {
		return
	}

	e.mu.Lock()
	e.state.IsOnline = online
	if online {
		if e.state.Status == StatusOffline {
			e.state.Status = StatusOnline
		}
	} else {
		e.state.Status = StatusOffline
	}
	state := e.state
	e.mu.Unlock()

	e.log.WithField("online", online).Info("connectivity changed")
	e.notify(state)
}

// IsOnline reports the last recorded connectivity state.
func (e *Engine) IsOnline() bool {
	return e.online.Load()
}

// SyncNow runs one sync pass. Returns ErrSyncInProgress if a pass is
// already running; returns a result with status offline, without
// draining anything, when connectivity is down. If the caller cancels
// mid-pass the progress so far is returned along with ctx.Err().
func (e *Engine) SyncNow(ctx context.Context) (PassResult, error) {
	// check-and-set must win before any asynchronous work begins
	if !e.syncing.CompareAndSwap(false, true) {
		return PassResult{}, ErrSyncInProgress
	}
	defer e.syncing.Store(false)

	if !e.online.Load() {
		return PassResult{Status: StatusOffline}, nil
	}

	e.setStatus(StatusSyncing)
	result, drainErr := e.drain(ctx)

	now := time.Now().UTC()
	e.mu.Lock()
	e.state.Status = result.Status
	e.state.LastSyncAt = &now
	if result.Status != StatusError {
		e.state.LastError = ""
	}
	e.mu.Unlock()

	e.refreshCounts(ctx)
	e.log.WithFields(logrus.Fields{
		"attempted": result.Attempted,
		"completed": result.Completed,
		"failed":    result.Failed,
		"status":    result.Status,
	}).Info("sync pass finished")
	return result, drainErr
}

// drain fetches and replays batches until the queue is empty or
// connectivity drops. Operations run strictly in creation order so a
// later update or delete never overtakes the create it depends on.
// Returns ctx.Err() when the pass is interrupted by cancellation,
// which is distinct from going offline.
func (e *Engine) drain(ctx context.Context) (PassResult, error) {
	var result PassResult

	for e.online.Load() {
		batch, err := e.repo.ListPending(ctx, e.batchSize)
		if err != nil {
			e.recordError("failed to read queue: " + err.Error())
			result.Status = StatusError
			return result, nil
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			op := &batch[i]
			result.Attempted++
			ok, stuck := e.processOne(ctx, op)
			if ok {
				result.Completed++
			} else {
				result.Failed++
			}
			if stuck {
				// storage refused the transition; abort rather than
				// refetching the same operation forever
				result.Status = StatusError
				return result, nil
			}

			// let the in-flight operation finish, then stop scheduling
			if !e.online.Load() {
				result.Status = StatusOffline
				return result, nil
			}
			if e.opDelay > 0 {
				select {
				case <-time.After(e.opDelay):
				case <-ctx.Done():
					// cancellation is the caller giving up, not
					// connectivity loss; report progress so far
					result.Status = passStatus(result)
					return result, ctx.Err()
				}
			}
		}
	}

	if !e.online.Load() {
		result.Status = StatusOffline
	} else {
		result.Status = passStatus(result)
	}
	return result, nil
}

func passStatus(result PassResult) Status {
	if result.Failed > 0 {
		return StatusError
	}
	return StatusOnline
}

// processOne replays a single operation. A replay failure never aborts
// the batch: the operation is marked failed and the pass moves on, so
// one bad order does not block an unrelated client update from syncing.
// stuck is true when the store itself refused a status transition.
func (e *Engine) processOne(ctx context.Context, op *model.PendingOperation) (ok, stuck bool) {
	if op.Status == model.StatusPending {
		if err := e.repo.MarkProcessing(ctx, op.ID); err != nil {
			e.recordError("failed to mark operation processing: " + err.Error())
			return false, true
		}
	}

	started := time.Now()
	if err := e.registry.Process(ctx, op); err != nil {
		reason := err.Error()
		if !remote.IsRetryable(err) {
			reason = "permanent: " + reason
		}
		if markErr := e.repo.MarkFailed(ctx, op.ID, reason); markErr != nil {
			e.recordError("failed to mark operation failed: " + markErr.Error())
			return false, true
		}
		e.log.WithFields(logrus.Fields{"operation_id": op.ID, "type": op.Type}).
			WithError(err).Warn("operation replay failed")
		e.recordAttempt(ctx, op, started, "failed", reason)
		return false, false
	}

	if err := e.repo.MarkCompleted(ctx, op.ID); err != nil {
		e.recordError("failed to mark operation completed: " + err.Error())
		return false, true
	}
	e.recordAttempt(ctx, op, started, "success", "")
	return true, false
}

func (e *Engine) recordAttempt(ctx context.Context, op *model.PendingOperation, started time.Time, status, errMsg string) {
	if e.audit == nil {
		return
	}
	attempt := &model.SyncAttempt{
		OperationID: op.ID,
		Type:        op.Type,
		UserID:      op.UserID,
		Status:      status,
		ErrorMsg:    errMsg,
		RetryCount:  op.RetryCount,
		DurationMs:  time.Since(started).Milliseconds(),
	}
	if err := e.audit.InsertAttempt(ctx, attempt); err != nil {
		e.log.WithError(err).Warn("failed to record sync attempt")
	}
}

// RetryFailed resets every failed operation to pending with a fresh
// retry count and runs a new pass. Explicitly caller-initiated; the
// engine never retries failed operations on its own.
func (e *Engine) RetryFailed(ctx context.Context) (PassResult, error) {
	reset, err := e.repo.ResetFailed(ctx)
	if err != nil {
		e.recordError("failed to reset failed operations: " + err.Error())
		return PassResult{}, err
	}
	e.log.WithField("reset", reset).Info("failed operations reset to pending")
	return e.SyncNow(ctx)
}

// State returns a snapshot of the observable sync state.
func (e *Engine) State() SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Subscribe registers a state listener and returns its unsubscribe
// function. Listeners run synchronously on the mutating goroutine.
func (e *Engine) Subscribe(fn func(SyncState)) func() {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subscribers, id)
		e.mu.Unlock()
	}
}

// RefreshCounts recomputes badge counts from the store and notifies
// subscribers. Called by the facade after every queue mutation.
func (e *Engine) RefreshCounts(ctx context.Context) {
	e.refreshCounts(ctx)
}

func (e *Engine) refreshCounts(ctx context.Context) {
	counts, err := e.repo.Counts(ctx)
	if err != nil {
		e.recordError("failed to count operations: " + err.Error())
		return
	}

	e.mu.Lock()
	e.state.PendingCount = counts.Pending + counts.Processing
	e.state.ProcessingCount = counts.Processing
	e.state.FailedCount = counts.Failed
	state := e.state
	e.mu.Unlock()
	e.notify(state)
}

func (e *Engine) setStatus(status Status) {
	e.mu.Lock()
	e.state.Status = status
	state := e.state
	e.mu.Unlock()
	e.notify(state)
}

// recordError surfaces a storage-layer failure through the observable
// state instead of swallowing it: losing an offline order silently is a
// business-critical failure.
func (e *Engine) recordError(msg string) {
	e.mu.Lock()
	e.state.LastError = msg
	state := e.state
	e.mu.Unlock()
	e.log.Error(msg)
	e.notify(state)
}

func (e *Engine) notify(state SyncState) {
	e.mu.Lock()
	fns := make([]func(SyncState), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
