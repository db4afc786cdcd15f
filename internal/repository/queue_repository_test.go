package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"distrihub-sync-api/internal/model"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrderPayload(t *testing.T, clienteID string, cantidad int) *model.PendingOperation {
	t.Helper()

	payload := &model.CreateOrderPayload{
		ClienteID: clienteID,
		Items: []model.OrderItem{
			{ProductoID: "prod-1", Nombre: gofakeit.ProductName(), Cantidad: cantidad, PrecioUnitario: 12.50},
		},
		Total: float64(cantidad) * 12.50,
	}
	raw, err := model.EncodePayload(payload)
	require.NoError(t, err)
	fp, err := model.Fingerprint(payload)
	require.NoError(t, err)

	return &model.PendingOperation{
		Type:        model.OpCreateOrder,
		Payload:     raw,
		Fingerprint: fp,
		UserID:      "user-1",
	}
}

// runs the full contract suite against each backend
func forEachRepository(t *testing.T, fn func(t *testing.T, repo QueueRepository)) {
	t.Helper()

	t.Run("sqlite", func(t *testing.T) {
		repo, err := NewSQLiteQueueRepository(filepath.Join(t.TempDir(), "queue.db"))
		require.NoError(t, err)
		defer repo.Close()
		fn(t, repo)
	})

	t.Run("memory", func(t *testing.T) {
		repo := NewMemoryQueueRepository()
		defer repo.Close()
		fn(t, repo)
	})
}

func TestEnqueueAssignsIDAndPendingStatus(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo QueueRepository) {
		ctx := context.Background()
		op := newTestOrderPayload(t, "client-a", 3)

		id, err := repo.Enqueue(ctx, op)
		require.NoError(t, err)
		assert.Positive(t, id)

		stored, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, stored.Status)
		assert.Equal(t, model.OpCreateOrder, stored.Type)
		assert.Equal(t, 0, stored.RetryCount)
		assert.Equal(t, "user-1", stored.UserID)
		assert.JSONEq(t, string(op.Payload), string(stored.Payload))
	})
}

func TestEnqueueRejectsDuplicateFingerprint(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo QueueRepository) {
		ctx := context.Background()

		first := newTestOrderPayload(t, "client-a", 3)
		_, err := repo.Enqueue(ctx, first)
		require.NoError(t, err)

		// Exactly the same logical order again
		second := newTestOrderPayload(t, "client-a", 3)
		_, err = repo.Enqueue(ctx, second)
		assert.ErrorIs(t, err, ErrDuplicate)

		// A different quantity is a new operation
		third := newTestOrderPayload(t, "client-a", 4)
		_, err = repo.Enqueue(ctx, third)
		assert.NoError(t, err)

		counts, err := repo.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), counts.Pending)
	})
}

func TestEnqueueAllowsRepeatAfterCompletion(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo QueueRepository) {
		ctx := context.Background()

		first := newTestOrderPayload(t, "client-a", 3)
		id, err := repo.Enqueue(ctx, first)
		require.NoError(t, err)

		require.NoError(t, repo.MarkProcessing(ctx, id))
		require.NoError(t, repo.MarkCompleted(ctx, id))

		// The same order again next week is legitimately a new one
		second := newTestOrderPayload(t, "client-a", 3)
		_, err = repo.Enqueue(ctx, second)
		assert.NoError(t, err)
	})
}

func TestListPendingReturnsCreationOrder(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo QueueRepository) {
		ctx := context.Background()

		var ids []int64
		for i := 1; i <= 4; i++ {
			op := newTestOrderPayload(t, gofakeit.UUID(), i)
			id, err := repo.Enqueue(ctx, op)
			require.NoError(t, err)
			ids = append(ids, id)
		}

		// processing operations still show up in the pending list
		require.NoError(t, repo.MarkProcessing(ctx, ids[0]))

		ops, err := repo.ListPending(ctx, 3)
		require.NoError(t, err)
		require.Len(t, ops, 3)
		assert.Equal(t, ids[0], ops[0].ID)
		assert.Equal(t, ids[1], ops[1].ID)
		assert.Equal(t, ids[2], ops[2].ID)
	})
}

func TestStatusTransitions(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo QueueRepository) {
		ctx := context.Background()

		op := newTestOrderPayload(t, "client-a", 1)
		id, err := repo.Enqueue(ctx, op)
		require.NoError(t, err)

		// completed requires processing first
		assert.ErrorIs(t, repo.MarkCompleted(ctx, id), ErrNotFound)

		require.NoError(t, repo.MarkProcessing(ctx, id))
		require.NoError(t, repo.MarkFailed(ctx, id, "network timeout"))

		stored, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, stored.Status)
		assert.Equal(t, 1, stored.RetryCount)
		assert.Equal(t, "network timeout", stored.LastError)
		// the original payload is preserved unchanged
		assert.JSONEq(t, string(op.Payload), string(stored.Payload))

		assert.ErrorIs(t, repo.MarkProcessing(ctx, 9999), ErrNotFound)
	})
}

func TestRetryCountAcrossRetryCycles(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo QueueRepository) {
		ctx := context.Background()

		op := newTestOrderPayload(t, "client-a", 1)
		id, err := repo.Enqueue(ctx, op)
		require.NoError(t, err)

		for attempt := 1; attempt <= 3; attempt++ {
			require.NoError(t, repo.MarkProcessing(ctx, id))
			require.NoError(t, repo.MarkFailed(ctx, id, "still broken"))

			stored, err := repo.GetByID(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 1, stored.RetryCount, "attempt %d", attempt)

			// only an explicit retry request zeroes the count
			reset, err := repo.ResetFailed(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), reset)

			stored, err = repo.GetByID(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 0, stored.RetryCount)
		}
	})
}

func TestResetFailed(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo QueueRepository) {
		ctx := context.Background()

		failedID, err := repo.Enqueue(ctx, newTestOrderPayload(t, "client-a", 1))
		require.NoError(t, err)
		require.NoError(t, repo.MarkProcessing(ctx, failedID))
		require.NoError(t, repo.MarkFailed(ctx, failedID, "boom"))

		pendingID, err := repo.Enqueue(ctx, newTestOrderPayload(t, "client-b", 2))
		require.NoError(t, err)

		reset, err := repo.ResetFailed(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), reset)

		stored, err := repo.GetByID(ctx, failedID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, stored.Status)
		assert.Equal(t, 0, stored.RetryCount)
		assert.Empty(t, stored.LastError)

		untouched, err := repo.GetByID(ctx, pendingID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, untouched.Status)
	})
}

func TestCountsByStatus(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo QueueRepository) {
		ctx := context.Background()

		ids := make([]int64, 4)
		for i := range ids {
			id, err := repo.Enqueue(ctx, newTestOrderPayload(t, gofakeit.UUID(), i+1))
			require.NoError(t, err)
			ids[i] = id
		}

		require.NoError(t, repo.MarkProcessing(ctx, ids[0]))
		require.NoError(t, repo.MarkProcessing(ctx, ids[1]))
		require.NoError(t, repo.MarkFailed(ctx, ids[1], "boom"))
		require.NoError(t, repo.MarkProcessing(ctx, ids[2]))
		require.NoError(t, repo.MarkCompleted(ctx, ids[2]))

		counts, err := repo.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts.Pending)
		assert.Equal(t, int64(1), counts.Processing)
		assert.Equal(t, int64(1), counts.Failed)
		assert.Equal(t, int64(3), counts.Total())
	})
}

func TestCleanupNeverTouchesActiveOperations(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo QueueRepository) {
		ctx := context.Background()

		pendingID, err := repo.Enqueue(ctx, newTestOrderPayload(t, "client-a", 1))
		require.NoError(t, err)

		processingID, err := repo.Enqueue(ctx, newTestOrderPayload(t, "client-b", 2))
		require.NoError(t, err)
		require.NoError(t, repo.MarkProcessing(ctx, processingID))

		completedID, err := repo.Enqueue(ctx, newTestOrderPayload(t, "client-c", 3))
		require.NoError(t, err)
		require.NoError(t, repo.MarkProcessing(ctx, completedID))
		require.NoError(t, repo.MarkCompleted(ctx, completedID))

		failedID, err := repo.Enqueue(ctx, newTestOrderPayload(t, "client-d", 4))
		require.NoError(t, err)
		require.NoError(t, repo.MarkProcessing(ctx, failedID))
		require.NoError(t, repo.MarkFailed(ctx, failedID, "boom"))

		// Cutoff in the future: every terminal row is eligible, yet the
		// active ones must survive regardless of age.
		deleted, err := repo.CleanupOlderThan(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		_, err = repo.GetByID(ctx, pendingID)
		assert.NoError(t, err)
		_, err = repo.GetByID(ctx, processingID)
		assert.NoError(t, err)
		_, err = repo.GetByID(ctx, completedID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.GetByID(ctx, failedID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCleanupKeepsRecentTerminalOperations(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo QueueRepository) {
		ctx := context.Background()

		id, err := repo.Enqueue(ctx, newTestOrderPayload(t, "client-a", 1))
		require.NoError(t, err)
		require.NoError(t, repo.MarkProcessing(ctx, id))
		require.NoError(t, repo.MarkCompleted(ctx, id))

		deleted, err := repo.CleanupOlderThan(ctx, time.Now().Add(-7*24*time.Hour))
		require.NoError(t, err)
		assert.Zero(t, deleted)

		_, err = repo.GetByID(ctx, id)
		assert.NoError(t, err)
	})
}

func TestSQLiteQueueSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "queue.db")

	repo, err := NewSQLiteQueueRepository(dbPath)
	require.NoError(t, err)

	id, err := repo.Enqueue(ctx, newTestOrderPayload(t, "client-a", 3))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	reopened, err := NewSQLiteQueueRepository(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	stored, err := reopened.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)

	ops, err := reopened.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}
