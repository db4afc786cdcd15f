package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distrihub-sync-api/internal/model"
	"distrihub-sync-api/internal/remote"
	"distrihub-sync-api/internal/repository"
	"distrihub-sync-api/internal/service"
	"distrihub-sync-api/internal/stock"
	"distrihub-sync-api/internal/syncengine"
)

type stubRemote struct {
	remote.API
	levels map[string]model.ProductStock
}

func (s *stubRemote) ProductStocks(ctx context.Context, ids []string) (map[string]model.ProductStock, error) {
	out := make(map[string]model.ProductStock, len(ids))
	for _, id := range ids {
		if level, ok := s.levels[id]; ok {
			out[id] = level
		}
	}
	return out, nil
}

type providerAdapter struct{ api *stubRemote }

func (p providerAdapter) StockLevels(ctx context.Context, ids []string) (map[string]model.ProductStock, error) {
	return p.api.ProductStocks(ctx, ids)
}

func newTestRouter(t *testing.T, levels map[string]model.ProductStock) (*chi.Mux, *syncengine.SignalBus) {
	t.Helper()

	repo := repository.NewMemoryQueueRepository()
	t.Cleanup(func() { repo.Close() })

	api := &stubRemote{levels: levels}
	resolver := stock.NewResolver(repo, providerAdapter{api})
	engine := syncengine.NewEngine(repo, syncengine.NewRegistry(api), syncengine.Config{BatchSize: 5})
	svc := service.NewOfflineService(repo, resolver, engine, 7*24*time.Hour)
	require.NotNil(t, svc)

	bus := syncengine.NewSignalBus()

	r := chi.NewRouter()
	queueHandler := NewQueueHandler(svc)
	signalsHandler := NewSignalsHandler(bus)
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/queue", func(r chi.Router) {
			r.Post("/operations", queueHandler.Enqueue)
			r.Get("/operations", queueHandler.ListPending)
			r.Get("/state", queueHandler.State)
			r.Get("/stats", queueHandler.Stats)
			r.Post("/sync", queueHandler.SyncNow)
			r.Post("/retry", queueHandler.RetryFailed)
			r.Post("/cleanup", queueHandler.Cleanup)
		})
		r.Route("/signals", func(r chi.Router) {
			r.Post("/connectivity", signalsHandler.Connectivity)
			r.Post("/visibility", signalsHandler.Visibility)
		})
	})

	return r, bus
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func enqueueBody(productoID string, cantidad int) map[string]interface{} {
	return map[string]interface{}{
		"type":    "create_order",
		"user_id": "user-1",
		"payload": map[string]interface{}{
			"clienteId": "c1",
			"items": []map[string]interface{}{
				{"productoId": productoID, "cantidad": cantidad},
			},
			"total": float64(cantidad) * 10,
		},
	}
}

func TestEnqueueOrderReturnsCreated(t *testing.T) {
	router, _ := newTestRouter(t, map[string]model.ProductStock{
		"prod-1": {ProductoID: "prod-1", Stock: 10},
	})

	rec := postJSON(t, router, "/api/v1/queue/operations", enqueueBody("prod-1", 10))

	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Queued bool  `json:"queued"`
			ID     int64 `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.True(t, body.Data.Queued)
	assert.NotZero(t, body.Data.ID)
}

func TestEnqueueOversoldOrderRejectedWithItems(t *testing.T) {
	router, _ := newTestRouter(t, map[string]model.ProductStock{
		"prod-1": {ProductoID: "prod-1", Nombre: "Harina 1kg", Stock: 10},
	})

	rec := postJSON(t, router, "/api/v1/queue/operations", enqueueBody("prod-1", 10))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, router, "/api/v1/queue/operations", enqueueBody("prod-1", 5))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code          string               `json:"code"`
			ItemsSinStock []model.ItemSinStock `json:"itemsSinStock"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	require.Len(t, body.Error.ItemsSinStock, 1)
	assert.Equal(t, "prod-1", body.Error.ItemsSinStock[0].ProductoID)
	assert.Equal(t, 5, body.Error.ItemsSinStock[0].Solicitado)
	assert.Equal(t, 0, body.Error.ItemsSinStock[0].Disponible)
}

func TestEnqueueDuplicateReturnsOK(t *testing.T) {
	router, _ := newTestRouter(t, map[string]model.ProductStock{
		"prod-1": {ProductoID: "prod-1", Stock: 100},
	})

	rec := postJSON(t, router, "/api/v1/queue/operations", enqueueBody("prod-1", 3))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, router, "/api/v1/queue/operations", enqueueBody("prod-1", 3))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Queued    bool `json:"queued"`
			Duplicate bool `json:"duplicate"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Data.Queued)
	assert.True(t, body.Data.Duplicate)
}

func TestEnqueueUnknownTypeRejected(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := postJSON(t, router, "/api/v1/queue/operations", map[string]interface{}{
		"type":    "truncate_everything",
		"payload": map[string]interface{}{},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPendingReturnsQueuedOperations(t *testing.T) {
	router, _ := newTestRouter(t, map[string]model.ProductStock{
		"prod-1": {ProductoID: "prod-1", Stock: 100},
	})

	rec := postJSON(t, router, "/api/v1/queue/operations", enqueueBody("prod-1", 2))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = get(t, router, "/api/v1/queue/operations")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Count      int `json:"count"`
			Operations []struct {
				Type   string `json:"type"`
				Status string `json:"status"`
			} `json:"operations"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Data.Count)
	require.Len(t, body.Data.Operations, 1)
	assert.Equal(t, "create_order", body.Data.Operations[0].Type)
	assert.Equal(t, "pending", body.Data.Operations[0].Status)
}

func TestStateReflectsQueue(t *testing.T) {
	router, _ := newTestRouter(t, map[string]model.ProductStock{
		"prod-1": {ProductoID: "prod-1", Stock: 100},
	})

	rec := postJSON(t, router, "/api/v1/queue/operations", enqueueBody("prod-1", 4))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = get(t, router, "/api/v1/queue/state")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Sync struct {
				Status       string `json:"status"`
				IsOnline     bool   `json:"is_online"`
				PendingCount int64  `json:"pending_count"`
			} `json:"sync"`
			Counts struct {
				Pending int64 `json:"pending"`
			} `json:"counts"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "offline", body.Data.Sync.Status)
	assert.False(t, body.Data.Sync.IsOnline)
	assert.Equal(t, int64(1), body.Data.Sync.PendingCount)
	assert.Equal(t, int64(1), body.Data.Counts.Pending)
}

func TestSyncWhileOfflineReportsOfflineStatus(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := postJSON(t, router, "/api/v1/queue/sync", map[string]interface{}{})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "offline", body.Data.Status)
}

func TestConnectivitySignalEndpoint(t *testing.T) {
	router, bus := newTestRouter(t, nil)

	rec := postJSON(t, router, "/api/v1/signals/connectivity", map[string]interface{}{"online": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bus.Online())

	rec = postJSON(t, router, "/api/v1/signals/connectivity", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVisibilitySignalEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := postJSON(t, router, "/api/v1/signals/visibility", map[string]interface{}{"visible": false})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCleanupEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := postJSON(t, router, "/api/v1/queue/cleanup", map[string]interface{}{})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Deleted int64 `json:"deleted"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Zero(t, body.Data.Deleted)
}
