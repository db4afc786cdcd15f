package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"distrihub-sync-api/internal/model"
	"distrihub-sync-api/internal/service"
	"distrihub-sync-api/internal/syncengine"
	"distrihub-sync-api/pkg/apierror"
	"distrihub-sync-api/pkg/response"
)

// QueueHandler handles operation queue HTTP requests.
type QueueHandler struct {
	offline *service.OfflineService
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(offline *service.OfflineService) *QueueHandler {
	return &QueueHandler{offline: offline}
}

// enqueueRequest is the envelope for POST /api/v1/queue/operations.
type enqueueRequest struct {
	Type    model.OperationType `json:"type"`
	UserID  string              `json:"user_id"`
	Payload json.RawMessage     `json:"payload"`
}

// Enqueue handles POST /api/v1/queue/operations
func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	defer r.Body.Close()

	if !req.Type.Valid() {
		response.Error(w, apierror.BadRequest("unknown operation type: "+string(req.Type)))
		return
	}
	if len(req.Payload) == 0 {
		response.Error(w, apierror.BadRequest("payload is required"))
		return
	}

	op := model.PendingOperation{Type: req.Type, Payload: req.Payload}
	payload, err := op.DecodePayload()
	if err != nil {
		response.Error(w, apierror.BadRequest("invalid payload: "+err.Error()))
		return
	}

	result, err := h.offline.Enqueue(r.Context(), payload, req.UserID)
	if err != nil {
		response.Error(w, err)
		return
	}

	switch {
	case len(result.ItemsSinStock) > 0:
		details := make([]apierror.FieldError, 0, len(result.ItemsSinStock))
		for _, item := range result.ItemsSinStock {
			details = append(details, apierror.FieldError{
				Field:   item.ProductoID,
				Message: "solicitado " + strconv.Itoa(item.Solicitado) + ", disponible " + strconv.Itoa(item.Disponible),
			})
		}
		response.Error(w, apierror.UnprocessableEntity("insufficient stock").
			WithDetails(details...).
			WithExtra("itemsSinStock", result.ItemsSinStock))
	case result.Duplicate:
		response.JSON(w, http.StatusOK, result)
	default:
		response.Created(w, result)
	}
}

// ListPending handles GET /api/v1/queue/operations
func (h *QueueHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(w, apierror.BadRequest("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	var (
		ops []service.QueuedOperation
		err error
	)
	switch model.OperationType(r.URL.Query().Get("type")) {
	case model.OpCreateOrder:
		ops, err = h.offline.PendingOrders(r.Context())
	case model.OpCreateStockWriteOff:
		ops, err = h.offline.PendingWriteOffs(r.Context())
	case "":
		ops, err = h.offline.GetPending(r.Context(), limit)
	default:
		response.Error(w, apierror.BadRequest("unsupported type filter"))
		return
	}
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"operations": ops,
		"count":      len(ops),
	})
}

// State handles GET /api/v1/queue/state
func (h *QueueHandler) State(w http.ResponseWriter, r *http.Request) {
	counts, err := h.offline.Counts(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"sync":   h.offline.State(),
		"counts": counts,
	})
}

// SyncNow handles POST /api/v1/queue/sync
func (h *QueueHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	result, err := h.offline.SyncNow(r.Context())
	if err != nil {
		if errors.Is(err, syncengine.ErrSyncInProgress) {
			response.JSON(w, http.StatusOK, map[string]interface{}{
				"started": false,
				"reason":  "sync already in progress",
			})
			return
		}
		response.Error(w, err)
		return
	}

	response.OK(w, result)
}

// RetryFailed handles POST /api/v1/queue/retry
func (h *QueueHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	result, err := h.offline.RetryFailed(r.Context())
	if err != nil {
		if errors.Is(err, syncengine.ErrSyncInProgress) {
			response.JSON(w, http.StatusOK, map[string]interface{}{
				"started": false,
				"reason":  "sync already in progress",
			})
			return
		}
		response.Error(w, err)
		return
	}

	response.OK(w, result)
}

// Cleanup handles POST /api/v1/queue/cleanup
func (h *QueueHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.offline.Cleanup(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, map[string]interface{}{"deleted": deleted})
}

// Stats handles GET /api/v1/queue/stats
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.offline.Stats(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, stats)
}
