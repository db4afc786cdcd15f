package handler

import (
	"net/http"
	"strconv"

	"distrihub-sync-api/internal/model"
	"distrihub-sync-api/internal/repository"
	"distrihub-sync-api/pkg/apierror"
	"distrihub-sync-api/pkg/response"
)

// HistoryHandler serves the sync attempt audit trail.
type HistoryHandler struct {
	audit repository.AuditRepository
}

func NewHistoryHandler(audit repository.AuditRepository) *HistoryHandler {
	return &HistoryHandler{audit: audit}
}

// GetSyncHistory handles GET /api/v1/queue/history
func (h *HistoryHandler) GetSyncHistory(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		response.Error(w, apierror.ServiceUnavailable("audit trail not configured"))
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	var (
		attempts []model.SyncAttempt
		total    int64
		err      error
	)
	if raw := r.URL.Query().Get("operation_id"); raw != "" {
		operationID, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			response.Error(w, apierror.BadRequest("operation_id must be a number"))
			return
		}
		attempts, total, err = h.audit.GetAttemptsForOperation(r.Context(), operationID, limit, offset)
	} else {
		attempts, total, err = h.audit.GetAttempts(r.Context(), limit, offset)
	}
	if err != nil {
		response.Error(w, apierror.InternalError("failed to fetch sync history"))
		return
	}

	response.JSONWithMeta(w, http.StatusOK, attempts, page, limit, total)
}
