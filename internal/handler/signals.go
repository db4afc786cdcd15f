package handler

import (
	"encoding/json"
	"net/http"

	"distrihub-sync-api/internal/syncengine"
	"distrihub-sync-api/pkg/apierror"
	"distrihub-sync-api/pkg/response"
)

// SignalsHandler lets the app push connectivity and visibility signals
// into the bus, alongside whatever the prober detects on its own.
type SignalsHandler struct {
	bus *syncengine.SignalBus
}

// NewSignalsHandler creates a new signals handler.
func NewSignalsHandler(bus *syncengine.SignalBus) *SignalsHandler {
	return &SignalsHandler{bus: bus}
}

type connectivityRequest struct {
	Online *bool `json:"online"`
}

// Connectivity handles POST /api/v1/signals/connectivity
func (h *SignalsHandler) Connectivity(w http.ResponseWriter, r *http.Request) {
	var req connectivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Online == nil {
		response.Error(w, apierror.BadRequest("body must be {\"online\": true|false}"))
		return
	}
	defer r.Body.Close()

	h.bus.SetOnline(*req.Online)

	response.OK(w, map[string]interface{}{"online": *req.Online})
}

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

// Visibility handles POST /api/v1/signals/visibility
func (h *SignalsHandler) Visibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Visible == nil {
		response.Error(w, apierror.BadRequest("body must be {\"visible\": true|false}"))
		return
	}
	defer r.Body.Close()

	h.bus.SetVisible(*req.Visible)

	response.OK(w, map[string]interface{}{"visible": *req.Visible})
}
