package handlers

import (
	"encoding/json"
	"net/http"

	"storage-backend/internal/cache"
	"storage-backend/internal/services"
	"storage-backend/pkg/utils"
)

type WorkflowHandler struct {
	Service *services.WorkflowService
}

func NewWorkflowHandler(service *services.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{Service: service}
}

// GetState handles GET /api/requests/{id}/state. Derived states are cached
// briefly; visibility is checked on every hit.
func (h *WorkflowHandler) GetState(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if data, hit := cache.GetCachedRequestState(r.Context(), id); hit {
		var cached services.RequestState
		if err := json.Unmarshal(data, &cached); err == nil {
			if !p.CanViewRequest(cached.CustomerID) {
				utils.Error(w, http.StatusNotFound, "not_found", "storage request not found")
				return
			}
			w.Header().Set("X-Cache", "HIT")
			utils.RawJSON(w, http.StatusOK, data)
			return
		}
	}

	state, err := h.Service.CurrentState(r.Context(), p, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if data, err := json.Marshal(state); err == nil {
		cache.CacheRequestState(r.Context(), id, data)
	}
	if cache.GetClient() != nil {
		w.Header().Set("X-Cache", "MISS")
	}
	utils.JSON(w, http.StatusOK, state)
}
