package handlers

import (
	"encoding/json"
	"net/http"

	"storage-backend/internal/cache"
	"storage-backend/internal/services"
	"storage-backend/pkg/utils"
)

type TransitionHandler struct {
	Service *services.TransitionService
}

func NewTransitionHandler(service *services.TransitionService) *TransitionHandler {
	return &TransitionHandler{Service: service}
}

type approveBody struct {
	LocationIDs      []int64 `json:"location_ids"`
	RequiredQuantity int64   `json:"required_quantity"`
	Notes            string  `json:"notes"`
}

type rejectBody struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

// Approve handles POST /api/requests/{id}/approve
func (h *TransitionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var body approveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid_argument", "Invalid request body")
		return
	}

	result, err := h.Service.Approve(r.Context(), p, services.ApproveInput{
		RequestID:        id,
		LocationIDs:      body.LocationIDs,
		RequiredQuantity: body.RequiredQuantity,
		Notes:            body.Notes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	cache.InvalidateRequestState(r.Context(), id)
	utils.JSON(w, http.StatusOK, result)
}

// Reject handles POST /api/requests/{id}/reject
func (h *TransitionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var body rejectBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid_argument", "Invalid request body")
		return
	}

	result, err := h.Service.Reject(r.Context(), p, services.RejectInput{
		RequestID: id,
		Reason:    body.Reason,
		Notes:     body.Notes,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	cache.InvalidateRequestState(r.Context(), id)
	utils.JSON(w, http.StatusOK, result)
}
