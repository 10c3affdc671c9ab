package handlers

import (
	"net/http"

	"storage-backend/internal/models"
	"storage-backend/internal/services"
	"storage-backend/pkg/utils"
)

type LedgerHandler struct {
	Service *services.LedgerService
}

func NewLedgerHandler(service *services.LedgerService) *LedgerHandler {
	return &LedgerHandler{Service: service}
}

// ListLocations returns every location with its headroom
func (h *LedgerHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	views, err := h.Service.Locations(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if views == nil {
		views = []models.LocationView{}
	}
	utils.JSON(w, http.StatusOK, views)
}

// AuditTrail returns the audit records of one request, oldest first
func (h *LedgerHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	records, err := h.Service.AuditTrail(r.Context(), p, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []models.AuditRecord{}
	}
	utils.JSON(w, http.StatusOK, records)
}
