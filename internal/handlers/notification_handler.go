package handlers

import (
	"net/http"

	"storage-backend/internal/models"
	"storage-backend/internal/services"
	"storage-backend/pkg/utils"
)

type NotificationHandler struct {
	Worker      *services.NotificationWorker
	BatchSize   int
	MaxAttempts int
}

func NewNotificationHandler(worker *services.NotificationWorker, batchSize, maxAttempts int) *NotificationHandler {
	return &NotificationHandler{Worker: worker, BatchSize: batchSize, MaxAttempts: maxAttempts}
}

// Stuck handles GET /api/notifications/stuck?max_attempts=&limit=
func (h *NotificationHandler) Stuck(w http.ResponseWriter, r *http.Request) {
	maxAttempts := queryInt(r, "max_attempts", h.MaxAttempts)
	entries, err := h.Worker.Stuck(r.Context(), maxAttempts, queryInt(r, "limit", 100))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.OutboxEntry{}
	}
	utils.JSON(w, http.StatusOK, entries)
}

// Drain handles POST /api/notifications/drain?batch_size=&max_attempts=, one pass
func (h *NotificationHandler) Drain(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Worker.Drain(r.Context(),
		queryInt(r, "batch_size", h.BatchSize),
		queryInt(r, "max_attempts", h.MaxAttempts))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, summary)
}
