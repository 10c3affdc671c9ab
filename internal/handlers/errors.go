package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"storage-backend/internal/auth"
	"storage-backend/internal/middleware"
	"storage-backend/internal/services"
	"storage-backend/pkg/utils"

	"github.com/gorilla/mux"
)

type capacityDetails struct {
	Required  int64    `json:"required"`
	Available int64    `json:"available"`
	Locations []string `json:"locations"`
}

// writeServiceError maps service errors onto HTTP status codes
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := services.ErrorKind(err)

	var ce *services.CapacityExceededError
	if errors.As(err, &ce) {
		utils.JSON(w, http.StatusConflict, utils.ErrorBody{
			Error:   kind,
			Message: ce.Error(),
			Details: capacityDetails{Required: ce.Required, Available: ce.Available, Locations: ce.LocationNames},
		})
		return
	}

	var status int
	switch kind {
	case "not_found":
		status = http.StatusNotFound
	case "invalid_state":
		status = http.StatusConflict
	case "invalid_reference", "invalid_argument":
		status = http.StatusBadRequest
	case "forbidden":
		status = http.StatusForbidden
	case "timeout":
		status = http.StatusGatewayTimeout
	default:
		status = http.StatusInternalServerError
	}

	msg := err.Error()
	if status >= 500 {
		log.Printf("[HTTP] %s %s failed: %v", r.Method, r.URL.Path, err)
		msg = http.StatusText(status)
	}
	utils.Error(w, status, kind, msg)
}

func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
	}
	return p, ok
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		utils.Error(w, http.StatusBadRequest, "invalid_argument", "Invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
