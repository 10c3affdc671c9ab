package http

import (
	"net/http"

	"storage-backend/internal/auth"
	"storage-backend/internal/handlers"
	"storage-backend/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Transition   *handlers.TransitionHandler
	Workflow     *handlers.WorkflowHandler
	Ledger       *handlers.LedgerHandler
	Notification *handlers.NotificationHandler
	Health       *handlers.HealthHandler
}

func NewRouter(h Handlers, authMiddleware *middleware.AuthMiddleware) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.PanicRecovery)
	r.Use(middleware.MetricsMiddleware)

	// Health checks and metrics (public)
	r.HandleFunc("/health", h.Health.BasicHealth).Methods("GET")
	r.HandleFunc("/health/ready", h.Health.ReadinessHealth).Methods("GET")
	r.HandleFunc("/health/detailed", h.Health.DetailedHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Storage requests: decisions are admin-only, state is visible to the owner too
	requestsAPI := r.PathPrefix("/api/requests").Subrouter()
	requestsAPI.Use(authMiddleware.Authenticate)
	requestsAPI.HandleFunc("/{id:[0-9]+}/state", h.Workflow.GetState).Methods("GET")

	decisions := requestsAPI.NewRoute().Subrouter()
	decisions.Use(middleware.RequireRole(auth.RoleAdmin))
	decisions.HandleFunc("/{id:[0-9]+}/approve", h.Transition.Approve).Methods("POST")
	decisions.HandleFunc("/{id:[0-9]+}/reject", h.Transition.Reject).Methods("POST")

	staff := requestsAPI.NewRoute().Subrouter()
	staff.Use(middleware.RequireRole(auth.RoleAdmin, auth.RoleEmployee))
	staff.HandleFunc("/{id:[0-9]+}/audit", h.Ledger.AuditTrail).Methods("GET")

	// Capacity ledger
	locationsAPI := r.PathPrefix("/api/locations").Subrouter()
	locationsAPI.Use(authMiddleware.Authenticate)
	locationsAPI.Use(middleware.RequireRole(auth.RoleAdmin, auth.RoleEmployee))
	locationsAPI.HandleFunc("", h.Ledger.ListLocations).Methods("GET")

	// Notification outbox
	notificationsAPI := r.PathPrefix("/api/notifications").Subrouter()
	notificationsAPI.Use(authMiddleware.Authenticate)
	notificationsAPI.Use(middleware.RequireRole(auth.RoleAdmin))
	notificationsAPI.HandleFunc("/stuck", h.Notification.Stuck).Methods("GET")
	notificationsAPI.HandleFunc("/drain", h.Notification.Drain).Methods("POST")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	})

	return r
}
