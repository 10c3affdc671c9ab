package middleware

import (
	"net/http"

	"storage-backend/internal/config"

	"github.com/rs/cors"
)

// NewCORS builds the CORS wrapper. Authorization is always an allowed header
// since every API route takes a Bearer token.
func NewCORS(cfg *config.Config) func(http.Handler) http.Handler {
	methods := cfg.Server.CorsAllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := cfg.Server.CorsAllowedHeaders
	if !contains(headers, "Authorization") {
		headers = append(append([]string{}, headers...), "Authorization")
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CorsAllowedOrigins,
		AllowedMethods:   methods,
		AllowedHeaders:   headers,
		ExposedHeaders:   []string{"X-Cache"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	})

	return c.Handler
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if http.CanonicalHeaderKey(s) == v {
			return true
		}
	}
	return false
}
