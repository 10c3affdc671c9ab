package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"storage-backend/pkg/utils"
)

// PanicRecovery turns a handler panic into the standard "unexpected" error body
func PanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Printf("[HTTP] PANIC RECOVERED %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				utils.Error(w, http.StatusInternalServerError, "unexpected", "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
