package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"storage-backend/internal/auth"
	"storage-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager() *auth.JWTManager {
	cfg := &config.Config{}
	cfg.JWT.Secret = "s3cret"
	cfg.JWT.Issuer = "storage-backend"
	cfg.JWT.ExpirationHours = 1
	return auth.NewJWTManager(cfg)
}

func TestAuthenticate(t *testing.T) {
	m := newManager()
	var got auth.Principal
	h := NewAuthMiddleware(m).Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFromContext(r.Context())
	}))

	token, err := m.GenerateToken(auth.Principal{UserID: 3, Role: auth.RoleCustomer, CustomerID: 8})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, auth.Principal{UserID: 3, Role: auth.RoleCustomer, CustomerID: 8}, got)
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(auth.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), auth.Principal{UserID: 1, Role: auth.RoleEmployee}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = req.WithContext(WithPrincipal(req.Context(), auth.Principal{UserID: 1, Role: auth.RoleAdmin}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPanicRecovery(t *testing.T) {
	h := PanicRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
