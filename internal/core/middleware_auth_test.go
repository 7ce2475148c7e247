package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"receiptnotifier/internal/config"
	"receiptnotifier/internal/types"
)

func newAuthServer(t *testing.T, key string) *Server {
	t.Helper()
	srv, err := NewServer(&config.Config{}, discardLogger())
	require.NoError(t, err)
	if key != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
		require.NoError(t, err)
		srv.APIKeyHash = hash
	}
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusOK, APIResponse{Data: "pong"})
		})
	})
	srv.MountRoutes()
	return srv
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newAuthServer(t, "ops-secret")

	tests := []struct {
		name     string
		key      string
		wantCode int
		wantErr  types.ErrorCode
	}{
		{name: "missing key", wantCode: http.StatusUnauthorized, wantErr: types.ErrCodeAuthKeyMissing},
		{name: "wrong key", key: "guess", wantCode: http.StatusUnauthorized, wantErr: types.ErrCodeAuthKeyInvalid},
		{name: "valid key", key: "ops-secret", wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
			if tt.key != "" {
				req.Header.Set(APIKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantErr != "" {
				var body APIErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, string(tt.wantErr), body.Error.Code)
			}
		})
	}
}

func TestAPIKeyAuth_PublicRoutesAndDisabled(t *testing.T) {
	srv := newAuthServer(t, "ops-secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health stays public")

	open := newAuthServer(t, "")
	rec = httptest.NewRecorder()
	open.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
