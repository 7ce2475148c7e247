package core

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"receiptnotifier/internal/types"
)

// APIKeyHeader carries the operator key.
const APIKeyHeader = "X-Api-Key"

// APIKeyAuth rejects requests whose X-Api-Key does not match the bcrypt
// hash in Server.APIKeyHash. An empty hash disables the check; run refuses
// to start that way outside local.
func (s *Server) APIKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.APIKeyHash) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthKeyMissing, APIKeyHeader+" header is required", nil))
			return
		}
		if err := bcrypt.CompareHashAndPassword(s.APIKeyHash, []byte(key)); err != nil {
			s.Logger.Warn("rejected operator key",
				"request_id", types.GetRequestID(r.Context()),
				"path", r.URL.Path,
			)
			Error(w, r, types.NewAppError(types.ErrCodeAuthKeyInvalid, "invalid API key", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}
