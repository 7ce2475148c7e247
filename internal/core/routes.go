package core

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"receiptnotifier/internal/types"
)

const defaultRequestTimeout = 29 * time.Second

var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Ocp-Apim-Subscription-Key",
	"X-Api-Key",
}

// MountRoutes registers the middleware chain and every route.
//
// Middleware order:
//  1. Recoverer is outermost so it catches every panic.
//  2. ContextTimeout bounds handlers below the platform timeout.
//  3. RequestID runs before the logger so log lines carry it.
//  4. RequestLogger.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))

	s.router.Get("/health", s.HandleHealth)
	s.router.Get("/info", s.HandleInfo)
	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.APIKeyAuth)
		for _, register := range s.V1RouteRegistrars {
			register(r)
		}
	})
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware reuses X-Request-Id when the caller sent one and
// generates a UUID otherwise. The id is echoed in the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
	})
}

type infoResponse struct {
	Service     string `json:"service"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	BuildTime   string `json:"build_time"`
}

// HandleInfo returns the build metadata of the running binary.
func (s *Server) HandleInfo(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, infoResponse{
		Service:     s.Config.Service,
		Environment: s.Config.Environment,
		Version:     s.Config.Build.Version,
		Commit:      s.Config.Build.Commit,
		BuildTime:   s.Config.Build.BuildTime,
	})
}
