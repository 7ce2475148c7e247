// Package core provides the HTTP chassis of the operations API: a chi
// router with recovery, request ids, timeouts and structured request logs,
// plus the health and build-info endpoints. Domain routes are mounted under
// /v1 through V1RouteRegistrars.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"receiptnotifier/internal/config"
)

// Server holds the dependencies of the operations API.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	HealthProbes []HealthProbe

	// APIKeyHash guards /v1. Empty disables authentication.
	APIKeyHash []byte

	// V1RouteRegistrars are called by MountRoutes to register /v1 routes.
	V1RouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer validates the critical dependencies and creates an empty router.
// Routes are registered by MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi.Mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
