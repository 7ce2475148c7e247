// Package handlers contains the HTTP handlers of the operations API.
//
// UnitsHandler lets an operator inspect a unit and push units stuck in
// IO_ERROR_TO_NOTIFY or UNABLE_TO_SEND back into the notification flow.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"receiptnotifier/internal/core"
	"receiptnotifier/internal/types"
)

// UnitRepo is the unit store as seen by the handler.
type UnitRepo interface {
	Get(ctx context.Context, id string) (*types.NotifiableUnit, error)
	ListByStatus(ctx context.Context, status types.UnitStatus, limit int) ([]*types.NotifiableUnit, error)
	UpsertBatch(ctx context.Context, units []*types.NotifiableUnit) error
}

// MessageCounter reports how many messages were recorded for a unit.
type MessageCounter interface {
	CountByUnit(ctx context.Context, unitID string) (int, error)
}

// UnitPublisher puts a unit on the notifier queue.
type UnitPublisher interface {
	Publish(ctx context.Context, unit *types.NotifiableUnit, delay time.Duration) error
}

const (
	defaultRecoverLimit = 50
	maxRecoverLimit     = 500
)

// UnitResponse is the GET /v1/units/{unitID} body.
type UnitResponse struct {
	Unit         *types.NotifiableUnit `json:"unit"`
	MessageCount int                   `json:"message_count"`
}

// RecoverResponse lists the outcome of a recovery request.
type RecoverResponse struct {
	Recovered []string          `json:"recovered"`
	Failed    map[string]string `json:"failed,omitempty"`
}

type UnitsHandler struct {
	units     UnitRepo
	messages  MessageCounter
	publisher UnitPublisher
	logger    *slog.Logger
}

func NewUnitsHandler(units UnitRepo, messages MessageCounter, publisher UnitPublisher, logger *slog.Logger) *UnitsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UnitsHandler{
		units:     units,
		messages:  messages,
		publisher: publisher,
		logger:    logger,
	}
}

// RegisterRoutes mounts the unit routes under /units.
func (h *UnitsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/units", func(r chi.Router) {
		r.Post("/recover", h.RecoverByStatus)
		r.Get("/{unitID}", h.Get)
		r.Post("/{unitID}/recover", h.Recover)
	})
}

// Get handles GET /v1/units/{unitID}.
func (h *UnitsHandler) Get(w http.ResponseWriter, r *http.Request) {
	unit, err := h.units.Get(r.Context(), chi.URLParam(r, "unitID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	count, err := h.messages.CountByUnit(r.Context(), unit.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: UnitResponse{Unit: unit, MessageCount: count}})
}

// Recover handles POST /v1/units/{unitID}/recover.
func (h *UnitsHandler) Recover(w http.ResponseWriter, r *http.Request) {
	unit, err := h.units.Get(r.Context(), chi.URLParam(r, "unitID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !unit.Status.IsRecoverable() {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationStatus,
			fmt.Sprintf("unit %s is %s and cannot be recovered", unit.ID, unit.Status), nil,
			map[string]any{"status": string(unit.Status)}))
		return
	}
	if err := h.resubmit(r.Context(), unit); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: RecoverResponse{Recovered: []string{unit.ID}}})
}

// RecoverByStatus handles POST /v1/units/recover?status=...&limit=...
// Units are recovered one by one; a failure does not stop the others.
func (h *UnitsHandler) RecoverByStatus(w http.ResponseWriter, r *http.Request) {
	status := types.UnitStatus(r.URL.Query().Get("status"))
	if !status.IsRecoverable() {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationStatus,
			"status must be IO_ERROR_TO_NOTIFY or UNABLE_TO_SEND", nil,
			map[string]any{"status": string(status)}))
		return
	}

	limit := defaultRecoverLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRecoverLimit {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
				fmt.Sprintf("limit must be between 1 and %d", maxRecoverLimit), err))
			return
		}
		limit = n
	}

	units, err := h.units.ListByStatus(r.Context(), status, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := RecoverResponse{Recovered: []string{}}
	for _, unit := range units {
		if err := h.resubmit(r.Context(), unit); err != nil {
			if resp.Failed == nil {
				resp.Failed = make(map[string]string)
			}
			resp.Failed[unit.ID] = err.Error()
			continue
		}
		resp.Recovered = append(resp.Recovered, unit.ID)
	}

	h.logger.Info("bulk recovery completed",
		"status", status,
		"recovered", len(resp.Recovered),
		"failed", len(resp.Failed),
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

// resubmit resets the unit to IO_NOTIFIER_RETRY with a fresh retry budget,
// publishes it and then stores it. Publishing first means a failed store
// write still leaves the unit on its way to the notifier.
func (h *UnitsHandler) resubmit(ctx context.Context, unit *types.NotifiableUnit) error {
	previous := unit.Status
	unit.Status = types.StatusIONotifierRetry
	unit.RetryCount = 0

	if err := h.publisher.Publish(ctx, unit, 0); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue, fmt.Sprintf("failed to publish unit %s", unit.ID), err)
	}
	if err := h.units.UpsertBatch(ctx, []*types.NotifiableUnit{unit}); err != nil {
		return err
	}

	h.logger.Info("unit recovered",
		"unit_id", unit.ID,
		"from_status", previous,
		"request_id", types.GetRequestID(ctx),
	)
	return nil
}
