package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"receiptnotifier/internal/config"
	"receiptnotifier/internal/types"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubUnits struct{ unit *types.NotifiableUnit }

func (s *stubUnits) Get(_ context.Context, id string) (*types.NotifiableUnit, error) {
	if s.unit == nil || s.unit.ID != id {
		return nil, types.NewAppError(types.ErrCodeNotFoundUnit, "unit not found", nil)
	}
	return s.unit, nil
}

func (s *stubUnits) ListByStatus(context.Context, types.UnitStatus, int) ([]*types.NotifiableUnit, error) {
	return nil, nil
}

func (s *stubUnits) UpsertBatch(context.Context, []*types.NotifiableUnit) error { return nil }

type stubCounter struct{}

func (stubCounter) CountByUnit(context.Context, string) (int, error) { return 1, nil }

type stubPublisher struct{ calls int }

func (s *stubPublisher) Publish(context.Context, *types.NotifiableUnit, time.Duration) error {
	s.calls++
	return nil
}

func buildTestServer(t *testing.T, pingErr error) (http.Handler, *stubPublisher) {
	t.Helper()
	cfg := &config.Config{Environment: "local", Service: "ops-api"}
	cfg.Build.Version = "test"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	units := &stubUnits{unit: &types.NotifiableUnit{
		ID:     "u1",
		Kind:   types.UnitKindReceipt,
		Status: types.StatusUnableToSend,
	}}
	pub := &stubPublisher{}
	srv, err := newServer(cfg, logger, stubPinger{err: pingErr}, units, stubCounter{}, pub)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	return srv.Handler(), pub
}

func TestHealthReportsDatabase(t *testing.T) {
	h, _ := buildTestServer(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	h, _ = buildTestServer(t, errors.New("connection refused"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	var body struct {
		Components map[string]struct {
			Status string `json:"status"`
		} `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := body.Components["database"]; !ok {
		t.Errorf("expected database component, got %v", body.Components)
	}
}

func TestUnitRoutesMounted(t *testing.T) {
	h, pub := buildTestServer(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/units/u1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET unit: expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("expected X-Request-Id header")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/units/u1/recover", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("recover: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if pub.calls != 1 {
		t.Errorf("expected one publish, got %d", pub.calls)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	for level, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	} {
		logger := newLogger(level)
		if !logger.Enabled(context.Background(), want) {
			t.Errorf("level %q: expected %v enabled", level, want)
		}
	}
}

func TestNewServerRequiresKeyOutsideLocal(t *testing.T) {
	cfg := &config.Config{Environment: "prod"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := newServer(cfg, logger, stubPinger{}, &stubUnits{}, stubCounter{}, &stubPublisher{})
	if err == nil {
		t.Fatal("expected error without OPS_API_KEY_HASH")
	}
}
