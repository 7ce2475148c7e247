package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorImplementsError(t *testing.T) {
	var _ error = (*AppError)(nil)
}

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeNotFoundUnit,
		Message: "unit rcpt_1 not found",
	}

	expected := "not_found_unit: unit rcpt_1 not found"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection reset")
	appErr := NewAppError(ErrCodeInternalDB, "failed to upsert units", underlying)

	if !errors.Is(appErr, underlying) {
		t.Errorf("errors.Is did not find the underlying error")
	}
	if appErr.Unwrap() != underlying {
		t.Errorf("Unwrap() = %v, want %v", appErr.Unwrap(), underlying)
	}
}

func TestAppErrorErrorsAs(t *testing.T) {
	wrapped := fmt.Errorf("reconcile: %w", NewAppError(ErrCodeUpstreamRateLimited, "slow down", nil))

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("errors.As should extract *AppError from a wrapped chain")
	}
	if appErr.Code != ErrCodeUpstreamRateLimited {
		t.Errorf("Code = %q, want %q", appErr.Code, ErrCodeUpstreamRateLimited)
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidUnit, http.StatusBadRequest},
		{ErrCodeValidationStatus, http.StatusConflict},
		{ErrCodeAuthKeyInvalid, http.StatusUnauthorized},
		{ErrCodeNotFoundUnit, http.StatusNotFound},
		{ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
		{ErrCodeUpstreamMessaging, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestAppErrorWithDetailsDoesNotMutate(t *testing.T) {
	base := NewAppErrorWithDetails(ErrCodeUpstreamRejected, "rejected", nil, map[string]any{"a": 1})
	derived := base.WithDetails(map[string]any{"b": 2})

	if _, ok := base.Details["b"]; ok {
		t.Error("WithDetails mutated the original error")
	}
	if derived.Details["a"] != 1 || derived.Details["b"] != 2 {
		t.Errorf("unexpected merged details: %v", derived.Details)
	}
}

func TestNewReasonError(t *testing.T) {
	r := NewReasonError(ReasonCodeProviderIO, errors.New("dial tcp: timeout"))
	if r.Code != ReasonCodeProviderIO || r.Message != "dial tcp: timeout" {
		t.Errorf("unexpected reason error: %+v", r)
	}

	empty := NewReasonError(ReasonCodeGeneric, nil)
	if empty.Message != "" {
		t.Errorf("expected empty message for nil error, got %q", empty.Message)
	}
}
