package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// All components MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidUnit  ErrorCode = "validation_invalid_unit"
	ErrCodeValidationInvalidCF    ErrorCode = "validation_invalid_fiscal_code"
	ErrCodeValidationStatus       ErrorCode = "validation_status_not_recoverable"

	// Authentication (401)
	ErrCodeAuthKeyMissing ErrorCode = "auth_key_missing"
	ErrCodeAuthKeyInvalid ErrorCode = "auth_key_invalid"

	// Not Found (404)
	ErrCodeNotFoundUnit    ErrorCode = "not_found_unit"
	ErrCodeNotFoundMessage ErrorCode = "not_found_message"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB            ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected    ErrorCode = "internal_unexpected_error"
	ErrCodeInternalEncoding      ErrorCode = "internal_encoding_error"
	ErrCodeUpstreamTokenizer     ErrorCode = "upstream_tokenizer_unavailable"
	ErrCodeUpstreamMessaging     ErrorCode = "upstream_messaging_unavailable"
	ErrCodeUpstreamQueue         ErrorCode = "upstream_queue_unavailable"
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamRejected      ErrorCode = "upstream_rejected"
	ErrCodeUpstreamInvalidResult ErrorCode = "upstream_invalid_response"
)

// Reason codes written to ReasonError.Code. HTTP statuses returned by the
// notification provider are recorded verbatim; the values below cover every
// other failure source.
const (
	ReasonCodeGeneric             = 500
	ReasonCodeTokenizerIO         = 800
	ReasonCodeTokenizerUnexpected = 801
	ReasonCodeTokenizerMapping    = 802
	ReasonCodeProviderIO          = 900
	ReasonCodeCancelled           = 901
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case s == string(ErrCodeValidationStatus):
		return http.StatusConflict
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type used throughout the service.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
