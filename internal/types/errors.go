package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Callers use these instead of hardcoded strings.
const (
	// Configuration-incomplete: a trigger or request cannot proceed because
	// the configuration document lacks the data it needs. Not a fault.
	ErrCodeConfigIncomplete ErrorCode = "config_incomplete"

	// Validation (400)
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationOutOfRange   ErrorCode = "validation_value_out_of_range"
	ErrCodeValidationTimeOfDay    ErrorCode = "validation_invalid_time_of_day"
	ErrCodeValidationDocument     ErrorCode = "validation_invalid_document"
	ErrCodeValidationInvalidJSON  ErrorCode = "validation_invalid_json"

	// Not Found (404)
	ErrCodeNotFoundWebhook ErrorCode = "not_found_webhook"
	ErrCodeNotFoundEntity  ErrorCode = "not_found_entity"

	// Conflict (409)
	ErrCodeConflictEngineState ErrorCode = "conflict_engine_state"

	// Parse failures. Logged and treated as "inactive for this event".
	ErrCodeParseTimeOfDay    ErrorCode = "parse_time_of_day"
	ErrCodeParseWebhookBody  ErrorCode = "parse_webhook_body"
	ErrCodeParseDedupKey     ErrorCode = "parse_dedup_key"
	ErrCodeParseForecastTime ErrorCode = "parse_forecast_time"
	ErrCodeParseHostResponse ErrorCode = "parse_host_response"
	ErrCodeParseDocument     ErrorCode = "parse_stored_document"

	// Internal (500)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalStorage    ErrorCode = "internal_storage_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"

	// Upstream / transient external (502/503/504)
	ErrCodeUpstreamUnavailable    ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited    ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamTimeout        ErrorCode = "upstream_timeout"
	ErrCodeUpstreamAuth           ErrorCode = "upstream_auth_rejected"
	ErrCodeUpstreamActionFailed   ErrorCode = "upstream_host_action_failed"
	ErrCodeUpstreamWeatherRefresh ErrorCode = "upstream_weather_refresh_failed"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"), strings.HasPrefix(s, "parse_"):
		return http.StatusBadRequest
	case c == ErrCodeConfigIncomplete:
		return http.StatusUnprocessableEntity
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case c == ErrCodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case c == ErrCodeUpstreamRateLimited:
		return http.StatusServiceUnavailable
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsTransient reports whether the code describes a failure of an external
// collaborator that may succeed on a later attempt.
func (c ErrorCode) IsTransient() bool {
	return strings.HasPrefix(string(c), "upstream_")
}

// AppError is the standard application error type. Domain and handler errors
// are expressed as AppError so they format and map to HTTP consistently.
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

// CodeOf extracts the ErrorCode from err's chain. Errors that are not
// AppErrors report ErrCodeInternalUnexpected; nil reports "".
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}
