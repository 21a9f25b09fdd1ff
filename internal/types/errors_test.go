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
		Code:    ErrCodeNotFoundWebhook,
		Message: "no webhook registered for id",
	}

	expected := "not_found_webhook: no webhook registered for id"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection refused")
	appErr := NewAppError(ErrCodeUpstreamUnavailable, "host API unreachable", underlying)

	if !errors.Is(appErr, underlying) {
		t.Errorf("errors.Is did not find the underlying error")
	}
}

func TestAppErrorErrorsAs(t *testing.T) {
	appErr := NewAppError(ErrCodeParseWebhookBody, "body is not JSON", nil)
	wrapped := fmt.Errorf("handling webhook: %w", appErr)

	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to extract AppError")
	}
	if target.Code != ErrCodeParseWebhookBody {
		t.Errorf("Code = %q, want %q", target.Code, ErrCodeParseWebhookBody)
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{ErrCodeParseTimeOfDay, http.StatusBadRequest},
		{ErrCodeConfigIncomplete, http.StatusUnprocessableEntity},
		{ErrCodeNotFoundWebhook, http.StatusNotFound},
		{ErrCodeConflictEngineState, http.StatusConflict},
		{ErrCodeUpstreamTimeout, http.StatusGatewayTimeout},
		{ErrCodeUpstreamRateLimited, http.StatusServiceUnavailable},
		{ErrCodeUpstreamActionFailed, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_new"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorCode_IsTransient(t *testing.T) {
	if !ErrCodeUpstreamWeatherRefresh.IsTransient() {
		t.Error("weather refresh failure should be transient")
	}
	if ErrCodeParseDedupKey.IsTransient() {
		t.Error("parse failure should not be transient")
	}
}

func TestAppError_WithDetails(t *testing.T) {
	base := NewAppErrorWithDetails(ErrCodeValidationOutOfRange, "bad value", nil, map[string]any{"field": "volume"})
	merged := base.WithDetails(map[string]any{"max": 1.0})

	if len(base.Details) != 1 {
		t.Errorf("original details mutated: %v", base.Details)
	}
	if merged.Details["field"] != "volume" || merged.Details["max"] != 1.0 {
		t.Errorf("unexpected merged details: %v", merged.Details)
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != "" {
		t.Error("CodeOf(nil) should be empty")
	}
	if got := CodeOf(errors.New("plain")); got != ErrCodeInternalUnexpected {
		t.Errorf("CodeOf(plain) = %q", got)
	}
	wrapped := fmt.Errorf("outer: %w", NewAppError(ErrCodeUpstreamTimeout, "slow", nil))
	if got := CodeOf(wrapped); got != ErrCodeUpstreamTimeout {
		t.Errorf("CodeOf(wrapped) = %q", got)
	}
}
