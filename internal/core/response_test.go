package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"homeweather/internal/types"
)

func requestWithID(id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(types.WithRequestID(req.Context(), id))
}

func TestJSON_Success(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, requestWithID("r1"), http.StatusCreated, map[string]string{"status": "ok"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.String() != `{"status":"ok"}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, requestWithID("r1"), http.StatusOK, map[string]any{"bad": make(chan int)})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error.RequestID != "r1" {
		t.Errorf("request id = %q", resp.Error.RequestID)
	}
}

func TestData_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Data(rec, requestWithID("r1"), http.StatusOK, []int{1, 2})
	if rec.Body.String() != `{"data":[1,2]}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestError_StatusMapping(t *testing.T) {
	tests := []struct {
		code   types.ErrorCode
		status int
	}{
		{types.ErrCodeValidationDocument, http.StatusBadRequest},
		{types.ErrCodeParseDocument, http.StatusBadRequest},
		{types.ErrCodeConfigIncomplete, http.StatusUnprocessableEntity},
		{types.ErrCodeNotFoundWebhook, http.StatusNotFound},
		{types.ErrCodeConflictEngineState, http.StatusConflict},
		{types.ErrCodeUpstreamTimeout, http.StatusGatewayTimeout},
		{types.ErrCodeUpstreamRateLimited, http.StatusServiceUnavailable},
		{types.ErrCodeUpstreamUnavailable, http.StatusBadGateway},
		{types.ErrCodeInternalStorage, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, requestWithID("r2"), types.NewAppError(tt.code, "msg", nil))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var resp APIErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Error.Code != string(tt.code) || resp.Error.RequestID != "r2" {
				t.Errorf("envelope = %+v", resp.Error)
			}
		})
	}
}

func TestError_WrappedAppErrorKeepsDetails(t *testing.T) {
	appErr := types.NewAppErrorWithDetails(types.ErrCodeValidationDocument, "invalid settings", nil,
		map[string]any{"problems": []string{"weather_entity is required"}})
	rec := httptest.NewRecorder()
	Error(rec, requestWithID("r3"), fmt.Errorf("save settings: %w", appErr))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp APIErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error.Message != "invalid settings" || resp.Error.Details["problems"] == nil {
		t.Errorf("envelope = %+v", resp.Error)
	}
}

func TestError_GenericErrorIsOpaque(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, requestWithID("r4"), errors.New("pq: password authentication failed"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("internal error message leaked to the client")
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name   string   `json:"name"`
		Volume *float64 `json:"volume"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"Sam","volume":0.5}`, false},
		{"unknown field", `{"name":"Sam","extra":1}`, true},
		{"syntax", `{"name":`, true},
		{"empty", ``, true},
		{"type mismatch", `{"volume":"loud"}`, true},
		{"two values", `{"name":"a"} {"name":"b"}`, true},
		{"too large", `{"name":"` + strings.Repeat("x", maxRequestBodySize) + `"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload
			err := DecodeJSON(httptest.NewRecorder(), req, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && types.CodeOf(err) != types.ErrCodeValidationInvalidJSON {
				t.Errorf("code = %q", types.CodeOf(err))
			}
			if !tt.wantErr && (dst.Name != "Sam" || dst.Volume == nil || *dst.Volume != 0.5) {
				t.Errorf("decoded = %+v", dst)
			}
		})
	}
}

func TestDecodeJSON_TypeMismatchDetails(t *testing.T) {
	var dst struct {
		Volume float64 `json:"volume"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"volume":"loud"}`))
	err := DecodeJSON(httptest.NewRecorder(), req, &dst)

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Details["field"] != "volume" || appErr.Details["expected"] != "float64" {
		t.Errorf("details = %v", appErr.Details)
	}
}
