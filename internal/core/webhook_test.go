package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"homeweather/internal/types"
)

func noopWebhook(context.Context, types.WebhookRequest) {}

// recordingWebhook captures the requests handed to a webhook handler.
type recordingWebhook struct {
	mu   sync.Mutex
	reqs []types.WebhookRequest
}

func (h *recordingWebhook) handle(_ context.Context, req types.WebhookRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reqs = append(h.reqs, req)
}

func (h *recordingWebhook) calls() []types.WebhookRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.WebhookRequest(nil), h.reqs...)
}

func TestWebhookRegistry_RegisterValidates(t *testing.T) {
	reg := NewWebhookRegistry(discardLogger())

	if code := types.CodeOf(reg.RegisterWebhook("", "x", noopWebhook)); code != types.ErrCodeValidationMissingField {
		t.Errorf("empty id: code = %q", code)
	}
	if code := types.CodeOf(reg.RegisterWebhook("a", "x", nil)); code != types.ErrCodeValidationMissingField {
		t.Errorf("nil handler: code = %q", code)
	}
	if err := reg.RegisterWebhook("a", "x", noopWebhook); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterWebhook("a", "y", noopWebhook); err == nil {
		t.Error("duplicate id should be rejected")
	}
}

func TestWebhookRegistry_UnregisterAndIDs(t *testing.T) {
	reg := NewWebhookRegistry(discardLogger())
	_ = reg.RegisterWebhook("zeta", "Z", noopWebhook)
	_ = reg.RegisterWebhook("alpha", "A", noopWebhook)

	if got := reg.IDs(); !reflect.DeepEqual(got, []string{"alpha", "zeta"}) {
		t.Errorf("IDs() = %v", got)
	}
	if err := reg.UnregisterWebhook("alpha"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if code := types.CodeOf(reg.UnregisterWebhook("alpha")); code != types.ErrCodeNotFoundWebhook {
		t.Errorf("second unregister code = %q", code)
	}
	if got := reg.IDs(); !reflect.DeepEqual(got, []string{"zeta"}) {
		t.Errorf("IDs() after unregister = %v", got)
	}
}

func TestWebhookRoute_DispatchesMethodAndBody(t *testing.T) {
	srv := newTestServer(t)
	hook := &recordingWebhook{}
	if err := srv.Webhooks.RegisterWebhook("front_door", "Sam", hook.handle); err != nil {
		t.Fatal(err)
	}
	srv.MountRoutes()

	tests := []struct {
		method   string
		body     string
		wantBody string
	}{
		{http.MethodGet, "", ""},
		{http.MethodHead, "", ""},
		{http.MethodPost, `{"name":"Alex","volume":0.4}`, `{"name":"Alex","volume":0.4}`},
		{http.MethodPut, "not json", "not json"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, "/api/webhook/front_door", strings.NewReader(tt.body)))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", tt.method, rec.Code)
		}
	}

	calls := hook.calls()
	if len(calls) != len(tests) {
		t.Fatalf("handler called %d times, want %d", len(calls), len(tests))
	}
	for i, tt := range tests {
		if calls[i].Method != tt.method {
			t.Errorf("call %d method = %q, want %q", i, calls[i].Method, tt.method)
		}
		if string(calls[i].Body) != tt.wantBody {
			t.Errorf("call %d body = %q, want %q", i, calls[i].Body, tt.wantBody)
		}
	}
}

func TestWebhookRoute_UnknownIDReturns404(t *testing.T) {
	srv := newTestServer(t)
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeNotFoundWebhook) {
		t.Errorf("code = %q", resp.Error.Code)
	}
	if resp.Error.Details["webhook_id"] != "missing" {
		t.Errorf("details = %v", resp.Error.Details)
	}
}

func TestWebhookRoute_UnsupportedMethod(t *testing.T) {
	srv := newTestServer(t)
	_ = srv.Webhooks.RegisterWebhook("front_door", "", noopWebhook)
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/webhook/front_door", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestWebhookRoute_UnregisteredStopsDispatch(t *testing.T) {
	srv := newTestServer(t)
	hook := &recordingWebhook{}
	_ = srv.Webhooks.RegisterWebhook("garage", "", hook.handle)
	srv.MountRoutes()
	_ = srv.Webhooks.UnregisterWebhook("garage")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/webhook/garage", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if len(hook.calls()) != 0 {
		t.Error("unregistered handler must not be called")
	}
}
