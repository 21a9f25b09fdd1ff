package types

import (
	"context"
	"testing"
)

func TestWithRequestID_GetRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID() = %q, want %q", got, "req-123")
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() on empty context = %q, want empty", got)
	}
}

func TestWithAnnouncementID(t *testing.T) {
	ctx := WithAnnouncementID(context.Background(), "ann-1")
	if got := GetAnnouncementID(ctx); got != "ann-1" {
		t.Errorf("GetAnnouncementID() = %q", got)
	}
}
