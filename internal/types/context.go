package types

import "context"

type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	announcementID contextKey = "announcement_id"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithAnnouncementID tags the context with the id of the announcement being
// delivered so downstream log lines can be correlated.
func WithAnnouncementID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, announcementID, id)
}

// GetAnnouncementID retrieves the announcement id, or "" if none is set.
func GetAnnouncementID(ctx context.Context) string {
	id, _ := ctx.Value(announcementID).(string)
	return id
}
