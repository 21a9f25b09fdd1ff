package types

import (
	"context"
	"time"
)

// EntityState is a host entity's state and attributes as returned by the
// host's REST and websocket APIs.
type EntityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged time.Time      `json:"last_changed,omitzero"`
	LastUpdated time.Time      `json:"last_updated,omitzero"`
}

// StateChange is one state_changed event. Old or New is nil when the entity
// was added or removed.
type StateChange struct {
	EntityID string       `json:"entity_id"`
	Old      *EntityState `json:"old_state"`
	New      *EntityState `json:"new_state"`
}

// ActionRequest describes one host action (service) invocation.
type ActionRequest struct {
	Domain         string
	Action         string
	Data           map[string]any
	Target         map[string]any
	Blocking       bool
	ReturnResponse bool
}

// Name returns "domain.action".
func (r ActionRequest) Name() string {
	return r.Domain + "." + r.Action
}

// WebhookRequest is an inbound webhook call. Body is empty for GET and HEAD.
type WebhookRequest struct {
	Method string
	Body   []byte
}

// WebhookHandler handles one inbound webhook call. It must not block on
// announcement delivery.
type WebhookHandler func(ctx context.Context, req WebhookRequest)
