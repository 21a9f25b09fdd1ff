package core

import (
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"

	"homeweather/internal/types"
)

// maxWebhookBodySize bounds inbound webhook payloads.
const maxWebhookBodySize = 64 << 10

type webhookEntry struct {
	name    string
	handler types.WebhookHandler
}

// WebhookRegistry maps webhook ids to handlers and serves them at
// /api/webhook/{webhook_id}. It is safe for concurrent use.
type WebhookRegistry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]webhookEntry
}

// NewWebhookRegistry returns an empty registry.
func NewWebhookRegistry(logger *slog.Logger) *WebhookRegistry {
	return &WebhookRegistry{
		logger:  logger,
		entries: make(map[string]webhookEntry),
	}
}

// RegisterWebhook exposes handler under id. Registering an id twice fails.
func (reg *WebhookRegistry) RegisterWebhook(id, name string, handler types.WebhookHandler) error {
	if id == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "webhook id is required", nil)
	}
	if handler == nil {
		return types.NewAppError(types.ErrCodeValidationMissingField, "webhook handler is required", nil)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.entries[id]; exists {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationDocument,
			"webhook already registered", nil, map[string]any{"webhook_id": id})
	}
	reg.entries[id] = webhookEntry{name: name, handler: handler}
	reg.logger.Info("webhook registered", "webhook_id", id, "name", name)
	return nil
}

// UnregisterWebhook removes id. Unknown ids report ErrCodeNotFoundWebhook.
func (reg *WebhookRegistry) UnregisterWebhook(id string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.entries[id]; !exists {
		return types.NewAppErrorWithDetails(types.ErrCodeNotFoundWebhook,
			"webhook not registered", nil, map[string]any{"webhook_id": id})
	}
	delete(reg.entries, id)
	reg.logger.Info("webhook unregistered", "webhook_id", id)
	return nil
}

// IDs returns the registered ids, sorted.
func (reg *WebhookRegistry) IDs() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	ids := make([]string, 0, len(reg.entries))
	for id := range reg.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ServeHTTP hands the call to the registered handler and acknowledges it
// immediately with 200. GET and HEAD never carry a body.
func (reg *WebhookRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "webhook_id")

	reg.mu.RLock()
	entry, ok := reg.entries[id]
	reg.mu.RUnlock()
	if !ok {
		Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeNotFoundWebhook,
			"webhook not registered", nil, map[string]any{"webhook_id": id}))
		return
	}

	req := types.WebhookRequest{Method: r.Method}
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
		if err != nil {
			// The handler falls back to its defaults on an empty body.
			reg.logger.WarnContext(r.Context(), "webhook body unreadable",
				"webhook_id", id, "error", err)
		} else {
			req.Body = body
		}
	}

	entry.handler(r.Context(), req)
	w.WriteHeader(http.StatusOK)
}
