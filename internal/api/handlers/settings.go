// Package handlers implements the announcer's control API mounted under /v1:
// reading and replacing the settings document, inspecting the weather
// snapshot, firing a manual announcement, and listing webhooks.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"homeweather/internal/core"
	"homeweather/internal/types"
)

// SettingsService owns the persisted settings document.
type SettingsService interface {
	Current() types.Document
	Reload(ctx context.Context) (types.Document, error)
	Save(ctx context.Context, doc types.Document) (types.Document, error)
}

// Rearmer re-arms announcement triggers from the current document.
type Rearmer interface {
	Reload(ctx context.Context) error
}

// SettingsHandler serves /v1/config.
type SettingsHandler struct {
	settings SettingsService
	engine   Rearmer
	logger   *slog.Logger
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(settings SettingsService, engine Rearmer, logger *slog.Logger) *SettingsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsHandler{settings: settings, engine: engine, logger: logger}
}

// RegisterRoutes mounts the settings endpoints.
func (h *SettingsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleGet)
	r.Put("/", h.HandlePut)
	r.Post("/reload", h.HandleReload)
}

// HandleGet handles GET /v1/config.
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	core.Data(w, r, http.StatusOK, h.settings.Current())
}

// HandlePut handles PUT /v1/config. The body is decoded over the defaults,
// validated and persisted; triggers are re-armed from the saved document.
func (h *SettingsHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	doc := types.DefaultDocument()
	if err := core.DecodeJSON(w, r, &doc); err != nil {
		core.Error(w, r, err)
		return
	}

	saved, err := h.settings.Save(r.Context(), doc)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.rearm(r); err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, saved)
}

// HandleReload handles POST /v1/config/reload: re-read the store, then
// re-arm.
func (h *SettingsHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	doc, err := h.settings.Reload(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.rearm(r); err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, doc)
}

func (h *SettingsHandler) rearm(r *http.Request) error {
	// Detached from the client connection.
	if err := h.engine.Reload(context.WithoutCancel(r.Context())); err != nil {
		h.logger.ErrorContext(r.Context(), "re-arming triggers failed", "error", err)
		return types.NewAppError(types.ErrCodeConflictEngineState,
			"settings saved but triggers could not be re-armed", fmt.Errorf("reload engine: %w", err))
	}
	return nil
}
