package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"homeweather/internal/core"
	"homeweather/internal/notifications/tts"
	"homeweather/internal/triggers"
	"homeweather/internal/types"
)

// Announcer is the engine surface the control API drives.
type Announcer interface {
	AnnounceNow(ctx context.Context) (tts.Report, error)
	LastTriggered() map[string]time.Time
	State() triggers.State
	Armed() []types.TriggerKind
}

// WeatherSource refreshes and exposes the weather snapshot.
type WeatherSource interface {
	Refresh(ctx context.Context) (types.Snapshot, error)
	Snapshot() types.Snapshot
}

// WebhookStatus is one configured webhook with its last firing.
type WebhookStatus struct {
	WebhookID     string     `json:"webhook_id"`
	PersonalName  string     `json:"personal_name,omitempty"`
	Enabled       bool       `json:"enabled"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
}

// EngineStatus reports the trigger engine lifecycle.
type EngineStatus struct {
	State string              `json:"state"`
	Armed []types.TriggerKind `json:"armed"`
}

// AnnounceHandler serves the weather, announcement and webhook endpoints.
type AnnounceHandler struct {
	engine   Announcer
	weather  WeatherSource
	settings func() types.Document
	logger   *slog.Logger
}

// NewAnnounceHandler creates an AnnounceHandler. settings is the pull
// accessor for the current document.
func NewAnnounceHandler(engine Announcer, weather WeatherSource, settings func() types.Document, logger *slog.Logger) *AnnounceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnnounceHandler{engine: engine, weather: weather, settings: settings, logger: logger}
}

// RegisterRoutes mounts the endpoints at the /v1 root.
func (h *AnnounceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/weather", h.HandleWeather)
	r.Post("/announce", h.HandleAnnounce)
	r.Get("/webhooks", h.HandleWebhooks)
	r.Get("/status", h.HandleStatus)
}

// HandleWeather handles GET /v1/weather. A failed refresh still answers with
// the cached snapshot; the failure is only logged.
func (h *AnnounceHandler) HandleWeather(w http.ResponseWriter, r *http.Request) {
	snap, err := h.weather.Refresh(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "weather refresh failed, serving cached snapshot", "error", err)
		snap = h.weather.Snapshot()
	}
	core.Data(w, r, http.StatusOK, snap)
}

// HandleAnnounce handles POST /v1/announce and returns the dispatch report.
func (h *AnnounceHandler) HandleAnnounce(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.AnnounceNow(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if report.Sinks == nil {
		report.Sinks = []tts.SinkResult{}
	}
	core.Data(w, r, http.StatusOK, report)
}

// HandleWebhooks handles GET /v1/webhooks.
func (h *AnnounceHandler) HandleWebhooks(w http.ResponseWriter, r *http.Request) {
	doc := h.settings()
	last := h.engine.LastTriggered()

	hooks := doc.TTS.EffectiveWebhooks()
	out := make([]WebhookStatus, 0, len(hooks))
	for _, hook := range hooks {
		status := WebhookStatus{
			WebhookID:    hook.WebhookID,
			PersonalName: hook.PersonalName,
			Enabled:      doc.TTS.EnableWebhook && hook.IsEnabled(),
		}
		if at, ok := last[hook.WebhookID]; ok {
			status.LastTriggered = &at
		}
		out = append(out, status)
	}
	core.Data(w, r, http.StatusOK, out)
}

// HandleStatus handles GET /v1/status.
func (h *AnnounceHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	armed := h.engine.Armed()
	if armed == nil {
		armed = []types.TriggerKind{}
	}
	core.Data(w, r, http.StatusOK, EngineStatus{State: h.engine.State().String(), Armed: armed})
}
