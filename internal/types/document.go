package types

import "strings"

// Documented defaults for the configuration document. Fields absent from a
// stored document keep these values because decoding starts from
// DefaultDocument.
const (
	DefaultHourPattern           = 3
	DefaultMinuteOffset          = 3
	DefaultStartTime             = "08:00"
	DefaultEndTime               = "21:00"
	DefaultMinutesBeforeAnnounce = 30
	DefaultPrecipThreshold       = 30.0
	DefaultWindSpeedThreshold    = 15.0
	DefaultWindGustThreshold     = 25.0
	DefaultTriggerState          = "on"

	DefaultSinkVolume = 0.6
	DefaultPrerollMS  = 150
)

// Document is the persisted configuration document. It is owned by the
// settings store; the trigger engine and dispatcher only read it.
type Document struct {
	WeatherEntity string        `json:"weather_entity,omitempty" yaml:"weather_entity,omitempty" validate:"required"`
	TTS           TTSConfig     `json:"tts" yaml:"tts"`
	MediaPlayers  []MediaPlayer `json:"media_players" yaml:"media_players" validate:"dive"`
	MessagePrefix string        `json:"message_prefix,omitempty" yaml:"message_prefix,omitempty"`
	PersonalName  string        `json:"personal_name,omitempty" yaml:"personal_name,omitempty"`
}

// TTSConfig holds the announcement feature flags and per-trigger parameters.
type TTSConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Engine    string `json:"engine,omitempty" yaml:"engine,omitempty"`
	PrerollMS int    `json:"preroll_ms,omitempty" yaml:"preroll_ms,omitempty" validate:"min=0,max=10000"`
	Cache     bool   `json:"cache" yaml:"cache"`
	Language  string `json:"language,omitempty" yaml:"language,omitempty"`

	// Time-based
	EnableTimeBased bool     `json:"enable_time_based" yaml:"enable_time_based"`
	HourPattern     int      `json:"hour_pattern" yaml:"hour_pattern" validate:"min=0,max=23"`
	MinuteOffset    int      `json:"minute_offset" yaml:"minute_offset" validate:"min=0,max=59"`
	StartTime       string   `json:"start_time" yaml:"start_time"`
	EndTime         string   `json:"end_time" yaml:"end_time"`
	DaysOfWeek      []string `json:"days_of_week,omitempty" yaml:"days_of_week,omitempty"`

	// Current-change
	EnableCurrentChange bool `json:"enable_current_change" yaml:"enable_current_change"`

	// Upcoming precipitation / wind
	EnableUpcomingChange  bool    `json:"enable_upcoming_change" yaml:"enable_upcoming_change"`
	MinutesBeforeAnnounce int     `json:"minutes_before_announce" yaml:"minutes_before_announce" validate:"min=1,max=720"`
	PrecipThreshold       float64 `json:"precip_threshold" yaml:"precip_threshold" validate:"min=0,max=100"`
	WindSpeedThreshold    float64 `json:"wind_speed_threshold" yaml:"wind_speed_threshold" validate:"min=0"`
	WindGustThreshold     float64 `json:"wind_gust_threshold" yaml:"wind_gust_threshold" validate:"min=0"`

	// Sensor-triggered
	EnableSensorTriggered bool            `json:"enable_sensor_triggered" yaml:"enable_sensor_triggered"`
	SensorTriggers        []SensorTrigger `json:"sensor_triggers,omitempty" yaml:"sensor_triggers,omitempty" validate:"dive"`

	// Webhook. WebhookID and PersonalName are the legacy single-webhook
	// shape; Normalize folds them into Webhooks.
	EnableWebhook bool           `json:"enable_webhook" yaml:"enable_webhook"`
	Webhooks      []WebhookEntry `json:"webhooks,omitempty" yaml:"webhooks,omitempty" validate:"dive"`
	WebhookID     string         `json:"webhook_id,omitempty" yaml:"webhook_id,omitempty"`
	PersonalName  string         `json:"personal_name,omitempty" yaml:"personal_name,omitempty"`

	// Voice satellite
	EnableVoiceSatellite bool   `json:"enable_voice_satellite" yaml:"enable_voice_satellite"`
	ConversationCommands string `json:"conversation_commands,omitempty" yaml:"conversation_commands,omitempty"`

	// AI rewrite
	UseAIRewrite    bool   `json:"use_ai_rewrite" yaml:"use_ai_rewrite"`
	AITaskEntity    string `json:"ai_task_entity,omitempty" yaml:"ai_task_entity,omitempty"`
	AIRewritePrompt string `json:"ai_rewrite_prompt,omitempty" yaml:"ai_rewrite_prompt,omitempty"`
}

// MediaPlayer is one announcement sink: a media player paired with the TTS
// entity that speaks on it. Optional fields fall back to global defaults.
type MediaPlayer struct {
	EntityID    string         `json:"entity_id" yaml:"entity_id"`
	TTSEntityID string         `json:"tts_entity_id" yaml:"tts_entity_id"`
	Volume      *float64       `json:"volume,omitempty" yaml:"volume,omitempty" validate:"omitempty,min=0,max=1"`
	PrerollMS   *int           `json:"preroll_ms,omitempty" yaml:"preroll_ms,omitempty" validate:"omitempty,min=0,max=10000"`
	Cache       bool           `json:"cache" yaml:"cache"`
	Language    string         `json:"language,omitempty" yaml:"language,omitempty"`
	Options     map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// SensorTrigger maps an entity to the state that should fire an announcement.
type SensorTrigger struct {
	EntityID     string `json:"entity_id" yaml:"entity_id"`
	TriggerState string `json:"trigger_state,omitempty" yaml:"trigger_state,omitempty"`
}

// WebhookEntry is one registered webhook. A nil Enabled means enabled.
type WebhookEntry struct {
	WebhookID    string `json:"webhook_id" yaml:"webhook_id"`
	PersonalName string `json:"personal_name,omitempty" yaml:"personal_name,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the webhook should be registered.
func (w WebhookEntry) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// DefaultDocument returns a document carrying every documented default. It is
// the zero state for a fresh install and the base that stored documents are
// decoded over.
func DefaultDocument() Document {
	return Document{
		TTS: TTSConfig{
			PrerollMS:             DefaultPrerollMS,
			HourPattern:           DefaultHourPattern,
			MinuteOffset:          DefaultMinuteOffset,
			StartTime:             DefaultStartTime,
			EndTime:               DefaultEndTime,
			MinutesBeforeAnnounce: DefaultMinutesBeforeAnnounce,
			PrecipThreshold:       DefaultPrecipThreshold,
			WindSpeedThreshold:    DefaultWindSpeedThreshold,
			WindGustThreshold:     DefaultWindGustThreshold,
		},
		MediaPlayers: []MediaPlayer{},
	}
}

// IsConfigured reports whether a weather source has been chosen.
func (d Document) IsConfigured() bool {
	return d.WeatherEntity != ""
}

// EffectiveWebhooks returns the webhook list, upgrading the legacy
// single-webhook fields when the list is empty.
func (t TTSConfig) EffectiveWebhooks() []WebhookEntry {
	if len(t.Webhooks) > 0 {
		return t.Webhooks
	}
	if strings.TrimSpace(t.WebhookID) == "" {
		return nil
	}
	enabled := true
	return []WebhookEntry{{
		WebhookID:    strings.TrimSpace(t.WebhookID),
		PersonalName: t.PersonalName,
		Enabled:      &enabled,
	}}
}

// Normalize upgrades legacy shapes to the canonical form in place. It runs
// once when a document is loaded or saved.
func (d *Document) Normalize() {
	if len(d.TTS.Webhooks) == 0 {
		d.TTS.Webhooks = d.TTS.EffectiveWebhooks()
	}
	d.TTS.WebhookID = ""
	d.TTS.PersonalName = ""

	for i := range d.TTS.SensorTriggers {
		if strings.TrimSpace(d.TTS.SensorTriggers[i].TriggerState) == "" {
			d.TTS.SensorTriggers[i].TriggerState = DefaultTriggerState
		}
	}
	if d.MediaPlayers == nil {
		d.MediaPlayers = []MediaPlayer{}
	}
}

// Clone returns a deep copy so readers can never mutate the cached document.
func (d Document) Clone() Document {
	out := d
	out.TTS.DaysOfWeek = append([]string(nil), d.TTS.DaysOfWeek...)
	out.TTS.SensorTriggers = append([]SensorTrigger(nil), d.TTS.SensorTriggers...)
	out.TTS.Webhooks = make([]WebhookEntry, len(d.TTS.Webhooks))
	for i, w := range d.TTS.Webhooks {
		out.TTS.Webhooks[i] = w
		if w.Enabled != nil {
			v := *w.Enabled
			out.TTS.Webhooks[i].Enabled = &v
		}
	}
	out.MediaPlayers = make([]MediaPlayer, len(d.MediaPlayers))
	for i, mp := range d.MediaPlayers {
		out.MediaPlayers[i] = mp
		if mp.Volume != nil {
			v := *mp.Volume
			out.MediaPlayers[i].Volume = &v
		}
		if mp.PrerollMS != nil {
			v := *mp.PrerollMS
			out.MediaPlayers[i].PrerollMS = &v
		}
		if mp.Options != nil {
			opts := make(map[string]any, len(mp.Options))
			for k, v := range mp.Options {
				opts[k] = v
			}
			out.MediaPlayers[i].Options = opts
		}
	}
	return out
}
