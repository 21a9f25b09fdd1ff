// Package config defines the process configuration for the announcer.
// Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> struct defaults (Lowest)
//
// Any missing required value or invalid format fails startup. The announcer's
// user-facing settings (sinks, triggers) are not here: they live in the
// settings document managed by internal/settings.
package config

import (
	"time"

	"homeweather/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"home-weather"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Timezone names the home's IANA zone. Empty keeps the process zone.
	Timezone string `envconfig:"HOME_TIMEZONE"`

	Server        ServerConfig
	HomeAssistant HomeAssistantConfig
	Store         StoreConfig
	Weather       WeatherConfig
	Announce      AnnounceConfig
	Metrics       MetricsConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8099"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s" validate:"min=1s"`
}

// HomeAssistantConfig holds the host connection settings.
type HomeAssistantConfig struct {
	URL   string       `envconfig:"HASS_URL" validate:"required,url"`
	Token SecretString `envconfig:"HASS_TOKEN" validate:"required"`
	// WSURL is derived from URL when empty.
	WSURL          string        `envconfig:"HASS_WS_URL" validate:"omitempty,url"`
	RequestTimeout time.Duration `envconfig:"HASS_REQUEST_TIMEOUT" default:"10s" validate:"min=1s"`
}

// StoreConfig selects where the settings document is persisted.
type StoreConfig struct {
	Backend     string       `envconfig:"STORE_BACKEND" default:"file" validate:"oneof=file postgres"`
	Path        string       `envconfig:"STORE_PATH" default:"data/home_weather.yaml"`
	DatabaseURL SecretString `envconfig:"DATABASE_URL" validate:"required_if=Backend postgres"`
	MaxConns    int32        `envconfig:"DB_MAX_CONNS" default:"4" validate:"min=1"`
}

// WeatherConfig tunes the forecast coordinator.
type WeatherConfig struct {
	RefreshInterval   time.Duration `envconfig:"WEATHER_REFRESH_INTERVAL" default:"5m" validate:"min=1m"`
	MinRefreshSpacing time.Duration `envconfig:"WEATHER_MIN_REFRESH_SPACING" default:"30s"`
}

// AnnounceConfig holds dispatcher defaults applied when a sink does not set
// its own.
type AnnounceConfig struct {
	InterSinkDelay time.Duration `envconfig:"ANNOUNCE_INTER_SINK_DELAY" default:"500ms"`
	DefaultVolume  float64       `envconfig:"ANNOUNCE_DEFAULT_VOLUME" default:"0.6" validate:"min=0,max=1"`
	DefaultPreroll time.Duration `envconfig:"ANNOUNCE_DEFAULT_PREROLL" default:"150ms"`
}

// MetricsConfig selects the announcement metrics backend.
type MetricsConfig struct {
	Backend     string `envconfig:"METRICS_BACKEND" default:"none" validate:"oneof=none prometheus cloudwatch"`
	Namespace   string `envconfig:"METRICS_NAMESPACE" default:"HomeWeather"`
	AWSRegion   string `envconfig:"AWS_REGION" default:"us-east-1"`
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrTimezone indicates HOME_TIMEZONE does not name a known zone.
	ErrTimezone ConfigErrorType = "TIMEZONE_INVALID"
)
