// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Load .env file via godotenv (non-fatal if absent).
//  2. Use envconfig to process struct tags and populate the Config struct.
//  3. Pin time.Local to HOME_TIMEZONE so schedules use home wall-clock time.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid debugging.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// loaderDeps holds the injectable side effects of loading.
type loaderDeps struct {
	loadDotenv   func(files ...string) error
	loadLocation func(name string) (*time.Location, error)
	setLocal     func(*time.Location)
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		loadDotenv:   godotenv.Load,
		loadLocation: time.LoadLocation,
		setLocal:     func(loc *time.Location) { time.Local = loc },
	}
}

// LoadConfig loads and validates the process configuration.
func LoadConfig(dotenvFiles ...string) (*Config, error) {
	return loadConfigWithDeps(defaultDeps(), dotenvFiles...)
}

func loadConfigWithDeps(deps loaderDeps, dotenvFiles ...string) (*Config, error) {
	// Step 1: godotenv does NOT override existing environment variables and a
	// missing file is not an error worth failing on.
	_ = deps.loadDotenv(dotenvFiles...)

	// Step 2: Process envconfig tags.
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	// Step 3: Pin the process timezone.
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		loc, err := deps.loadLocation(tz)
		if err != nil {
			return nil, &ConfigError{
				Type:    ErrTimezone,
				Message: fmt.Sprintf("unknown HOME_TIMEZONE %q", tz),
				Err:     err,
			}
		}
		deps.setLocal(loc)
	}

	// Step 4: Build metadata.
	cfg.Build = NewBuildInfo()

	// Step 5: Validate.
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}

// LoadStoreConfig loads only the settings store section. Offline tooling
// uses it without needing Home Assistant credentials.
func LoadStoreConfig(dotenvFiles ...string) (*StoreConfig, error) {
	return loadStoreConfigWithDeps(defaultDeps(), dotenvFiles...)
}

func loadStoreConfigWithDeps(deps loaderDeps, dotenvFiles ...string) (*StoreConfig, error) {
	_ = deps.loadDotenv(dotenvFiles...)

	var cfg StoreConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process store configuration",
			Err:     err,
		}
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "store configuration validation failed",
			Err:     err,
		}
	}
	return &cfg, nil
}
