package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"homeweather/internal/gate"
	"homeweather/internal/types"
)

// Service caches the configuration document in front of a Store. Current is
// safe for concurrent use and always returns a private copy.
type Service struct {
	store    Store
	logger   types.Logger
	validate *validator.Validate

	mu  sync.RWMutex
	doc types.Document
}

// NewService creates a Service holding the default document until Load.
func NewService(store Store, logger types.Logger) *Service {
	return &Service{
		store:    store,
		logger:   logger,
		validate: validator.New(),
		doc:      types.DefaultDocument(),
	}
}

// Current returns a copy of the cached document.
func (s *Service) Current() types.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// Load reads the document from the store into the cache. A missing or
// undecodable document yields the defaults; storage failures are returned
// and leave the cache untouched.
func (s *Service) Load(ctx context.Context) (types.Document, error) {
	stored, found, err := s.store.Load(ctx)
	switch {
	case types.CodeOf(err) == types.ErrCodeParseDocument:
		s.logger.Warn("stored settings are unreadable, using defaults", "error", err.Error())
		stored = nil
	case err != nil:
		return s.Current(), fmt.Errorf("load settings: %w", err)
	case !found:
		s.logger.Info("no stored settings, using defaults")
	}

	doc := types.DefaultDocument()
	if stored != nil {
		doc = *stored
	}
	doc.Normalize()

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return doc.Clone(), nil
}

// Reload re-reads the document from the store.
func (s *Service) Reload(ctx context.Context) (types.Document, error) {
	return s.Load(ctx)
}

// Save normalizes and validates doc, persists it, and then updates the cache.
// Invalid documents are rejected with ErrCodeValidationDocument (or
// ErrCodeValidationTimeOfDay) and nothing is written.
func (s *Service) Save(ctx context.Context, doc types.Document) (types.Document, error) {
	doc = doc.Clone()
	doc.Normalize()
	if err := s.Validate(doc); err != nil {
		return types.Document{}, err
	}
	if err := s.store.Save(ctx, &doc); err != nil {
		return types.Document{}, fmt.Errorf("save settings: %w", err)
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	s.logger.Info("settings saved", "weather_entity", doc.WeatherEntity, "media_players", len(doc.MediaPlayers))
	return doc.Clone(), nil
}

// Validate applies the struct constraints and the cross-field rules the
// trigger engine relies on.
func (s *Service) Validate(doc types.Document) error {
	var problems []string

	if err := s.validate.Struct(doc); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "settings validation failed", err)
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}

	for _, field := range []struct{ name, value string }{
		{"tts.start_time", doc.TTS.StartTime},
		{"tts.end_time", doc.TTS.EndTime},
	} {
		if _, err := gate.ParseClockTime(field.value); err != nil {
			return types.NewAppErrorWithDetails(types.ErrCodeValidationTimeOfDay,
				field.name+" must be HH:MM", err, map[string]any{"field": field.name, "value": field.value})
		}
	}

	seen := make(map[string]bool, len(doc.TTS.Webhooks))
	for i, wh := range doc.TTS.Webhooks {
		id := strings.TrimSpace(wh.WebhookID)
		switch {
		case id == "":
			problems = append(problems, fmt.Sprintf("tts.webhooks[%d].webhook_id is required", i))
		case seen[id]:
			problems = append(problems, fmt.Sprintf("tts.webhooks[%d].webhook_id %q is duplicated", i, id))
		}
		seen[id] = true
	}
	for i, st := range doc.TTS.SensorTriggers {
		if strings.TrimSpace(st.EntityID) == "" {
			problems = append(problems, fmt.Sprintf("tts.sensor_triggers[%d].entity_id is required", i))
		}
	}
	for i, mp := range doc.MediaPlayers {
		if strings.TrimSpace(mp.EntityID) == "" {
			problems = append(problems, fmt.Sprintf("media_players[%d].entity_id is required", i))
		}
	}

	if len(problems) > 0 {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationDocument,
			"settings document is invalid", nil, map[string]any{"problems": problems})
	}
	return nil
}
