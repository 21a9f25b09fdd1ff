// Package forecasts keeps the weather snapshot the announcer speaks from.
//
// The Coordinator reads the configured weather entity and its hourly and
// daily forecasts from the host, normalizes them into a types.Snapshot and
// publishes it for lock-free pull access by the trigger engine. Refreshes are
// spaced by a token-bucket limiter so bursts of triggers share one fetch.
package forecasts

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"homeweather/internal/types"
)

const (
	// MaxHourly is the number of hourly entries kept in a snapshot.
	MaxHourly = 24
	// MaxDaily is the number of daily entries kept in a snapshot.
	MaxDaily = 7
)

// HostClient is the slice of the host API the coordinator needs.
type HostClient interface {
	GetState(ctx context.Context, entityID string) (*types.EntityState, error)
	InvokeAction(ctx context.Context, req types.ActionRequest) (map[string]any, error)
}

// Coordinator fetches and caches the weather snapshot.
type Coordinator struct {
	host    HostClient
	config  func() types.Document
	logger  types.Logger
	clock   types.Clock
	limiter *rate.Limiter

	refreshMu  sync.Mutex
	lastEntity string

	mu   sync.RWMutex
	snap types.Snapshot
}

// NewCoordinator creates a Coordinator. Refreshes closer together than
// minSpacing return the cached snapshot; zero disables throttling.
func NewCoordinator(host HostClient, config func() types.Document, logger types.Logger, clock types.Clock, minSpacing time.Duration) *Coordinator {
	if clock == nil {
		clock = types.RealClock{}
	}
	limit := rate.Inf
	if minSpacing > 0 {
		limit = rate.Every(minSpacing)
	}
	return &Coordinator{
		host:    host,
		config:  config,
		logger:  logger,
		clock:   clock,
		limiter: rate.NewLimiter(limit, 1),
		snap:    types.Snapshot{Hourly: []types.HourlyForecast{}, Daily: []types.DailyForecast{}},
	}
}

// Snapshot returns the last published snapshot.
func (c *Coordinator) Snapshot() types.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Refresh fetches a fresh snapshot and publishes it. When throttled it
// returns the cached snapshot. On failure the cached snapshot is returned
// alongside an ErrCodeUpstreamWeatherRefresh error.
func (c *Coordinator) Refresh(ctx context.Context) (types.Snapshot, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	now := c.clock.Now()
	doc := c.config()
	if !doc.IsConfigured() {
		snap := types.Snapshot{Hourly: []types.HourlyForecast{}, Daily: []types.DailyForecast{}, FetchedAt: now}
		c.lastEntity = ""
		c.publish(snap)
		return snap, nil
	}

	entity := doc.WeatherEntity
	// A changed entity always refreshes but still takes a token.
	allowed := c.limiter.AllowN(now, 1)
	if entity == c.lastEntity && !allowed {
		return c.Snapshot(), nil
	}

	state, err := c.host.GetState(ctx, entity)
	if err != nil {
		return c.Snapshot(), types.NewAppErrorWithDetails(types.ErrCodeUpstreamWeatherRefresh,
			"failed to read weather entity", err, map[string]any{"entity_id": entity})
	}

	snap := types.Snapshot{
		Current:    currentFromState(state),
		Configured: true,
		FetchedAt:  now,
	}

	hourlyRaw, hourlyErr := c.fetchForecast(ctx, entity, "hourly")
	dailyRaw, dailyErr := c.fetchForecast(ctx, entity, "daily")
	if hourlyErr != nil || dailyErr != nil {
		c.logger.Warn("forecast service failed, using forecast attribute",
			"entity_id", entity, "error", firstErr(hourlyErr, dailyErr).Error())
		attr, _ := state.Attributes["forecast"].([]any)
		hourlyRaw, dailyRaw = attr, attr
	}
	snap.Hourly = normalizeHourly(hourlyRaw, now)
	snap.Daily = normalizeDaily(dailyRaw)

	c.lastEntity = entity
	c.publish(snap)
	return snap, nil
}

// Run refreshes immediately and then every interval until ctx is done.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("weather refresh failed", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) publish(snap types.Snapshot) {
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}

func (c *Coordinator) fetchForecast(ctx context.Context, entity, kind string) ([]any, error) {
	resp, err := c.host.InvokeAction(ctx, types.ActionRequest{
		Domain:         "weather",
		Action:         "get_forecasts",
		Data:           map[string]any{"type": kind},
		Target:         map[string]any{"entity_id": entity},
		Blocking:       true,
		ReturnResponse: true,
	})
	if err != nil {
		return nil, err
	}
	entry, _ := resp[entity].(map[string]any)
	items, ok := entry["forecast"].([]any)
	if !ok {
		return nil, types.NewAppError(types.ErrCodeParseHostResponse, "forecast response has no "+kind+" list", nil)
	}
	return items, nil
}

func currentFromState(state *types.EntityState) *types.CurrentConditions {
	attrs := state.Attributes
	cond, _ := attrs["condition"].(string)
	return &types.CurrentConditions{
		Temperature:       floatAttr(attrs, "temperature"),
		Condition:         cond,
		Humidity:          floatAttr(attrs, "humidity"),
		WindSpeed:         floatAttr(attrs, "wind_speed"),
		WindSpeedUnit:     stringAttr(attrs, "wind_speed_unit"),
		Precipitation:     floatAttr(attrs, "precipitation"),
		PrecipitationUnit: stringAttr(attrs, "precipitation_unit"),
		State:             state.State,
	}
}

// normalizeHourly keeps entries at or after now, in order, capped at MaxHourly.
// Entries without a parseable datetime cannot be placed and are dropped.
func normalizeHourly(items []any, now time.Time) []types.HourlyForecast {
	type timed struct {
		at time.Time
		h  types.HourlyForecast
	}
	var kept []timed
	for _, raw := range items {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		h := types.HourlyForecast{
			Datetime:                 stringAttr(m, "datetime"),
			Temperature:              floatAttr(m, "temperature"),
			Condition:                stringAttr(m, "condition"),
			PrecipitationProbability: floatAttr(m, "precipitation_probability"),
			PrecipitationKind:        stringAttr(m, "precipitation_kind"),
			WindSpeed:                floatAttr(m, "wind_speed"),
			WindGust:                 floatAttr(m, "wind_gust_speed"),
		}
		at, ok := h.Time()
		if !ok || at.Before(now) {
			continue
		}
		kept = append(kept, timed{at: at, h: h})
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].at.Before(kept[j].at) })

	out := make([]types.HourlyForecast, 0, min(len(kept), MaxHourly))
	for i := 0; i < len(kept) && i < MaxHourly; i++ {
		out = append(out, kept[i].h)
	}
	return out
}

// normalizeDaily sorts by date, with unparseable entries last, capped at
// MaxDaily.
func normalizeDaily(items []any) []types.DailyForecast {
	out := make([]types.DailyForecast, 0, len(items))
	for _, raw := range items {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, types.DailyForecast{
			Datetime:                 stringAttr(m, "datetime"),
			Temperature:              floatAttr(m, "temperature"),
			TempLow:                  floatAttr(m, "templow"),
			Condition:                stringAttr(m, "condition"),
			PrecipitationProbability: floatAttr(m, "precipitation_probability"),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, okI := out[i].Time()
		tj, okJ := out[j].Time()
		if okI != okJ {
			return okI
		}
		return okI && ti.Before(tj)
	})
	if len(out) > MaxDaily {
		out = out[:MaxDaily]
	}
	return out
}

func floatAttr(m map[string]any, key string) *float64 {
	switch v := m[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return &f
		}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return &f
		}
	}
	return nil
}

func stringAttr(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
