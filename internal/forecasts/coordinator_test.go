package forecasts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homeweather/internal/types"
)

type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *mockLogger) Info(msg string, args ...any)  {}
func (l *mockLogger) Error(msg string, args ...any) {}
func (l *mockLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}
func (l *mockLogger) With(args ...any) types.Logger { return l }

type mockClock struct{ now time.Time }

func (c *mockClock) Now() time.Time { return c.now }

type mockHost struct {
	mu         sync.Mutex
	state      *types.EntityState
	stateErr   error
	forecasts  map[string][]any
	invokeErr  error
	stateCalls int
	requests   []types.ActionRequest
}

func (h *mockHost) GetState(_ context.Context, entityID string) (*types.EntityState, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stateCalls++
	if h.stateErr != nil {
		return nil, h.stateErr
	}
	s := *h.state
	s.EntityID = entityID
	return &s, nil
}

func (h *mockHost) InvokeAction(_ context.Context, req types.ActionRequest) (map[string]any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
	if h.invokeErr != nil {
		return nil, h.invokeErr
	}
	entity := req.Target["entity_id"].(string)
	kind := req.Data["type"].(string)
	return map[string]any{entity: map[string]any{"forecast": h.forecasts[kind]}}, nil
}

var home = time.FixedZone("EDT", -4*3600)

func entry(at time.Time, fields map[string]any) map[string]any {
	m := map[string]any{"datetime": at.Format(time.RFC3339)}
	for k, v := range fields {
		m[k] = v
	}
	return m
}

func newTestCoordinator(doc types.Document, host *mockHost, spacing time.Duration) (*Coordinator, *mockClock, *mockLogger) {
	clock := &mockClock{now: time.Date(2026, 10, 19, 9, 20, 0, 0, home)}
	logger := &mockLogger{}
	return NewCoordinator(host, func() types.Document { return doc }, logger, clock, spacing), clock, logger
}

func configuredDoc() types.Document {
	doc := types.DefaultDocument()
	doc.WeatherEntity = "weather.home"
	return doc
}

func sampleHost() *mockHost {
	base := time.Date(2026, 10, 19, 0, 0, 0, 0, home)
	var hourly []any
	// Out of order, with one past hour and one bad datetime.
	for _, h := range []int{11, 8, 10, 9} {
		hourly = append(hourly, entry(base.Add(time.Duration(h)*time.Hour), map[string]any{
			"temperature": float64(50 + h), "condition": "cloudy", "precipitation_probability": float64(h * 5),
			"wind_gust_speed": 22.0,
		}))
	}
	hourly = append(hourly, map[string]any{"datetime": "later", "temperature": 1.0})

	var daily []any
	for _, d := range []int{2, 0, 1} {
		daily = append(daily, entry(base.AddDate(0, 0, d), map[string]any{"temperature": 60.0, "templow": 40.0}))
	}

	return &mockHost{
		state: &types.EntityState{
			State: "cloudy",
			Attributes: map[string]any{
				"temperature":     58.0,
				"humidity":        "71",
				"wind_speed":      9.2,
				"wind_speed_unit": "mph",
			},
		},
		forecasts: map[string][]any{"hourly": hourly, "daily": daily},
	}
}

func TestCoordinator_Refresh_BuildsSnapshot(t *testing.T) {
	host := sampleHost()
	c, clock, _ := newTestCoordinator(configuredDoc(), host, 0)

	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)

	assert.True(t, snap.Configured)
	assert.Equal(t, clock.now, snap.FetchedAt)
	require.NotNil(t, snap.Current)
	assert.Equal(t, 58.0, *snap.Current.Temperature)
	assert.Equal(t, 71.0, *snap.Current.Humidity, "string attributes are parsed")
	assert.Equal(t, "mph", snap.Current.WindSpeedUnit)
	assert.Equal(t, "cloudy", snap.Current.EffectiveCondition())

	require.Len(t, snap.Hourly, 2, "past and unparseable hours are dropped")
	first, _ := snap.Hourly[0].Time()
	second, _ := snap.Hourly[1].Time()
	assert.Equal(t, 10, first.In(home).Hour())
	assert.Equal(t, 11, second.In(home).Hour())
	assert.Equal(t, 22.0, *snap.Hourly[0].WindGust)

	require.Len(t, snap.Daily, 3)
	for i := 1; i < len(snap.Daily); i++ {
		prev, _ := snap.Daily[i-1].Time()
		cur, _ := snap.Daily[i].Time()
		assert.True(t, prev.Before(cur))
	}
	assert.Equal(t, snap, c.Snapshot())

	require.Len(t, host.requests, 2)
	assert.Equal(t, "weather.get_forecasts", host.requests[0].Name())
	assert.True(t, host.requests[0].ReturnResponse)
	assert.Equal(t, "hourly", host.requests[0].Data["type"])
	assert.Equal(t, "daily", host.requests[1].Data["type"])
}

func TestCoordinator_Refresh_Caps(t *testing.T) {
	base := time.Date(2026, 10, 19, 10, 0, 0, 0, home)
	host := sampleHost()
	host.forecasts = map[string][]any{}
	for i := range 48 {
		host.forecasts["hourly"] = append(host.forecasts["hourly"], entry(base.Add(time.Duration(i)*time.Hour), nil))
	}
	for i := range 10 {
		host.forecasts["daily"] = append(host.forecasts["daily"], entry(base.AddDate(0, 0, i), nil))
	}
	c, _, _ := newTestCoordinator(configuredDoc(), host, 0)

	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Hourly, MaxHourly)
	assert.Len(t, snap.Daily, MaxDaily)
}

func TestCoordinator_Refresh_NotConfigured(t *testing.T) {
	host := sampleHost()
	c, _, _ := newTestCoordinator(types.DefaultDocument(), host, 0)

	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.Configured)
	assert.Nil(t, snap.Current)
	assert.Empty(t, snap.Hourly)
	assert.Zero(t, host.stateCalls)
}

func TestCoordinator_Refresh_FallsBackToForecastAttribute(t *testing.T) {
	host := sampleHost()
	host.invokeErr = errors.New("service not found")
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, home)
	host.state.Attributes["forecast"] = []any{entry(at, map[string]any{"condition": "rainy"})}
	c, _, logger := newTestCoordinator(configuredDoc(), host, 0)

	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Hourly, 1)
	assert.Equal(t, "rainy", snap.Hourly[0].Condition)
	require.Len(t, snap.Daily, 1)
	assert.Contains(t, logger.warns, "forecast service failed, using forecast attribute")
}

func TestCoordinator_Refresh_StateFailureKeepsCache(t *testing.T) {
	host := sampleHost()
	c, clock, _ := newTestCoordinator(configuredDoc(), host, 0)
	good, err := c.Refresh(context.Background())
	require.NoError(t, err)

	host.stateErr = types.NewAppError(types.ErrCodeUpstreamUnavailable, "down", nil)
	clock.now = clock.now.Add(time.Minute)

	snap, err := c.Refresh(context.Background())
	assert.Equal(t, types.ErrCodeUpstreamWeatherRefresh, types.CodeOf(err))
	assert.Equal(t, good, snap)
	assert.Equal(t, good, c.Snapshot())
}

func TestCoordinator_Refresh_Throttled(t *testing.T) {
	host := sampleHost()
	doc := configuredDoc()
	c, clock, _ := newTestCoordinator(doc, host, 30*time.Second)

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)
	clock.now = clock.now.Add(10 * time.Second)
	_, err = c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, host.stateCalls, "second refresh inside spacing uses the cache")

	clock.now = clock.now.Add(25 * time.Second)
	_, err = c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, host.stateCalls)
}

func TestCoordinator_Refresh_EntityChangeBypassesThrottle(t *testing.T) {
	host := sampleHost()
	doc := configuredDoc()
	clock := &mockClock{now: time.Date(2026, 10, 19, 9, 20, 0, 0, home)}
	c := NewCoordinator(host, func() types.Document { return doc }, &mockLogger{}, clock, time.Minute)

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	doc.WeatherEntity = "weather.office"
	_, err = c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, host.stateCalls)
}

func TestCoordinator_Run_StopsOnCancel(t *testing.T) {
	host := sampleHost()
	c, _, _ := newTestCoordinator(configuredDoc(), host, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, time.Hour) }()

	require.Eventually(t, func() bool { return c.Snapshot().Configured }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestFloatAttr(t *testing.T) {
	m := map[string]any{"f": 1.5, "i": 2, "s": "3.5", "bad": "x", "nil": nil}
	assert.Equal(t, 1.5, *floatAttr(m, "f"))
	assert.Equal(t, 2.0, *floatAttr(m, "i"))
	assert.Equal(t, 3.5, *floatAttr(m, "s"))
	assert.Nil(t, floatAttr(m, "bad"))
	assert.Nil(t, floatAttr(m, "nil"))
	assert.Nil(t, floatAttr(m, "missing"))
}
