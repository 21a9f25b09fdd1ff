package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homeweather/internal/notifications/core"
	"homeweather/internal/types"
)

type mockLogger struct{}

func (l *mockLogger) Info(msg string, args ...any)  {}
func (l *mockLogger) Error(msg string, args ...any) {}
func (l *mockLogger) Warn(msg string, args ...any)  {}
func (l *mockLogger) With(args ...any) types.Logger { return l }

// event is one observable step: an action call or a sleep.
type event struct {
	name   string
	entity string
	delay  time.Duration
	req    types.ActionRequest
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.add(event{name: "sleep", delay: d})
	return nil
}

// mockInvoker records actions and fails the ones selected by failOn.
type mockInvoker struct {
	rec      *recorder
	failOn   func(req types.ActionRequest) error
	response map[string]any
}

func (m *mockInvoker) InvokeAction(_ context.Context, req types.ActionRequest) (map[string]any, error) {
	entity, _ := req.Data["entity_id"].(string)
	if e, ok := req.Data["media_player_entity_id"].(string); ok {
		entity = e
	}
	m.rec.add(event{name: req.Name(), entity: entity, req: req})
	if m.failOn != nil {
		if err := m.failOn(req); err != nil {
			return nil, err
		}
	}
	if req.ReturnResponse {
		return m.response, nil
	}
	return nil, nil
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[types.SinkOutcome]int
}

func (m *countingMetrics) RecordAnnouncement(context.Context, types.TriggerKind, core.MetricResult) {}
func (m *countingMetrics) RecordLatency(context.Context, types.TriggerKind, time.Duration)          {}
func (m *countingMetrics) RecordSinkDelivery(_ context.Context, o types.SinkOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = map[types.SinkOutcome]int{}
	}
	m.outcomes[o]++
}

func sinks(n int) []types.MediaPlayer {
	out := make([]types.MediaPlayer, n)
	for i := range out {
		out[i] = types.MediaPlayer{
			EntityID:    fmt.Sprintf("media_player.room%d", i+1),
			TTSEntityID: "tts.cloud",
		}
	}
	return out
}

func newTestDispatcher(inv *mockInvoker, metrics core.AnnouncementMetrics) *Dispatcher {
	return NewDispatcher(inv, metrics, &mockLogger{}, WithSleepFunc(inv.rec.sleep))
}

func TestDispatcher_Dispatch_SpeakFailureOnMiddleSinkContinues(t *testing.T) {
	rec := &recorder{}
	inv := &mockInvoker{rec: rec, failOn: func(req types.ActionRequest) error {
		if req.Name() == "tts.speak" && req.Data["media_player_entity_id"] == "media_player.room2" {
			return errors.New("speaker offline")
		}
		return nil
	}}
	metrics := &countingMetrics{}

	report := newTestDispatcher(inv, metrics).Dispatch(context.Background(), sinks(3), types.TTSConfig{}, "Hello", nil)

	want := []event{
		{name: "media_player.volume_set", entity: "media_player.room1"},
		{name: "sleep", delay: 150 * time.Millisecond},
		{name: "tts.speak", entity: "media_player.room1"},
		{name: "sleep", delay: 500 * time.Millisecond},
		{name: "media_player.volume_set", entity: "media_player.room2"},
		{name: "sleep", delay: 150 * time.Millisecond},
		{name: "tts.speak", entity: "media_player.room2"},
		{name: "sleep", delay: 500 * time.Millisecond},
		{name: "media_player.volume_set", entity: "media_player.room3"},
		{name: "sleep", delay: 150 * time.Millisecond},
		{name: "tts.speak", entity: "media_player.room3"},
	}
	require.Len(t, rec.events, len(want))
	for i, w := range want {
		assert.Equal(t, w.name, rec.events[i].name, "event %d", i)
		assert.Equal(t, w.entity, rec.events[i].entity, "event %d", i)
		assert.Equal(t, w.delay, rec.events[i].delay, "event %d", i)
	}

	require.Len(t, report.Sinks, 3)
	assert.Equal(t, types.SinkDelivered, report.Sinks[0].Outcome)
	assert.Equal(t, types.SinkFailed, report.Sinks[1].Outcome)
	assert.Equal(t, types.StepSpeak, report.Sinks[1].FailedStep)
	assert.Equal(t, "speaker offline", report.Sinks[1].Error)
	assert.Equal(t, types.SinkDelivered, report.Sinks[2].Outcome)
	assert.Equal(t, core.MetricPartial, report.Result())
	assert.Equal(t, 2, metrics.outcomes[types.SinkDelivered])
	assert.Equal(t, 1, metrics.outcomes[types.SinkFailed])
}

func TestDispatcher_Dispatch_VolumeFailureStillSpeaks(t *testing.T) {
	rec := &recorder{}
	inv := &mockInvoker{rec: rec, failOn: func(req types.ActionRequest) error {
		if req.Action == "volume_set" {
			return errors.New("unsupported")
		}
		return nil
	}}

	report := newTestDispatcher(inv, nil).Dispatch(context.Background(), sinks(1), types.TTSConfig{}, "Hello", nil)

	require.Len(t, report.Sinks, 1)
	assert.Equal(t, types.SinkDelivered, report.Sinks[0].Outcome)
	assert.Equal(t, types.StepVolume, report.Sinks[0].FailedStep)
	assert.Equal(t, "tts.speak", rec.events[len(rec.events)-1].name)
}

func TestDispatcher_Dispatch_ResolvesSinkSettings(t *testing.T) {
	rec := &recorder{}
	inv := &mockInvoker{rec: rec}
	preroll := 0
	players := []types.MediaPlayer{
		{
			EntityID:    "media_player.kitchen",
			TTSEntityID: "tts.piper",
			Volume:      types.Float(0.3),
			PrerollMS:   &preroll,
			Cache:       true,
			Language:    "  en-GB ",
			Options:     map[string]any{"voice": "amy"},
		},
		{EntityID: "media_player.den", TTSEntityID: "tts.piper", Language: "   "},
	}

	newTestDispatcher(inv, nil).Dispatch(context.Background(), players, types.TTSConfig{}, "Hi", nil)

	var calls []types.ActionRequest
	var sleeps []time.Duration
	for _, e := range rec.events {
		if e.name == "sleep" {
			sleeps = append(sleeps, e.delay)
			continue
		}
		calls = append(calls, e.req)
	}
	require.Len(t, calls, 4)

	assert.Equal(t, 0.3, calls[0].Data["volume_level"])
	assert.True(t, calls[0].Blocking)
	assert.Equal(t, map[string]any{
		"media_player_entity_id": "media_player.kitchen",
		"message":                "Hi",
		"cache":                  true,
		"language":               "en-GB",
		"options":                map[string]any{"voice": "amy"},
	}, calls[1].Data)
	assert.Equal(t, map[string]any{"entity_id": "tts.piper"}, calls[1].Target)

	assert.Equal(t, types.DefaultSinkVolume, calls[2].Data["volume_level"])
	assert.NotContains(t, calls[3].Data, "language")
	assert.NotContains(t, calls[3].Data, "options")

	// Zero preroll on the first sink is not slept.
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 150 * time.Millisecond}, sleeps)
}

func TestDispatcher_Dispatch_VolumeOverride(t *testing.T) {
	rec := &recorder{}
	inv := &mockInvoker{rec: rec}
	players := sinks(1)
	players[0].Volume = types.Float(0.9)

	newTestDispatcher(inv, nil).Dispatch(context.Background(), players, types.TTSConfig{}, "Hi", types.Float(0.2))

	assert.Equal(t, 0.2, rec.events[0].req.Data["volume_level"])
}

func TestDispatcher_Dispatch_SkipsIncompleteSinks(t *testing.T) {
	rec := &recorder{}
	inv := &mockInvoker{rec: rec}
	metrics := &countingMetrics{}
	players := []types.MediaPlayer{
		{TTSEntityID: "tts.cloud"},
		{EntityID: "media_player.hall"},
		{EntityID: "media_player.office", TTSEntityID: "tts.cloud"},
	}

	report := newTestDispatcher(inv, metrics).Dispatch(context.Background(), players, types.TTSConfig{}, "Hi", nil)

	require.Len(t, report.Sinks, 3)
	assert.Equal(t, types.SinkSkipped, report.Sinks[0].Outcome)
	assert.Equal(t, types.SinkSkipped, report.Sinks[1].Outcome)
	assert.Equal(t, types.SinkDelivered, report.Sinks[2].Outcome)
	assert.Equal(t, core.MetricSuccess, report.Result())
	assert.Equal(t, 2, metrics.outcomes[types.SinkSkipped])

	for _, e := range rec.events {
		if e.name != "sleep" {
			assert.Equal(t, "media_player.office", e.entity)
		}
	}
}

func TestDispatcher_Dispatch_EmptyMessageShortCircuits(t *testing.T) {
	rec := &recorder{}
	inv := &mockInvoker{rec: rec}

	report := newTestDispatcher(inv, nil).Dispatch(context.Background(), sinks(2), types.TTSConfig{}, "   ", nil)

	assert.Empty(t, rec.events)
	assert.Empty(t, report.Sinks)
	assert.Equal(t, core.MetricSkipped, report.Result())
}

func TestDispatcher_Dispatch_NoSinks(t *testing.T) {
	rec := &recorder{}
	report := newTestDispatcher(&mockInvoker{rec: rec}, nil).Dispatch(context.Background(), nil, types.TTSConfig{}, "Hi", nil)
	assert.Empty(t, rec.events)
	assert.Empty(t, report.Sinks)
}

func TestDispatcher_Dispatch_AIRewrite(t *testing.T) {
	cfg := types.TTSConfig{UseAIRewrite: true, AITaskEntity: "ai_task.openai", AIRewritePrompt: "Be brief"}

	tests := []struct {
		name      string
		response  map[string]any
		fail      bool
		want      string
		rewritten bool
	}{
		{"output key", map[string]any{"output": "Short weather."}, false, "Short weather.", true},
		{"text key", map[string]any{"text": "Text weather."}, false, "Text weather.", true},
		{"result key", map[string]any{"output": "", "result": "Result weather."}, false, "Result weather.", true},
		{"data key", map[string]any{"data": "Generated weather."}, false, "Generated weather.", true},
		{"non-string output", map[string]any{"output": 42}, false, "Original", false},
		{"empty response", nil, false, "Original", false},
		{"call fails", nil, true, "Original", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			inv := &mockInvoker{rec: rec, response: tt.response}
			if tt.fail {
				inv.failOn = func(req types.ActionRequest) error {
					if req.Domain == aiTaskDomain {
						return errors.New("model unavailable")
					}
					return nil
				}
			}

			report := newTestDispatcher(inv, nil).Dispatch(context.Background(), sinks(1), cfg, "Original", nil)

			assert.Equal(t, tt.want, report.Message)
			assert.Equal(t, tt.rewritten, report.Rewritten)

			first := rec.events[0].req
			assert.Equal(t, "ai_task.generate_data", first.Name())
			assert.True(t, first.ReturnResponse)
			assert.Equal(t, "ai_task.openai", first.Data["entity_id"])
			assert.Equal(t, "text", first.Data["task_type"])
			assert.Equal(t, map[string]any{"original_message": "Original", "prompt": "Be brief"}, first.Data["input_data"])

			speak := rec.events[len(rec.events)-1].req
			assert.Equal(t, tt.want, speak.Data["message"])
		})
	}
}

func TestDispatcher_Dispatch_AIRewriteNeedsEntity(t *testing.T) {
	rec := &recorder{}
	inv := &mockInvoker{rec: rec}
	cfg := types.TTSConfig{UseAIRewrite: true}

	newTestDispatcher(inv, nil).Dispatch(context.Background(), sinks(1), cfg, "Hi", nil)

	assert.Equal(t, "media_player.volume_set", rec.events[0].name)
}

func TestDispatcher_Dispatch_CancelledContextSkipsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	inv := &mockInvoker{rec: rec}
	d := NewDispatcher(inv, nil, &mockLogger{}, WithSleepFunc(func(_ context.Context, dur time.Duration) error {
		rec.add(event{name: "sleep", delay: dur})
		if dur == 500*time.Millisecond {
			cancel()
		}
		return nil
	}))

	report := d.Dispatch(ctx, sinks(3), types.TTSConfig{}, "Hi", nil)

	require.Len(t, report.Sinks, 3)
	assert.Equal(t, types.SinkDelivered, report.Sinks[0].Outcome)
	assert.Equal(t, types.SinkSkipped, report.Sinks[1].Outcome)
	assert.Equal(t, types.SinkSkipped, report.Sinks[2].Outcome)
}

func TestDispatcher_Dispatch_GlobalPrerollAndLanguage(t *testing.T) {
	rec := &recorder{}
	inv := &mockInvoker{rec: rec}
	cfg := types.TTSConfig{PrerollMS: 400, Language: "de-DE"}

	newTestDispatcher(inv, nil).Dispatch(context.Background(), sinks(1), cfg, "Hallo", nil)

	require.Len(t, rec.events, 3)
	assert.Equal(t, 400*time.Millisecond, rec.events[1].delay)
	assert.Equal(t, "de-DE", rec.events[2].req.Data["language"])
}

func TestSleepCtx(t *testing.T) {
	assert.NoError(t, sleepCtx(context.Background(), 0))
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}
