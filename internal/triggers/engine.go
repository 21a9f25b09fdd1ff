// Package triggers owns the announcement triggers: it arms each enabled kind
// against the host's scheduler, state stream and webhook surface, and turns
// their events into announcements.
package triggers

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"homeweather/internal/announce"
	"homeweather/internal/gate"
	"homeweather/internal/notifications/core"
	"homeweather/internal/notifications/tts"
	"homeweather/internal/types"
)

const defaultPollInterval = 5 * time.Minute

// Scheduler delivers wall-clock ticks.
type Scheduler interface {
	EveryHourAt(minute int, fn func(now time.Time)) (types.Subscription, error)
	Every(interval time.Duration, fn func(now time.Time)) (types.Subscription, error)
}

// StateWatcher streams state changes for a set of entities.
type StateWatcher interface {
	WatchStates(entityIDs []string, fn func(types.StateChange)) (types.Subscription, error)
}

// StateReader reads one entity's current state.
type StateReader interface {
	GetState(ctx context.Context, entityID string) (*types.EntityState, error)
}

// WebhookRegistrar exposes handlers on the host's webhook surface.
type WebhookRegistrar interface {
	RegisterWebhook(id, name string, handler types.WebhookHandler) error
	UnregisterWebhook(id string) error
}

// Dispatcher delivers a message to the configured sinks.
type Dispatcher interface {
	Dispatch(ctx context.Context, sinks []types.MediaPlayer, cfg types.TTSConfig, message string, volume *float64) tts.Report
}

// Refresher refreshes the weather snapshot.
type Refresher interface {
	Refresh(ctx context.Context) (types.Snapshot, error)
}

// Deps are the engine's accessors and host capabilities. Config, Snapshot
// and Dispatcher are required; a nil capability makes the kinds that need it
// fail to arm.
type Deps struct {
	Config     func() types.Document
	Snapshot   func() types.Snapshot
	Refresher  Refresher
	Scheduler  Scheduler
	States     StateWatcher
	Reader     StateReader
	Webhooks   WebhookRegistrar
	Dispatcher Dispatcher
	Metrics    core.AnnouncementMetrics
	Logger     types.Logger
	Clock      types.Clock

	// PollInterval is the upcoming-precipitation check interval.
	PollInterval time.Duration
}

// State is the engine lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type handle struct {
	kind types.TriggerKind
	sub  types.Subscription
}

// Engine arms triggers and fires announcements. Firings run on their own
// goroutines and are never cancelled by Stop.
type Engine struct {
	deps   Deps
	logger types.Logger

	// baseCtx parents timer-driven firings. It carries no deadline.
	baseCtx context.Context

	mu       sync.Mutex
	state    State
	handles  []handle
	webhooks []string
	armed    []types.TriggerKind

	lastMu        sync.Mutex
	lastTriggered map[string]time.Time

	upcomingFired *firedHours

	wg sync.WaitGroup
}

// NewEngine validates deps and returns a stopped engine.
func NewEngine(deps Deps) (*Engine, error) {
	var missing []error
	if deps.Config == nil {
		missing = append(missing, errors.New("config accessor"))
	}
	if deps.Snapshot == nil {
		missing = append(missing, errors.New("snapshot accessor"))
	}
	if deps.Dispatcher == nil {
		missing = append(missing, errors.New("dispatcher"))
	}
	if deps.Logger == nil {
		missing = append(missing, errors.New("logger"))
	}
	if len(missing) > 0 {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"trigger engine is missing required dependencies", errors.Join(missing...))
	}
	if deps.Metrics == nil {
		deps.Metrics = core.NoopMetrics{}
	}
	if deps.Clock == nil {
		deps.Clock = types.RealClock{}
	}
	if deps.PollInterval <= 0 {
		deps.PollInterval = defaultPollInterval
	}
	return &Engine{
		deps:          deps,
		logger:        deps.Logger,
		baseCtx:       context.Background(),
		lastTriggered: make(map[string]time.Time),
		upcomingFired: newFiredHours(),
	}, nil
}

// Start reads the configuration once and arms every enabled kind. It is a
// no-op unless the engine is stopped. A kind that fails to arm is logged and
// does not affect the others; the engine still runs with the kinds that armed
// and Start returns a conflict_engine_state error naming the failed kinds.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateStopped {
		return nil
	}
	e.state = StateStarting

	doc := e.deps.Config()
	if !doc.TTS.Enabled {
		e.logger.Info("announcements disabled, no triggers armed")
		e.state = StateRunning
		return nil
	}

	arms := map[types.TriggerKind]func(context.Context, types.Document) (bool, error){
		types.TriggerTimeBased:      e.armTimeBased,
		types.TriggerCurrentChange:  e.armCurrentChange,
		types.TriggerUpcomingPrecip: e.armUpcoming,
		types.TriggerSensor:         e.armSensors,
		types.TriggerWebhook:        e.armWebhooks,
		types.TriggerVoiceSatellite: e.armVoiceSatellite,
	}
	var failed []string
	var errs []error
	for _, kind := range types.AllTriggerKinds {
		ok, err := e.arm(ctx, kind, doc, arms[kind])
		switch {
		case err != nil:
			e.logger.Error("failed to arm trigger", "trigger", string(kind), "error", err.Error())
			failed = append(failed, string(kind))
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
		case ok:
			e.armed = append(e.armed, kind)
		}
	}

	e.state = StateRunning
	e.logger.Info("announcement triggers armed", "armed", fmt.Sprint(e.armed), "handles", len(e.handles))
	if len(failed) > 0 {
		return types.NewAppErrorWithDetails(types.ErrCodeConflictEngineState,
			"some triggers failed to arm", errors.Join(errs...), map[string]any{"failed": failed})
	}
	return nil
}

func (e *Engine) arm(ctx context.Context, kind types.TriggerKind, doc types.Document,
	fn func(context.Context, types.Document) (bool, error)) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("panic while arming: %v", r)
		}
	}()
	return fn(ctx, doc)
}

// Stop releases every timer, listener and webhook registration. It is a
// no-op on a stopped engine. Individual release failures are logged.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return nil
	}
	e.state = StateStopping

	for _, h := range e.handles {
		if err := h.sub.Unsubscribe(); err != nil {
			e.logger.Warn("failed to release trigger", "trigger", string(h.kind), "error", err.Error())
		}
	}
	for _, id := range e.webhooks {
		if err := e.deps.Webhooks.UnregisterWebhook(id); err != nil {
			e.logger.Warn("failed to unregister webhook", "webhook_id", id, "error", err.Error())
		}
	}
	e.handles = nil
	e.webhooks = nil
	e.armed = nil

	e.state = StateStopped
	e.logger.Info("announcement triggers released")
	return nil
}

// Reload re-arms from the current configuration. Arming failures surface as
// they do from Start.
func (e *Engine) Reload(ctx context.Context) error {
	if err := e.Stop(ctx); err != nil {
		return err
	}
	return e.Start(ctx)
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Armed returns the kinds armed by the last Start.
func (e *Engine) Armed() []types.TriggerKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.TriggerKind(nil), e.armed...)
}

// Wait blocks until in-flight firings finish.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// LastTriggered returns a copy of the per-webhook last-triggered times (UTC).
func (e *Engine) LastTriggered() map[string]time.Time {
	e.lastMu.Lock()
	defer e.lastMu.Unlock()
	out := make(map[string]time.Time, len(e.lastTriggered))
	for k, v := range e.lastTriggered {
		out[k] = v
	}
	return out
}

func (e *Engine) recordWebhook(id string, at time.Time) {
	e.lastMu.Lock()
	defer e.lastMu.Unlock()
	e.lastTriggered[id] = at.UTC()
}

// AnnounceNow fires the scheduled forecast synchronously. Delivery is not
// cancelled by ctx.
func (e *Engine) AnnounceNow(ctx context.Context) (tts.Report, error) {
	e.wg.Add(1)
	defer e.wg.Done()

	ctx = context.WithoutCancel(ctx)
	doc := e.deps.Config()
	if len(doc.MediaPlayers) == 0 {
		e.deps.Metrics.RecordAnnouncement(ctx, types.TriggerManual, core.MetricSkipped)
		return tts.Report{}, types.NewAppError(types.ErrCodeConfigIncomplete, "no media players configured", nil)
	}
	snap := e.snapshot(ctx)
	now := e.deps.Clock.Now()
	msg := announce.ScheduledForecast(now, snap, doc, "")
	return e.announce(ctx, types.TriggerManual, doc, msg, nil), nil
}

// spawn runs fn on its own goroutine, detached from parent's cancellation.
// Panics are recovered and logged.
func (e *Engine) spawn(parent context.Context, kind types.TriggerKind, fn func(ctx context.Context, logger types.Logger)) {
	ctx := context.WithoutCancel(parent)
	logger := e.logger.With("trigger", string(kind))
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("trigger handler panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			}
		}()
		fn(ctx, logger)
	}()
}

// snapshot refreshes weather data and falls back to the last snapshot when
// the refresh fails.
func (e *Engine) snapshot(ctx context.Context) types.Snapshot {
	if e.deps.Refresher == nil {
		return e.deps.Snapshot()
	}
	snap, err := e.deps.Refresher.Refresh(ctx)
	if err != nil {
		code := types.CodeOf(err)
		if code.IsTransient() {
			e.logger.Warn("weather refresh failed, using last snapshot", "code", string(code), "error", err.Error())
		} else {
			e.logger.Error("weather refresh failed unexpectedly, using last snapshot", "code", string(code), "error", err.Error())
		}
		return e.deps.Snapshot()
	}
	return snap
}

// fireScheduled builds and sends the full forecast. Used by the time-based
// and sensor kinds.
func (e *Engine) fireScheduled(parent context.Context, kind types.TriggerKind) {
	e.spawn(parent, kind, func(ctx context.Context, logger types.Logger) {
		doc := e.deps.Config()
		if len(doc.MediaPlayers) == 0 {
			logger.Info("no media players configured, skipping announcement")
			return
		}
		snap := e.snapshot(ctx)
		msg := announce.ScheduledForecast(e.deps.Clock.Now(), snap, doc, "")
		e.announce(ctx, kind, doc, msg, nil)
	})
}

// announce dispatches msg and records metrics.
func (e *Engine) announce(ctx context.Context, kind types.TriggerKind, doc types.Document, msg string, volume *float64) tts.Report {
	id := uuid.NewString()
	ctx = types.WithAnnouncementID(ctx, id)
	logger := e.logger.With("trigger", string(kind), "announcement_id", id)

	start := e.deps.Clock.Now()
	report := e.deps.Dispatcher.Dispatch(ctx, doc.MediaPlayers, doc.TTS, msg, volume)
	elapsed := e.deps.Clock.Now().Sub(start)

	result := report.Result()
	e.deps.Metrics.RecordAnnouncement(ctx, kind, result)
	e.deps.Metrics.RecordLatency(ctx, kind, elapsed)

	delivered, failed, skipped := report.Counts()
	logger.Info("announcement finished",
		"result", string(result),
		"delivered", delivered,
		"failed", failed,
		"skipped", skipped,
		"rewritten", report.Rewritten,
	)
	return report
}

func (e *Engine) track(kind types.TriggerKind, sub types.Subscription) {
	e.handles = append(e.handles, handle{kind: kind, sub: sub})
}

func declined(logger types.Logger, kind types.TriggerKind, d gate.Decision) (bool, error) {
	if d.Reason != "disabled" {
		logger.Info("trigger not armed", "trigger", string(kind), "reason", d.Reason)
	}
	return false, nil
}

func capabilityMissing(name string) error {
	return types.NewAppError(types.ErrCodeConfigIncomplete, name+" capability not available", nil)
}
