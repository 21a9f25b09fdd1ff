package triggers

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"homeweather/internal/announce"
	"homeweather/internal/gate"
	"homeweather/internal/types"
)

const dedupKeyLayout = "2006-01-02-15"

// dedupRetention is how long an upcoming-precipitation key is remembered
// after its hour.
const dedupRetention = 2 * time.Hour

// --- time-based ---

type timeBasedHandler struct {
	e     *Engine
	sched gate.Schedule
}

func (h *timeBasedHandler) tick(now time.Time) {
	if !h.sched.Matches(now) {
		return
	}
	h.e.fireScheduled(h.e.baseCtx, types.TriggerTimeBased)
}

func (e *Engine) armTimeBased(_ context.Context, doc types.Document) (bool, error) {
	sched, d, warnings := gate.TimeBased(doc)
	if !d.Armed {
		return declined(e.logger, types.TriggerTimeBased, d)
	}
	for _, w := range warnings {
		e.logger.Warn("invalid schedule window, using default", "trigger", string(types.TriggerTimeBased), "error", w.Error())
	}
	if e.deps.Scheduler == nil {
		return false, capabilityMissing("scheduler")
	}
	h := &timeBasedHandler{e: e, sched: sched}
	sub, err := e.deps.Scheduler.EveryHourAt(sched.Minute, h.tick)
	if err != nil {
		return false, err
	}
	e.track(types.TriggerTimeBased, sub)
	e.logger.Info("time-based trigger armed",
		"interval_hours", sched.Interval, "minute", sched.Minute)
	return true, nil
}

// --- current condition change ---

type currentChangeHandler struct {
	e      *Engine
	entity string

	mu   sync.Mutex
	last string
}

// observe records a transition and reports whether it should announce.
func (h *currentChangeHandler) observe(oldCondition, newCondition string) bool {
	if oldCondition == newCondition {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == newCondition {
		return false
	}
	h.last = newCondition
	return true
}

func (h *currentChangeHandler) onChange(change types.StateChange) {
	if change.Old == nil || change.New == nil || change.EntityID != h.entity {
		return
	}
	oldCondition, newCondition := change.Old.State, change.New.State
	if !h.observe(oldCondition, newCondition) {
		return
	}
	h.e.spawn(h.e.baseCtx, types.TriggerCurrentChange, func(ctx context.Context, logger types.Logger) {
		doc := h.e.deps.Config()
		if len(doc.MediaPlayers) == 0 {
			return
		}
		snap := h.e.snapshot(ctx)
		msg := announce.CurrentChangeMessage(h.e.deps.Clock.Now(), oldCondition, newCondition, snap)
		h.e.announce(ctx, types.TriggerCurrentChange, doc, msg, nil)
		logger.Info("condition change announced", "from", oldCondition, "to", newCondition)
	})
}

func (e *Engine) armCurrentChange(ctx context.Context, doc types.Document) (bool, error) {
	entity, d := gate.CurrentChange(doc)
	if !d.Armed {
		return declined(e.logger, types.TriggerCurrentChange, d)
	}
	if e.deps.States == nil {
		return false, capabilityMissing("state watcher")
	}
	h := &currentChangeHandler{e: e, entity: entity}
	if e.deps.Reader != nil {
		state, err := e.deps.Reader.GetState(ctx, entity)
		switch {
		case err != nil:
			e.logger.Warn("could not read initial condition", "entity_id", entity, "error", err.Error())
		case state != nil:
			h.last = state.State
		}
	}
	sub, err := e.deps.States.WatchStates([]string{entity}, h.onChange)
	if err != nil {
		return false, err
	}
	e.track(types.TriggerCurrentChange, sub)
	e.logger.Info("current-change trigger armed", "entity_id", entity, "initial_condition", h.last)
	return true, nil
}

// --- upcoming precipitation ---

type upcomingMatch struct {
	kind        string
	minutes     int
	probability float64
}

// firedHours holds the hour keys already announced. The engine owns it so
// it outlives Stop and Start.
type firedHours struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newFiredHours() *firedHours {
	return &firedHours{keys: make(map[string]struct{})}
}

type upcomingHandler struct {
	e     *Engine
	watch gate.PrecipWatch
	fired *firedHours
}

func newUpcomingHandler(e *Engine, watch gate.PrecipWatch, fired *firedHours) *upcomingHandler {
	return &upcomingHandler{e: e, watch: watch, fired: fired}
}

// prune forgets keys whose hour is more than dedupRetention before now.
// Keys that no longer parse are dropped.
func (h *upcomingHandler) prune(now time.Time) {
	h.fired.mu.Lock()
	defer h.fired.mu.Unlock()
	cutoff := now.Add(-dedupRetention)
	for key := range h.fired.keys {
		at, err := time.ParseInLocation(dedupKeyLayout, key, now.Location())
		if err != nil {
			h.e.logger.Warn("dropping unparseable dedup key",
				"trigger", string(types.TriggerUpcomingPrecip), "key", key,
				"code", string(types.ErrCodeParseDedupKey), "error", err.Error())
			delete(h.fired.keys, key)
			continue
		}
		if !at.After(cutoff) {
			delete(h.fired.keys, key)
		}
	}
}

// evaluate finds the first hour in (now, now+lookahead] whose probability
// meets the threshold and whose key has not fired, and marks it fired.
func (h *upcomingHandler) evaluate(now time.Time, snap types.Snapshot) (upcomingMatch, bool) {
	if announce.IsPrecipitating(snap.Current.EffectiveCondition()) {
		return upcomingMatch{}, false
	}
	window := now.Add(h.watch.Lookahead())

	h.fired.mu.Lock()
	defer h.fired.mu.Unlock()
	for _, hour := range snap.Hourly {
		prob := 0.0
		if hour.PrecipitationProbability != nil {
			prob = *hour.PrecipitationProbability
		}
		if prob < h.watch.Threshold {
			continue
		}
		at, ok := hour.Time()
		if !ok {
			continue
		}
		if !at.After(now) || at.After(window) {
			continue
		}
		key := at.In(now.Location()).Format(dedupKeyLayout)
		if _, seen := h.fired.keys[key]; seen {
			continue
		}
		h.fired.keys[key] = struct{}{}

		kind := hour.PrecipitationKind
		if kind == "" {
			kind = hour.Condition
		}
		if kind == "" {
			kind = "precipitation"
		}
		return upcomingMatch{
			kind:        kind,
			minutes:     int(at.Sub(now).Minutes()),
			probability: prob,
		}, true
	}
	return upcomingMatch{}, false
}

func (h *upcomingHandler) poll(now time.Time) {
	h.prune(now)
	h.e.spawn(h.e.baseCtx, types.TriggerUpcomingPrecip, func(ctx context.Context, logger types.Logger) {
		doc := h.e.deps.Config()
		if len(doc.MediaPlayers) == 0 {
			return
		}
		snap := h.e.snapshot(ctx)
		match, ok := h.evaluate(now, snap)
		if !ok {
			return
		}
		msg := announce.UpcomingChangeMessage(now, match.kind, match.minutes, match.probability)
		h.e.announce(ctx, types.TriggerUpcomingPrecip, doc, msg, nil)
		logger.Info("upcoming precipitation announced", "kind", match.kind, "minutes_until", match.minutes)
	})
}

func (e *Engine) armUpcoming(_ context.Context, doc types.Document) (bool, error) {
	watch, d := gate.UpcomingPrecipitation(doc)
	if !d.Armed {
		return declined(e.logger, types.TriggerUpcomingPrecip, d)
	}
	if e.deps.Scheduler == nil {
		return false, capabilityMissing("scheduler")
	}
	h := newUpcomingHandler(e, watch, e.upcomingFired)
	sub, err := e.deps.Scheduler.Every(e.deps.PollInterval, h.poll)
	if err != nil {
		return false, err
	}
	e.track(types.TriggerUpcomingPrecip, sub)
	e.logger.Info("upcoming-precipitation trigger armed",
		"minutes_before", watch.MinutesBefore, "threshold", watch.Threshold)
	return true, nil
}

// --- sensors ---

type sensorHandler struct {
	e       *Engine
	targets map[string]string
}

func (h *sensorHandler) onChange(change types.StateChange) {
	if change.Old == nil || change.New == nil {
		return
	}
	target, ok := h.targets[change.EntityID]
	if !ok {
		return
	}
	if change.Old.State == target || change.New.State != target {
		return
	}
	h.e.logger.Info("sensor entered trigger state", "entity_id", change.EntityID, "state", target)
	h.e.fireScheduled(h.e.baseCtx, types.TriggerSensor)
}

func (e *Engine) armSensors(_ context.Context, doc types.Document) (bool, error) {
	targets, d := gate.Sensors(doc)
	if !d.Armed {
		return declined(e.logger, types.TriggerSensor, d)
	}
	if e.deps.States == nil {
		return false, capabilityMissing("state watcher")
	}
	entities := make([]string, 0, len(targets))
	for id := range targets {
		entities = append(entities, id)
	}
	h := &sensorHandler{e: e, targets: targets}
	sub, err := e.deps.States.WatchStates(entities, h.onChange)
	if err != nil {
		return false, err
	}
	e.track(types.TriggerSensor, sub)
	e.logger.Info("sensor trigger armed", "entities", strings.Join(entities, ","))
	return true, nil
}

// --- webhooks ---

// webhookBody is the optional POST/PUT payload.
type webhookBody struct {
	Name   *string  `json:"name"`
	Volume *float64 `json:"volume"`
}

// parseWebhookBody extracts the optional name and volume. A body that fails
// to parse yields the defaults and an error for logging.
func parseWebhookBody(req types.WebhookRequest) (name string, volume *float64, err error) {
	if req.Method != "POST" && req.Method != "PUT" {
		return "", nil, nil
	}
	if len(strings.TrimSpace(string(req.Body))) == 0 {
		return "", nil, nil
	}
	var body webhookBody
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return "", nil, types.NewAppError(types.ErrCodeParseWebhookBody, "webhook body is not a JSON object", err)
	}
	if body.Name != nil {
		name = strings.TrimSpace(*body.Name)
	}
	if body.Volume != nil {
		if *body.Volume < 0 || *body.Volume > 1 {
			return name, nil, types.NewAppErrorWithDetails(types.ErrCodeValidationOutOfRange,
				"webhook volume must be between 0 and 1", nil, map[string]any{"volume": *body.Volume})
		}
		volume = body.Volume
	}
	return name, volume, nil
}

func (e *Engine) webhookHandler(entry types.WebhookEntry) types.WebhookHandler {
	return func(ctx context.Context, req types.WebhookRequest) {
		logger := e.logger.With("trigger", string(types.TriggerWebhook), "webhook_id", entry.WebhookID)
		name, volume, err := parseWebhookBody(req)
		if err != nil {
			logger.Warn("ignoring webhook payload", "error", err.Error())
		}
		if name == "" {
			name = entry.PersonalName
		}
		e.recordWebhook(entry.WebhookID, e.deps.Clock.Now())

		e.spawn(ctx, types.TriggerWebhook, func(ctx context.Context, logger types.Logger) {
			doc := e.deps.Config()
			if len(doc.MediaPlayers) == 0 {
				return
			}
			snap := e.snapshot(ctx)
			msg := announce.WebhookMessage(e.deps.Clock.Now(), name, snap, doc)
			e.announce(ctx, types.TriggerWebhook, doc, msg, volume)
		})
	}
}

func (e *Engine) armWebhooks(_ context.Context, doc types.Document) (bool, error) {
	entries, d := gate.Webhooks(doc)
	if !d.Armed {
		return declined(e.logger, types.TriggerWebhook, d)
	}
	if e.deps.Webhooks == nil {
		return false, capabilityMissing("webhook registrar")
	}
	for _, entry := range entries {
		label := entry.PersonalName
		if label == "" {
			label = entry.WebhookID
		}
		if err := e.deps.Webhooks.RegisterWebhook(entry.WebhookID, "Weather Forecast ("+label+")", e.webhookHandler(entry)); err != nil {
			e.logger.Error("failed to register webhook", "webhook_id", entry.WebhookID, "error", err.Error())
			continue
		}
		e.webhooks = append(e.webhooks, entry.WebhookID)
		e.logger.Info("webhook registered", "webhook_id", entry.WebhookID, "personal_name", entry.PersonalName)
	}
	return len(e.webhooks) > 0, nil
}

// --- voice satellite ---

// armVoiceSatellite only records the configured phrases; there is no
// conversation agent to register them with.
func (e *Engine) armVoiceSatellite(_ context.Context, doc types.Document) (bool, error) {
	commands, d := gate.VoiceSatellite(doc)
	if !d.Armed {
		return declined(e.logger, types.TriggerVoiceSatellite, d)
	}
	e.logger.Info("voice satellite commands configured", "commands", strings.Join(commands, "; "))
	return true, nil
}
