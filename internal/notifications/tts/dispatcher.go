// Package tts delivers a rendered announcement to the configured speaker
// sinks, one after another, through host actions.
package tts

import (
	"context"
	"strings"
	"time"

	"homeweather/internal/notifications/core"
	"homeweather/internal/types"
)

const (
	defaultInterSinkDelay = 500 * time.Millisecond

	aiTaskDomain = "ai_task"
	aiTaskAction = "generate_data"
)

// ActionInvoker invokes a host action and returns its response payload when
// one was requested.
type ActionInvoker interface {
	InvokeAction(ctx context.Context, req types.ActionRequest) (map[string]any, error)
}

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SinkResult is the delivery outcome for one sink. FailedStep may be set on
// a delivered sink when only the volume step failed.
type SinkResult struct {
	EntityID   string            `json:"entity_id"`
	Outcome    types.SinkOutcome `json:"outcome"`
	FailedStep types.SinkStep    `json:"failed_step,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Report summarizes one dispatch.
type Report struct {
	Message   string       `json:"message"`
	Rewritten bool         `json:"rewritten"`
	Sinks     []SinkResult `json:"sinks"`
}

// Counts tallies sink outcomes.
func (r Report) Counts() (delivered, failed, skipped int) {
	for _, s := range r.Sinks {
		switch s.Outcome {
		case types.SinkDelivered:
			delivered++
		case types.SinkFailed:
			failed++
		default:
			skipped++
		}
	}
	return delivered, failed, skipped
}

// Result folds the report into a metrics result.
func (r Report) Result() core.MetricResult {
	delivered, failed, _ := r.Counts()
	return core.ResultFromCounts(delivered, failed)
}

// Dispatcher sends announcements to sinks sequentially. A failure on one sink
// never stops delivery to the next.
type Dispatcher struct {
	invoker ActionInvoker
	metrics core.AnnouncementMetrics
	logger  types.Logger
	sleep   SleepFunc

	interSinkDelay time.Duration
	defaultVolume  float64
	defaultPreroll time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSleepFunc overrides the suspension used for preroll and inter-sink
// delays. Tests use it to record delays without waiting.
func WithSleepFunc(fn SleepFunc) Option {
	return func(d *Dispatcher) { d.sleep = fn }
}

// WithInterSinkDelay sets the pause between consecutive sinks.
func WithInterSinkDelay(delay time.Duration) Option {
	return func(d *Dispatcher) { d.interSinkDelay = delay }
}

// WithDefaults sets the volume and preroll used when a sink sets neither.
func WithDefaults(volume float64, preroll time.Duration) Option {
	return func(d *Dispatcher) {
		d.defaultVolume = volume
		d.defaultPreroll = preroll
	}
}

// NewDispatcher creates a Dispatcher. A nil metrics discards telemetry.
func NewDispatcher(invoker ActionInvoker, metrics core.AnnouncementMetrics, logger types.Logger, opts ...Option) *Dispatcher {
	if metrics == nil {
		metrics = core.NoopMetrics{}
	}
	d := &Dispatcher{
		invoker:        invoker,
		metrics:        metrics,
		logger:         logger,
		sleep:          sleepCtx,
		interSinkDelay: defaultInterSinkDelay,
		defaultVolume:  types.DefaultSinkVolume,
		defaultPreroll: types.DefaultPrerollMS * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch optionally rewrites message through the configured AI task, then
// speaks it on every sink in order. volume, when non-nil, overrides every
// sink's configured volume.
func (d *Dispatcher) Dispatch(ctx context.Context, sinks []types.MediaPlayer, cfg types.TTSConfig, message string, volume *float64) Report {
	report := Report{Message: message}
	logger := d.logger
	if id := types.GetAnnouncementID(ctx); id != "" {
		logger = logger.With("announcement_id", id)
	}

	if len(sinks) == 0 {
		logger.Warn("no media players configured for announcement")
		return report
	}
	if strings.TrimSpace(message) == "" {
		logger.Warn("empty announcement message, skipping")
		return report
	}

	if cfg.UseAIRewrite && strings.TrimSpace(cfg.AITaskEntity) != "" {
		if rewritten, ok := d.rewrite(ctx, logger, cfg, message); ok {
			report.Message = rewritten
			report.Rewritten = true
		}
	}

	for i, sink := range sinks {
		if err := ctx.Err(); err != nil {
			report.Sinks = append(report.Sinks, d.skip(ctx, sink.EntityID, err.Error()))
			continue
		}
		if sink.EntityID == "" {
			report.Sinks = append(report.Sinks, d.skip(ctx, "", "missing entity id"))
			continue
		}
		if sink.TTSEntityID == "" {
			logger.Warn("no tts entity configured for media player, skipping", "entity_id", sink.EntityID)
			report.Sinks = append(report.Sinks, d.skip(ctx, sink.EntityID, "missing tts entity"))
			continue
		}

		result := d.deliver(ctx, logger, sink, cfg, report.Message, volume)
		report.Sinks = append(report.Sinks, result)
		d.metrics.RecordSinkDelivery(ctx, result.Outcome)

		if i < len(sinks)-1 {
			if err := d.sleep(ctx, d.interSinkDelay); err != nil {
				logger.Warn("inter-sink delay interrupted", "error", err.Error())
			}
		}
	}

	return report
}

func (d *Dispatcher) skip(ctx context.Context, entityID, reason string) SinkResult {
	d.metrics.RecordSinkDelivery(ctx, types.SinkSkipped)
	return SinkResult{EntityID: entityID, Outcome: types.SinkSkipped, Error: reason}
}

func (d *Dispatcher) deliver(ctx context.Context, logger types.Logger, sink types.MediaPlayer, cfg types.TTSConfig, message string, override *float64) SinkResult {
	result := SinkResult{EntityID: sink.EntityID, Outcome: types.SinkDelivered}
	logger = logger.With("entity_id", sink.EntityID, "tts_entity_id", sink.TTSEntityID)
	logger.Info("sending announcement to media player")

	vol := d.defaultVolume
	switch {
	case override != nil:
		vol = *override
	case sink.Volume != nil:
		vol = *sink.Volume
	}

	_, err := d.invoker.InvokeAction(ctx, types.ActionRequest{
		Domain:   "media_player",
		Action:   "volume_set",
		Data:     map[string]any{"entity_id": sink.EntityID, "volume_level": vol},
		Blocking: true,
	})
	if err != nil {
		logger.Warn("failed to set volume", "error", err.Error())
		result.FailedStep = types.StepVolume
		result.Error = err.Error()
	}

	if preroll := d.preroll(sink, cfg); preroll > 0 {
		if err := d.sleep(ctx, preroll); err != nil {
			result.Outcome = types.SinkFailed
			result.FailedStep = types.StepSpeak
			result.Error = err.Error()
			return result
		}
	}

	data := map[string]any{
		"media_player_entity_id": sink.EntityID,
		"message":                message,
		"cache":                  sink.Cache,
	}
	lang := strings.TrimSpace(sink.Language)
	if lang == "" {
		lang = strings.TrimSpace(cfg.Language)
	}
	if lang != "" {
		data["language"] = lang
	}
	if len(sink.Options) > 0 {
		data["options"] = sink.Options
	}

	_, err = d.invoker.InvokeAction(ctx, types.ActionRequest{
		Domain:   "tts",
		Action:   "speak",
		Data:     data,
		Target:   map[string]any{"entity_id": sink.TTSEntityID},
		Blocking: true,
	})
	if err != nil {
		logger.Error("failed to speak announcement", "error", err.Error())
		result.Outcome = types.SinkFailed
		result.FailedStep = types.StepSpeak
		result.Error = err.Error()
		return result
	}

	logger.Info("announcement sent")
	return result
}

// preroll resolves the sink's preroll, then the global one, then the default.
func (d *Dispatcher) preroll(sink types.MediaPlayer, cfg types.TTSConfig) time.Duration {
	switch {
	case sink.PrerollMS != nil:
		return time.Duration(*sink.PrerollMS) * time.Millisecond
	case cfg.PrerollMS > 0:
		return time.Duration(cfg.PrerollMS) * time.Millisecond
	default:
		return d.defaultPreroll
	}
}

// rewrite asks the AI task entity for a new phrasing. Any failure keeps the
// original message.
func (d *Dispatcher) rewrite(ctx context.Context, logger types.Logger, cfg types.TTSConfig, message string) (string, bool) {
	resp, err := d.invoker.InvokeAction(ctx, types.ActionRequest{
		Domain: aiTaskDomain,
		Action: aiTaskAction,
		Data: map[string]any{
			"entity_id": cfg.AITaskEntity,
			"task_type": "text",
			"input_data": map[string]any{
				"original_message": message,
				"prompt":           cfg.AIRewritePrompt,
			},
		},
		Blocking:       true,
		ReturnResponse: true,
	})
	if err != nil {
		logger.Warn("ai rewrite failed, using original message", "error", err.Error(), "ai_task_entity", cfg.AITaskEntity)
		return "", false
	}
	for _, key := range []string{"output", "text", "result", "data"} {
		if s, ok := resp[key].(string); ok && strings.TrimSpace(s) != "" {
			logger.Info("ai rewrote announcement", "ai_task_entity", cfg.AITaskEntity)
			return s, true
		}
	}
	logger.Warn("ai rewrite returned no text, using original message", "ai_task_entity", cfg.AITaskEntity)
	return "", false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
