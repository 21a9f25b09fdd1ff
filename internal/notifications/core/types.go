// Package core provides the observability surface shared by the announcement
// dispatcher and the trigger engine: the metrics contract and its CloudWatch,
// Prometheus and no-op backends.
package core

import (
	"context"
	"time"

	"homeweather/internal/types"
)

// MetricResult categorizes an announcement outcome for metrics reporting.
type MetricResult string

const (
	// MetricSuccess means every eligible sink spoke the message.
	MetricSuccess MetricResult = "success"

	// MetricPartial means at least one sink spoke and at least one failed.
	MetricPartial MetricResult = "partial"

	// MetricFailed means no sink spoke the message.
	MetricFailed MetricResult = "failed"

	// MetricSkipped means nothing was attempted (no sinks, empty message).
	MetricSkipped MetricResult = "skipped"
)

// AnnouncementMetrics abstracts telemetry for announcements.
type AnnouncementMetrics interface {
	RecordAnnouncement(ctx context.Context, kind types.TriggerKind, result MetricResult)
	RecordSinkDelivery(ctx context.Context, outcome types.SinkOutcome)
	RecordLatency(ctx context.Context, kind types.TriggerKind, duration time.Duration)
}

// ResultFromCounts summarizes per-sink outcomes into a MetricResult.
func ResultFromCounts(delivered, failed int) MetricResult {
	switch {
	case delivered == 0 && failed == 0:
		return MetricSkipped
	case failed == 0:
		return MetricSuccess
	case delivered == 0:
		return MetricFailed
	default:
		return MetricPartial
	}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

var _ AnnouncementMetrics = NoopMetrics{}

func (NoopMetrics) RecordAnnouncement(context.Context, types.TriggerKind, MetricResult) {}
func (NoopMetrics) RecordSinkDelivery(context.Context, types.SinkOutcome)               {}
func (NoopMetrics) RecordLatency(context.Context, types.TriggerKind, time.Duration)     {}
