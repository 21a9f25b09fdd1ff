package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"homeweather/internal/types"
)

// PrometheusAnnouncementMetrics exposes announcement activity as Prometheus
// collectors.
type PrometheusAnnouncementMetrics struct {
	announcements *prometheus.CounterVec
	sinks         *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

var _ AnnouncementMetrics = (*PrometheusAnnouncementMetrics)(nil)

// MustNewPrometheusMetrics registers the collectors with reg and panics on a
// registration conflict other than an identical collector already being
// present. A nil reg uses the default registerer.
func MustNewPrometheusMetrics(reg prometheus.Registerer) *PrometheusAnnouncementMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	announcements := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "home_weather",
			Subsystem: "announcer",
			Name:      "announcements_total",
			Help:      "Announcements fired, by trigger kind and aggregate result.",
		},
		[]string{"trigger", "result"},
	)
	sinks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "home_weather",
			Subsystem: "announcer",
			Name:      "sink_deliveries_total",
			Help:      "Per-sink delivery outcomes.",
		},
		[]string{"result"},
	)
	latency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "home_weather",
			Subsystem: "announcer",
			Name:      "announcement_duration_seconds",
			Help:      "Time from trigger firing to the last sink finishing.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"trigger"},
	)

	for _, c := range []prometheus.Collector{announcements, sinks, latency} {
		if err := reg.Register(c); err != nil {
			already, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				panic(err)
			}
			switch c {
			case announcements:
				announcements = already.ExistingCollector.(*prometheus.CounterVec)
			case sinks:
				sinks = already.ExistingCollector.(*prometheus.CounterVec)
			case latency:
				latency = already.ExistingCollector.(*prometheus.HistogramVec)
			}
		}
	}

	return &PrometheusAnnouncementMetrics{
		announcements: announcements,
		sinks:         sinks,
		latency:       latency,
	}
}

func (m *PrometheusAnnouncementMetrics) RecordAnnouncement(_ context.Context, kind types.TriggerKind, result MetricResult) {
	m.announcements.WithLabelValues(string(kind), string(result)).Inc()
}

func (m *PrometheusAnnouncementMetrics) RecordSinkDelivery(_ context.Context, outcome types.SinkOutcome) {
	m.sinks.WithLabelValues(string(outcome)).Inc()
}

func (m *PrometheusAnnouncementMetrics) RecordLatency(_ context.Context, kind types.TriggerKind, duration time.Duration) {
	m.latency.WithLabelValues(string(kind)).Observe(duration.Seconds())
}
