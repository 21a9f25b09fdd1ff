package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRequestMetrics is the MetricsCollector used when the Prometheus
// backend is selected.
type PrometheusRequestMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// MustNewPrometheusRequestMetrics registers the HTTP collectors on reg.
func MustNewPrometheusRequestMetrics(reg prometheus.Registerer) *PrometheusRequestMetrics {
	m := &PrometheusRequestMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "home_weather",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "home_weather",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.requests, m.latency)
	return m
}

func (m *PrometheusRequestMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.requests.WithLabelValues(method, endpoint, status).Inc()
	m.latency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
