package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"homeweather/internal/config"
	"homeweather/internal/core"
	notifycore "homeweather/internal/notifications/core"
	"homeweather/internal/types"
)

// metricsBackend bundles the collectors for the selected METRICS_BACKEND.
// requests and handler are nil unless Prometheus is selected.
type metricsBackend struct {
	announcements notifycore.AnnouncementMetrics
	requests      core.MetricsCollector
	handler       http.Handler
}

// loadAWSConfig is replaced in tests.
var loadAWSConfig = func(ctx context.Context, region string) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
}

func newMetricsBackend(ctx context.Context, cfg config.MetricsConfig, logger types.Logger) (metricsBackend, error) {
	switch cfg.Backend {
	case "prometheus":
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		return metricsBackend{
			announcements: notifycore.MustNewPrometheusMetrics(reg),
			requests:      core.MustNewPrometheusRequestMetrics(reg),
			handler:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}, nil

	case "cloudwatch":
		awsCfg, err := loadAWSConfig(ctx, cfg.AWSRegion)
		if err != nil {
			return metricsBackend{}, fmt.Errorf("loading AWS config: %w", err)
		}
		client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}
		})
		return metricsBackend{
			announcements: notifycore.NewCloudWatchAnnouncementMetrics(client, cfg.Namespace, logger),
		}, nil

	default:
		return metricsBackend{announcements: notifycore.NoopMetrics{}}, nil
	}
}
