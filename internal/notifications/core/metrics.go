package core

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"homeweather/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchAnnouncementMetrics publishes announcement metrics to CloudWatch.
//
// Metrics emitted:
//   - AnnouncementCount: Dims {Trigger, Result}
//   - AnnouncementLatency: Dims {Trigger}, milliseconds
//   - SinkDelivery: Dims {Result}
//
// Publishing failures are logged and never surface to callers.
type CloudWatchAnnouncementMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

var _ AnnouncementMetrics = (*CloudWatchAnnouncementMetrics)(nil)

// NewCloudWatchAnnouncementMetrics creates a publisher for the given
// namespace. An empty namespace uses types.MetricNamespace.
func NewCloudWatchAnnouncementMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchAnnouncementMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	return &CloudWatchAnnouncementMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordAnnouncement emits AnnouncementCount with Trigger and Result dimensions.
func (m *CloudWatchAnnouncementMetrics) RecordAnnouncement(ctx context.Context, kind types.TriggerKind, result MetricResult) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAnnouncementCount),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimTrigger), Value: aws.String(string(kind))},
			{Name: aws.String(types.DimResult), Value: aws.String(string(result))},
		},
	}, "trigger", string(kind), "result", string(result))
}

// RecordSinkDelivery emits SinkDelivery with a Result dimension.
func (m *CloudWatchAnnouncementMetrics) RecordSinkDelivery(ctx context.Context, outcome types.SinkOutcome) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricSinkDelivery),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimResult), Value: aws.String(string(outcome))},
		},
	}, "result", string(outcome))
}

// RecordLatency emits AnnouncementLatency in milliseconds.
func (m *CloudWatchAnnouncementMetrics) RecordLatency(ctx context.Context, kind types.TriggerKind, duration time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAnnouncementLatency),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimTrigger), Value: aws.String(string(kind))},
		},
	}, "trigger", string(kind), "duration_ms", duration.Milliseconds())
}

func (m *CloudWatchAnnouncementMetrics) put(ctx context.Context, datum cwtypes.MetricDatum, logArgs ...any) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to publish metric",
			append([]any{"error", err.Error(), "metric", aws.ToString(datum.MetricName)}, logArgs...)...,
		)
	}
}
