package types

// TriggerKind identifies an independent condition that can cause an
// announcement.
type TriggerKind string

const (
	TriggerTimeBased      TriggerKind = "time_based"
	TriggerCurrentChange  TriggerKind = "current_change"
	TriggerUpcomingPrecip TriggerKind = "upcoming_precipitation"
	TriggerSensor         TriggerKind = "sensor"
	TriggerWebhook        TriggerKind = "webhook"
	TriggerVoiceSatellite TriggerKind = "voice_satellite"
	TriggerManual         TriggerKind = "manual"
)

// AllTriggerKinds lists the armable kinds in arming order.
var AllTriggerKinds = []TriggerKind{
	TriggerTimeBased,
	TriggerCurrentChange,
	TriggerUpcomingPrecip,
	TriggerSensor,
	TriggerWebhook,
	TriggerVoiceSatellite,
}

// SinkOutcome is the result of delivering one announcement to one sink.
type SinkOutcome string

const (
	SinkDelivered SinkOutcome = "delivered"
	SinkFailed    SinkOutcome = "failed"
	SinkSkipped   SinkOutcome = "skipped"
)

// SinkStep identifies the dispatch step that failed for a sink.
type SinkStep string

const (
	StepVolume SinkStep = "volume"
	StepSpeak  SinkStep = "speak"
)

// Metric names and dimensions shared by the metrics backends.
const (
	MetricNamespace           = "HomeWeather"
	MetricAnnouncementCount   = "AnnouncementCount"
	MetricAnnouncementLatency = "AnnouncementLatency"
	MetricSinkDelivery        = "SinkDelivery"

	DimTrigger = "Trigger"
	DimResult  = "Result"
)
