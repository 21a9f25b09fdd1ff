package announce

import (
	"time"

	"homeweather/internal/types"
)

// scanHorizon bounds how many hourly entries the forecast scans look at.
const scanHorizon = 12

// PrecipEvent is the first future hour expected to see precipitation.
type PrecipEvent struct {
	At          time.Time
	Probability float64
	Condition   string
}

// WindEvent is the first future hour expected to see high wind.
type WindEvent struct {
	At    time.Time
	Speed float64
	Gust  float64
}

// UpcomingPrecipitation returns the first hour after now, within the scan
// horizon, whose precipitation probability meets threshold.
func UpcomingPrecipitation(now time.Time, hourly []types.HourlyForecast, threshold float64) (PrecipEvent, bool) {
	for _, h := range head(hourly) {
		at, ok := h.Time()
		if !ok || !at.After(now) {
			continue
		}
		prob := valueOr(h.PrecipitationProbability, 0)
		if prob < threshold {
			continue
		}
		cond := h.Condition
		if cond == "" {
			cond = "precipitation"
		}
		return PrecipEvent{At: at, Probability: prob, Condition: cond}, true
	}
	return PrecipEvent{}, false
}

// UpcomingHighWind returns the first hour after now, within the scan horizon,
// where sustained speed or gusts meet their thresholds.
func UpcomingHighWind(now time.Time, hourly []types.HourlyForecast, speedThreshold, gustThreshold float64) (WindEvent, bool) {
	for _, h := range head(hourly) {
		at, ok := h.Time()
		if !ok || !at.After(now) {
			continue
		}
		speed := valueOr(h.WindSpeed, 0)
		gust := valueOr(h.WindGust, 0)
		if speed >= speedThreshold || gust >= gustThreshold {
			return WindEvent{At: at, Speed: speed, Gust: gust}, true
		}
	}
	return WindEvent{}, false
}

func head(hourly []types.HourlyForecast) []types.HourlyForecast {
	if len(hourly) > scanHorizon {
		return hourly[:scanHorizon]
	}
	return hourly
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
