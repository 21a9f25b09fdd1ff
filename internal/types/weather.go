package types

import (
	"strings"
	"time"
)

// Snapshot is a point-in-time copy of weather data used to render one
// message. Hourly and Daily are chronological ascending.
type Snapshot struct {
	Current    *CurrentConditions `json:"current"`
	Hourly     []HourlyForecast   `json:"hourly_forecast"`
	Daily      []DailyForecast    `json:"daily_forecast"`
	Configured bool               `json:"configured"`
	FetchedAt  time.Time          `json:"fetched_at,omitzero"`
}

// CurrentConditions mirrors the weather entity's state and attributes.
// Numeric fields are nil when the source does not report them.
type CurrentConditions struct {
	Temperature       *float64 `json:"temperature,omitempty"`
	Condition         string   `json:"condition,omitempty"`
	Humidity          *float64 `json:"humidity,omitempty"`
	WindSpeed         *float64 `json:"wind_speed,omitempty"`
	WindSpeedUnit     string   `json:"wind_speed_unit,omitempty"`
	Precipitation     *float64 `json:"precipitation,omitempty"`
	PrecipitationUnit string   `json:"precipitation_unit,omitempty"`
	State             string   `json:"state,omitempty"`
}

// EffectiveCondition returns the condition attribute, falling back to the
// raw entity state.
func (c *CurrentConditions) EffectiveCondition() string {
	if c == nil {
		return ""
	}
	if c.Condition != "" {
		return c.Condition
	}
	return c.State
}

// HourlyForecast is one hour of forecast. Datetime is kept in its wire form
// so malformed values can be skipped at the point of use.
type HourlyForecast struct {
	Datetime                 string   `json:"datetime"`
	Temperature              *float64 `json:"temperature,omitempty"`
	Condition                string   `json:"condition,omitempty"`
	PrecipitationProbability *float64 `json:"precipitation_probability,omitempty"`
	PrecipitationKind        string   `json:"precipitation_kind,omitempty"`
	WindSpeed                *float64 `json:"wind_speed,omitempty"`
	WindGust                 *float64 `json:"wind_gust,omitempty"`
}

// Time parses Datetime. ok is false when the value is missing or malformed.
func (h HourlyForecast) Time() (time.Time, bool) {
	return ParseForecastTime(h.Datetime)
}

// DailyForecast is one day of forecast.
type DailyForecast struct {
	Datetime                 string   `json:"datetime"`
	Temperature              *float64 `json:"temperature,omitempty"`
	TempLow                  *float64 `json:"templow,omitempty"`
	Condition                string   `json:"condition,omitempty"`
	PrecipitationProbability *float64 `json:"precipitation_probability,omitempty"`
}

// Time parses Datetime. ok is false when the value is missing or malformed.
func (d DailyForecast) Time() (time.Time, bool) {
	return ParseForecastTime(d.Datetime)
}

var forecastLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseForecastTime parses the ISO-8601 forms weather integrations emit.
// Values without an offset are read in the local timezone.
func ParseForecastTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range forecastLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Float is a convenience for building optional numeric fields.
func Float(v float64) *float64 { return &v }
