package announce

import (
	"strings"
	"time"
)

var conditionSuffixes = []string{"-night", "-day", "_night", "_day"}

// compound condition names expanded to speakable words. Keys match whole words
// after separators have been replaced.
var conditionCompounds = map[string]string{
	"partlycloudy": "partly cloudy",
	"mostlycloudy": "mostly cloudy",
	"clearsky":     "clear skies",
	"thunderstorm": "thunderstorms",
}

// NormalizeCondition turns a weather condition identifier into speakable text.
// "partlycloudy" becomes "partly cloudy", "clear-night" becomes "clear", and
// the empty string becomes "current conditions".
func NormalizeCondition(condition string) string {
	c := strings.ToLower(strings.TrimSpace(condition))
	if c == "" {
		return "current conditions"
	}
	for _, suffix := range conditionSuffixes {
		c = strings.ReplaceAll(c, suffix, "")
	}
	c = strings.NewReplacer("_", " ", "-", " ").Replace(c)

	words := strings.Fields(c)
	for i, w := range words {
		if expanded, ok := conditionCompounds[w]; ok {
			words[i] = expanded
		}
	}
	if len(words) == 0 {
		return "current conditions"
	}
	return strings.Join(words, " ")
}

var precipitationMarkers = []string{"rain", "snow", "sleet", "drizzle", "thunder", "pouring", "hail"}

// IsPrecipitating reports whether a condition describes active precipitation.
func IsPrecipitating(condition string) bool {
	c := strings.ToLower(condition)
	for _, m := range precipitationMarkers {
		if strings.Contains(c, m) {
			return true
		}
	}
	return false
}

// Temperature formats a temperature as "X degrees".
func Temperature(v float64) string {
	return SpellRounded(v) + " degrees"
}

// Percentage formats a percentage as "X percent".
func Percentage(v float64) string {
	return SpellRounded(v) + " percent"
}

var windUnits = map[string]string{
	"mph":  "miles per hour",
	"mi/h": "miles per hour",
	"km/h": "kilometers per hour",
	"kph":  "kilometers per hour",
	"m/s":  "meters per second",
	"kn":   "knots",
}

// Wind formats a wind speed with its unit spoken out. An empty unit is read
// as mph.
func Wind(speed float64, unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if u == "" {
		u = "mph"
	}
	spoken, ok := windUnits[u]
	if !ok {
		spoken = unit
	}
	return SpellRounded(speed) + " " + spoken
}

// RelativeTime describes when an event at t happens relative to now.
func RelativeTime(now, t time.Time) string {
	hours := t.Sub(now).Hours()
	switch {
	case hours < 1:
		return "within the hour"
	case hours < 2:
		return "in about an hour"
	case hours < 3:
		return "in a couple hours"
	default:
		return "around " + SpellTime(t.In(now.Location()))
	}
}

// capitalize upper-cases the first letter.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
