// Package gate decides, per trigger kind, whether a trigger is enabled and its
// configuration complete enough to arm. Each function is pure and returns the
// minimal parameter bundle the corresponding trigger handler needs.
package gate

import (
	"strconv"
	"strings"
	"time"

	"homeweather/internal/types"
)

// Schedule is the time-based trigger's parameter bundle.
type Schedule struct {
	Interval int // fire when hour % Interval == 0
	Minute   int
	Start    ClockTime
	End      ClockTime
	Days     map[time.Weekday]bool
}

// ClockTime is a time of day with minute resolution.
type ClockTime struct {
	Hour   int
	Minute int
}

// Minutes returns the minutes since midnight.
func (c ClockTime) Minutes() int { return c.Hour*60 + c.Minute }

// Matches reports whether the schedule fires at now.
func (s Schedule) Matches(now time.Time) bool {
	if s.Interval <= 0 || now.Minute() != s.Minute {
		return false
	}
	if !s.Days[now.Weekday()] {
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	if minutes < s.Start.Minutes() || minutes > s.End.Minutes() {
		return false
	}
	return now.Hour()%s.Interval == 0
}

// PrecipWatch is the upcoming-precipitation trigger's parameter bundle.
type PrecipWatch struct {
	MinutesBefore int
	Threshold     float64
}

// Lookahead returns the alert window length.
func (p PrecipWatch) Lookahead() time.Duration {
	return time.Duration(p.MinutesBefore) * time.Minute
}

// Decision carries the outcome for kinds that decline, so the engine can log
// why a trigger did not arm.
type Decision struct {
	Armed  bool
	Reason string
}

func armed() Decision              { return Decision{Armed: true} }
func declined(why string) Decision { return Decision{Reason: why} }

// TimeBased gates the scheduled forecast trigger. Malformed start or end
// times fall back to 08:00 and 21:00; warnings lists what was replaced.
func TimeBased(doc types.Document) (Schedule, Decision, []error) {
	tts := doc.TTS
	if !tts.EnableTimeBased {
		return Schedule{}, declined("disabled"), nil
	}
	if tts.HourPattern <= 0 {
		return Schedule{}, declined("hour interval is zero"), nil
	}

	var warnings []error
	start, err := ParseClockTime(tts.StartTime)
	if err != nil {
		warnings = append(warnings, err)
		start, _ = ParseClockTime(types.DefaultStartTime)
	}
	end, err := ParseClockTime(tts.EndTime)
	if err != nil {
		warnings = append(warnings, err)
		end, _ = ParseClockTime(types.DefaultEndTime)
	}

	return Schedule{
		Interval: tts.HourPattern,
		Minute:   tts.MinuteOffset,
		Start:    start,
		End:      end,
		Days:     ParseDays(tts.DaysOfWeek),
	}, armed(), warnings
}

// CurrentChange gates the condition-change trigger and returns the weather
// entity to watch.
func CurrentChange(doc types.Document) (string, Decision) {
	if !doc.TTS.EnableCurrentChange {
		return "", declined("disabled")
	}
	entity := strings.TrimSpace(doc.WeatherEntity)
	if entity == "" {
		return "", declined("no weather entity configured")
	}
	return entity, armed()
}

// UpcomingPrecipitation gates the precipitation lookahead trigger.
func UpcomingPrecipitation(doc types.Document) (PrecipWatch, Decision) {
	if !doc.TTS.EnableUpcomingChange {
		return PrecipWatch{}, declined("disabled")
	}
	minutes := doc.TTS.MinutesBeforeAnnounce
	if minutes <= 0 {
		minutes = types.DefaultMinutesBeforeAnnounce
	}
	return PrecipWatch{MinutesBefore: minutes, Threshold: doc.TTS.PrecipThreshold}, armed()
}

// Sensors gates the sensor trigger and returns entity → target state.
func Sensors(doc types.Document) (map[string]string, Decision) {
	if !doc.TTS.EnableSensorTriggered {
		return nil, declined("disabled")
	}
	targets := make(map[string]string, len(doc.TTS.SensorTriggers))
	for _, st := range doc.TTS.SensorTriggers {
		entity := strings.TrimSpace(st.EntityID)
		if entity == "" {
			continue
		}
		state := st.TriggerState
		if strings.TrimSpace(state) == "" {
			state = types.DefaultTriggerState
		}
		targets[entity] = state
	}
	if len(targets) == 0 {
		return nil, declined("no sensor mappings")
	}
	return targets, armed()
}

// Webhooks gates the webhook trigger and returns the enabled entries with a
// non-empty id. The legacy single-webhook shape is honoured when the list is
// empty.
func Webhooks(doc types.Document) ([]types.WebhookEntry, Decision) {
	if !doc.TTS.EnableWebhook {
		return nil, declined("disabled")
	}
	var out []types.WebhookEntry
	for _, w := range doc.TTS.EffectiveWebhooks() {
		if !w.IsEnabled() || strings.TrimSpace(w.WebhookID) == "" {
			continue
		}
		w.WebhookID = strings.TrimSpace(w.WebhookID)
		out = append(out, w)
	}
	if len(out) == 0 {
		return nil, declined("no enabled webhook ids")
	}
	return out, armed()
}

// VoiceSatellite gates the voice command trigger and returns the command
// phrases, one per non-blank line.
func VoiceSatellite(doc types.Document) ([]string, Decision) {
	if !doc.TTS.EnableVoiceSatellite {
		return nil, declined("disabled")
	}
	var commands []string
	for _, line := range strings.Split(doc.TTS.ConversationCommands, "\n") {
		if c := strings.TrimSpace(line); c != "" {
			commands = append(commands, c)
		}
	}
	if len(commands) == 0 {
		return nil, declined("no commands")
	}
	return commands, armed()
}

// ParseClockTime parses "HH:MM" or "HH:MM:SS".
func ParseClockTime(s string) (ClockTime, error) {
	fields := strings.Split(strings.TrimSpace(s), ":")
	if len(fields) < 2 || len(fields) > 3 {
		return ClockTime{}, parseErr(s)
	}
	h, err := strconv.Atoi(fields[0])
	if err != nil || h < 0 || h > 23 {
		return ClockTime{}, parseErr(s)
	}
	m, err := strconv.Atoi(fields[1])
	if err != nil || m < 0 || m > 59 {
		return ClockTime{}, parseErr(s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func parseErr(s string) error {
	return types.NewAppErrorWithDetails(types.ErrCodeParseTimeOfDay,
		"time of day must be HH:MM", nil, map[string]any{"value": s})
}

var dayAbbrev = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseDays maps day names ("mon", "Tuesday") to weekdays. Unknown names are
// ignored; an empty result means every day.
func ParseDays(days []string) map[time.Weekday]bool {
	out := make(map[time.Weekday]bool, 7)
	for _, d := range days {
		d = strings.ToLower(strings.TrimSpace(d))
		if len(d) < 3 {
			continue
		}
		if wd, ok := dayAbbrev[d[:3]]; ok {
			out[wd] = true
		}
	}
	if len(out) == 0 {
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			out[wd] = true
		}
	}
	return out
}
