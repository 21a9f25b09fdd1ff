package announce

import (
	"strings"
	"time"

	"homeweather/internal/types"
)

// ScheduledForecast builds the full forecast read on a schedule or when a
// sensor fires. Facts missing from the snapshot are left out.
func ScheduledForecast(now time.Time, snap types.Snapshot, doc types.Document, name string) string {
	greeting := GreetingWithTime(now)
	parts := make([]string, 0, 6)

	switch prefix := strings.TrimSpace(doc.MessagePrefix); {
	case name != "":
		parts = append(parts, greeting+" "+name+", and here's your weather forecast.")
	case prefix != "":
		parts = append(parts, greeting+", and "+strings.ToLower(prefix)+".")
	default:
		parts = append(parts, greeting+", and here's your weather forecast.")
	}

	if cur := snap.Current; cur != nil && cur.Temperature != nil {
		parts = append(parts, "Right now it's "+Temperature(*cur.Temperature)+
			" with "+NormalizeCondition(cur.EffectiveCondition())+".")
	}

	if len(snap.Daily) > 0 {
		today := snap.Daily[0]
		switch {
		case today.Temperature != nil && today.TempLow != nil:
			parts = append(parts, "Today expect "+NormalizeCondition(today.Condition)+
				" with a high of "+Temperature(*today.Temperature)+
				" and a low of "+Temperature(*today.TempLow)+".")
		case today.Temperature != nil:
			parts = append(parts, "Today's high will be "+Temperature(*today.Temperature)+".")
		}
	}

	if ev, ok := UpcomingPrecipitation(now, snap.Hourly, doc.TTS.PrecipThreshold); ok {
		parts = append(parts, "Expect "+NormalizeCondition(ev.Condition)+" "+RelativeTime(now, ev.At)+
			" with a "+Percentage(ev.Probability)+" chance.")
	}

	if ev, ok := UpcomingHighWind(now, snap.Hourly, doc.TTS.WindSpeedThreshold, doc.TTS.WindGustThreshold); ok {
		unit := windUnit(snap)
		when := RelativeTime(now, ev.At)
		if ev.Gust > ev.Speed {
			parts = append(parts, "Watch for wind gusts up to "+Wind(ev.Gust, unit)+" "+when+".")
		} else {
			parts = append(parts, "Winds picking up to "+Wind(ev.Speed, unit)+" "+when+".")
		}
	}

	if len(snap.Daily) > 1 {
		tomorrow := snap.Daily[1]
		if tomorrow.Temperature != nil {
			parts = append(parts, "Tomorrow looks like "+NormalizeCondition(tomorrow.Condition)+
				" with a high near "+Temperature(*tomorrow.Temperature)+".")
		}
	}

	return strings.Join(parts, " ")
}

// WebhookMessage builds the short wake-up forecast. It always says something
// about precipitation, including when none is expected.
func WebhookMessage(now time.Time, name string, snap types.Snapshot, doc types.Document) string {
	greeting := GreetingWithTime(now)
	parts := make([]string, 0, 5)

	if name != "" {
		parts = append(parts, greeting+" "+name+".")
	} else {
		parts = append(parts, greeting+".")
	}

	if cur := snap.Current; cur != nil && cur.Temperature != nil {
		parts = append(parts, "Currently "+Temperature(*cur.Temperature)+
			" and "+NormalizeCondition(cur.EffectiveCondition())+".")
	}

	if len(snap.Daily) > 0 {
		today := snap.Daily[0]
		switch {
		case today.Temperature != nil && today.TempLow != nil:
			parts = append(parts, "High of "+Temperature(*today.Temperature)+
				", low of "+Temperature(*today.TempLow)+".")
		case today.Temperature != nil:
			parts = append(parts, "High of "+Temperature(*today.Temperature)+" today.")
		}
	}

	if ev, ok := UpcomingPrecipitation(now, snap.Hourly, doc.TTS.PrecipThreshold); ok {
		parts = append(parts, capitalize(NormalizeCondition(ev.Condition))+" expected "+RelativeTime(now, ev.At)+".")
	} else {
		parts = append(parts, "No precipitation expected today.")
	}

	if ev, ok := UpcomingHighWind(now, snap.Hourly, doc.TTS.WindSpeedThreshold, doc.TTS.WindGustThreshold); ok {
		parts = append(parts, "Gusty winds "+RelativeTime(now, ev.At)+".")
	}

	return strings.Join(parts, " ")
}

// CurrentChangeMessage announces a transition in current conditions.
func CurrentChangeMessage(now time.Time, oldCondition, newCondition string, snap types.Snapshot) string {
	msg := GreetingWithTime(now) + ", weather alert. Conditions have changed"
	if strings.TrimSpace(oldCondition) != "" {
		msg += " from " + NormalizeCondition(oldCondition)
	}
	msg += " to " + NormalizeCondition(newCondition)

	if cur := snap.Current; cur != nil && cur.Temperature != nil {
		return msg + ", and it's currently " + Temperature(*cur.Temperature) + "."
	}
	return msg + "."
}

// UpcomingChangeMessage warns about precipitation expected minutesUntil
// minutes from now.
func UpcomingChangeMessage(now time.Time, precipKind string, minutesUntil int, probability float64) string {
	kind := "precipitation"
	if strings.TrimSpace(precipKind) != "" {
		kind = NormalizeCondition(precipKind)
	}

	return GreetingWithTime(now) + ", weather alert. " +
		capitalize(kind) + " expected " + leadTime(minutesUntil) +
		" with a " + Percentage(probability) + " chance."
}

func leadTime(minutes int) string {
	switch {
	case minutes < 5:
		return "very soon"
	case minutes < 15:
		return "in about " + SpellNumber(minutes) + " minutes"
	case minutes < 60:
		rounded := (minutes + 2) / 5 * 5
		return "in about " + SpellNumber(rounded) + " minutes"
	default:
		hours := minutes / 60
		unit := "hours"
		if hours == 1 {
			unit = "hour"
		}
		return "in about " + SpellNumber(hours) + " " + unit
	}
}

func windUnit(snap types.Snapshot) string {
	if snap.Current != nil {
		return snap.Current.WindSpeedUnit
	}
	return ""
}
