// Package announce renders weather snapshots into spoken-style announcement
// text. Every function is pure: wall-clock time is passed in explicitly so
// output is deterministic for a given input.
package announce

import (
	"math"
	"strconv"
	"time"
)

var numberWords = map[int]string{
	0: "zero", 1: "one", 2: "two", 3: "three", 4: "four", 5: "five",
	6: "six", 7: "seven", 8: "eight", 9: "nine", 10: "ten",
	11: "eleven", 12: "twelve", 13: "thirteen", 14: "fourteen", 15: "fifteen",
	16: "sixteen", 17: "seventeen", 18: "eighteen", 19: "nineteen",
	20: "twenty", 30: "thirty", 40: "forty", 50: "fifty",
	60: "sixty", 70: "seventy", 80: "eighty", 90: "ninety",
}

// SpellNumber renders n as English words for clean TTS pronunciation.
// Values of 1000 or more fall back to digits.
func SpellNumber(n int) string {
	if n < 0 {
		return "negative " + SpellNumber(-n)
	}
	if w, ok := numberWords[n]; ok {
		return w
	}
	switch {
	case n < 100:
		return numberWords[n/10*10] + " " + numberWords[n%10]
	case n == 100:
		return "one hundred"
	case n < 1000:
		head := numberWords[n/100] + " hundred"
		if n%100 == 0 {
			return head
		}
		return head + " " + SpellNumber(n%100)
	default:
		return strconv.Itoa(n)
	}
}

// SpellRounded rounds v half away from zero and spells it.
func SpellRounded(v float64) string {
	return SpellNumber(int(math.Round(v)))
}

// SpellTime renders t as 12-hour spoken time: "seven AM", "seven oh three AM",
// "twelve fifteen PM".
func SpellTime(t time.Time) string {
	period := "AM"
	if t.Hour() >= 12 {
		period = "PM"
	}
	hour := t.Hour() % 12
	if hour == 0 {
		hour = 12
	}

	switch m := t.Minute(); {
	case m == 0:
		return SpellNumber(hour) + " " + period
	case m < 10:
		return SpellNumber(hour) + " oh " + SpellNumber(m) + " " + period
	default:
		return SpellNumber(hour) + " " + SpellNumber(m) + " " + period
	}
}

// Greeting returns the time-of-day salutation for now.
func Greeting(now time.Time) string {
	switch h := now.Hour(); {
	case h >= 5 && h < 12:
		return "Good morning"
	case h >= 12 && h < 17:
		return "Good afternoon"
	case h >= 17 && h < 21:
		return "Good evening"
	default:
		return "Good night"
	}
}

// GreetingWithTime returns e.g. "Good morning, the time is eight oh seven AM".
func GreetingWithTime(now time.Time) string {
	return Greeting(now) + ", the time is " + SpellTime(now)
}
