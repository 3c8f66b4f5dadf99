package utils

import (
	"time"

	"github.com/scmhub/calendar"

	"stock-streamer/src/logger"
)

// TradingCalendar answers "is the exchange open right now" using
// scmhub/calendar, with a Dhaka Stock Exchange fallback window when the
// MIC is not covered by the library.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

// GetCalendar resolves a calendar for the given MIC (ISO 10383). When
// the library has no calendar for the MIC, a simple fallback is used:
// Sunday-Thursday 10:00-14:30 in the configured timezone, the DSE
// trading week.
func GetCalendar(mic, timezone string, log *logger.Logger) *TradingCalendar {
	cal := calendar.GetCalendar(mic)
	if cal != nil {
		return &TradingCalendar{Calendar: cal, Timezone: cal.Loc}
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil || loc == nil {
		log.Warning("Failed to load timezone '%s', using UTC for the fallback window", timezone)
		loc = time.UTC
	}
	log.Info("No calendar for MIC '%s', using Sun-Thu 10:00-14:30 fallback window", mic)
	return &TradingCalendar{Fallback: true, Timezone: loc}
}

// -----------------------------------------------------------------------------

// IsTradingDay reports whether the exchange trades on the given date.
func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		// DSE week runs Sunday through Thursday.
		weekday := date.Weekday()
		return weekday != time.Friday && weekday != time.Saturday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the market is open at a specific minute.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	if tc.Fallback {
		if !tc.IsTradingDay(t) {
			return false
		}

		hour := t.Hour()
		minute := t.Minute()

		// 10:00 - 14:30 local time
		if hour >= 10 && (hour < 14 || (hour == 14 && minute < 30)) {
			return true
		}
		return false
	}

	return tc.Calendar.IsOpen(t)
}
