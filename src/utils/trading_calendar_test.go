package utils

import (
	"testing"
	"time"

	"stock-streamer/src/logger"
)

func fallbackCalendar(t *testing.T) *TradingCalendar {
	t.Helper()
	// An unknown MIC forces the Sun-Thu fallback window.
	tc := GetCalendar("zzzz", "Asia/Dhaka", logger.NewLogger("TradingCalendar-test"))
	if !tc.Fallback {
		t.Fatal("unknown MIC should resolve to the fallback window")
	}
	return tc
}

func TestFallbackWindow_TradingDays(t *testing.T) {
	tc := fallbackCalendar(t)
	dhaka := tc.Timezone

	cases := []struct {
		date time.Time
		open bool
	}{
		{time.Date(2026, 8, 23, 11, 0, 0, 0, dhaka), true},  // Sunday
		{time.Date(2026, 8, 27, 11, 0, 0, 0, dhaka), true},  // Thursday
		{time.Date(2026, 8, 28, 11, 0, 0, 0, dhaka), false}, // Friday
		{time.Date(2026, 8, 29, 11, 0, 0, 0, dhaka), false}, // Saturday
	}
	for _, c := range cases {
		if got := tc.IsOpenOnMinute(c.date); got != c.open {
			t.Errorf("IsOpenOnMinute(%s %s) = %v, want %v",
				c.date.Weekday(), c.date.Format("15:04"), got, c.open)
		}
	}
}

func TestFallbackWindow_SessionBounds(t *testing.T) {
	tc := fallbackCalendar(t)
	dhaka := tc.Timezone

	monday := func(h, m int) time.Time {
		return time.Date(2026, 8, 24, h, m, 0, 0, dhaka)
	}

	cases := []struct {
		at   time.Time
		open bool
	}{
		{monday(9, 59), false},
		{monday(10, 0), true},
		{monday(14, 29), true},
		{monday(14, 30), false},
		{monday(15, 0), false},
	}
	for _, c := range cases {
		if got := tc.IsOpenOnMinute(c.at); got != c.open {
			t.Errorf("IsOpenOnMinute(%s) = %v, want %v", c.at.Format("15:04"), got, c.open)
		}
	}
}

func TestFallbackWindow_ConvertsInstants(t *testing.T) {
	tc := fallbackCalendar(t)

	// 05:00 UTC on a Monday is 11:00 in Dhaka (UTC+6): inside the window.
	utcMorning := time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC)
	if !tc.IsOpenOnMinute(utcMorning) {
		t.Error("05:00 UTC Monday should be inside the Dhaka window")
	}

	// 09:00 UTC is 15:00 in Dhaka: after close.
	utcAfternoon := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	if tc.IsOpenOnMinute(utcAfternoon) {
		t.Error("09:00 UTC Monday should be after the Dhaka close")
	}
}

func TestFallbackWindow_BadTimezoneUsesUTC(t *testing.T) {
	tc := GetCalendar("zzzz", "Not/AZone", logger.NewLogger("TradingCalendar-test"))
	if tc.Timezone != time.UTC {
		t.Errorf("timezone = %v, want UTC fallback", tc.Timezone)
	}
}
