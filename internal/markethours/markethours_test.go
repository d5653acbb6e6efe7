package markethours

import (
	"testing"
	"time"
)

// tuesday is a regular NSE trading day.
func tuesday(hour, min int) time.Time {
	return time.Date(2026, 3, 10, hour, min, 0, 0, IST)
}

func TestSession_Boundaries(t *testing.T) {
	s := DefaultSession()

	cases := []struct {
		name         string
		at           time.Time
		open         bool
		canEnter     bool
		shouldSquare bool
	}{
		{"pre-open", tuesday(9, 14), false, true, false},
		{"open instant", tuesday(9, 15), true, true, false},
		{"midday", tuesday(12, 0), true, true, false},
		{"last entry minute", tuesday(15, 19), true, true, false},
		{"entry cutoff", tuesday(15, 20), true, false, false},
		{"square-off instant", tuesday(15, 25), true, false, true},
		{"close", tuesday(15, 30), false, false, true},
	}
	for _, tc := range cases {
		if got := s.IsOpen(tc.at); got != tc.open {
			t.Errorf("%s: IsOpen = %v, want %v", tc.name, got, tc.open)
		}
		if got := s.CanEnter(tc.at); got != tc.canEnter {
			t.Errorf("%s: CanEnter = %v, want %v", tc.name, got, tc.canEnter)
		}
		if got := s.ShouldSquareOff(tc.at); got != tc.shouldSquare {
			t.Errorf("%s: ShouldSquareOff = %v, want %v", tc.name, got, tc.shouldSquare)
		}
	}
}

func TestWeekendClosed(t *testing.T) {
	s := DefaultSession()
	saturday := time.Date(2026, 3, 14, 11, 0, 0, 0, IST)
	sunday := time.Date(2026, 3, 15, 11, 0, 0, 0, IST)

	if s.IsOpen(saturday) || s.IsOpen(sunday) {
		t.Error("market open on a weekend")
	}
	if IsTradingDay(sunday) {
		t.Error("sunday counted as trading day")
	}
}

func TestHolidayClosed(t *testing.T) {
	s := DefaultSession()
	day := time.Date(2026, 3, 31, 11, 0, 0, 0, IST) // Id-ul-Fitr, a Tuesday
	if !IsHoliday(day) {
		t.Fatal("2026-03-31 missing from holiday table")
	}
	if s.IsOpen(day) {
		t.Error("market open on an exchange holiday")
	}
}

func TestOpenInstant(t *testing.T) {
	s := DefaultSession()
	at := tuesday(13, 42)
	open := s.OpenInstant(at)
	if open.Hour() != 9 || open.Minute() != 15 {
		t.Errorf("OpenInstant = %v, want 09:15 IST", open)
	}
	if DayKey(open) != DayKey(at) {
		t.Error("OpenInstant landed on a different calendar day")
	}
}

func TestDayKeyUsesIST(t *testing.T) {
	// 22:00 UTC on the 9th is 03:30 IST on the 10th.
	utc := time.Date(2026, 3, 9, 22, 0, 0, 0, time.UTC)
	if got := DayKey(utc); got != "2026-03-10" {
		t.Errorf("DayKey = %q, want 2026-03-10", got)
	}
}

func TestStatusString(t *testing.T) {
	s := DefaultSession()
	if s.StatusString(tuesday(12, 0)) != "open" {
		t.Error("midday status should be open")
	}
	if s.StatusString(tuesday(16, 0)) != "closed" {
		t.Error("post-close status should be closed")
	}
}
