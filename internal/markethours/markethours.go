// Package markethours models the NSE trading-day clock: session boundaries,
// weekends, and exchange holidays, all in IST.
package markethours

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Session holds the trading-day instants as minutes from midnight IST.
// The engine never computes these; they are configuration.
type Session struct {
	Open        int // first tradable minute (inclusive)
	EntryCutoff int // no new entries at/after this minute
	SquareOff   int // open positions force-closed at/after this minute
	Close       int // market close (exclusive)
}

// DefaultSession returns NSE cash-session timings: open 9:15, entry cutoff
// 15:20, square-off 15:25, close 15:30.
func DefaultSession() Session {
	return Session{
		Open:        9*60 + 15,
		EntryCutoff: 15*60 + 20,
		SquareOff:   15*60 + 25,
		Close:       15*60 + 30,
	}
}

// Validate checks the instants are ordered.
func (s Session) Validate() error {
	if !(s.Open < s.EntryCutoff && s.EntryCutoff <= s.SquareOff && s.SquareOff < s.Close) {
		return fmt.Errorf("session instants out of order: open=%d cutoff=%d squareoff=%d close=%d",
			s.Open, s.EntryCutoff, s.SquareOff, s.Close)
	}
	return nil
}

func minuteOfDay(t time.Time) int {
	ist := t.In(IST)
	return ist.Hour()*60 + ist.Minute()
}

// IsOpen returns true if t falls within trading hours on a trading day.
func (s Session) IsOpen(t time.Time) bool {
	if !IsTradingDay(t) {
		return false
	}
	hm := minuteOfDay(t)
	return hm >= s.Open && hm < s.Close
}

// CanEnter returns true if new entries are still permitted at t.
func (s Session) CanEnter(t time.Time) bool {
	return minuteOfDay(t) < s.EntryCutoff
}

// ShouldSquareOff returns true once the forced square-off instant has been
// reached on a trading day.
func (s Session) ShouldSquareOff(t time.Time) bool {
	return IsTradingDay(t) && minuteOfDay(t) >= s.SquareOff
}

// OpenInstant returns the session-open time on t's IST calendar day.
func (s Session) OpenInstant(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), s.Open/60, s.Open%60, 0, 0, IST)
}

// IsWeekday returns true if t is Mon–Fri in IST.
func IsWeekday(t time.Time) bool {
	wd := t.In(IST).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not an exchange holiday.
func IsTradingDay(t time.Time) bool {
	return IsWeekday(t) && !IsHoliday(t)
}

// DayKey returns the IST calendar date of t as YYYY-MM-DD. Used to detect
// trading-day rollover for the daily reset.
func DayKey(t time.Time) string {
	return t.In(IST).Format("2006-01-02")
}

// StatusString returns a human-readable market status for the API surface.
func (s Session) StatusString(t time.Time) string {
	if s.IsOpen(t) {
		return "open"
	}
	return "closed"
}
