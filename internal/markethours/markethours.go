// Package markethours implements the spot FX trading clock. The FX day rolls
// over at 17:00 New York time: a bar at 17:00 NY on Tuesday already belongs
// to Wednesday's trading day. The week opens Sunday 17:00 NY and closes
// Friday 17:00 NY.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata" // America/New_York without a system zoneinfo
)

// NewYork is the location the FX rollover is defined in.
var NewYork = mustLoad("America/New_York")

// RolloverHour is the NY hour at which the trading day changes.
const RolloverHour = 17

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("markethours: load %s: %v", name, err))
	}
	return loc
}

// TradingDay returns midnight (NY) of the trading day t belongs to.
func TradingDay(t time.Time) time.Time {
	ny := t.In(NewYork)
	day := time.Date(ny.Year(), ny.Month(), ny.Day(), 0, 0, 0, 0, NewYork)
	if ny.Hour() >= RolloverHour {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// TradingDayKey returns the trading day of t as "2006-01-02".
func TradingDayKey(t time.Time) string {
	return TradingDay(t).Format("2006-01-02")
}

// IsTradingDay returns true if the trading day label d is Mon–Fri and not
// a holiday.
func IsTradingDay(d time.Time) bool {
	wd := d.Weekday()
	return wd >= time.Monday && wd <= time.Friday && !IsHoliday(d)
}

// IsMarketOpen returns true if t falls inside an open trading day.
func IsMarketOpen(t time.Time) bool {
	return IsTradingDay(TradingDay(t))
}

// rollover returns the instant trading day d starts (17:00 NY the day before).
func rollover(d time.Time) time.Time {
	prev := d.AddDate(0, 0, -1)
	return time.Date(prev.Year(), prev.Month(), prev.Day(), RolloverHour, 0, 0, 0, NewYork)
}

// NextOpen returns the start of the next open trading day after t. If the
// market is open at t, that is the next session start, not t itself.
func NextOpen(t time.Time) time.Time {
	d := TradingDay(t).AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // weekends plus holidays never exceed this
		if IsTradingDay(d) {
			return rollover(d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return rollover(d)
}

// SessionClose returns the end of the trading day containing t.
func SessionClose(t time.Time) time.Time {
	return rollover(TradingDay(t).AddDate(0, 0, 1))
}

// TimeUntilClose returns the duration until the current trading day ends.
// Returns 0 if the market is closed.
func TimeUntilClose(t time.Time) time.Duration {
	if !IsMarketOpen(t) {
		return 0
	}
	return SessionClose(t).Sub(t)
}

// TimeUntilOpen returns the duration until the next market open, or 0 if
// the market is open.
func TimeUntilOpen(t time.Time) time.Duration {
	if IsMarketOpen(t) {
		return 0
	}
	return NextOpen(t).Sub(t)
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("FX Open - day rolls in %s", fmtDur(TimeUntilClose(t)))
	}
	next := NextOpen(t)
	ny := next.In(NewYork)
	return fmt.Sprintf("FX Closed - opens %s %s NY (%s)",
		ny.Weekday().String()[:3], ny.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
