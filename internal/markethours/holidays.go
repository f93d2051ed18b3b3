package markethours

import "time"

// Trading days on which the interbank market does not run.
// Format: month, day pairs (every year).
var fxHolidays = []struct {
	month time.Month
	day   int
}{
	{time.December, 25}, // Christmas Day
	{time.January, 1},   // New Year's Day
}

// pre-compute for fast lookup
var holidaySet map[string]bool

func init() {
	holidaySet = make(map[string]bool, len(fxHolidays))
	for _, h := range fxHolidays {
		holidaySet[monthDayKey(h.month, h.day)] = true
	}
}

// IsHoliday returns true if the trading day label d is an FX holiday.
func IsHoliday(d time.Time) bool {
	return holidaySet[monthDayKey(d.Month(), d.Day())]
}

func monthDayKey(month time.Month, day int) string {
	return time.Date(2000, month, day, 0, 0, 0, 0, time.UTC).Format("01-02")
}
