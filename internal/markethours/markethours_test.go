package markethours

import (
	"strings"
	"testing"
	"time"
)

func ny(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, NewYork)
}

func TestTradingDay_Rollover(t *testing.T) {
	cases := []struct {
		at   time.Time
		want string
	}{
		{ny(2026, 3, 10, 16, 59), "2026-03-10"}, // Tue before rollover
		{ny(2026, 3, 10, 17, 0), "2026-03-11"},  // Tue at rollover → Wed
		{ny(2026, 3, 10, 23, 30), "2026-03-11"},
		{time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC), "2026-03-10"}, // 16:00 NY (EDT)
		{time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC), "2026-03-11"}, // 17:00 NY (EDT)
	}
	for _, c := range cases {
		if got := TradingDayKey(c.at); got != c.want {
			t.Errorf("TradingDayKey(%v) = %s, want %s", c.at, got, c.want)
		}
	}
}

func TestIsMarketOpen_Week(t *testing.T) {
	cases := []struct {
		at   time.Time
		open bool
	}{
		{ny(2026, 3, 8, 16, 59), false}, // Sunday before open
		{ny(2026, 3, 8, 17, 0), true},   // Sunday open
		{ny(2026, 3, 11, 12, 0), true},  // Wednesday
		{ny(2026, 3, 13, 16, 59), true}, // Friday before close
		{ny(2026, 3, 13, 17, 0), false}, // Friday close
		{ny(2026, 3, 14, 12, 0), false}, // Saturday
	}
	for _, c := range cases {
		if got := IsMarketOpen(c.at); got != c.open {
			t.Errorf("IsMarketOpen(%v) = %v, want %v", c.at, got, c.open)
		}
	}
}

func TestIsMarketOpen_Christmas(t *testing.T) {
	// Friday 2026-12-25 is a holiday: Thursday 17:00 NY opens its day.
	if IsMarketOpen(ny(2026, 12, 25, 10, 0)) {
		t.Error("Christmas Day should be closed")
	}
	if !IsMarketOpen(ny(2026, 12, 24, 10, 0)) {
		t.Error("Christmas Eve morning should be open")
	}
}

func TestNextOpen(t *testing.T) {
	// Saturday → Sunday 17:00
	got := NextOpen(ny(2026, 3, 14, 12, 0))
	want := ny(2026, 3, 15, 17, 0)
	if !got.Equal(want) {
		t.Errorf("NextOpen(Sat) = %v, want %v", got, want)
	}

	// Friday after close → Sunday 17:00
	got = NextOpen(ny(2026, 3, 13, 18, 0))
	if !got.Equal(want) {
		t.Errorf("NextOpen(Fri close) = %v, want %v", got, want)
	}
}

func TestTimeUntil(t *testing.T) {
	at := ny(2026, 3, 11, 16, 0)
	if d := TimeUntilClose(at); d != time.Hour {
		t.Errorf("TimeUntilClose = %v, want 1h", d)
	}
	if d := TimeUntilOpen(at); d != 0 {
		t.Errorf("TimeUntilOpen while open = %v, want 0", d)
	}
	if d := TimeUntilClose(ny(2026, 3, 14, 12, 0)); d != 0 {
		t.Errorf("TimeUntilClose while closed = %v, want 0", d)
	}
}

func TestStatusString(t *testing.T) {
	if s := StatusString(ny(2026, 3, 11, 12, 0)); !strings.HasPrefix(s, "FX Open") {
		t.Errorf("unexpected status %q", s)
	}
	if s := StatusString(ny(2026, 3, 14, 12, 0)); !strings.Contains(s, "opens Sun 17:00") {
		t.Errorf("unexpected status %q", s)
	}
}
