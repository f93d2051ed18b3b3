package marketdata

import (
	"fmt"
	"time"

	"github.com/piquette/finance-go/datetime"
)

var periods = map[string]time.Duration{
	"1d":  24 * time.Hour,
	"5d":  5 * 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"1mo": 30 * 24 * time.Hour,
	"3mo": 90 * 24 * time.Hour,
	"6mo": 182 * 24 * time.Hour,
	"1y":  365 * 24 * time.Hour,
	"2y":  730 * 24 * time.Hour,
}

// ParsePeriod converts a lookback like "1mo" to a duration.
func ParsePeriod(p string) (time.Duration, error) {
	d, ok := periods[p]
	if !ok {
		return 0, fmt.Errorf("unsupported period %q", p)
	}
	return d, nil
}

var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"2m":  2 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"60m": time.Hour,
	"90m": 90 * time.Minute,
	"1h":  time.Hour,
	"1d":  24 * time.Hour,
}

// ParseInterval validates a bar interval and returns its length.
func ParseInterval(iv string) (datetime.Interval, time.Duration, error) {
	d, ok := intervals[iv]
	if !ok {
		return "", 0, fmt.Errorf("unsupported interval %q", iv)
	}
	return datetime.Interval(iv), d, nil
}
