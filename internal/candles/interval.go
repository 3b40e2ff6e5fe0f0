package candles

import (
	"fmt"
	"strings"
	"time"
)

// Interval is an Angel One SmartAPI candle interval name.
type Interval string

const (
	OneMinute     Interval = "ONE_MINUTE"
	ThreeMinute   Interval = "THREE_MINUTE"
	FiveMinute    Interval = "FIVE_MINUTE"
	TenMinute     Interval = "TEN_MINUTE"
	FifteenMinute Interval = "FIFTEEN_MINUTE"
	ThirtyMinute  Interval = "THIRTY_MINUTE"
	OneHour       Interval = "ONE_HOUR"
	OneDay        Interval = "ONE_DAY"
)

var intervalMinutes = map[Interval]int{
	OneMinute:     1,
	ThreeMinute:   3,
	FiveMinute:    5,
	TenMinute:     10,
	FifteenMinute: 15,
	ThirtyMinute:  30,
	OneHour:       60,
	OneDay:        1440,
}

// ParseInterval accepts the SmartAPI name in any case.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := intervalMinutes[iv]; !ok {
		return "", fmt.Errorf("unknown candle interval %q", s)
	}
	return iv, nil
}

// Minutes returns the bar width in minutes, or 0 for an unknown interval.
func (iv Interval) Minutes() int { return intervalMinutes[iv] }

func (iv Interval) Duration() time.Duration {
	return time.Duration(iv.Minutes()) * time.Minute
}

// Align floors t to the start of the bucket that contains it, keeping t's location.
// Sub-hour widths floor the minute component; ONE_HOUR floors to the hour and
// ONE_DAY to midnight.
func (iv Interval) Align(t time.Time) time.Time {
	m := iv.Minutes()
	switch {
	case m <= 0:
		return t
	case m >= 1440:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case m >= 60:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	}
	minute := t.Minute() - t.Minute()%m
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), minute, 0, 0, t.Location())
}
