package market

import (
	"fmt"
	"time"
)

// IST is India Standard Time. A fixed zone avoids depending on the host tzdata.
var IST = time.FixedZone("IST", 19800)

// Hours describes the regular trading session of an exchange, Monday to Friday.
type Hours struct {
	open  time.Duration
	close time.Duration
	loc   *time.Location
}

// DefaultHours is the NSE/BSE cash session, 09:15 to 15:30 IST.
func DefaultHours() Hours {
	return Hours{open: 9*time.Hour + 15*time.Minute, close: 15*time.Hour + 30*time.Minute, loc: IST}
}

// NewHours parses "HH:MM" open and close times in IST.
func NewHours(open, close string) (Hours, error) {
	o, err := parseClock(open)
	if err != nil {
		return Hours{}, fmt.Errorf("market open: %w", err)
	}
	c, err := parseClock(close)
	if err != nil {
		return Hours{}, fmt.Errorf("market close: %w", err)
	}
	if c <= o {
		return Hours{}, fmt.Errorf("market close %s must be after open %s", close, open)
	}
	return Hours{open: o, close: c, loc: IST}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (h Hours) Location() *time.Location { return h.loc }

// IsTradingDay reports whether t falls on a weekday. Exchange holidays are not modelled.
func (h Hours) IsTradingDay(t time.Time) bool {
	wd := t.In(h.loc).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsOpen reports whether t is inside the session, both bounds inclusive.
func (h Hours) IsOpen(t time.Time) bool {
	if !h.IsTradingDay(t) {
		return false
	}
	tod := h.timeOfDay(t)
	return tod >= h.open && tod <= h.close
}

// OpenAt returns the session open on t's date.
func (h Hours) OpenAt(t time.Time) time.Time { return h.midnight(t).Add(h.open) }

// CloseAt returns the session close on t's date.
func (h Hours) CloseAt(t time.Time) time.Time { return h.midnight(t).Add(h.close) }

// LastSession returns the range to seed history from: today's open until t when
// the market is open, otherwise the most recent complete trading day.
func (h Hours) LastSession(t time.Time) (from, to time.Time) {
	t = t.In(h.loc)
	if h.IsOpen(t) {
		return h.OpenAt(t), t
	}
	day := t
	if !h.IsTradingDay(day) || h.timeOfDay(day) < h.open {
		day = h.previousTradingDay(day)
	}
	return h.OpenAt(day), h.CloseAt(day)
}

// NextOpen returns the next session open strictly after t.
func (h Hours) NextOpen(t time.Time) time.Time {
	t = t.In(h.loc)
	if h.IsTradingDay(t) && h.timeOfDay(t) < h.open {
		return h.OpenAt(t)
	}
	day := h.midnight(t).AddDate(0, 0, 1)
	for !h.IsTradingDay(day) {
		day = day.AddDate(0, 0, 1)
	}
	return h.OpenAt(day)
}

// Contains reports whether a bar stamped t belongs to a regular session.
func (h Hours) Contains(t time.Time) bool { return h.IsOpen(t) }

func (h Hours) previousTradingDay(t time.Time) time.Time {
	day := h.midnight(t).AddDate(0, 0, -1)
	for !h.IsTradingDay(day) {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

func (h Hours) midnight(t time.Time) time.Time {
	t = t.In(h.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, h.loc)
}

func (h Hours) timeOfDay(t time.Time) time.Duration {
	return t.In(h.loc).Sub(h.midnight(t))
}
