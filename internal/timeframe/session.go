package timeframe

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // self-contained zoneinfo so session math works everywhere
)

// MarketTimezone is the session-partitioning timezone for US equities.
// Data at rest is always UTC; this zone is used only for session windows
// and display.
const MarketTimezone = "America/New_York"

// RTH bounds, minutes from midnight in the market timezone.
const (
	rthOpenHour    = 9
	rthOpenMinute  = 30
	rthCloseHour   = 16
	rthCloseMinute = 0
)

var (
	marketLocOnce sync.Once
	marketLoc     *time.Location
	marketLocErr  error
)

// MarketLocation loads the market timezone once per process.
func MarketLocation() (*time.Location, error) {
	marketLocOnce.Do(func() {
		marketLoc, marketLocErr = time.LoadLocation(MarketTimezone)
	})
	return marketLoc, marketLocErr
}

// SessionWindow is one intraday trading window, rendered as HH:MM strings
// in the session timezone.
type SessionWindow struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// DefaultRTHWindow is the 09:30-16:00 regular-hours window.
func DefaultRTHWindow() SessionWindow {
	return SessionWindow{Start: "09:30", End: "16:00"}
}

func parseClock(s string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("malformed clock %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("clock %q out of range", s)
	}
	return hour, minute, nil
}

// RTHBounds returns the open and close instants of the regular session on
// the market day containing ts.
func RTHBounds(ts time.Time, loc *time.Location) (open, close time.Time) {
	local := ts.In(loc)
	y, m, d := local.Date()
	open = time.Date(y, m, d, rthOpenHour, rthOpenMinute, 0, 0, loc)
	close = time.Date(y, m, d, rthCloseHour, rthCloseMinute, 0, 0, loc)
	return open, close
}

// InRTH reports whether ts falls inside regular trading hours
// [09:30, 16:00) on its market day. Weekends are never in session.
func InRTH(ts time.Time, loc *time.Location) bool {
	local := ts.In(loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	open, close := RTHBounds(ts, loc)
	return !local.Before(open) && local.Before(close)
}

// MarketDay returns the calendar date of ts in the market timezone,
// truncated to midnight local.
func MarketDay(ts time.Time, loc *time.Location) time.Time {
	local := ts.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// SessionEnd resolves the order-validity horizon for a signal at ts: the
// end of the first window whose close is not before ts, evaluated in the
// session timezone. With no filter, the regular-hours close applies; a
// signal after the close rolls to the next weekday's close.
func SessionEnd(ts time.Time, loc *time.Location, filter []SessionWindow) (time.Time, error) {
	windows := filter
	if len(windows) == 0 {
		windows = []SessionWindow{DefaultRTHWindow()}
	}
	day := MarketDay(ts, loc)
	for hop := 0; hop < 8; hop++ {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			for _, w := range windows {
				h, m, err := parseClock(w.End)
				if err != nil {
					return time.Time{}, err
				}
				end := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
				if !end.Before(ts.In(loc)) {
					return end.UTC(), nil
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, fmt.Errorf("no session window found within a week of %s", ts.Format(time.RFC3339))
}

// ExpectedRTHGrid generates the expected bar timestamps (bar-open labels)
// on the regular-hours grid between first and last inclusive, skipping
// weekends. Exchange holidays are not modeled; callers comparing real
// calendars use the ratio check, not this grid.
func ExpectedRTHGrid(first, last time.Time, tfMinutes int, loc *time.Location) []time.Time {
	if tfMinutes <= 0 || last.Before(first) {
		return nil
	}
	var out []time.Time
	day := MarketDay(first, loc)
	lastUTC := last.UTC()
	for !day.After(MarketDay(last, loc)) {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			open, close := RTHBounds(day, loc)
			for ts := open; ts.Before(close); ts = ts.Add(time.Duration(tfMinutes) * time.Minute) {
				utc := ts.UTC()
				if utc.Before(first.UTC()) || utc.After(lastUTC) {
					continue
				}
				out = append(out, utc)
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// DayStartUTC truncates ts to the start of its UTC calendar day.
func DayStartUTC(ts time.Time) time.Time {
	u := ts.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
