package agenda

import (
	"errors"
	"time"

	"ical2mail/internal/model"
)

// Tick is the smallest step used to make window bounds exclusive.
const Tick = time.Microsecond

// Window is the half-open interval [Min, Max) of retained occurrences.
type Window struct {
	Min time.Time
	Max time.Time
}

// Contains is the window filter: Min <= t < Max.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Min) && t.Before(w.Max)
}

// Frame is the immutable per-pass context: target zone, today and the
// active window. It is computed once and shared read-only by every source.
type Frame struct {
	Location *time.Location
	Today    time.Time
	DaysPrev int
	DaysNext int
	Window   Window
}

// NewFrame anchors the window at local midnight of now in loc.
func NewFrame(now time.Time, loc *time.Location, daysPrev, daysNext int) (Frame, error) {
	if loc == nil {
		return Frame{}, errors.New("agenda: nil location")
	}
	if daysPrev < 0 || daysNext < 0 {
		return Frame{}, errors.New("agenda: negative day count")
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Frame{
		Location: loc,
		Today:    today,
		DaysPrev: daysPrev,
		DaysNext: daysNext,
		Window: Window{
			Min: today.AddDate(0, 0, -daysPrev),
			Max: today.AddDate(0, 0, daysNext).Add(-Tick),
		},
	}, nil
}

// Normalize maps a DATE or DATE-TIME onto an instant in loc. Whole-day
// values become midnight, or 23:59:59 when they close a range; both are wall
// clock times, so on a DST change day they are 22:59:59 or 24:59:59 apart.
// Zoned values keep their instant.
func Normalize(v model.DateValue, loc *time.Location, rangeEnd bool) time.Time {
	if v.DateOnly {
		y, m, d := v.Time.Date()
		if rangeEnd {
			return time.Date(y, m, d, 23, 59, 59, 0, loc)
		}
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	return v.Time.In(loc)
}

// Normalize is Normalize in the frame's zone.
func (f Frame) Normalize(v model.DateValue, rangeEnd bool) time.Time {
	return Normalize(v, f.Location, rangeEnd)
}
