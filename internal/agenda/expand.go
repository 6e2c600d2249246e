package agenda

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Series is a master event reduced to what expansion needs. Start carries
// the zone whose wall clock the rule follows.
type Series struct {
	Start    time.Time
	Duration time.Duration
	RRule    string
	RDates   []time.Time
	ExDates  []time.Time
	// Location instances are reported in; nil keeps Start's location.
	Location *time.Location
}

// Instance is one generated start with its end.
type Instance struct {
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// Expand generates the instances of s whose start lies strictly between
// w.Min-Tick and w.Max. The lower bound is widened by one Tick so an
// instance exactly on w.Min is kept; callers re-check with w.Contains.
func Expand(s Series, w Window) ([]Instance, error) {
	set, err := buildSet(s)
	if err != nil {
		return nil, err
	}

	loc := s.Location
	if loc == nil {
		loc = s.Start.Location()
	}
	starts := set.Between(w.Min.Add(-Tick), w.Max, false)
	out := make([]Instance, 0, len(starts))
	for _, start := range starts {
		start = start.In(loc)
		out = append(out, Instance{
			Start:    start,
			End:      start.Add(s.Duration),
			Duration: s.Duration,
		})
	}
	return out, nil
}

func buildSet(s Series) (*rrule.Set, error) {
	r, err := parseRule(s.RRule, s.Start)
	if err != nil {
		return nil, err
	}

	set := &rrule.Set{}
	set.RRule(r)
	for _, t := range s.RDates {
		set.RDate(t)
	}
	for _, t := range s.ExDates {
		set.ExDate(t)
	}
	return set, nil
}

// parseRule binds an RRULE value to the series start; rules without an
// UNTIL or COUNT are bounded by the window in Between.
func parseRule(text string, dtstart time.Time) (*rrule.RRule, error) {
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "RRULE:"))
	opt, err := rrule.StrToROptionInLocation(text, dtstart.Location())
	if err != nil {
		return nil, err
	}
	opt.Dtstart = dtstart
	return rrule.NewRRule(*opt)
}
