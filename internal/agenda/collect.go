package agenda

import (
	"errors"
	"time"

	appLog "ical2mail/internal/log"
	"ical2mail/internal/model"
)

// Collect turns the events of one source into the occurrences that fall in
// the frame's window, expanding recurring masters and dropping instances
// replaced by an override from the same source.
func (f Frame) Collect(source string, sourceURL string, events []model.RawEvent) ([]model.Occurrence, error) {
	out := make([]model.Occurrence, 0, len(events))
	for _, ev := range events {
		occs, err := f.occurrences(source, sourceURL, ev)
		if err != nil {
			return nil, err
		}
		out = append(out, occs...)
	}

	keys, err := f.OverrideKeys(events)
	if err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	kept := Reconcile(out, keys)
	if dropped := len(out) - len(kept); dropped > 0 {
		appLog.Debug("overridden instances removed", "source", source, "count", dropped)
	}
	return kept, nil
}

func (f Frame) occurrences(source, sourceURL string, ev model.RawEvent) ([]model.Occurrence, error) {
	uid := ev.UID()

	rawStart, ok, err := ev.Date(model.PropDtStart)
	if err != nil {
		return nil, &ParseError{Source: source, UID: uid, Err: err}
	}
	if !ok {
		return nil, &PropertyMissingError{Source: source, UID: uid, Property: model.PropDtStart}
	}
	start := f.Normalize(rawStart, false)

	rawEnd, hasEnd, err := ev.Date(model.PropDtEnd)
	if err != nil {
		return nil, &ParseError{Source: source, UID: uid, Err: err}
	}
	duration, err := f.duration(source, ev, start, rawEnd, hasEnd)
	if err != nil {
		return nil, err
	}

	if rule, ok := ev.Text(model.PropRRule); ok {
		// The rule follows the wall clock of the master's own TZID; only
		// the generated instants are moved into the target zone.
		series := Series{
			Start:    f.seriesTime(rawStart),
			Duration: duration,
			RRule:    rule,
			Location: f.Location,
		}
		if series.RDates, err = f.seriesList(ev, model.PropRDate); err != nil {
			return nil, &ParseError{Source: source, UID: uid, Err: err}
		}
		if series.ExDates, err = f.seriesList(ev, model.PropExDate); err != nil {
			return nil, &ParseError{Source: source, UID: uid, Err: err}
		}

		instances, err := Expand(series, f.Window)
		if err != nil {
			return nil, &RecurrenceError{Source: source, UID: uid, Rule: rule, Err: err}
		}
		out := make([]model.Occurrence, 0, len(instances))
		for _, in := range instances {
			if !f.Window.Contains(in.Start) {
				continue
			}
			out = append(out, model.Occurrence{
				Event:     ev,
				Start:     in.Start,
				End:       in.End,
				Duration:  in.Duration,
				SourceURL: sourceURL,
			})
		}
		return out, nil
	}

	if !f.Window.Contains(start) {
		return nil, nil
	}
	end := start.Add(duration)
	if hasEnd {
		end = f.Normalize(rawEnd, true)
	}
	return []model.Occurrence{{
		Event:     ev,
		Start:     start,
		End:       end,
		Duration:  duration,
		SourceURL: sourceURL,
	}}, nil
}

// duration is DTEND-DTSTART, or the DURATION property when DTEND is absent.
func (f Frame) duration(source string, ev model.RawEvent, start time.Time, rawEnd model.DateValue, hasEnd bool) (time.Duration, error) {
	if hasEnd {
		return f.Normalize(rawEnd, false).Sub(start), nil
	}
	d, ok, err := ev.Duration(model.PropDuration)
	if err != nil {
		return 0, &ParseError{Source: source, UID: ev.UID(), Err: err}
	}
	if !ok {
		return 0, &PropertyMissingError{Source: source, UID: ev.UID(), Property: model.PropDtEnd}
	}
	return d, nil
}

// seriesTime keeps a zoned value in its own location. Whole days have no
// zone of their own and start at midnight in the target zone.
func (f Frame) seriesTime(v model.DateValue) time.Time {
	if v.DateOnly {
		return f.Normalize(v, false)
	}
	return v.Time
}

func (f Frame) seriesList(ev model.RawEvent, p model.Property) ([]time.Time, error) {
	values, err := ev.DateList(p)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(values))
	for _, v := range values {
		out = append(out, f.seriesTime(v))
	}
	return out, nil
}

// OverrideKeys records the (uid, RECURRENCE-ID) of every override among
// events. Overrides are scanned whether or not their own start is in the
// window, so an instance moved out of the window still hides its original.
func (f Frame) OverrideKeys(events []model.RawEvent) (map[model.OverrideKey]struct{}, error) {
	keys := make(map[model.OverrideKey]struct{})
	for _, ev := range events {
		if !ev.IsOverride() {
			continue
		}
		rid, ok, err := ev.Date(model.PropRecurrenceID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.New("override without RECURRENCE-ID value")
		}
		key := model.OverrideKey{UID: ev.UID(), RecurrenceID: f.Normalize(rid, false)}
		keys[key.Key()] = struct{}{}
	}
	return keys, nil
}

// Reconcile returns a filtered copy of occs without the synthesized
// occurrences whose (uid, start) is in keys. Overrides are always kept.
func Reconcile(occs []model.Occurrence, keys map[model.OverrideKey]struct{}) []model.Occurrence {
	if len(keys) == 0 {
		return occs
	}
	kept := make([]model.Occurrence, 0, len(occs))
	for _, o := range occs {
		if !o.Event.IsOverride() {
			key := model.OverrideKey{UID: o.Event.UID(), RecurrenceID: o.Start}
			if _, ok := keys[key.Key()]; ok {
				continue
			}
		}
		kept = append(kept, o)
	}
	return kept
}
