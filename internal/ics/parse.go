package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "ical2mail/internal/log"
	"ical2mail/internal/model"
)

const (
	layoutDate     = "20060102"
	layoutDateTime = "20060102T150405"
	layoutUTC      = "20060102T150405Z"
)

// Parser reads VEVENTs with golang-ical. Floating DATE-TIME values and
// unknown TZIDs are interpreted in Location.
type Parser struct {
	Location *time.Location
}

// NewParser returns a parser for floating times in loc.
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{Location: loc}
}

// Parse decodes body into events. Structural errors from the library are
// returned as-is; property values are decoded lazily by the Event accessors.
func (p *Parser) Parse(body []byte) ([]model.RawEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	vevents := cal.Events()
	events := make([]model.RawEvent, 0, len(vevents))
	for _, ve := range vevents {
		events = append(events, &Event{ve: ve, loc: p.Location})
	}
	return events, nil
}

// Event adapts a golang-ical VEvent to model.RawEvent.
type Event struct {
	ve  *ical.VEvent
	loc *time.Location
}

// NewEvent wraps an already-parsed VEvent.
func NewEvent(ve *ical.VEvent, loc *time.Location) *Event {
	return &Event{ve: ve, loc: loc}
}

func (e *Event) prop(p model.Property) *ical.IANAProperty {
	return e.ve.GetProperty(ical.ComponentProperty(p))
}

func (e *Event) UID() string {
	return e.ve.Id()
}

func (e *Event) Has(p model.Property) bool {
	return e.prop(p) != nil
}

func (e *Event) Text(p model.Property) (string, bool) {
	prop := e.prop(p)
	if prop == nil {
		return "", false
	}
	return ical.FromText(prop.Value), true
}

func (e *Event) Date(p model.Property) (model.DateValue, bool, error) {
	prop := e.prop(p)
	if prop == nil {
		return model.DateValue{}, false, nil
	}
	v, err := parseDateValue(prop.Value, prop.ICalParameters, e.loc)
	if err != nil {
		return model.DateValue{}, true, fmt.Errorf("%s: %w", p, err)
	}
	return v, true, nil
}

func (e *Event) Duration(p model.Property) (time.Duration, bool, error) {
	prop := e.prop(p)
	if prop == nil {
		return 0, false, nil
	}
	d, err := ParseDuration(prop.Value)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", p, err)
	}
	return d, true, nil
}

func (e *Event) DateList(p model.Property) ([]model.DateValue, error) {
	var out []model.DateValue
	for _, prop := range e.ve.GetProperties(ical.ComponentProperty(p)) {
		for _, part := range strings.Split(prop.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			// RDATE;VALUE=PERIOD carries start/end or start/duration.
			if i := strings.IndexByte(part, '/'); i >= 0 {
				part = part[:i]
			}
			v, err := parseDateValue(part, prop.ICalParameters, e.loc)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p, err)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func (e *Event) Values(p model.Property) []model.Value {
	props := e.ve.GetProperties(ical.ComponentProperty(p))
	if len(props) == 0 {
		return nil
	}
	out := make([]model.Value, 0, len(props))
	for _, prop := range props {
		out = append(out, model.Value{Raw: prop.Value, Params: prop.ICalParameters})
	}
	return out
}

func (e *Event) IsOverride() bool {
	return e.Has(model.PropRecurrenceID)
}

// parseDateValue decodes a DATE or DATE-TIME honoring VALUE and TZID.
func parseDateValue(v string, params map[string][]string, floating *time.Location) (model.DateValue, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return model.DateValue{}, errors.New("empty time value")
	}

	if isDateOnly(v, params) {
		t, err := time.Parse(layoutDate, v)
		if err != nil {
			return model.DateValue{}, err
		}
		return model.DateValue{Time: t, DateOnly: true}, nil
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse(layoutUTC, v)
		if err != nil {
			return model.DateValue{}, err
		}
		return model.DateTime(t), nil
	}

	loc := floating
	if tzid := firstParam(params, "TZID"); tzid != "" {
		loc = loadLocation(tzid, floating)
	}
	t, err := time.ParseInLocation(layoutDateTime, v, loc)
	if err != nil {
		return model.DateValue{}, err
	}
	return model.DateTime(t), nil
}

func isDateOnly(v string, params map[string][]string) bool {
	if strings.EqualFold(firstParam(params, "VALUE"), "DATE") {
		return true
	}
	return !strings.Contains(v, "T")
}

func firstParam(params map[string][]string, name string) string {
	if vs := params[name]; len(vs) > 0 {
		return strings.Trim(vs[0], `"`)
	}
	return ""
}

// loadLocation resolves a TZID. Non-IANA names (as written by some desktop
// clients) fall back to the floating zone.
func loadLocation(tzid string, fallback *time.Location) *time.Location {
	loc, err := time.LoadLocation(strings.TrimPrefix(tzid, "/"))
	if err != nil {
		appLog.Warn("unknown TZID; using target timezone", "tzid", tzid, "fallback", fallback.String())
		return fallback
	}
	return loc
}
