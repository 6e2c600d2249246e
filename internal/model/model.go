package model

import (
	"strings"
	"time"
)

// DateValue is a calendar DATE or DATE-TIME value as read from a property.
// When DateOnly is set only the year/month/day of Time are meaningful.
type DateValue struct {
	Time     time.Time
	DateOnly bool
}

// Date builds a whole-day value.
func Date(year int, month time.Month, day int) DateValue {
	return DateValue{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), DateOnly: true}
}

// DateTime builds a zoned value.
func DateTime(t time.Time) DateValue {
	return DateValue{Time: t}
}

// Value is one occurrence of a property, kept in its wire form. Multi-valued
// properties are handed to templates as-is.
type Value struct {
	Raw    string
	Params map[string][]string
}

func (v Value) String() string {
	return v.Raw
}

// Param returns the first value of a property parameter such as TZID.
func (v Value) Param(name string) string {
	vs := v.Params[strings.ToUpper(name)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// RawEvent is a parsed VEVENT. The core only reads from it.
type RawEvent interface {
	// UID returns the event UID, empty if absent.
	UID() string
	// Has reports whether the property is present at least once.
	Has(p Property) bool
	// Text returns the first value of a single-valued text property.
	Text(p Property) (string, bool)
	// Date decodes the first value of a date-valued property. ok is false
	// when the property is absent; err is set when it is present but malformed.
	Date(p Property) (v DateValue, ok bool, err error)
	// Duration decodes a DURATION-typed property.
	Duration(p Property) (d time.Duration, ok bool, err error)
	// DateList decodes every value of a repeatable date property such as
	// EXDATE, including comma-separated lists.
	DateList(p Property) ([]DateValue, error)
	// Values returns every value of a property in document order.
	Values(p Property) []Value
	// IsOverride reports whether the event carries a RECURRENCE-ID.
	IsOverride() bool
}

// Occurrence is one concrete instance of an event inside the active window.
type Occurrence struct {
	Event     RawEvent
	Start     time.Time
	End       time.Time
	Duration  time.Duration
	SourceURL string
}

// OverrideKey identifies the synthesized instance an override replaces.
type OverrideKey struct {
	UID          string
	RecurrenceID time.Time
}

// Key normalizes the instant so keys compare equal across locations.
func (k OverrideKey) Key() OverrideKey {
	return OverrideKey{UID: k.UID, RecurrenceID: k.RecurrenceID.Round(0).UTC()}
}

// FormattedTime is a datetime plus its three configured string renderings.
type FormattedTime struct {
	DT       time.Time `json:"dt"`
	DateTime string    `json:"datetime"`
	Date     string    `json:"date"`
	Time     string    `json:"time"`
}

// Record is the flat, template-ready view of one surviving occurrence.
type Record struct {
	// Fields holds decoded single-valued text properties keyed by lower-case name.
	Fields map[string]string `json:"fields"`
	// Times holds single-valued date properties normalized to the target zone.
	Times map[string]time.Time `json:"times,omitempty"`
	// Multi holds multi-valued properties in their wire form.
	Multi map[string][]Value `json:"multi,omitempty"`

	DTEnd     time.Time     `json:"dtend"`
	Duration  time.Duration `json:"duration"`
	Start     FormattedTime `json:"start"`
	End       FormattedTime `json:"end"`
	SourceURL string        `json:"ics_url"`
}

// Field returns a text field or "" when the event did not carry it.
func (r Record) Field(name string) string {
	return r.Fields[strings.ToLower(name)]
}

// Has reports whether the named property was present on the event.
func (r Record) Has(name string) bool {
	name = strings.ToLower(name)
	if _, ok := r.Fields[name]; ok {
		return true
	}
	if _, ok := r.Times[name]; ok {
		return true
	}
	_, ok := r.Multi[name]
	return ok
}

func (r Record) Summary() string { return r.Field("summary") }
func (r Record) UID() string     { return r.Field("uid") }
