package model

import "strings"

// Property is an iCalendar property name in upper case, e.g. "DTSTART".
type Property string

const (
	PropClass         Property = "CLASS"
	PropCreated       Property = "CREATED"
	PropDescription   Property = "DESCRIPTION"
	PropDtStart       Property = "DTSTART"
	PropGeo           Property = "GEO"
	PropLastModified  Property = "LAST-MODIFIED"
	PropLocation      Property = "LOCATION"
	PropOrganizer     Property = "ORGANIZER"
	PropPriority      Property = "PRIORITY"
	PropDtStamp       Property = "DTSTAMP"
	PropSequence      Property = "SEQUENCE"
	PropStatus        Property = "STATUS"
	PropSummary       Property = "SUMMARY"
	PropTransp        Property = "TRANSP"
	PropUID           Property = "UID"
	PropURL           Property = "URL"
	PropRecurrenceID  Property = "RECURRENCE-ID"
	PropDtEnd         Property = "DTEND"
	PropDuration      Property = "DURATION"
	PropAttach        Property = "ATTACH"
	PropAttendee      Property = "ATTENDEE"
	PropCategories    Property = "CATEGORIES"
	PropComment       Property = "COMMENT"
	PropContact       Property = "CONTACT"
	PropExDate        Property = "EXDATE"
	PropExRule        Property = "EXRULE"
	PropRequestStatus Property = "REQUEST-STATUS"
	PropRelatedTo     Property = "RELATED-TO"
	PropResources     Property = "RESOURCES"
	PropRDate         Property = "RDATE"
	PropRRule         Property = "RRULE"
)

// Name is the lower-case key used in records and templates.
func (p Property) Name() string {
	return strings.ToLower(string(p))
}

// Category tells how a property is carried into a Record.
type Category int

const (
	// Unique properties appear at most once and are decoded.
	Unique Category = iota
	// Exclusive properties are the DTEND/DURATION pair; one of them defines the end.
	Exclusive
	// Many properties may repeat and are passed through undecoded.
	Many
)

func (c Category) String() string {
	switch c {
	case Unique:
		return "unique"
	case Exclusive:
		return "xor"
	case Many:
		return "many"
	}
	return "unknown"
}

// DateProperties are the single-valued properties carrying DATE/DATE-TIME values.
var DateProperties = map[Property]bool{
	PropCreated:      true,
	PropDtStart:      true,
	PropLastModified: true,
	PropDtStamp:      true,
	PropRecurrenceID: true,
	PropDtEnd:        true,
}

// PropertySet lists the VEVENT properties carried into records, per category.
type PropertySet map[Category][]Property

// DefaultProperties is the VEVENT property set of RFC 5545 section 3.6.1.
func DefaultProperties() PropertySet {
	return PropertySet{
		Unique: {
			PropClass, PropCreated, PropDescription, PropDtStart, PropGeo,
			PropLastModified, PropLocation, PropOrganizer, PropPriority,
			PropDtStamp, PropSequence, PropStatus, PropSummary, PropTransp,
			PropUID, PropURL, PropRecurrenceID,
		},
		Exclusive: {PropDtEnd, PropDuration},
		Many: {
			PropAttach, PropAttendee, PropCategories, PropComment, PropContact,
			PropExDate, PropExRule, PropRequestStatus, PropRelatedTo,
			PropResources, PropRDate, PropRRule,
		},
	}
}

// CategoryOf finds the category of p, ok is false for properties outside the set.
func (s PropertySet) CategoryOf(p Property) (Category, bool) {
	for c, props := range s {
		for _, q := range props {
			if q == p {
				return c, true
			}
		}
	}
	return 0, false
}
