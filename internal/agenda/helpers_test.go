package agenda

import (
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"ical2mail/internal/ics"
	"ical2mail/internal/model"
)

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

// marchFrame is the window [2024-03-01T00:00, 2024-03-08T00:00) in Berlin.
func marchFrame(t *testing.T) Frame {
	t.Helper()
	loc := berlin(t)
	f, err := NewFrame(time.Date(2024, 3, 1, 12, 30, 0, 0, loc), loc, 0, 7)
	require.NoError(t, err)
	return f
}

func calendar(events ...string) []byte {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//ical2mail//test//EN\r\n")
	for _, ev := range events {
		b.WriteString("BEGIN:VEVENT\r\n")
		for _, line := range strings.Split(strings.TrimSpace(ev), "\n") {
			b.WriteString(strings.TrimSpace(line))
			b.WriteString("\r\n")
		}
		b.WriteString("END:VEVENT\r\n")
	}
	b.WriteString("END:VCALENDAR\r\n")
	return []byte(b.String())
}

func parseEvents(t *testing.T, f Frame, events ...string) []model.RawEvent {
	t.Helper()
	evs, err := ics.NewParser(f.Location).Parse(calendar(events...))
	require.NoError(t, err)
	return evs
}

const weeklyMaster = `
UID:E1
DTSTAMP:20240101T000000Z
DTSTART;TZID=Europe/Berlin:20240215T100000
DTEND;TZID=Europe/Berlin:20240215T110000
RRULE:FREQ=WEEKLY;BYDAY=FR
SUMMARY:Weekly sync
`

const movedOverride = `
UID:E1
DTSTAMP:20240101T000000Z
RECURRENCE-ID;TZID=Europe/Berlin:20240301T100000
DTSTART;TZID=Europe/Berlin:20240302T090000
DTEND;TZID=Europe/Berlin:20240302T100000
SUMMARY:Weekly sync (moved)
`
