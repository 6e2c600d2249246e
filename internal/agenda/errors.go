package agenda

import (
	"fmt"

	"ical2mail/internal/model"
)

// FetchError reports that a source could not be retrieved.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports a malformed calendar document or property value.
type ParseError struct {
	Source string
	UID    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.UID != "" {
		return fmt.Sprintf("parse %s (uid %s): %v", e.Source, e.UID, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// RecurrenceError reports a recurrence rule that could not be interpreted.
type RecurrenceError struct {
	Source string
	UID    string
	Rule   string
	Err    error
}

func (e *RecurrenceError) Error() string {
	return fmt.Sprintf("recurrence %q of uid %s in %s: %v", e.Rule, e.UID, e.Source, e.Err)
}

func (e *RecurrenceError) Unwrap() error {
	return e.Err
}

// PropertyMissingError reports an event lacking a property the core relies on.
type PropertyMissingError struct {
	Source   string
	UID      string
	Property model.Property
}

func (e *PropertyMissingError) Error() string {
	return fmt.Sprintf("event uid %s in %s: missing %s", e.UID, e.Source, e.Property)
}
