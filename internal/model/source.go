package model

import appLog "ical2mail/internal/log"

// Source is one calendar feed, optionally behind HTTP basic auth.
type Source struct {
	URL      string
	Name     string
	Username string
	Password string
}

// HasCredentials reports whether basic auth should be sent.
func (s Source) HasCredentials() bool {
	return s.Username != "" || s.Password != ""
}

// Label is safe to print: the configured name, else the redacted URL.
func (s Source) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return appLog.RedactURL(s.URL)
}
