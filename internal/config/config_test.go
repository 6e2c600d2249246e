package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ical2mail/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ical2mail.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ical2mail.yaml")

	cfg, err := Load(path)
	assert.True(t, errors.Is(err, ErrCreated), "got %v", err)
	require.NotNil(t, cfg)
	assert.Equal(t, "UTC", cfg.Timezone)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.DaysNext, again.DaysNext)
	assert.Equal(t, cfg.MailSubject, again.MailSubject)
}

func TestLoadCalendarForms(t *testing.T) {
	path := writeConfig(t, `
timezone: Europe/Berlin
days_prev: 1
days_next: 14
calendars:
  - https://example.com/plain.ics
  - url: https://example.com/private.ics
    name: private
    username: alice
    password: s3cret
mail:
  from: agenda@example.com
  to: [me@example.com]
  smtp_host: smtp.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	want := []model.Source{
		{URL: "https://example.com/plain.ics"},
		{URL: "https://example.com/private.ics", Name: "private", Username: "alice", Password: "s3cret"},
	}
	assert.Equal(t, want, cfg.Sources())
	assert.Equal(t, 1, cfg.DaysPrev)
	assert.Equal(t, 14, cfg.DaysNext)
	assert.Equal(t, 587, cfg.Mail.Port)
	assert.Equal(t, "%d.%m.%Y %H:%M", cfg.FormatDateTime)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout())
	assert.Equal(t, 1, cfg.ParallelFetches)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "calendars: [unclosed\n"))
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Mars/Olympus"
	cfg.Calendars = []CalendarConfig{{URL: " "}}

	err := cfg.Validate()
	require.Error(t, err)
	for _, part := range []string{"timezone", "calendars[0]", "mail.from", "mail.to", "mail.smtp_host"} {
		assert.ErrorContains(t, err, part)
	}

	dry := DefaultConfig()
	dry.DryRun = true
	dry.Calendars = []CalendarConfig{{URL: "https://example.com/a.ics"}}
	assert.NoError(t, dry.Validate())

	dry.Calendars = nil
	assert.ErrorContains(t, dry.Validate(), "at least one source")
}

func TestFrameUsesConfiguredZone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Europe/Berlin"
	cfg.DaysPrev = 2
	cfg.DaysNext = 3

	f, err := cfg.Frame(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "Europe/Berlin", f.Location.String())
	assert.Equal(t, 8, f.Window.Min.Day())
	assert.Equal(t, 12, f.Window.Max.Day())
	assert.Equal(t, cfg.FormatDate, cfg.Formats().Date)

	cfg.Timezone = "Nowhere/Special"
	_, err = cfg.Frame(time.Now())
	assert.Error(t, err)
}

func TestSaveRoundTripsCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	cfg := DefaultConfig()
	cfg.Calendars = []CalendarConfig{{URL: "https://example.com/a.ics", Username: "u", Password: "p"}}
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "pw"}
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Calendars, got.Calendars)
	require.NotNil(t, got.BasicAuth)
	assert.Equal(t, "admin", got.BasicAuth.Username)
}

func TestLoadKeepsExplicitZeroLookAhead(t *testing.T) {
	cfg, err := Load(writeConfig(t, "timezone: UTC\ndays_prev: 3\ndays_next: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.DaysPrev)
	assert.Equal(t, 0, cfg.DaysNext)

	f, err := cfg.Frame(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, f.Window.Contains(time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)))
	assert.False(t, f.Window.Contains(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)))

	absent, err := Load(writeConfig(t, "timezone: UTC\n"))
	require.NoError(t, err)
	assert.Equal(t, 7, absent.DaysNext)
}

func TestValidateRejectsNegativeDays(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DryRun = true
	cfg.Calendars = []CalendarConfig{{URL: "https://example.com/a.ics"}}
	cfg.DaysPrev = -1
	cfg.DaysNext = -2

	err := cfg.Validate()
	assert.ErrorContains(t, err, "days_prev")
	assert.ErrorContains(t, err, "days_next")
}

func TestLoadMailRecipientForms(t *testing.T) {
	single, err := Load(writeConfig(t, "mail:\n  to: me@example.com\n"))
	require.NoError(t, err)
	assert.Equal(t, Recipients{"me@example.com"}, single.Mail.To)

	list, err := Load(writeConfig(t, "mail:\n  to:\n    - a@example.com\n    - b@example.com\n"))
	require.NoError(t, err)
	assert.Equal(t, Recipients{"a@example.com", "b@example.com"}, list.Mail.To)

	_, err = Load(writeConfig(t, "mail:\n  to:\n    x: y\n"))
	assert.Error(t, err)
}
