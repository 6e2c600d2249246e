package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ical2mail/internal/agenda"
	"ical2mail/internal/model"
)

// CalendarConfig describes a single ICS subscription source.
type CalendarConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// Name is a human-friendly label used in logs and templates.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Username / Password enable HTTP basic auth against the feed.
	Username string `yaml:"username,omitempty" json:"-"`
	Password string `yaml:"password,omitempty" json:"-"`
}

// UnmarshalYAML accepts either a bare URL string or a mapping.
func (c *CalendarConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.URL = node.Value
		return nil
	}
	type plain CalendarConfig
	return node.Decode((*plain)(c))
}

// Recipients is a list of addresses; a single scalar address is accepted.
type Recipients []string

func (r *Recipients) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*r = nil
		if v := strings.TrimSpace(node.Value); v != "" {
			*r = Recipients{v}
		}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*r = list
	return nil
}

// MailConfig holds SMTP delivery settings.
type MailConfig struct {
	From     string     `yaml:"from"`
	To       Recipients `yaml:"to"`
	Host     string     `yaml:"smtp_host"`
	Port     int        `yaml:"smtp_port"`
	User     string     `yaml:"smtp_user"`
	Password string     `yaml:"smtp_password"`
	// StartTLS upgrades the connection before authenticating.
	StartTLS bool `yaml:"starttls"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the preview server.
type BasicAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Config is the ical2mail.yaml file.
type Config struct {
	// Timezone is the IANA timezone every event is normalized to (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone"`

	// DaysPrev / DaysNext span the active window around today.
	DaysPrev int `yaml:"days_prev"`
	DaysNext int `yaml:"days_next"`

	Calendars []CalendarConfig `yaml:"calendars"`

	// strftime patterns for the three string views of each time.
	FormatDateTime string `yaml:"format_datetime"`
	FormatDate     string `yaml:"format_date"`
	FormatTime     string `yaml:"format_time"`

	// TemplateFile is the body template. Empty uses the built-in one.
	TemplateFile string `yaml:"template_file,omitempty"`
	// MailSubject is itself a template.
	MailSubject string `yaml:"mail_subject"`

	Mail MailConfig `yaml:"mail"`

	// DryRun prints subject and body instead of sending mail.
	DryRun bool `yaml:"dry_run"`

	// Schedule is a cron spec for the schedule command, e.g. "0 6 * * *".
	Schedule string `yaml:"schedule"`

	// Listen is the HTTP listen address of the serve command.
	Listen    string           `yaml:"listen"`
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty"`

	// CacheDir enables conditional-GET caching of feed bodies when set.
	CacheDir            string `yaml:"cache_dir,omitempty"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
	MaxBodyBytes        int64  `yaml:"max_body_bytes"`
	// ParallelFetches > 1 processes sources concurrently; output order is unaffected.
	ParallelFetches int `yaml:"parallel_fetches"`

	LogLevel string `yaml:"log_level"`
}

// DefaultConfig is the configuration written on first run.
func DefaultConfig() *Config {
	c := &Config{
		DaysNext:  7,
		Calendars: []CalendarConfig{},
		Mail: MailConfig{
			To: Recipients{},
		},
	}
	c.Normalize()
	return c
}

// Normalize replaces zero values with defaults.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	formats := agenda.DefaultFormats()
	if c.FormatDateTime == "" {
		c.FormatDateTime = formats.DateTime
	}
	if c.FormatDate == "" {
		c.FormatDate = formats.Date
	}
	if c.FormatTime == "" {
		c.FormatTime = formats.Time
	}
	if c.MailSubject == "" {
		c.MailSubject = "Events {{.DateMin.Date}} - {{.DateMax.Date}}"
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.Schedule == "" {
		c.Schedule = "0 6 * * *"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.FetchTimeoutSeconds <= 0 {
		c.FetchTimeoutSeconds = 30
	}
	if c.ParallelFetches <= 0 {
		c.ParallelFetches = 1
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
}

// Validate reports settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if c.DaysPrev < 0 {
		errs = append(errs, errors.New("days_prev must not be negative"))
	}
	if c.DaysNext < 0 {
		errs = append(errs, errors.New("days_next must not be negative"))
	}
	if len(c.Calendars) == 0 {
		errs = append(errs, errors.New("calendars: at least one source is required"))
	}
	for i, cal := range c.Calendars {
		if strings.TrimSpace(cal.URL) == "" {
			errs = append(errs, fmt.Errorf("calendars[%d]: url is empty", i))
		}
	}
	if !c.DryRun {
		if c.Mail.From == "" {
			errs = append(errs, errors.New("mail.from is required unless dry_run is set"))
		}
		if len(c.Mail.To) == 0 {
			errs = append(errs, errors.New("mail.to is required unless dry_run is set"))
		}
		if c.Mail.Host == "" {
			errs = append(errs, errors.New("mail.smtp_host is required unless dry_run is set"))
		}
	}
	return errors.Join(errs...)
}

// Location loads the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Frame fixes the active window for one pass starting at now.
func (c *Config) Frame(now time.Time) (agenda.Frame, error) {
	loc, err := c.Location()
	if err != nil {
		return agenda.Frame{}, err
	}
	return agenda.NewFrame(now, loc, c.DaysPrev, c.DaysNext)
}

// Formats returns the configured output patterns.
func (c *Config) Formats() agenda.Formats {
	return agenda.Formats{
		DateTime: c.FormatDateTime,
		Date:     c.FormatDate,
		Time:     c.FormatTime,
	}
}

// Sources converts the calendar list into core sources.
func (c *Config) Sources() []model.Source {
	out := make([]model.Source, 0, len(c.Calendars))
	for _, cal := range c.Calendars {
		out = append(out, model.Source{
			URL:      strings.TrimSpace(cal.URL),
			Name:     cal.Name,
			Username: cal.Username,
			Password: cal.Password,
		})
	}
	return out
}

// FetchTimeout is FetchTimeoutSeconds as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Load reads and normalizes the YAML file at path. A missing file is
// replaced by a 0600 default and reported with ErrCreated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, ErrCreated
		}
		return nil, err
	}

	// Keys absent from the file keep their defaults; explicit zeros stay.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// ErrCreated is returned by Load after writing a first-run default file.
var ErrCreated = errors.New("config file created with defaults; edit it and run again")

// Save writes cfg atomically (temp file + rename) with mode 0600; the file
// holds feed and SMTP credentials.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".ical2mail-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
