package render

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/ncruces/go-strftime"

	"ical2mail/internal/agenda"
	"ical2mail/internal/model"
)

//go:embed templates/agenda.txt.tmpl
var embeddedTemplates embed.FS

const defaultTemplate = "templates/agenda.txt.tmpl"

// Data is everything a template can reference.
type Data struct {
	Today    model.FormattedTime
	DateMin  model.FormattedTime
	DateMax  model.FormattedTime
	DaysPrev int
	DaysNext int

	FormatDateTime string
	FormatDate     string
	FormatTime     string

	Calendars []string
	Timezone  string

	MailFrom  string
	MailTo    []string
	MailTitle string

	Events []model.Record
}

// NewData assembles template data for one pass.
func NewData(frame agenda.Frame, formats agenda.Formats, calendars []string, events []model.Record) Data {
	return Data{
		Today:          formats.Format(frame.Today),
		DateMin:        formats.Format(frame.Window.Min),
		DateMax:        formats.Format(frame.Window.Max),
		DaysPrev:       frame.DaysPrev,
		DaysNext:       frame.DaysNext,
		FormatDateTime: formats.DateTime,
		FormatDate:     formats.Date,
		FormatTime:     formats.Time,
		Calendars:      calendars,
		Timezone:       frame.Location.String(),
		Events:         events,
	}
}

// Renderer produces the mail body and subject.
type Renderer struct {
	body    *template.Template
	subject *template.Template
}

// New parses the body template from file (empty selects the built-in one)
// and the subject template from text.
func New(file, subject string) (*Renderer, error) {
	var (
		src  []byte
		name string
		err  error
	)
	if file == "" {
		name = defaultTemplate
		src, err = embeddedTemplates.ReadFile(defaultTemplate)
	} else {
		name = file
		src, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}

	body, err := template.New(name).Funcs(funcs()).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	subj, err := template.New("subject").Funcs(funcs()).Parse(subject)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	return &Renderer{body: body, subject: subj}, nil
}

// Render executes both templates. The subject is rendered first so the body
// can reference it as MailTitle.
func (r *Renderer) Render(data Data) (body, subject string, err error) {
	var sb bytes.Buffer
	if err := r.subject.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	subject = strings.TrimSpace(sb.String())
	data.MailTitle = subject

	var bb bytes.Buffer
	if err := r.body.Execute(&bb, data); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return bb.String(), subject, nil
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"strftime": func(pattern string, t time.Time) string {
			return strftime.Format(pattern, t)
		},
		"join": strings.Join,
		"indent": func(n int, s string) string {
			pad := strings.Repeat(" ", n)
			return strings.ReplaceAll(s, "\n", "\n"+pad)
		},
		"duration": func(d time.Duration) string {
			if d > 0 && d%(24*time.Hour) == 0 {
				return fmt.Sprintf("%dd", d/(24*time.Hour))
			}
			return d.String()
		},
	}
}
