// Package digest wires configuration, the aggregation core, the renderer and
// a mailer into one notification pass.
package digest

import (
	"context"
	"time"

	"ical2mail/internal/agenda"
	"ical2mail/internal/config"
	"ical2mail/internal/ics"
	appLog "ical2mail/internal/log"
	"ical2mail/internal/mail"
	"ical2mail/internal/metrics"
	"ical2mail/internal/model"
	"ical2mail/internal/render"
)

// Pipeline runs aggregation passes for one configuration.
type Pipeline struct {
	cfg      *config.Config
	fetcher  agenda.Fetcher
	renderer *render.Renderer
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f agenda.Fetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

// WithMetrics reports source and pass outcomes to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock fixes the time a pass anchors its window on.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New validates templates eagerly so a broken template fails at startup.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	r, err := render.New(cfg.TemplateFile, cfg.MailSubject)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:      cfg,
		renderer: r,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.fetcher == nil {
		p.fetcher = ics.NewFetcher(ics.FetcherOptions{
			Timeout:      cfg.FetchTimeout(),
			CacheDir:     cfg.CacheDir,
			MaxBodyBytes: cfg.MaxBodyBytes,
		})
	}
	return p, nil
}

// Result is the outcome of one aggregation pass.
type Result struct {
	Frame   agenda.Frame
	Records []model.Record
	Data    render.Data
}

// Collect fixes the window for this pass and aggregates every source.
func (p *Pipeline) Collect(ctx context.Context) (Result, error) {
	frame, err := p.cfg.Frame(p.now())
	if err != nil {
		return Result{}, err
	}

	agg := &agenda.Aggregator{
		Fetcher: p.fetcher,
		Parser:  ics.NewParser(frame.Location),
		Normalizer: agenda.Normalizer{
			Frame:      frame,
			Formats:    p.cfg.Formats(),
			Properties: model.DefaultProperties(),
		},
		Parallel: p.cfg.ParallelFetches,
	}
	if p.metrics != nil {
		agg.Observer = p.metrics
	}

	sources := p.cfg.Sources()
	appLog.Info("aggregation pass start",
		"sources", len(sources),
		"window_min", frame.Window.Min.Format(time.RFC3339),
		"window_max", frame.Window.Max.Format(time.RFC3339),
	)

	records, err := agg.Aggregate(ctx, sources)
	if p.metrics != nil {
		p.metrics.ObservePass(len(records), err)
	}
	if err != nil {
		return Result{}, err
	}

	labels := make([]string, 0, len(sources))
	for _, src := range sources {
		labels = append(labels, src.Label())
	}
	data := render.NewData(frame, p.cfg.Formats(), labels, records)
	data.MailFrom = p.cfg.Mail.From
	data.MailTo = p.cfg.Mail.To

	appLog.Info("aggregation pass done", "events", len(records))
	return Result{Frame: frame, Records: records, Data: data}, nil
}

// Render collects and renders body and subject.
func (p *Pipeline) Render(ctx context.Context) (body, subject string, err error) {
	res, err := p.Collect(ctx)
	if err != nil {
		return "", "", err
	}
	return p.renderer.Render(res.Data)
}

// Run performs one complete pass and hands the digest to m.
func (p *Pipeline) Run(ctx context.Context, m mail.Mailer) error {
	body, subject, err := p.Render(ctx)
	if err != nil {
		return err
	}
	return m.Send(ctx, subject, body)
}

// Mailer picks the dry-run printer or SMTP delivery per configuration.
func Mailer(cfg *config.Config) mail.Mailer {
	if cfg.DryRun {
		return mail.Printer{}
	}
	return mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		User:     cfg.Mail.User,
		Password: cfg.Mail.Password,
		StartTLS: cfg.Mail.StartTLS,
		From:     cfg.Mail.From,
		To:       cfg.Mail.To,
	})
}
