package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ical2mail/internal/agenda"
	"ical2mail/internal/model"
)

// Metrics exposes Prometheus collectors that report aggregation activity.
type Metrics struct {
	sourceDuration *prometheus.HistogramVec
	sourceFailures *prometheus.CounterVec
	passes         *prometheus.CounterVec
	events         prometheus.Gauge
	lastSuccess    prometheus.Gauge
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns the instance registered with the global registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNew(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNew registers a fresh set of collectors on reg and panics on a
// registration conflict.
func MustNew(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sourceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ical2mail",
				Subsystem: "source",
				Name:      "duration_seconds",
				Help:      "Time spent fetching, parsing and expanding one calendar source.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		sourceFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ical2mail",
				Subsystem: "source",
				Name:      "failures_total",
				Help:      "Calendar sources that failed, by error kind.",
			},
			[]string{"source", "kind"},
		),
		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ical2mail",
				Name:      "passes_total",
				Help:      "Aggregation passes by outcome.",
			},
			[]string{"status"},
		),
		events: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ical2mail",
			Name:      "events",
			Help:      "Events in the most recent successful pass.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ical2mail",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the most recent successful pass.",
		}),
	}
	reg.MustRegister(m.sourceDuration, m.sourceFailures, m.passes, m.events, m.lastSuccess)
	return m
}

// ObserveSource implements agenda.Observer.
func (m *Metrics) ObserveSource(src model.Source, elapsed time.Duration, _ int, err error) {
	label := src.Label()
	m.sourceDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	if err != nil {
		m.sourceFailures.WithLabelValues(label, ErrorKind(err)).Inc()
	}
}

// ObservePass records the outcome of a whole pass.
func (m *Metrics) ObservePass(events int, err error) {
	if err != nil {
		m.passes.WithLabelValues("error").Inc()
		return
	}
	m.passes.WithLabelValues("ok").Inc()
	m.events.Set(float64(events))
	m.lastSuccess.SetToCurrentTime()
}

// ErrorKind classifies err by the agenda error taxonomy.
func ErrorKind(err error) string {
	var (
		fetchErr   *agenda.FetchError
		parseErr   *agenda.ParseError
		recurErr   *agenda.RecurrenceError
		missingErr *agenda.PropertyMissingError
	)
	switch {
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &recurErr):
		return "recurrence"
	case errors.As(err, &missingErr):
		return "property_missing"
	}
	return "other"
}
