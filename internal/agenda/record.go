package agenda

import (
	"time"

	"github.com/ncruces/go-strftime"

	appLog "ical2mail/internal/log"
	"ical2mail/internal/model"
)

// Formats are strftime patterns for the three string views of a time.
type Formats struct {
	DateTime string
	Date     string
	Time     string
}

// DefaultFormats renders "31.12.2024 18:30" style output.
func DefaultFormats() Formats {
	return Formats{
		DateTime: "%d.%m.%Y %H:%M",
		Date:     "%d.%m.%Y",
		Time:     "%H:%M",
	}
}

// Format renders t in every configured view.
func (fs Formats) Format(t time.Time) model.FormattedTime {
	return model.FormattedTime{
		DT:       t,
		DateTime: strftime.Format(fs.DateTime, t),
		Date:     strftime.Format(fs.Date, t),
		Time:     strftime.Format(fs.Time, t),
	}
}

// Normalizer builds records from surviving occurrences.
type Normalizer struct {
	Frame      Frame
	Formats    Formats
	Properties model.PropertySet
}

// Record flattens o. Properties absent from the event are omitted, DTEND is
// always start+duration and multi-valued properties are passed through.
func (n Normalizer) Record(o model.Occurrence) (model.Record, error) {
	props := n.Properties
	if props == nil {
		props = model.DefaultProperties()
	}
	ev := o.Event

	rec := model.Record{
		Fields:    make(map[string]string),
		Times:     make(map[string]time.Time),
		Multi:     make(map[string][]model.Value),
		DTEnd:     o.Start.Add(o.Duration).In(n.Frame.Location),
		Duration:  o.Duration,
		Start:     n.Formats.Format(o.Start.In(n.Frame.Location)),
		End:       n.Formats.Format(o.End.In(n.Frame.Location)),
		SourceURL: o.SourceURL,
	}

	for _, p := range props[model.Unique] {
		if !ev.Has(p) {
			continue
		}
		if model.DateProperties[p] {
			v, ok, err := ev.Date(p)
			if err != nil {
				return model.Record{}, &ParseError{Source: appLog.RedactURL(o.SourceURL), UID: ev.UID(), Err: err}
			}
			if ok {
				rec.Times[p.Name()] = n.Frame.Normalize(v, false)
			}
			continue
		}
		if text, ok := ev.Text(p); ok {
			rec.Fields[p.Name()] = text
		}
	}

	for _, p := range props[model.Many] {
		if values := ev.Values(p); len(values) > 0 {
			rec.Multi[p.Name()] = values
		}
	}
	return rec, nil
}

// Records normalizes occs in order.
func (n Normalizer) Records(occs []model.Occurrence) ([]model.Record, error) {
	out := make([]model.Record, 0, len(occs))
	for _, o := range occs {
		rec, err := n.Record(o)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
