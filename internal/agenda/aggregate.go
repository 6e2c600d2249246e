package agenda

import (
	"cmp"
	"context"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "ical2mail/internal/log"
	"ical2mail/internal/model"
)

// Fetcher retrieves the raw calendar document of a source.
type Fetcher interface {
	Fetch(ctx context.Context, src model.Source) ([]byte, error)
}

// Parser turns a calendar document into its VEVENTs.
type Parser interface {
	Parse(body []byte) ([]model.RawEvent, error)
}

// Observer is notified once per processed source. A nil Observer is allowed.
type Observer interface {
	ObserveSource(src model.Source, elapsed time.Duration, occurrences int, err error)
}

// Aggregator runs fetch, parse, expand, filter and reconcile for every
// source and merges the results in start order.
type Aggregator struct {
	Fetcher    Fetcher
	Parser     Parser
	Normalizer Normalizer
	// Parallel bounds concurrent source processing. Values <= 1 process
	// sources one after another.
	Parallel int
	Observer Observer
}

// Occurrences returns the surviving occurrences of all sources sorted by
// start. Equal starts keep source order, then document order. Any error
// aborts the whole pass.
func (a *Aggregator) Occurrences(ctx context.Context, sources []model.Source) ([]model.Occurrence, error) {
	perSource := make([][]model.Occurrence, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	limit := a.Parallel
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, src := range sources {
		g.Go(func() error {
			occs, err := a.source(ctx, src)
			if err != nil {
				return err
			}
			perSource[i] = occs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []model.Occurrence
	for _, occs := range perSource {
		merged = append(merged, occs...)
	}
	slices.SortStableFunc(merged, func(x, y model.Occurrence) int {
		return cmp.Compare(x.Start.UnixNano(), y.Start.UnixNano())
	})
	return merged, nil
}

// Aggregate is Occurrences followed by record normalization.
func (a *Aggregator) Aggregate(ctx context.Context, sources []model.Source) ([]model.Record, error) {
	occs, err := a.Occurrences(ctx, sources)
	if err != nil {
		return nil, err
	}
	if appLog.Enabled(appLog.LevelDebug) {
		DebugOccurrences(occs)
	}
	return a.Normalizer.Records(occs)
}

func (a *Aggregator) source(ctx context.Context, src model.Source) (occs []model.Occurrence, err error) {
	started := time.Now()
	defer func() {
		if a.Observer != nil {
			a.Observer.ObserveSource(src, time.Since(started), len(occs), err)
		}
	}()

	label := src.Label()
	body, err := a.Fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, &FetchError{Source: label, Err: err}
	}
	events, err := a.Parser.Parse(body)
	if err != nil {
		return nil, &ParseError{Source: label, Err: err}
	}

	occs, err = a.Normalizer.Frame.Collect(label, src.URL, events)
	if err != nil {
		return nil, err
	}
	appLog.Info("source collected", "source", label, "events", len(events), "occurrences", len(occs))
	return occs, nil
}

// DebugOccurrences logs the identifying properties of each occurrence.
func DebugOccurrences(occs []model.Occurrence) {
	for _, o := range occs {
		kv := []any{"start", o.Start.Format(time.RFC3339), "end", o.End.Format(time.RFC3339)}
		for _, p := range []model.Property{model.PropSummary, model.PropUID, model.PropSequence, model.PropRRule} {
			if v, ok := o.Event.Text(p); ok {
				kv = append(kv, p.Name(), v)
			}
		}
		if rid, ok, _ := o.Event.Date(model.PropRecurrenceID); ok {
			kv = append(kv, model.PropRecurrenceID.Name(), rid.Time.Format(time.RFC3339))
		}
		appLog.Debug("occurrence", kv...)
	}
}
