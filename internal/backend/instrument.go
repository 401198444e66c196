package backend

import (
	"context"
	"time"

	"pricedash/internal/core"
)

// Instrumented reports the duration and outcome of every store call.
type Instrumented struct {
	core.ObservationStore
	locale   string
	observer QueryObserver
}

// Instrument wraps store so each call is reported to observer under locale.
func Instrument(store core.ObservationStore, locale string, observer QueryObserver) *Instrumented {
	return &Instrumented{ObservationStore: store, locale: locale, observer: observer}
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	s.observer.ObserveQuery(s.locale, op, time.Since(start), err)
}

func (s *Instrumented) DistinctValues(ctx context.Context, column core.Column, pred core.Predicate) (_ []string, err error) {
	defer func(start time.Time) { s.observe("distinct_values", start, err) }(time.Now())
	return s.ObservationStore.DistinctValues(ctx, column, pred)
}

func (s *Instrumented) DistinctItems(ctx context.Context, pred core.Predicate) (_ []core.ItemKey, err error) {
	defer func(start time.Time) { s.observe("distinct_items", start, err) }(time.Now())
	return s.ObservationStore.DistinctItems(ctx, pred)
}

func (s *Instrumented) Query(ctx context.Context, pred core.Predicate, order core.Order, limit int) (_ []core.Observation, err error) {
	defer func(start time.Time) { s.observe("query", start, err) }(time.Now())
	return s.ObservationStore.Query(ctx, pred, order, limit)
}

func (s *Instrumented) Aggregate(ctx context.Context, pred core.Predicate, kind core.AggregateKind, column core.Column) (_ core.Scalar, err error) {
	defer func(start time.Time) { s.observe("aggregate_"+string(kind), start, err) }(time.Now())
	return s.ObservationStore.Aggregate(ctx, pred, kind, column)
}

func (s *Instrumented) InsertObservations(ctx context.Context, rows []core.Observation) (_ int, err error) {
	defer func(start time.Time) { s.observe("insert", start, err) }(time.Now())
	return s.ObservationStore.InsertObservations(ctx, rows)
}
