package core

import (
	"context"
)

// Column names a filterable or aggregatable observation field.
type Column string

const (
	ColumnDate     Column = "date"
	ColumnProvince Column = "province"
	ColumnDistrict Column = "district"
	ColumnMarket   Column = "market"
	ColumnCategory Column = "category"
	ColumnItem     Column = "item"
	ColumnUnit     Column = "unit"
	ColumnPrice    Column = "price"
)

// Valid reports whether c is a known column. Stores interpolate column names
// into queries, so unknown ones must be rejected first.
func (c Column) Valid() bool {
	switch c {
	case ColumnDate, ColumnProvince, ColumnDistrict, ColumnMarket,
		ColumnCategory, ColumnItem, ColumnUnit, ColumnPrice:
		return true
	}
	return false
}

type AggregateKind string

const (
	AggregateMax           AggregateKind = "max"
	AggregateCountDistinct AggregateKind = "count-distinct"
	AggregateAvg           AggregateKind = "avg"
)

type Order string

const (
	// OrderNewestFirst sorts by date descending, then insertion order descending.
	OrderNewestFirst Order = "newest"
	// OrderOldestFirst sorts by date ascending, then insertion order ascending.
	OrderOldestFirst Order = "oldest"
)

// Scalar is the result of an aggregate. Valid is false for the max or mean
// of an empty set; Text carries max over text columns.
type Scalar struct {
	Valid  bool
	Number float64
	Text   string
}

// Ports for the observation store.
type (
	ObservationReader interface {
		// DistinctValues returns the sorted distinct non-empty values of column over matching rows.
		DistinctValues(ctx context.Context, column Column, pred Predicate) ([]string, error)
		// DistinctItems returns the distinct (item, unit, category) triples over matching rows.
		DistinctItems(ctx context.Context, pred Predicate) ([]ItemKey, error)
		// Query returns matching rows in the given order. limit <= 0 means no cap.
		Query(ctx context.Context, pred Predicate, order Order, limit int) ([]Observation, error)
		Aggregate(ctx context.Context, pred Predicate, kind AggregateKind, column Column) (Scalar, error)
	}

	ObservationWriter interface {
		// InsertObservations appends rows and returns how many were stored.
		InsertObservations(ctx context.Context, rows []Observation) (int, error)
	}

	ObservationStore interface {
		ObservationReader
		ObservationWriter
		Ping(ctx context.Context) error
		Close() error
	}
)
