package storage

import (
	"fmt"

	"pricedash/internal/core"
)

// priceAccumulator folds raw prices with the coercion rule applied. Every
// row counts towards the mean, coerced zeros included.
type priceAccumulator struct {
	n   int
	sum float64
	max float64
}

func (a *priceAccumulator) add(raw string) {
	v := core.CoercePrice(raw)
	if a.n == 0 || v > a.max {
		a.max = v
	}
	a.sum += v
	a.n++
}

func (a *priceAccumulator) result(kind core.AggregateKind) (core.Scalar, error) {
	switch kind {
	case core.AggregateAvg:
		if a.n == 0 {
			return core.Scalar{}, nil
		}
		return core.Scalar{Valid: true, Number: a.sum / float64(a.n)}, nil
	case core.AggregateMax:
		if a.n == 0 {
			return core.Scalar{}, nil
		}
		return core.Scalar{Valid: true, Number: a.max}, nil
	}
	return core.Scalar{}, fmt.Errorf("aggregate %q over price is not supported", kind)
}

// AggregateObservations applies an aggregate to rows already in memory with
// the same rules the SQL repository uses.
func AggregateObservations(rows []core.Observation, kind core.AggregateKind, column core.Column) (core.Scalar, error) {
	if !column.Valid() {
		return core.Scalar{}, fmt.Errorf("unknown column %q", column)
	}

	if column == core.ColumnPrice {
		switch kind {
		case core.AggregateAvg, core.AggregateMax:
			var acc priceAccumulator
			for _, o := range rows {
				acc.add(o.StoredPrice())
			}
			return acc.result(kind)
		}
	}

	switch kind {
	case core.AggregateCountDistinct:
		seen := make(map[string]struct{})
		for _, o := range rows {
			if v := ColumnValue(o, column); v != "" {
				seen[v] = struct{}{}
			}
		}
		return core.Scalar{Valid: true, Number: float64(len(seen))}, nil
	case core.AggregateMax:
		var best string
		for _, o := range rows {
			if v := ColumnValue(o, column); v > best {
				best = v
			}
		}
		return core.Scalar{Valid: best != "", Text: best}, nil
	}
	return core.Scalar{}, fmt.Errorf("aggregate %q over %q is not supported", kind, column)
}

// ColumnValue reads a column of o as stored text.
func ColumnValue(o core.Observation, column core.Column) string {
	switch column {
	case core.ColumnDate:
		return o.Date.String()
	case core.ColumnProvince:
		return o.Province
	case core.ColumnDistrict:
		return o.District
	case core.ColumnMarket:
		return o.Market
	case core.ColumnCategory:
		return o.Category
	case core.ColumnItem:
		return o.Item
	case core.ColumnUnit:
		return o.Unit
	case core.ColumnPrice:
		return o.StoredPrice()
	}
	return ""
}
