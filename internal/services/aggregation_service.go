package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"pricedash/internal/core"
	"pricedash/internal/log"
)

// provinceAverageLimit bounds concurrent per-province average queries.
const provinceAverageLimit = 8

// AggregationService computes overview statistics over a filtered subset.
type AggregationService struct {
	store  core.ObservationReader
	logger *log.Logger
}

func NewAggregationService(store core.ObservationReader, logger *log.Logger) *AggregationService {
	if logger == nil {
		logger = log.Discard()
	}
	return &AggregationService{store: store, logger: logger.WithComponent(log.ComponentAggregate)}
}

// Overview runs its four aggregates concurrently; any failure fails the call.
// LastUpdated and AveragePrice stay nil for an empty subset.
func (s *AggregationService) Overview(ctx context.Context, pred core.Predicate) (core.Overview, error) {
	var lastUpdated, items, markets, avg core.Scalar

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		lastUpdated, err = s.aggregate(gctx, pred, core.AggregateMax, core.ColumnDate)
		return err
	})
	g.Go(func() (err error) {
		items, err = s.aggregate(gctx, pred, core.AggregateCountDistinct, core.ColumnItem)
		return err
	})
	g.Go(func() (err error) {
		markets, err = s.aggregate(gctx, pred, core.AggregateCountDistinct, core.ColumnMarket)
		return err
	})
	g.Go(func() (err error) {
		avg, err = s.aggregate(gctx, pred, core.AggregateAvg, core.ColumnPrice)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Overview{}, err
	}

	ov := core.Overview{
		TotalItems:   int(items.Number),
		TotalMarkets: int(markets.Number),
	}
	if lastUpdated.Valid {
		if d, err := core.ParseDate(lastUpdated.Text); err == nil {
			ov.LastUpdated = &d
		} else {
			s.logger.WarnContext(ctx, "Unparseable latest observation date", log.FieldError, err)
		}
	}
	if avg.Valid {
		v := avg.Number
		ov.AveragePrice = &v
	}
	return ov, nil
}

// AveragesByProvince returns the mean coerced price per province, highest
// first. Ties are ordered by province name. Provinces without matching rows
// are absent.
func (s *AggregationService) AveragesByProvince(ctx context.Context, pred core.Predicate) ([]core.ProvinceAverage, error) {
	provinces, err := s.store.DistinctValues(ctx, core.ColumnProvince, pred)
	if err != nil {
		return nil, fmt.Errorf("list provinces: %w", err)
	}

	results := make([]core.Scalar, len(provinces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(provinceAverageLimit)
	for i, p := range provinces {
		g.Go(func() (err error) {
			results[i], err = s.aggregate(gctx, pred.WithProvince(p), core.AggregateAvg, core.ColumnPrice)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]core.ProvinceAverage, 0, len(provinces))
	for i, p := range provinces {
		if !results[i].Valid {
			continue
		}
		out = append(out, core.ProvinceAverage{Province: p, AveragePrice: results[i].Number})
	}
	slices.SortFunc(out, func(a, b core.ProvinceAverage) int {
		return cmp.Or(cmp.Compare(b.AveragePrice, a.AveragePrice), cmp.Compare(a.Province, b.Province))
	})
	return out, nil
}

func (s *AggregationService) aggregate(ctx context.Context, pred core.Predicate, kind core.AggregateKind, col core.Column) (core.Scalar, error) {
	v, err := s.store.Aggregate(ctx, pred, kind, col)
	if err != nil {
		return core.Scalar{}, fmt.Errorf("%s %s: %w", kind, col, err)
	}
	return v, nil
}
