package services

import (
	"context"
	"fmt"

	"pricedash/internal/core"
	"pricedash/internal/log"
)

// StoreProvider hands out the observation store of a locale.
type StoreProvider interface {
	Get(ctx context.Context, locale string) (core.ObservationStore, error)
}

// OverviewResult is the overview payload with per-province averages.
type OverviewResult struct {
	Overview core.Overview          `json:"overview"`
	Averages []core.ProvinceAverage `json:"averages"`
	Dropped  []string               `json:"droppedFilters,omitempty"`
}

// PricesResult carries raw rows or their deduplicated view.
type PricesResult[T any] struct {
	Rows    []T          `json:"rows"`
	Mode    GroupingMode `json:"mode,omitempty"`
	Limit   int          `json:"limit"`
	Dropped []string     `json:"droppedFilters,omitempty"`
}

type PriceServiceConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// PriceService is the entry point for the three dashboard reads. It builds
// the engine components per call against the locale's store.
type PriceService struct {
	stores   StoreProvider
	cfg      PriceServiceConfig
	recorder Recorder
	logger   *log.Logger
}

func NewPriceService(stores StoreProvider, cfg PriceServiceConfig, recorder Recorder, logger *log.Logger) *PriceService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 100
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &PriceService{stores: stores, cfg: cfg, recorder: recorder, logger: logger}
}

type engine struct {
	catalog    *CatalogService
	filters    *FilterBuilder
	aggregates *AggregationService
	store      core.ObservationReader
}

func (s *PriceService) engine(ctx context.Context, locale string) (*engine, error) {
	store, err := s.stores.Get(ctx, locale)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With(log.FieldLocale, locale)
	catalog := NewCatalogService(store, logger)
	return &engine{
		catalog:    catalog,
		filters:    NewFilterBuilder(catalog, s.recorder, logger),
		aggregates: NewAggregationService(store, logger),
		store:      store,
	}, nil
}

// ClampLimit applies the default to non-positive limits and caps the rest.
func (s *PriceService) ClampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	return min(limit, s.cfg.MaxLimit)
}

// Filters returns the full location hierarchy with items narrowed to the
// selected location. Item terms of sel are ignored.
func (s *PriceService) Filters(ctx context.Context, locale string, sel core.FilterSelection) (core.Catalog, error) {
	e, err := s.engine(ctx, locale)
	if err != nil {
		return core.Catalog{}, err
	}

	sel.ItemName, sel.ItemID = "", 0
	res, err := e.filters.Build(ctx, sel)
	if err != nil {
		return core.Catalog{}, err
	}

	catalog, err := e.catalog.ListCatalog(ctx)
	if err != nil {
		return core.Catalog{}, err
	}
	if res.Predicate.Province != "" {
		items, err := e.catalog.ListItemsForLocation(ctx, res.Predicate.Province, res.Predicate.District)
		if err != nil {
			return core.Catalog{}, err
		}
		catalog.Items = items
	}
	return catalog, nil
}

// Overview computes the overview and province averages for sel.
func (s *PriceService) Overview(ctx context.Context, locale string, sel core.FilterSelection) (OverviewResult, error) {
	e, err := s.engine(ctx, locale)
	if err != nil {
		return OverviewResult{}, err
	}
	res, err := e.filters.Build(ctx, sel)
	if err != nil {
		return OverviewResult{}, err
	}

	ov, err := e.aggregates.Overview(ctx, res.Predicate)
	if err != nil {
		return OverviewResult{}, err
	}
	averages, err := e.aggregates.AveragesByProvince(ctx, res.Predicate)
	if err != nil {
		return OverviewResult{}, err
	}
	return OverviewResult{Overview: ov, Averages: averages, Dropped: res.Dropped}, nil
}

// Prices returns matching rows newest first, capped at the clamped limit.
func (s *PriceService) Prices(ctx context.Context, locale string, sel core.FilterSelection, limit int) (PricesResult[core.Observation], error) {
	e, err := s.engine(ctx, locale)
	if err != nil {
		return PricesResult[core.Observation]{}, err
	}
	res, err := e.filters.Build(ctx, sel)
	if err != nil {
		return PricesResult[core.Observation]{}, err
	}

	limit = s.ClampLimit(limit)
	rows, err := e.store.Query(ctx, res.Predicate, core.OrderNewestFirst, limit)
	if err != nil {
		return PricesResult[core.Observation]{}, fmt.Errorf("query prices: %w", err)
	}
	if rows == nil {
		rows = []core.Observation{}
	}
	return PricesResult[core.Observation]{Rows: rows, Limit: limit, Dropped: res.Dropped}, nil
}

// LatestPrices deduplicates the rows Prices would return. Groups beyond the
// limit are never seen, so callers wanting every group need a large limit.
func (s *PriceService) LatestPrices(ctx context.Context, locale string, sel core.FilterSelection, limit int) (PricesResult[core.DeduplicatedRow], error) {
	e, err := s.engine(ctx, locale)
	if err != nil {
		return PricesResult[core.DeduplicatedRow]{}, err
	}
	res, err := e.filters.Build(ctx, sel)
	if err != nil {
		return PricesResult[core.DeduplicatedRow]{}, err
	}

	limit = s.ClampLimit(limit)
	rows, err := e.store.Query(ctx, res.Predicate, core.OrderNewestFirst, limit)
	if err != nil {
		return PricesResult[core.DeduplicatedRow]{}, fmt.Errorf("query prices: %w", err)
	}

	deduped, mode := DeduplicateFor(rows, res.Predicate)
	s.logger.DebugContext(ctx, "Deduplicated price rows",
		log.FieldLocale, locale,
		log.FieldGroupingMode, string(mode),
		log.FieldRowCount, len(deduped))
	return PricesResult[core.DeduplicatedRow]{Rows: deduped, Mode: mode, Limit: limit, Dropped: res.Dropped}, nil
}
