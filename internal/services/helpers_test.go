package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pricedash/internal/core"
	"pricedash/internal/storage/memory"
)

func obs(date, province, district, item, price string) core.Observation {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	market := ""
	if district != "" {
		market = district + " market"
	}
	return core.Observation{
		Date:     d,
		Province: province,
		District: district,
		Market:   market,
		Category: "food",
		Item:     item,
		Unit:     "KG",
		RawPrice: price,
		Price:    core.CoercePrice(price),
	}
}

// fixture has two provinces sharing a district name ("Central") at
// different sort positions.
func fixture() []core.Observation {
	return []core.Observation{
		obs("2024-01-10", "Battambang", "Central", "Rice", "100"),
		obs("2024-01-11", "Battambang", "Sangkae", "Rice", "120"),
		obs("2024-01-12", "Battambang", "Sangkae", "Oil", "300"),
		obs("2024-01-13", "Kampot", "Angkor Chey", "Rice", "90"),
		obs("2024-01-14", "Kampot", "Central", "Salt", "n/a"),
		obs("2024-01-15", "Kampot", "Central", "Salt", "40"),
		obs("2024-01-09", "", "", "Fish", "500"),
	}
}

// stores is a StoreProvider over fixed per-locale stores.
type stores map[string]core.ObservationStore

func (s stores) Get(_ context.Context, locale string) (core.ObservationStore, error) {
	st, ok := s[locale]
	if !ok {
		return nil, fmt.Errorf("%w: locale %q", core.ErrNotFound, locale)
	}
	return st, nil
}

var errBoom = errors.New("connection reset")

// flakyStore fails every call whose operation is listed in failOn.
type flakyStore struct {
	*memory.Store
	failOn map[string]bool
}

func (f *flakyStore) fail(op string) error {
	if f.failOn[op] {
		return core.NewStoreError(op, errBoom)
	}
	return nil
}

func (f *flakyStore) DistinctValues(ctx context.Context, c core.Column, p core.Predicate) ([]string, error) {
	if err := f.fail("distinct"); err != nil {
		return nil, err
	}
	return f.Store.DistinctValues(ctx, c, p)
}

func (f *flakyStore) DistinctItems(ctx context.Context, p core.Predicate) ([]core.ItemKey, error) {
	if err := f.fail("items"); err != nil {
		return nil, err
	}
	return f.Store.DistinctItems(ctx, p)
}

func (f *flakyStore) Query(ctx context.Context, p core.Predicate, o core.Order, limit int) ([]core.Observation, error) {
	if err := f.fail("query"); err != nil {
		return nil, err
	}
	return f.Store.Query(ctx, p, o, limit)
}

func (f *flakyStore) Aggregate(ctx context.Context, p core.Predicate, k core.AggregateKind, c core.Column) (core.Scalar, error) {
	if err := f.fail("aggregate"); err != nil {
		return core.Scalar{}, err
	}
	return f.Store.Aggregate(ctx, p, k, c)
}

func (f *flakyStore) InsertObservations(ctx context.Context, rows []core.Observation) (int, error) {
	if err := f.fail("insert"); err != nil {
		return 0, err
	}
	return f.Store.InsertObservations(ctx, rows)
}

// recorder captures Recorder calls.
type recorder struct {
	mu       sync.Mutex
	dropped  []string
	ingested map[string]int
}

func (r *recorder) FilterDropped(dimension string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, dimension)
}

func (r *recorder) RowsIngested(locale, source string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ingested == nil {
		r.ingested = map[string]int{}
	}
	r.ingested[locale+"/"+source] += n
}
