// Package services holds the query-and-aggregation engine: catalog
// resolution, filter building, aggregates and trend deduplication, plus
// the facades the HTTP layer and the ingestion CLI call into.
package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"pricedash/internal/core"
	"pricedash/internal/log"
)

// districtFetchLimit bounds concurrent per-province district queries.
const districtFetchLimit = 8

// CatalogService derives the province/district/item catalog from the store
// and resolves positional ids. Every call reads the store again.
type CatalogService struct {
	store  core.ObservationReader
	logger *log.Logger
}

func NewCatalogService(store core.ObservationReader, logger *log.Logger) *CatalogService {
	if logger == nil {
		logger = log.Discard()
	}
	return &CatalogService{store: store, logger: logger.WithComponent(log.ComponentCatalog)}
}

func (s *CatalogService) provinceIndex(ctx context.Context) (core.PositionalIndex, error) {
	values, err := s.store.DistinctValues(ctx, core.ColumnProvince, core.Predicate{})
	if err != nil {
		return core.PositionalIndex{}, fmt.Errorf("list provinces: %w", err)
	}
	return core.NewPositionalIndex(values), nil
}

func (s *CatalogService) districtIndex(ctx context.Context, province string) (core.PositionalIndex, error) {
	values, err := s.store.DistinctValues(ctx, core.ColumnDistrict, core.Predicate{Province: province})
	if err != nil {
		return core.PositionalIndex{}, fmt.Errorf("list districts of %q: %w", province, err)
	}
	return core.NewPositionalIndex(values), nil
}

func (s *CatalogService) itemIndex(ctx context.Context, pred core.Predicate) (core.ItemIndex, error) {
	keys, err := s.store.DistinctItems(ctx, pred)
	if err != nil {
		return core.ItemIndex{}, fmt.Errorf("list items: %w", err)
	}
	return core.NewItemIndex(keys), nil
}

// ListCatalog returns every province with its districts, and every item.
func (s *CatalogService) ListCatalog(ctx context.Context) (core.Catalog, error) {
	provinces, err := s.provinceIndex(ctx)
	if err != nil {
		return core.Catalog{}, err
	}

	names := provinces.Values()
	out := make([]core.Province, len(names))
	var items core.ItemIndex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(districtFetchLimit)
	g.Go(func() error {
		var err error
		items, err = s.itemIndex(gctx, core.Predicate{})
		return err
	})
	for i, name := range names {
		g.Go(func() error {
			districts, err := s.districtIndex(gctx, name)
			if err != nil {
				return err
			}
			p := core.Province{ID: i + 1, Name: name, Districts: make([]core.District, 0, districts.Len())}
			for j, d := range districts.Values() {
				p.Districts = append(p.Districts, core.District{ID: j + 1, Name: d})
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.Catalog{}, err
	}

	return core.Catalog{Provinces: out, Items: items.CatalogItems()}, nil
}

// ResolveProvince maps a 1-based province id to its name.
func (s *CatalogService) ResolveProvince(ctx context.Context, index int) (string, error) {
	provinces, err := s.provinceIndex(ctx)
	if err != nil {
		return "", err
	}
	return provinces.At(index)
}

// ResolveDistrict maps a 1-based id within province's own districts to a name.
func (s *CatalogService) ResolveDistrict(ctx context.Context, province string, index int) (string, error) {
	districts, err := s.districtIndex(ctx, province)
	if err != nil {
		return "", err
	}
	return districts.At(index)
}

// ResolveItem maps a 1-based id in the global item listing to an item name.
func (s *CatalogService) ResolveItem(ctx context.Context, index int) (string, error) {
	items, err := s.itemIndex(ctx, core.Predicate{})
	if err != nil {
		return "", err
	}
	k, err := items.At(index)
	if err != nil {
		return "", err
	}
	return k.Name, nil
}

// ListItemsForLocation returns the catalog items seen at a location. Ids are
// the items' positions in the global listing, so they resolve the same way
// whether or not the list was narrowed. A district without a province is ignored.
func (s *CatalogService) ListItemsForLocation(ctx context.Context, province, district string) ([]core.CatalogItem, error) {
	global, err := s.itemIndex(ctx, core.Predicate{})
	if err != nil {
		return nil, err
	}
	if province == "" {
		return global.CatalogItems(), nil
	}

	pred := core.Predicate{Province: province}
	if district != "" {
		pred.District = district
	}
	keys, err := s.store.DistinctItems(ctx, pred)
	if err != nil {
		return nil, fmt.Errorf("list items for location: %w", err)
	}
	return narrowItems(global.CatalogItems(), keys), nil
}

func narrowItems(all []core.CatalogItem, keep []core.ItemKey) []core.CatalogItem {
	set := make(map[core.ItemKey]struct{}, len(keep))
	for _, k := range keep {
		set[k] = struct{}{}
	}
	out := make([]core.CatalogItem, 0, len(keep))
	for _, it := range all {
		if _, ok := set[core.ItemKey{Name: it.Name, Unit: it.Unit, Category: it.Category}]; ok {
			out = append(out, it)
		}
	}
	return out
}
