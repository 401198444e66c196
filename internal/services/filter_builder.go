package services

import (
	"context"
	"errors"
	"strings"

	"pricedash/internal/core"
	"pricedash/internal/log"
)

// Filter dimensions reported when a selection term is dropped.
const (
	DimensionProvince = "province"
	DimensionDistrict = "district"
	DimensionItem     = "item"
)

// Recorder receives engine events for metrics. Implementations must be
// safe for concurrent use.
type Recorder interface {
	FilterDropped(dimension string)
	RowsIngested(locale, source string, n int)
}

type nopRecorder struct{}

func (nopRecorder) FilterDropped(string)             {}
func (nopRecorder) RowsIngested(string, string, int) {}

// FilterResult is a resolved predicate plus the dimensions that could not
// be resolved and were left unfiltered.
type FilterResult struct {
	Predicate core.Predicate
	Dropped   []string
}

// FilterBuilder turns a positional FilterSelection into a predicate.
//
// Resolution is lenient: a stale or out-of-range id drops that one term
// instead of failing the request. Store failures still propagate.
type FilterBuilder struct {
	catalog  *CatalogService
	recorder Recorder
	logger   *log.Logger
}

func NewFilterBuilder(catalog *CatalogService, recorder Recorder, logger *log.Logger) *FilterBuilder {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &FilterBuilder{catalog: catalog, recorder: recorder, logger: logger.WithComponent(log.ComponentFilter)}
}

// Build resolves sel. Zero indices mean "not selected"; any other value
// that does not resolve, negative ones included, is dropped.
func (b *FilterBuilder) Build(ctx context.Context, sel core.FilterSelection) (FilterResult, error) {
	var res FilterResult

	if sel.ProvinceIndex != 0 {
		name, err := b.catalog.ResolveProvince(ctx, sel.ProvinceIndex)
		if err := b.lenient(ctx, &res, DimensionProvince, sel.ProvinceIndex, err); err != nil {
			return FilterResult{}, err
		}
		res.Predicate.Province = name
	}

	if sel.DistrictIndex != 0 {
		if res.Predicate.Province == "" {
			b.drop(ctx, &res, DimensionDistrict, sel.DistrictIndex, "district selected without a province")
		} else {
			name, err := b.catalog.ResolveDistrict(ctx, res.Predicate.Province, sel.DistrictIndex)
			if err := b.lenient(ctx, &res, DimensionDistrict, sel.DistrictIndex, err); err != nil {
				return FilterResult{}, err
			}
			res.Predicate.District = name
		}
	}

	if name := strings.TrimSpace(sel.ItemName); name != "" {
		res.Predicate.Item = name
	} else if sel.ItemID != 0 {
		name, err := b.catalog.ResolveItem(ctx, sel.ItemID)
		if err := b.lenient(ctx, &res, DimensionItem, sel.ItemID, err); err != nil {
			return FilterResult{}, err
		}
		res.Predicate.Item = name
	}

	return res, nil
}

// lenient swallows ErrNotFound as a dropped dimension and returns any other error.
func (b *FilterBuilder) lenient(ctx context.Context, res *FilterResult, dimension string, index int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrNotFound) {
		b.drop(ctx, res, dimension, index, err.Error())
		return nil
	}
	return err
}

func (b *FilterBuilder) drop(ctx context.Context, res *FilterResult, dimension string, index int, reason string) {
	res.Dropped = append(res.Dropped, dimension)
	b.recorder.FilterDropped(dimension)
	b.logger.WarnContext(ctx, "Ignoring unresolvable filter selection",
		log.FieldDimension, dimension,
		"index", index,
		"reason", reason)
}
