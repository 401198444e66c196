package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pricedash/internal/core"
	"pricedash/internal/log"
	"pricedash/internal/storage/memory"
)

type PriceServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	recorder *recorder
	service  *PriceService
}

func (s *PriceServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.recorder = &recorder{}
	s.service = NewPriceService(
		stores{"en": memory.New(fixture()...), "km": memory.New()},
		PriceServiceConfig{DefaultLimit: 3, MaxLimit: 5},
		s.recorder,
		log.Discard(),
	)
}

func (s *PriceServiceTestSuite) TestClampLimit() {
	s.Equal(3, s.service.ClampLimit(0))
	s.Equal(3, s.service.ClampLimit(-4))
	s.Equal(2, s.service.ClampLimit(2))
	s.Equal(5, s.service.ClampLimit(50))
}

func (s *PriceServiceTestSuite) TestFiltersNarrowsItemsToLocation() {
	catalog, err := s.service.Filters(s.ctx, "en", core.FilterSelection{ProvinceIndex: 2})
	s.Require().NoError(err)

	s.Len(catalog.Provinces, 2, "location hierarchy is never narrowed")
	s.Equal([]core.CatalogItem{
		{ID: 3, Name: "Rice", Unit: "KG", Category: "food"},
		{ID: 4, Name: "Salt", Unit: "KG", Category: "food"},
	}, catalog.Items)
}

func (s *PriceServiceTestSuite) TestFiltersNarrowsItemsToDistrict() {
	catalog, err := s.service.Filters(s.ctx, "en", core.FilterSelection{ProvinceIndex: 1, DistrictIndex: 2})
	s.Require().NoError(err)
	s.Equal([]core.CatalogItem{
		{ID: 2, Name: "Oil", Unit: "KG", Category: "food"},
		{ID: 3, Name: "Rice", Unit: "KG", Category: "food"},
	}, catalog.Items)

	direct, err := NewCatalogService(memory.New(fixture()...), log.Discard()).
		ListItemsForLocation(s.ctx, "Battambang", "Sangkae")
	s.Require().NoError(err)
	s.Equal(direct, catalog.Items)
}

func (s *PriceServiceTestSuite) TestFiltersIgnoresItemTerms() {
	withItem, err := s.service.Filters(s.ctx, "en", core.FilterSelection{ItemName: "Rice", ItemID: 1})
	s.Require().NoError(err)
	plain, err := s.service.Filters(s.ctx, "en", core.FilterSelection{})
	s.Require().NoError(err)
	s.Equal(plain, withItem)
	s.Len(plain.Items, 4)
}

func (s *PriceServiceTestSuite) TestFiltersIsIdempotent() {
	sel := core.FilterSelection{ProvinceIndex: 1, DistrictIndex: 2}
	first, err := s.service.Filters(s.ctx, "en", sel)
	s.Require().NoError(err)
	second, err := s.service.Filters(s.ctx, "en", sel)
	s.Require().NoError(err)
	s.Equal(first, second)
}

func (s *PriceServiceTestSuite) TestOverviewOutOfRangeProvinceMatchesNoFilter() {
	stale, err := s.service.Overview(s.ctx, "en", core.FilterSelection{ProvinceIndex: 999})
	s.Require().NoError(err)
	plain, err := s.service.Overview(s.ctx, "en", core.FilterSelection{})
	s.Require().NoError(err)

	s.Equal([]string{DimensionProvince}, stale.Dropped)
	s.Equal(plain.Overview, stale.Overview)
	s.Equal(plain.Averages, stale.Averages)
	s.Equal([]string{DimensionProvince}, s.recorder.dropped)
}

func (s *PriceServiceTestSuite) TestOverviewEmptyLocale() {
	res, err := s.service.Overview(s.ctx, "km", core.FilterSelection{})
	s.Require().NoError(err)
	s.Nil(res.Overview.AveragePrice)
	s.Nil(res.Overview.LastUpdated)
	s.Empty(res.Averages)
}

func (s *PriceServiceTestSuite) TestPricesNewestFirstWithinLimit() {
	res, err := s.service.Prices(s.ctx, "en", core.FilterSelection{}, 0)
	s.Require().NoError(err)

	s.Equal(3, res.Limit)
	s.Require().Len(res.Rows, 3)
	s.Equal("2024-01-15", res.Rows[0].Date.String())
	s.Equal("2024-01-14", res.Rows[1].Date.String())
	s.Equal("2024-01-13", res.Rows[2].Date.String())
}

func (s *PriceServiceTestSuite) TestPricesEmptyIsNotNil() {
	res, err := s.service.Prices(s.ctx, "en", core.FilterSelection{ItemName: "Caviar"}, 10)
	s.Require().NoError(err)
	s.NotNil(res.Rows)
	s.Empty(res.Rows)
	s.Equal(5, res.Limit)
}

func (s *PriceServiceTestSuite) TestLatestPricesNoFilters() {
	svc := NewPriceService(stores{"en": memory.New(fixture()...)}, PriceServiceConfig{DefaultLimit: 100, MaxLimit: 100}, nil, nil)

	res, err := svc.LatestPrices(s.ctx, "en", core.FilterSelection{}, 0)
	s.Require().NoError(err)
	s.Equal(ModeNoFilters, res.Mode)

	items := make([]string, 0, len(res.Rows))
	for _, r := range res.Rows {
		items = append(items, r.Item)
	}
	s.Equal([]string{"Fish", "Oil", "Rice", "Salt"}, items)

	rice := res.Rows[2]
	s.Equal(120.0, rice.Price)
	s.Require().NotNil(rice.PreviousPrice)
	s.Equal(100.0, *rice.PreviousPrice)
	s.Equal(core.TrendUp, *rice.Trend)

	salt := res.Rows[3]
	s.Equal(40.0, salt.Price)
	s.Nil(salt.Trend, "the malformed price does not count as a previous price")
}

func (s *PriceServiceTestSuite) TestLatestPricesModes() {
	svc := NewPriceService(stores{"en": memory.New(fixture()...)}, PriceServiceConfig{DefaultLimit: 100}, nil, nil)

	res, err := svc.LatestPrices(s.ctx, "en", core.FilterSelection{ItemName: "Rice"}, 0)
	s.Require().NoError(err)
	s.Equal(ModeFoodOnly, res.Mode)
	s.Require().Len(res.Rows, 2)
	s.Equal("Battambang", res.Rows[0].Province)
	s.Equal("Kampot", res.Rows[1].Province)

	res, err = svc.LatestPrices(s.ctx, "en", core.FilterSelection{ProvinceIndex: 2}, 0)
	s.Require().NoError(err)
	s.Equal(ModeProvinceSelected, res.Mode)
	s.Require().Len(res.Rows, 2)
	s.Equal("Rice", res.Rows[0].Item)
	s.Equal("Salt", res.Rows[1].Item)
}

func (s *PriceServiceTestSuite) TestUnknownLocale() {
	_, err := s.service.Overview(s.ctx, "fr", core.FilterSelection{})
	s.ErrorIs(err, core.ErrNotFound)
}

func TestPriceServiceSuite(t *testing.T) {
	suite.Run(t, new(PriceServiceTestSuite))
}

func TestPriceService_StoreFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.New(fixture()...), failOn: map[string]bool{"query": true}}
	svc := NewPriceService(stores{"en": store}, PriceServiceConfig{}, nil, nil)

	_, err := svc.Prices(ctx, "en", core.FilterSelection{}, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	_, err = svc.LatestPrices(ctx, "en", core.FilterSelection{}, 10)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	_, err = svc.Overview(ctx, "en", core.FilterSelection{})
	assert.NoError(t, err, "overview does not query rows")
}
