package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pricedash/internal/core"
	"pricedash/internal/log"
)

func sampleObservations() []core.Observation {
	return []core.Observation{
		{Date: core.NewDate(2024, 1, 10), Province: "Battambang", District: "Sangkae", Market: "Central", Category: "cereals", Item: "Rice", Unit: "KG", RawPrice: "2500", Currency: "KHR"},
		{Date: core.NewDate(2024, 2, 10), Province: "Battambang", District: "Sangkae", Market: "Central", Category: "cereals", Item: "Rice", Unit: "KG", RawPrice: "2700", Currency: "KHR"},
		{Date: core.NewDate(2024, 2, 10), Province: "Battambang", District: "Thma Koul", Market: "North", Category: "pulses", Item: "Beans", Unit: "KG", RawPrice: "n/a", Currency: "KHR"},
		{Date: core.NewDate(2024, 3, 1), Province: "Kampot", District: "Sangkae", Market: "Kampot Market", Category: "cereals", Item: "Rice", Unit: "KG", RawPrice: "2600", Currency: "KHR"},
		{Date: core.NewDate(2024, 3, 1), Province: "", District: "", Market: "Mobile", Category: "cereals", Item: "Maize", Unit: "KG", RawPrice: "", Currency: "KHR"},
	}
}

type RepositoryTestSuite struct {
	suite.Suite
	repo *Repository
	ctx  context.Context
}

func (s *RepositoryTestSuite) SetupTest() {
	s.ctx = context.Background()
	dsn := filepath.Join(s.T().TempDir(), "nested", "prices_en.db")

	repo, err := Open(s.ctx, DialectSQLite, dsn, log.Discard())
	require.NoError(s.T(), err)
	s.repo = repo

	n, err := s.repo.InsertObservations(s.ctx, sampleObservations())
	require.NoError(s.T(), err)
	require.Equal(s.T(), 5, n)
}

func (s *RepositoryTestSuite) TearDownTest() {
	s.repo.Close()
}

func (s *RepositoryTestSuite) TestDistinctValuesSkipsEmpty() {
	got, err := s.repo.DistinctValues(s.ctx, core.ColumnProvince, core.Predicate{})
	s.Require().NoError(err)
	s.Equal([]string{"Battambang", "Kampot"}, got)
}

func (s *RepositoryTestSuite) TestDistinctValuesWithPredicate() {
	got, err := s.repo.DistinctValues(s.ctx, core.ColumnDistrict, core.Predicate{Province: "Battambang"})
	s.Require().NoError(err)
	s.Equal([]string{"Sangkae", "Thma Koul"}, got)
}

func (s *RepositoryTestSuite) TestDistinctValuesRejectsUnknownColumn() {
	_, err := s.repo.DistinctValues(s.ctx, core.Column("id; --"), core.Predicate{})
	s.Error(err)
}

func (s *RepositoryTestSuite) TestDistinctItems() {
	got, err := s.repo.DistinctItems(s.ctx, core.Predicate{Province: "Battambang"})
	s.Require().NoError(err)
	s.ElementsMatch([]core.ItemKey{
		{Name: "Rice", Unit: "KG", Category: "cereals"},
		{Name: "Beans", Unit: "KG", Category: "pulses"},
	}, got)
}

func (s *RepositoryTestSuite) TestQueryNewestFirst() {
	rows, err := s.repo.Query(s.ctx, core.Predicate{}, core.OrderNewestFirst, 0)
	s.Require().NoError(err)
	s.Require().Len(rows, 5)

	// Same date: higher insertion id first.
	s.Equal("Maize", rows[0].Item)
	s.Equal("Kampot", rows[1].Province)
	s.Equal("Beans", rows[2].Item)
	s.Equal("2024-01-10", rows[4].Date.String())

	s.Equal(0.0, rows[2].Price)
	s.Equal("n/a", rows[2].RawPrice)
	s.Equal(2600.0, rows[1].Price)
}

func (s *RepositoryTestSuite) TestQueryLimitAndOrder() {
	rows, err := s.repo.Query(s.ctx, core.Predicate{Item: "Rice"}, core.OrderOldestFirst, 2)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Equal(2500.0, rows[0].Price)
	s.Equal(2700.0, rows[1].Price)
}

func (s *RepositoryTestSuite) TestAggregates() {
	maxDate, err := s.repo.Aggregate(s.ctx, core.Predicate{Province: "Battambang"}, core.AggregateMax, core.ColumnDate)
	s.Require().NoError(err)
	s.True(maxDate.Valid)
	s.Equal("2024-02-10", maxDate.Text)

	items, err := s.repo.Aggregate(s.ctx, core.Predicate{}, core.AggregateCountDistinct, core.ColumnItem)
	s.Require().NoError(err)
	s.Equal(3.0, items.Number)

	markets, err := s.repo.Aggregate(s.ctx, core.Predicate{Province: "Battambang"}, core.AggregateCountDistinct, core.ColumnMarket)
	s.Require().NoError(err)
	s.Equal(2.0, markets.Number)

	// "n/a" coerces to 0 and still counts.
	avg, err := s.repo.Aggregate(s.ctx, core.Predicate{Province: "Battambang"}, core.AggregateAvg, core.ColumnPrice)
	s.Require().NoError(err)
	s.True(avg.Valid)
	s.InDelta((2500.0+2700.0+0)/3, avg.Number, 1e-9)
}

func (s *RepositoryTestSuite) TestAggregatesOnEmptySet() {
	pred := core.Predicate{Province: "Nowhere"}

	avg, err := s.repo.Aggregate(s.ctx, pred, core.AggregateAvg, core.ColumnPrice)
	s.Require().NoError(err)
	s.False(avg.Valid)

	maxDate, err := s.repo.Aggregate(s.ctx, pred, core.AggregateMax, core.ColumnDate)
	s.Require().NoError(err)
	s.False(maxDate.Valid)

	count, err := s.repo.Aggregate(s.ctx, pred, core.AggregateCountDistinct, core.ColumnItem)
	s.Require().NoError(err)
	s.Equal(0.0, count.Number)
}

func (s *RepositoryTestSuite) TestCancelledContextIsStoreUnavailable() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.repo.Query(ctx, core.Predicate{}, core.OrderNewestFirst, 10)
	s.Require().Error(err)
	s.True(errors.Is(err, core.ErrStoreUnavailable))
}

func (s *RepositoryTestSuite) TestMigrationsAreIdempotent() {
	dsn := filepath.Join(s.T().TempDir(), "again.db")
	s.Require().NoError(RunMigrations(DialectSQLite, dsn))
	s.Require().NoError(RunMigrations(DialectSQLite, dsn))
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}

func TestOpenUnsupportedDialect(t *testing.T) {
	err := RunMigrations(Dialect("oracle"), "whatever")
	assert.Error(t, err)
}
