package memory

import (
	"context"
	"errors"
	"slices"
	"testing"

	"pricedash/internal/core"
)

func seeded() *Store {
	return New(
		core.Observation{Date: core.NewDate(2024, 1, 1), Province: "A", District: "X", Market: "M1", Category: "cereals", Item: "Rice", Unit: "KG", RawPrice: "100"},
		core.Observation{Date: core.NewDate(2024, 2, 1), Province: "A", District: "Y", Market: "M2", Category: "cereals", Item: "Rice", Unit: "KG", Price: 120},
		core.Observation{Date: core.NewDate(2024, 2, 1), Province: "B", District: "X", Market: "M3", Category: "pulses", Item: "Beans", Unit: "KG", RawPrice: "oops"},
		core.Observation{Date: core.NewDate(2024, 1, 15), Province: "", Market: "M4", Category: "cereals", Item: "Maize", Unit: "KG", RawPrice: "80"},
	)
}

func TestStoreAssignsIDsAndCoerces(t *testing.T) {
	s := seeded()
	if s.Len() != 4 {
		t.Fatalf("Len() = %d", s.Len())
	}

	rows, err := s.Query(context.Background(), core.Predicate{}, core.OrderOldestFirst, 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if rows[0].ID != 1 || rows[0].Price != 100 {
		t.Fatalf("first row = %+v", rows[0])
	}
	for _, o := range rows {
		if o.Item == "Beans" && (o.Price != 0 || o.RawPrice != "oops") {
			t.Fatalf("malformed price not preserved/coerced: %+v", o)
		}
		if o.Item == "Rice" && o.Province == "A" && o.District == "Y" && o.RawPrice != "120" {
			t.Fatalf("numeric price should be stored as text, got %q", o.RawPrice)
		}
	}
}

func TestStoreQueryNewestFirstWithLimit(t *testing.T) {
	s := seeded()
	rows, err := s.Query(context.Background(), core.Predicate{}, core.OrderNewestFirst, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	var ids []int64
	for _, o := range rows {
		ids = append(ids, o.ID)
	}
	// Two rows on 2024-02-01: id 3 before id 2.
	if !slices.Equal(ids, []int64{3, 2, 4}) {
		t.Fatalf("ids = %v, want [3 2 4]", ids)
	}
}

func TestStoreDistinct(t *testing.T) {
	s := seeded()
	ctx := context.Background()

	provinces, _ := s.DistinctValues(ctx, core.ColumnProvince, core.Predicate{})
	if !slices.Equal(provinces, []string{"A", "B"}) {
		t.Fatalf("provinces = %v", provinces)
	}

	districts, _ := s.DistinctValues(ctx, core.ColumnDistrict, core.Predicate{Province: "A"})
	if !slices.Equal(districts, []string{"X", "Y"}) {
		t.Fatalf("districts = %v", districts)
	}

	items, _ := s.DistinctItems(ctx, core.Predicate{Province: "A"})
	if len(items) != 1 || items[0].Name != "Rice" {
		t.Fatalf("items = %v", items)
	}
}

func TestStoreAggregate(t *testing.T) {
	s := seeded()
	ctx := context.Background()

	avg, err := s.Aggregate(ctx, core.Predicate{}, core.AggregateAvg, core.ColumnPrice)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if want := (100.0 + 120 + 0 + 80) / 4; avg.Number != want {
		t.Fatalf("avg = %v, want %v", avg.Number, want)
	}

	markets, _ := s.Aggregate(ctx, core.Predicate{Province: "A"}, core.AggregateCountDistinct, core.ColumnMarket)
	if markets.Number != 2 {
		t.Fatalf("markets = %v", markets.Number)
	}
}

func TestStoreHonoursContextAndClose(t *testing.T) {
	s := seeded()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Query(ctx, core.Predicate{}, core.OrderNewestFirst, 0); !errors.Is(err, core.ErrStoreUnavailable) {
		t.Fatalf("cancelled query error = %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled ping error = %v", err)
	}

	s.Close()
	if _, err := s.DistinctValues(context.Background(), core.ColumnItem, core.Predicate{}); !errors.Is(err, core.ErrStoreUnavailable) {
		t.Fatalf("closed store error = %v", err)
	}
	if _, err := s.InsertObservations(context.Background(), nil); !errors.Is(err, core.ErrStoreUnavailable) {
		t.Fatalf("closed insert error = %v", err)
	}
}

func TestStoreTrimsLikeSQLStores(t *testing.T) {
	ctx := context.Background()
	s := New(
		core.Observation{Date: core.NewDate(2024, 1, 1), Province: "Kampot", District: "Chhuk", Item: "Salt", RawPrice: "40"},
		core.Observation{Date: core.NewDate(2024, 1, 2), Province: "Kampot ", District: " Chhuk", Item: "Salt ", RawPrice: " 60 "},
		core.Observation{Date: core.NewDate(2024, 1, 3), Province: "Takeo", District: "   ", Item: "Rice", RawPrice: "80"},
	)

	provinces, err := s.DistinctValues(ctx, core.ColumnProvince, core.Predicate{})
	if err != nil {
		t.Fatalf("DistinctValues: %v", err)
	}
	if !slices.Equal(provinces, []string{"Kampot", "Takeo"}) {
		t.Fatalf("provinces = %v, want [Kampot Takeo]", provinces)
	}

	districts, err := s.DistinctValues(ctx, core.ColumnDistrict, core.Predicate{Province: "Takeo"})
	if err != nil {
		t.Fatalf("DistinctValues: %v", err)
	}
	if len(districts) != 0 {
		t.Fatalf("blank district should read back as missing, got %v", districts)
	}

	avg, err := s.Aggregate(ctx, core.Predicate{Province: "Kampot", Item: "Salt"}, core.AggregateAvg, core.ColumnPrice)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if !avg.Valid || avg.Number != 50 {
		t.Fatalf("avg = %+v, want 50 over both Kampot rows", avg)
	}
}
