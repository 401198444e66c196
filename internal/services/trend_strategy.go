// This file implements the grouping strategies of the trend deduplicator.
// Each mode decides how rows are grouped and how the representatives are
// ordered; ranking inside a group is shared by all modes.

package services

import (
	"cmp"
	"fmt"
	"slices"

	"pricedash/internal/core"
)

type GroupingMode string

const (
	ModeNoFilters        GroupingMode = "no-filters"
	ModeFoodOnly         GroupingMode = "food-only"
	ModeProvinceSelected GroupingMode = "province-selected"
)

// GroupingStrategy is the per-mode part of deduplication.
type GroupingStrategy interface {
	Mode() GroupingMode
	// Key returns the group a row belongs to.
	Key(o core.Observation) string
	// Compare orders representatives in the final output.
	Compare(a, b core.DeduplicatedRow) int
}

// ItemGrouping keys by item name and lists representatives alphabetically.
// It serves both the unfiltered and the province-selected views.
type ItemGrouping struct {
	mode GroupingMode
}

func (g ItemGrouping) Mode() GroupingMode { return g.mode }

func (ItemGrouping) Key(o core.Observation) string { return o.Item }

func (ItemGrouping) Compare(a, b core.DeduplicatedRow) int {
	return cmp.Or(cmp.Compare(a.Item, b.Item), cmp.Compare(a.Province, b.Province))
}

// ItemProvinceGrouping keys by item and province and lists the most
// expensive representatives first.
type ItemProvinceGrouping struct{}

func (ItemProvinceGrouping) Mode() GroupingMode { return ModeFoodOnly }

func (ItemProvinceGrouping) Key(o core.Observation) string { return o.Item + "\x00" + o.Province }

func (ItemProvinceGrouping) Compare(a, b core.DeduplicatedRow) int {
	return cmp.Or(
		cmp.Compare(b.Price, a.Price),
		cmp.Compare(a.Item, b.Item),
		cmp.Compare(a.Province, b.Province),
	)
}

var groupingStrategies = map[GroupingMode]GroupingStrategy{
	ModeNoFilters:        ItemGrouping{mode: ModeNoFilters},
	ModeFoodOnly:         ItemProvinceGrouping{},
	ModeProvinceSelected: ItemGrouping{mode: ModeProvinceSelected},
}

// GetGroupingStrategy returns the strategy registered for mode.
func GetGroupingStrategy(mode GroupingMode) (GroupingStrategy, error) {
	s, ok := groupingStrategies[mode]
	if !ok {
		return nil, fmt.Errorf("unsupported grouping mode: %s", mode)
	}
	return s, nil
}

// SelectGroupingMode picks the mode from the resolved predicate. A province
// wins over an item; a district never appears without its province.
func SelectGroupingMode(pred core.Predicate) GroupingMode {
	switch {
	case pred.Province != "":
		return ModeProvinceSelected
	case pred.Item != "":
		return ModeFoodOnly
	default:
		return ModeNoFilters
	}
}

// Deduplicate collapses rows into one representative per group.
//
// Within a group only rows with a price above zero qualify; groups left
// empty disappear. Qualifying rows are ranked by price, highest first, with
// input order breaking ties. Rank 0 is the representative and rank 1, when
// present, supplies PreviousPrice and the Trend. The comparison is between
// the two highest prices, not the two latest dates.
func Deduplicate(rows []core.Observation, strategy GroupingStrategy) []core.DeduplicatedRow {
	groups := make(map[string][]core.Observation)
	var order []string
	for _, o := range rows {
		if !(o.Price > 0) {
			continue
		}
		k := strategy.Key(o)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], o)
	}

	out := make([]core.DeduplicatedRow, 0, len(order))
	for _, k := range order {
		ranked := groups[k]
		slices.SortStableFunc(ranked, func(a, b core.Observation) int {
			return cmp.Compare(b.Price, a.Price)
		})

		row := core.DeduplicatedRow{Observation: ranked[0]}
		if len(ranked) > 1 {
			prev := ranked[1].Price
			row.PreviousPrice = &prev
		}
		row.Trend = core.TrendBetween(row.Price, row.PreviousPrice)
		out = append(out, row)
	}

	slices.SortStableFunc(out, strategy.Compare)
	return out
}

// DeduplicateFor selects the strategy from pred and deduplicates rows.
func DeduplicateFor(rows []core.Observation, pred core.Predicate) ([]core.DeduplicatedRow, GroupingMode) {
	mode := SelectGroupingMode(pred)
	strategy, _ := GetGroupingStrategy(mode)
	return Deduplicate(rows, strategy), mode
}
