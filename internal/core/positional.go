package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// PositionalIndex maps 1-based positions to the values of a sorted,
// duplicate-free listing. It is rebuilt per request and carries no identity
// beyond the snapshot it was built from.
type PositionalIndex struct {
	values []string
}

// NewPositionalIndex sorts values, drops blanks and duplicates.
func NewPositionalIndex(values []string) PositionalIndex {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return PositionalIndex{values: slices.Compact(out)}
}

func (p PositionalIndex) Len() int {
	return len(p.values)
}

// At returns the value at 1-based position id.
func (p PositionalIndex) At(id int) (string, error) {
	if id < 1 || id > len(p.values) {
		return "", fmt.Errorf("%w: position %d of %d", ErrNotFound, id, len(p.values))
	}
	return p.values[id-1], nil
}

// Values returns a copy of the ordered listing.
func (p PositionalIndex) Values() []string {
	return slices.Clone(p.values)
}

// ItemIndex is the item counterpart of PositionalIndex, ordered by
// category, then item name, then unit.
type ItemIndex struct {
	items []ItemKey
}

func compareItemKeys(a, b ItemKey) int {
	return cmp.Or(
		cmp.Compare(a.Category, b.Category),
		cmp.Compare(a.Name, b.Name),
		cmp.Compare(a.Unit, b.Unit),
	)
}

// NewItemIndex sorts keys, drops unnamed items and duplicates.
func NewItemIndex(keys []ItemKey) ItemIndex {
	out := make([]ItemKey, 0, len(keys))
	for _, k := range keys {
		if strings.TrimSpace(k.Name) != "" {
			out = append(out, k)
		}
	}
	slices.SortFunc(out, compareItemKeys)
	return ItemIndex{items: slices.Compact(out)}
}

func (x ItemIndex) Len() int {
	return len(x.items)
}

// At returns the item at 1-based position id.
func (x ItemIndex) At(id int) (ItemKey, error) {
	if id < 1 || id > len(x.items) {
		return ItemKey{}, fmt.Errorf("%w: item position %d of %d", ErrNotFound, id, len(x.items))
	}
	return x.items[id-1], nil
}

// CatalogItems renders the index with positional ids.
func (x ItemIndex) CatalogItems() []CatalogItem {
	out := make([]CatalogItem, len(x.items))
	for i, k := range x.items {
		out[i] = CatalogItem{ID: i + 1, Name: k.Name, Unit: k.Unit, Category: k.Category}
	}
	return out
}
