package core

import (
	"errors"
	"slices"
	"testing"
)

func TestPositionalIndex(t *testing.T) {
	idx := NewPositionalIndex([]string{"Takeo", "", "Battambang", "Kampot", "Takeo", "  ", "Battambang"})

	want := []string{"Battambang", "Kampot", "Takeo"}
	if !slices.Equal(idx.Values(), want) {
		t.Fatalf("Values() = %v, want %v", idx.Values(), want)
	}
	if idx.Len() != 3 {
		t.Fatalf("Len() = %d", idx.Len())
	}

	for i, name := range want {
		got, err := idx.At(i + 1)
		if err != nil || got != name {
			t.Fatalf("At(%d) = %q, %v; want %q", i+1, got, err, name)
		}
	}

	for _, bad := range []int{0, -1, 4, 999} {
		if _, err := idx.At(bad); !errors.Is(err, ErrNotFound) {
			t.Fatalf("At(%d) error = %v, want ErrNotFound", bad, err)
		}
	}
}

func TestItemIndexOrdering(t *testing.T) {
	idx := NewItemIndex([]ItemKey{
		{Name: "Rice", Unit: "KG", Category: "cereals"},
		{Name: "Beans", Unit: "KG", Category: "pulses"},
		{Name: "Maize", Unit: "KG", Category: "cereals"},
		{Name: "Rice", Unit: "50 KG", Category: "cereals"},
		{Name: "Rice", Unit: "KG", Category: "cereals"},
		{Name: "", Unit: "KG", Category: "cereals"},
	})

	items := idx.CatalogItems()
	got := make([]string, len(items))
	for i, it := range items {
		got[i] = it.Category + "/" + it.Name + "/" + it.Unit
		if it.ID != i+1 {
			t.Fatalf("item %d has id %d", i, it.ID)
		}
	}
	want := []string{
		"cereals/Maize/KG",
		"cereals/Rice/50 KG",
		"cereals/Rice/KG",
		"pulses/Beans/KG",
	}
	if !slices.Equal(got, want) {
		t.Fatalf("items = %v, want %v", got, want)
	}

	k, err := idx.At(4)
	if err != nil || k.Name != "Beans" {
		t.Fatalf("At(4) = %+v, %v", k, err)
	}
	if _, err := idx.At(5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("At(5) error = %v, want ErrNotFound", err)
	}
}
