package core

import (
	"strings"
	"time"
)

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendSame Trend = "same"
)

type (
	Trend string

	Date struct {
		time.Time
	}

	// Observation is one raw price record for an item at a market on a date.
	// Price is RawPrice coerced with CoercePrice.
	Observation struct {
		ID       int64   `json:"id"`
		Date     Date    `json:"date"`
		Province string  `json:"province"`
		District string  `json:"district"`
		Market   string  `json:"market"`
		Category string  `json:"category"`
		Item     string  `json:"item"`
		Unit     string  `json:"unit"`
		Price    float64 `json:"price"`
		RawPrice string  `json:"-"`
		Currency string  `json:"currency"`
	}

	// Predicate holds exact-match terms. An empty term matches everything.
	Predicate struct {
		Province string
		District string
		Item     string
	}

	// FilterSelection is what a client sends: positional indices for the
	// location, and either an item name or a legacy positional item id.
	// Zero means "not selected" for the indices.
	FilterSelection struct {
		ProvinceIndex int
		DistrictIndex int
		ItemName      string
		ItemID        int
	}

	District struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	Province struct {
		ID        int        `json:"id"`
		Name      string     `json:"name"`
		Districts []District `json:"districts"`
	}

	// ItemKey is the distinct (item, unit, category) triple.
	ItemKey struct {
		Name     string
		Unit     string
		Category string
	}

	CatalogItem struct {
		ID       int    `json:"id"`
		Name     string `json:"name"`
		Unit     string `json:"unit"`
		Category string `json:"category"`
	}

	// Catalog ids are 1-based positions in freshly sorted listings. They are
	// only meaningful against the same store snapshot.
	Catalog struct {
		Provinces []Province    `json:"provinces"`
		Items     []CatalogItem `json:"items"`
	}

	Overview struct {
		LastUpdated  *Date    `json:"lastUpdated"`
		TotalItems   int      `json:"totalItems"`
		TotalMarkets int      `json:"totalMarkets"`
		AveragePrice *float64 `json:"averagePrice"`
	}

	ProvinceAverage struct {
		Province     string  `json:"province"`
		AveragePrice float64 `json:"averagePrice"`
	}

	DeduplicatedRow struct {
		Observation
		PreviousPrice *float64 `json:"previousPrice"`
		Trend         *Trend   `json:"trend"`
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// String renders the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// StoredPrice is the raw text persisted for o. Rows built in code without a
// raw value fall back to the formatted Price; a zero Price with no raw value
// is stored as missing.
func (o Observation) StoredPrice() string {
	if o.RawPrice != "" {
		return o.RawPrice
	}
	if o.Price != 0 {
		return FormatPrice(o.Price)
	}
	return ""
}

// WithProvince returns a copy of p narrowed to province.
func (p Predicate) WithProvince(province string) Predicate {
	p.Province = province
	return p
}

// Matches reports whether o satisfies every non-empty term of p.
func (p Predicate) Matches(o Observation) bool {
	if p.Province != "" && o.Province != p.Province {
		return false
	}
	if p.District != "" && o.District != p.District {
		return false
	}
	if p.Item != "" && o.Item != p.Item {
		return false
	}
	return true
}

// TrendBetween compares a representative price with the previous one.
// No previous price means no trend.
func TrendBetween(current float64, previous *float64) *Trend {
	if previous == nil {
		return nil
	}
	t := TrendSame
	switch {
	case current > *previous:
		t = TrendUp
	case current < *previous:
		t = TrendDown
	}
	return &t
}
