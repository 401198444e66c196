// Package fake generates plausible market price observations for demos and
// local development.
package fake

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"pricedash/internal/core"
	"pricedash/internal/sources"
)

type commodity struct {
	name     string
	unit     string
	category string
	base     float64
}

var commodities = []commodity{
	{"Rice", "KG", "cereals and tubers", 2500},
	{"Maize", "KG", "cereals and tubers", 1800},
	{"Fish (fresh)", "KG", "meat, fish and eggs", 9000},
	{"Eggs", "Pcs", "meat, fish and eggs", 600},
	{"Oil (vegetable)", "L", "oil and fats", 6000},
	{"Sugar", "KG", "miscellaneous food", 3500},
	{"Salt", "KG", "miscellaneous food", 800},
	{"Beans (mung)", "KG", "pulses and nuts", 5200},
}

// Options controls generation. Zero values fall back to defaults.
type Options struct {
	Seed      int64
	Provinces int
	Districts int
	Rows      int
	// MalformedRatio is the share of rows whose price is not a number.
	MalformedRatio float64
	End            time.Time
	Days           int
	Currency       string
}

type Generator struct {
	opts Options
}

var _ sources.Reader = (*Generator)(nil)

func New(opts Options) *Generator {
	if opts.Provinces <= 0 {
		opts.Provinces = 5
	}
	if opts.Districts <= 0 {
		opts.Districts = 3
	}
	if opts.Rows <= 0 {
		opts.Rows = 500
	}
	if opts.Days <= 0 {
		opts.Days = 90
	}
	if opts.End.IsZero() {
		opts.End = time.Now().UTC()
	}
	if opts.Currency == "" {
		opts.Currency = "KHR"
	}
	return &Generator{opts: opts}
}

func (g *Generator) Name() string {
	return fmt.Sprintf("fake:%d", g.opts.Seed)
}

// Read generates the rows. The same options always yield the same rows.
func (g *Generator) Read(ctx context.Context) (sources.Result, error) {
	if err := ctx.Err(); err != nil {
		return sources.Result{}, err
	}
	f := gofakeit.New(g.opts.Seed)

	type location struct{ province, district string }
	var locations []location
	for p := 0; p < g.opts.Provinces; p++ {
		province := fmt.Sprintf("%s %d", f.City(), p+1)
		for d := 0; d < g.opts.Districts; d++ {
			locations = append(locations, location{province, fmt.Sprintf("%s %d", f.Street(), d+1)})
		}
	}

	end := time.Date(g.opts.End.Year(), g.opts.End.Month(), g.opts.End.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -g.opts.Days)

	rows := make([]core.Observation, 0, g.opts.Rows)
	for i := 0; i < g.opts.Rows; i++ {
		loc := locations[f.Number(0, len(locations)-1)]
		c := commodities[f.Number(0, len(commodities)-1)]
		day := f.DateRange(start, end)

		raw := core.FormatPrice(float64(int(c.base * f.Float64Range(0.8, 1.25))))
		if f.Float64Range(0, 1) < g.opts.MalformedRatio {
			raw = f.RandomString([]string{"n/a", "", "-", "?"})
		}

		rows = append(rows, core.Observation{
			Date:     core.NewDate(day.Year(), int(day.Month()), day.Day()),
			Province: loc.province,
			District: loc.district,
			Market:   loc.district + " market",
			Category: c.category,
			Item:     c.name,
			Unit:     c.unit,
			RawPrice: raw,
			Price:    core.CoercePrice(raw),
			Currency: g.opts.Currency,
		})
	}
	return sources.Result{Rows: rows}, nil
}
