// Package sources reads price observations from tabular exports. The
// concrete readers live in subpackages; they all funnel their cells through
// ParseTable so every source applies the same header and value rules.
package sources

import (
	"context"
	"fmt"
	"strings"

	"pricedash/internal/core"
)

// Result is what a source yields: the parsed rows and how many data rows
// were skipped because they could not be used.
type Result struct {
	Rows    []core.Observation
	Skipped int
}

// Reader is implemented by every observation source.
type Reader interface {
	// Name identifies the source in logs and ingestion events.
	Name() string
	Read(ctx context.Context) (Result, error)
}

// headerAliases maps accepted header spellings onto columns. The admin and
// commodity spellings match the humanitarian market-monitoring exports.
var headerAliases = map[string]core.Column{
	"date":      core.ColumnDate,
	"province":  core.ColumnProvince,
	"admin1":    core.ColumnProvince,
	"district":  core.ColumnDistrict,
	"admin2":    core.ColumnDistrict,
	"market":    core.ColumnMarket,
	"category":  core.ColumnCategory,
	"item":      core.ColumnItem,
	"commodity": core.ColumnItem,
	"unit":      core.ColumnUnit,
	"price":     core.ColumnPrice,
	"currency":  "currency",
}

var requiredColumns = []core.Column{core.ColumnDate, core.ColumnItem, core.ColumnPrice}

// ParseTable converts a header row plus data rows into observations.
//
// Headers are matched case-insensitively against known aliases; unknown
// columns are ignored. Rows starting with '#' (HXL tag rows) and blank rows
// are skipped silently. Rows with an unparseable date are counted as
// skipped. Prices are kept raw so malformed values survive into storage.
func ParseTable(values [][]string) (Result, error) {
	if len(values) == 0 {
		return Result{}, fmt.Errorf("empty table: missing header row")
	}

	cols := make(map[core.Column]int)
	for i, h := range values[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if col, ok := headerAliases[key]; ok {
			if _, dup := cols[col]; !dup {
				cols[col] = i
			}
		}
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, string(c))
		}
	}
	if len(missing) > 0 {
		return Result{}, fmt.Errorf("unexpected header: missing %s; got headers=%v", strings.Join(missing, ","), values[0])
	}

	get := func(row []string, col core.Column) string {
		idx, ok := cols[col]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var res Result
	for _, row := range values[1:] {
		if isBlank(row) || strings.HasPrefix(strings.TrimSpace(row[0]), "#") {
			continue
		}
		date, err := core.ParseDate(get(row, core.ColumnDate))
		if err != nil {
			res.Skipped++
			continue
		}
		raw := get(row, core.ColumnPrice)
		res.Rows = append(res.Rows, core.Observation{
			Date:     date,
			Province: get(row, core.ColumnProvince),
			District: get(row, core.ColumnDistrict),
			Market:   get(row, core.ColumnMarket),
			Category: get(row, core.ColumnCategory),
			Item:     get(row, core.ColumnItem),
			Unit:     get(row, core.ColumnUnit),
			RawPrice: raw,
			Price:    core.CoercePrice(raw),
			Currency: get(row, "currency"),
		})
	}
	return res, nil
}

// Header is the canonical column order used by exports.
var Header = []string{"date", "province", "district", "market", "category", "item", "unit", "price", "currency"}

// Record renders an observation in Header order.
func Record(o core.Observation) []string {
	return []string{
		o.Date.String(),
		o.Province,
		o.District,
		o.Market,
		o.Category,
		o.Item,
		o.Unit,
		o.StoredPrice(),
		o.Currency,
	}
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
