package storage

import (
	"fmt"
	"strconv"
	"strings"

	"pricedash/internal/core"
)

// Dialect selects the SQL driver and placeholder style.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// Rebind rewrites '?' placeholders into the dialect's native form.
// Queries built here never carry literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const observationColumns = "id, date, province, district, market, category, item, unit, price, currency"

// where renders the predicate terms plus any extra conditions as a WHERE clause.
func where(pred core.Predicate, extra ...string) (string, []any) {
	conds := append([]string(nil), extra...)
	var args []any
	if pred.Province != "" {
		conds = append(conds, "province = ?")
		args = append(args, pred.Province)
	}
	if pred.District != "" {
		conds = append(conds, "district = ?")
		args = append(args, pred.District)
	}
	if pred.Item != "" {
		conds = append(conds, "item = ?")
		args = append(args, pred.Item)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func distinctValuesQuery(col core.Column, pred core.Predicate) (string, []any, error) {
	if !col.Valid() {
		return "", nil, fmt.Errorf("unknown column %q", col)
	}
	c := string(col)
	w, args := where(pred, c+" IS NOT NULL", c+" <> ''")
	return "SELECT DISTINCT " + c + " FROM observations" + w + " ORDER BY " + c, args, nil
}

func distinctItemsQuery(pred core.Predicate) (string, []any) {
	w, args := where(pred, "item IS NOT NULL", "item <> ''")
	return "SELECT DISTINCT item, COALESCE(unit, ''), COALESCE(category, '') FROM observations" + w +
		" ORDER BY 3, 1, 2", args
}

func selectQuery(pred core.Predicate, order core.Order, limit int) (string, []any) {
	w, args := where(pred)
	q := "SELECT " + observationColumns + " FROM observations" + w
	if order == core.OrderOldestFirst {
		q += " ORDER BY date ASC, id ASC"
	} else {
		q += " ORDER BY date DESC, id DESC"
	}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	return q, args
}

// aggregateQuery covers the aggregates SQL can answer without the price
// coercion rule. Price aggregates are streamed instead, see priceQuery.
func aggregateQuery(pred core.Predicate, kind core.AggregateKind, col core.Column) (string, []any, error) {
	if !col.Valid() {
		return "", nil, fmt.Errorf("unknown column %q", col)
	}
	w, args := where(pred)
	switch kind {
	case core.AggregateMax:
		return "SELECT MAX(" + string(col) + ") FROM observations" + w, args, nil
	case core.AggregateCountDistinct:
		return "SELECT COUNT(DISTINCT " + string(col) + ") FROM observations" + w, args, nil
	}
	return "", nil, fmt.Errorf("aggregate %q over %q is not supported in SQL", kind, col)
}

func priceQuery(pred core.Predicate) (string, []any) {
	w, args := where(pred)
	return "SELECT price FROM observations" + w, args
}

const insertQuery = "INSERT INTO observations (date, province, district, market, category, item, unit, price, currency) " +
	"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"
