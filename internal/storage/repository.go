package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pricedash/internal/core"
	"pricedash/internal/log"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Repository is the SQL observation store shared by the sqlite and
// postgres backends.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	logger  *log.Logger
}

// Open connects to dsn, applies migrations and returns a ready repository.
func Open(ctx context.Context, dialect Dialect, dsn string, logger *log.Logger) (*Repository, error) {
	if dialect == DialectSQLite {
		if dir := filepath.Dir(dsn); dir != "" && dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// One writer at a time avoids SQLITE_BUSY under concurrent ingestion.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewRepositoryWithDB(db, dialect, logger), nil
}

// NewRepositoryWithDB wraps an existing handle without migrating it.
func NewRepositoryWithDB(db *sql.DB, dialect Dialect, logger *log.Logger) *Repository {
	if logger == nil {
		logger = log.Discard()
	}
	return &Repository{
		db:      db,
		dialect: dialect,
		logger:  logger.WithComponent(log.ComponentStorage),
	}
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return core.NewStoreError("ping", r.db.PingContext(ctx))
}

func (r *Repository) DistinctValues(ctx context.Context, column core.Column, pred core.Predicate) ([]string, error) {
	q, args, err := distinctValuesQuery(column, pred)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), args...)
	if err != nil {
		return nil, core.NewStoreError("distinct "+string(column), err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, core.NewStoreError("scan distinct "+string(column), err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStoreError("distinct "+string(column), err)
	}
	return out, nil
}

func (r *Repository) DistinctItems(ctx context.Context, pred core.Predicate) ([]core.ItemKey, error) {
	q, args := distinctItemsQuery(pred)

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), args...)
	if err != nil {
		return nil, core.NewStoreError("distinct items", err)
	}
	defer rows.Close()

	var out []core.ItemKey
	for rows.Next() {
		var k core.ItemKey
		if err := rows.Scan(&k.Name, &k.Unit, &k.Category); err != nil {
			return nil, core.NewStoreError("scan distinct items", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStoreError("distinct items", err)
	}
	return out, nil
}

func (r *Repository) Query(ctx context.Context, pred core.Predicate, order core.Order, limit int) ([]core.Observation, error) {
	q, args := selectQuery(pred, order, limit)

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), args...)
	if err != nil {
		return nil, core.NewStoreError("query", err)
	}
	defer rows.Close()

	var out []core.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, core.NewStoreError("scan observation", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStoreError("query", err)
	}
	return out, nil
}

func (r *Repository) Aggregate(ctx context.Context, pred core.Predicate, kind core.AggregateKind, column core.Column) (core.Scalar, error) {
	if column == core.ColumnPrice {
		return r.aggregatePrice(ctx, pred, kind)
	}

	q, args, err := aggregateQuery(pred, kind, column)
	if err != nil {
		return core.Scalar{}, err
	}

	switch kind {
	case core.AggregateCountDistinct:
		var n int64
		if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(q), args...).Scan(&n); err != nil {
			return core.Scalar{}, core.NewStoreError("count distinct "+string(column), err)
		}
		return core.Scalar{Valid: true, Number: float64(n)}, nil
	default:
		var v sql.NullString
		if err := r.db.QueryRowContext(ctx, r.dialect.Rebind(q), args...).Scan(&v); err != nil {
			return core.Scalar{}, core.NewStoreError("max "+string(column), err)
		}
		return core.Scalar{Valid: v.Valid && v.String != "", Text: v.String}, nil
	}
}

// aggregatePrice streams raw prices so the coercion rule stays identical
// across dialects.
func (r *Repository) aggregatePrice(ctx context.Context, pred core.Predicate, kind core.AggregateKind) (core.Scalar, error) {
	q, args := priceQuery(pred)

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), args...)
	if err != nil {
		return core.Scalar{}, core.NewStoreError("aggregate price", err)
	}
	defer rows.Close()

	var acc priceAccumulator
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return core.Scalar{}, core.NewStoreError("scan price", err)
		}
		acc.add(raw.String)
	}
	if err := rows.Err(); err != nil {
		return core.Scalar{}, core.NewStoreError("aggregate price", err)
	}
	return acc.result(kind)
}

func (r *Repository) InsertObservations(ctx context.Context, obs []core.Observation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, core.NewStoreError("begin insert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.dialect.Rebind(insertQuery))
	if err != nil {
		return 0, core.NewStoreError("prepare insert", err)
	}
	defer stmt.Close()

	for i, o := range obs {
		o = Normalize(o)
		if _, err := stmt.ExecContext(ctx,
			o.Date.String(),
			nullable(o.Province),
			nullable(o.District),
			nullable(o.Market),
			nullable(o.Category),
			nullable(o.Item),
			nullable(o.Unit),
			nullable(o.StoredPrice()),
			nullable(o.Currency),
		); err != nil {
			return 0, core.NewStoreError(fmt.Sprintf("insert row %d", i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, core.NewStoreError("commit insert", err)
	}

	r.logger.DebugContext(ctx, "Observations inserted", log.FieldRowCount, len(obs))
	return len(obs), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(s rowScanner) (core.Observation, error) {
	var o core.Observation
	var date string
	var province, district, market, category sql.NullString
	var item, unit, price, currency sql.NullString
	if err := s.Scan(&o.ID, &date, &province, &district, &market, &category, &item, &unit, &price, &currency); err != nil {
		return core.Observation{}, err
	}
	// Unparseable stored dates stay zero rather than failing the read.
	if d, err := core.ParseDate(date); err == nil {
		o.Date = d
	}
	o.Province = province.String
	o.District = district.String
	o.Market = market.String
	o.Category = category.String
	o.Item = item.String
	o.Unit = unit.String
	o.RawPrice = price.String
	o.Price = core.CoercePrice(price.String)
	o.Currency = currency.String
	return o, nil
}

// Normalize trims the text fields of o the way every store persists them.
// A blank field reads back as missing, and the raw price is fixed to the
// text that would be stored.
func Normalize(o core.Observation) core.Observation {
	o.Province = strings.TrimSpace(o.Province)
	o.District = strings.TrimSpace(o.District)
	o.Market = strings.TrimSpace(o.Market)
	o.Category = strings.TrimSpace(o.Category)
	o.Item = strings.TrimSpace(o.Item)
	o.Unit = strings.TrimSpace(o.Unit)
	o.Currency = strings.TrimSpace(o.Currency)
	o.RawPrice = strings.TrimSpace(o.StoredPrice())
	return o
}

func nullable(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
