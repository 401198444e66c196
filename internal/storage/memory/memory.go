// Package memory is an in-process observation store. It backs the memory
// data backend and serves as the reference implementation in tests.
package memory

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"

	"pricedash/internal/core"
	"pricedash/internal/storage"
)

var errClosed = errors.New("memory store closed")

type Store struct {
	mu     sync.RWMutex
	rows   []core.Observation
	nextID int64
	closed bool
}

func New(rows ...core.Observation) *Store {
	s := &Store{}
	s.insert(rows)
	return s
}

func (s *Store) insert(rows []core.Observation) int {
	for _, o := range rows {
		s.nextID++
		o = storage.Normalize(o)
		o.ID = s.nextID
		o.Price = core.CoercePrice(o.RawPrice)
		s.rows = append(s.rows, o)
	}
	return len(rows)
}

// snapshot returns the rows matching pred, in insertion order.
func (s *Store) snapshot(ctx context.Context, op string, pred core.Predicate) ([]core.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.NewStoreError(op, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, core.NewStoreError(op, errClosed)
	}
	out := make([]core.Observation, 0, len(s.rows))
	for _, o := range s.rows {
		if pred.Matches(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Store) DistinctValues(ctx context.Context, column core.Column, pred core.Predicate) ([]string, error) {
	rows, err := s.snapshot(ctx, "distinct "+string(column), pred)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, o := range rows {
		if v := storage.ColumnValue(o, column); v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func (s *Store) DistinctItems(ctx context.Context, pred core.Predicate) ([]core.ItemKey, error) {
	rows, err := s.snapshot(ctx, "distinct items", pred)
	if err != nil {
		return nil, err
	}
	seen := make(map[core.ItemKey]struct{})
	var out []core.ItemKey
	for _, o := range rows {
		if o.Item == "" {
			continue
		}
		k := core.ItemKey{Name: o.Item, Unit: o.Unit, Category: o.Category}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out, nil
}

func (s *Store) Query(ctx context.Context, pred core.Predicate, order core.Order, limit int) ([]core.Observation, error) {
	rows, err := s.snapshot(ctx, "query", pred)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(rows, func(a, b core.Observation) int {
		c := cmp.Or(cmp.Compare(a.Date.String(), b.Date.String()), cmp.Compare(a.ID, b.ID))
		if order == core.OrderOldestFirst {
			return c
		}
		return -c
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Store) Aggregate(ctx context.Context, pred core.Predicate, kind core.AggregateKind, column core.Column) (core.Scalar, error) {
	rows, err := s.snapshot(ctx, "aggregate", pred)
	if err != nil {
		return core.Scalar{}, err
	}
	return storage.AggregateObservations(rows, kind, column)
}

func (s *Store) InsertObservations(ctx context.Context, rows []core.Observation) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, core.NewStoreError("insert", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, core.NewStoreError("insert", errClosed)
	}
	return s.insert(rows), nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return core.NewStoreError("ping", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return core.NewStoreError("ping", errClosed)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len returns the number of stored rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
