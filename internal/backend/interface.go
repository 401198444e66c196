// Package backend opens the per-locale observation stores and keeps them
// for the lifetime of the process.
package backend

import (
	"context"
	"time"

	"pricedash/internal/core"
)

// Factory opens the store of one locale.
type Factory interface {
	Open(ctx context.Context, config Config, locale string) (core.ObservationStore, error)
}

// QueryObserver receives the outcome of every store call.
type QueryObserver interface {
	ObserveQuery(locale, operation string, elapsed time.Duration, err error)
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
