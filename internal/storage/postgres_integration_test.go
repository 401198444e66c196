//go:build integration

package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"pricedash/internal/core"
	"pricedash/internal/log"
)

// startPostgres launches a throwaway PostgreSQL container and returns its DSN.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "prices_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://test:test@%s:%s/prices_test?sslmode=disable", host, port.Port())
}

func TestPostgresRepository(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	var repo *Repository
	var err error
	// The port can accept connections a moment before the server is ready.
	for i := 0; i < 10; i++ {
		repo, err = Open(ctx, DialectPostgres, dsn, log.Discard())
		if err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	require.NoError(t, err)
	defer repo.Close()

	n, err := repo.InsertObservations(ctx, sampleObservations())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	provinces, err := repo.DistinctValues(ctx, core.ColumnProvince, core.Predicate{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Battambang", "Kampot"}, provinces)

	rows, err := repo.Query(ctx, core.Predicate{Item: "Rice"}, core.OrderNewestFirst, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Kampot", rows[0].Province)

	avg, err := repo.Aggregate(ctx, core.Predicate{Province: "Battambang"}, core.AggregateAvg, core.ColumnPrice)
	require.NoError(t, err)
	assert.InDelta(t, (2500.0+2700.0)/3, avg.Number, 1e-9)

	markets, err := repo.Aggregate(ctx, core.Predicate{}, core.AggregateCountDistinct, core.ColumnMarket)
	require.NoError(t, err)
	assert.Equal(t, 4.0, markets.Number)
}
