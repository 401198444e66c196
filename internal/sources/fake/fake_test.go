package fake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorDeterministic(t *testing.T) {
	opts := Options{Seed: 42, Rows: 50, End: time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)}

	a, err := New(opts).Read(context.Background())
	require.NoError(t, err)
	b, err := New(opts).Read(context.Background())
	require.NoError(t, err)

	require.Len(t, a.Rows, 50)
	assert.Equal(t, a.Rows, b.Rows)
	assert.Equal(t, "fake:42", New(opts).Name())
}

func TestGeneratorShape(t *testing.T) {
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	res, err := New(Options{Seed: 7, Rows: 200, Provinces: 2, Districts: 2, Days: 30, End: end}).Read(context.Background())
	require.NoError(t, err)

	provinces := map[string]bool{}
	for _, o := range res.Rows {
		provinces[o.Province] = true
		assert.NotEmpty(t, o.Item)
		assert.NotEmpty(t, o.District)
		assert.False(t, o.Date.After(end))
		assert.False(t, o.Date.Before(end.AddDate(0, 0, -30)))
		assert.Greater(t, o.Price, 0.0)
	}
	assert.LessOrEqual(t, len(provinces), 2)
}

func TestGeneratorMalformedPrices(t *testing.T) {
	res, err := New(Options{Seed: 1, Rows: 100, MalformedRatio: 1}).Read(context.Background())
	require.NoError(t, err)
	for _, o := range res.Rows {
		assert.Zero(t, o.Price)
	}
}

func TestGeneratorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}).Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
