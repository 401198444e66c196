package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricedash/internal/config"
	"pricedash/internal/core"
	"pricedash/internal/log"
	"pricedash/internal/storage/memory"
)

type stubFactory struct {
	opens atomic.Int32
	delay time.Duration
	err   error
}

func (f *stubFactory) Open(ctx context.Context, _ Config, locale string) (core.ObservationStore, error) {
	f.opens.Add(1)
	time.Sleep(f.delay)
	if f.err != nil {
		return nil, f.err
	}
	return memory.New(core.Observation{Date: core.NewDate(2024, 1, 1), Province: locale, Item: "Rice", Price: 1}), nil
}

type observation struct {
	locale, op string
	failed     bool
}

type stubObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (o *stubObserver) ObserveQuery(locale, op string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observation{locale, op, err != nil})
}

func memoryConfig(locales ...string) Config {
	dsns := map[string]string{}
	for _, l := range locales {
		dsns[l] = ""
	}
	return Config{Type: MemoryBackend, Locales: locales, DSNs: dsns}
}

func TestPool_OpensEachLocaleOnce(t *testing.T) {
	factory := &stubFactory{delay: 20 * time.Millisecond}
	pool := NewPool(memoryConfig("en", "km"), factory, nil, log.Discard())
	defer pool.Close()

	var wg sync.WaitGroup
	stores := make([]core.ObservationStore, 10)
	for i := range stores {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := pool.Get(context.Background(), "en")
			assert.NoError(t, err)
			stores[i] = s
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), factory.opens.Load())
	for _, s := range stores {
		assert.Same(t, stores[0], s)
	}

	km, err := pool.Get(context.Background(), "km")
	require.NoError(t, err)
	assert.NotSame(t, stores[0], km)
	assert.Equal(t, int32(2), factory.opens.Load())
}

func TestPool_UnknownLocale(t *testing.T) {
	pool := NewPool(memoryConfig("en"), &stubFactory{}, nil, nil)

	_, err := pool.Get(context.Background(), "fr")
	assert.ErrorIs(t, err, ErrUnknownLocale)
	assert.NotErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestPool_OpenFailureIsRetried(t *testing.T) {
	factory := &stubFactory{err: errors.New("disk full")}
	pool := NewPool(memoryConfig("en"), factory, nil, nil)

	_, err := pool.Get(context.Background(), "en")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)

	factory.err = nil
	_, err = pool.Get(context.Background(), "en")
	require.NoError(t, err)
	assert.Equal(t, int32(2), factory.opens.Load())
}

func TestPool_GetHonorsDeadline(t *testing.T) {
	pool := NewPool(memoryConfig("en"), &stubFactory{delay: 200 * time.Millisecond}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := pool.Get(ctx, "en")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_PingAndClose(t *testing.T) {
	pool := NewPool(memoryConfig("en", "km"), &stubFactory{}, nil, nil)

	require.NoError(t, pool.Ping(context.Background()))
	assert.Equal(t, []string{"en", "km"}, pool.Locales())

	require.NoError(t, pool.Close())
	_, err := pool.Get(context.Background(), "en")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestPool_InstrumentsStores(t *testing.T) {
	observer := &stubObserver{}
	pool := NewPool(memoryConfig("en"), &stubFactory{}, observer, nil)

	store, err := pool.Get(context.Background(), "en")
	require.NoError(t, err)
	_, err = store.Query(context.Background(), core.Predicate{}, core.OrderNewestFirst, 10)
	require.NoError(t, err)
	_, err = store.Aggregate(context.Background(), core.Predicate{}, core.AggregateAvg, core.ColumnPrice)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.DistinctValues(ctx, core.ColumnProvince, core.Predicate{})
	require.Error(t, err)

	assert.Equal(t, []observation{
		{"en", "query", false},
		{"en", "aggregate_avg", false},
		{"en", "distinct_values", true},
	}, observer.seen)
}

func TestFactory_MemorySeed(t *testing.T) {
	dir := t.TempDir()
	csv := "date,province,item,price\n2024-01-01,Takeo,Rice,10\n2024-01-02,Takeo,Salt,n/a\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.csv"), []byte(csv), 0o644))

	cfg := Config{Type: MemoryBackend, Locales: []string{"en", "km"}, DSNs: map[string]string{
		"en": filepath.Join(dir, "en.csv"),
		"km": filepath.Join(dir, "km.csv"),
	}}
	f := NewFactory(nil)

	en, err := f.Open(context.Background(), cfg, "en")
	require.NoError(t, err)
	rows, err := en.Query(context.Background(), core.Predicate{}, core.OrderNewestFirst, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	km, err := f.Open(context.Background(), cfg, "km")
	require.NoError(t, err, "a missing seed file starts empty")
	rows, err = km.Query(context.Background(), core.Predicate{}, core.OrderNewestFirst, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFactory_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices_en.db")
	cfg := Config{Type: SQLiteBackend, Locales: []string{"en"}, DSNs: map[string]string{"en": path}}

	store, err := NewFactory(log.Discard()).Open(context.Background(), cfg, "en")
	require.NoError(t, err)
	defer store.Close()

	n, err := store.InsertObservations(context.Background(), []core.Observation{{Date: core.NewDate(2024, 1, 1), Item: "Rice", Price: 5}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, store.Ping(context.Background()))
}

func TestFactory_InvalidType(t *testing.T) {
	_, err := NewFactory(nil).Open(context.Background(), Config{Type: "sheets"}, "en")
	assert.Error(t, err)
}

func TestFromAppConfig(t *testing.T) {
	app := &config.Config{
		DataBackend:  "sqlite",
		Locales:      []string{"en", "km"},
		SQLiteDBPath: "/var/lib/pricedash/prices_{locale}.db",
	}
	cfg, err := FromAppConfig(app)
	require.NoError(t, err)
	assert.Equal(t, SQLiteBackend, cfg.Type)
	assert.Equal(t, "/var/lib/pricedash/prices_km.db", cfg.DSNs["km"])
	assert.True(t, cfg.HasLocale("en"))
	assert.False(t, cfg.HasLocale("fr"))

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets", Locales: []string{"en"}})
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "postgres", Locales: []string{"en"}})
	assert.Error(t, err, "postgres needs a DSN")

	_, err = FromAppConfig(nil)
	assert.Error(t, err)
}

func TestBackendType(t *testing.T) {
	for _, bt := range []BackendType{SQLiteBackend, PostgresBackend, MemoryBackend} {
		assert.True(t, bt.IsValid(), bt.String())
	}
	assert.False(t, BackendType("sheets").IsValid())
}
