package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"pricedash/internal/core"
	"pricedash/internal/log"
	"pricedash/internal/sources/csvfile"
	"pricedash/internal/storage"
	"pricedash/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// Open implements Factory.Open
func (f *DefaultFactory) Open(ctx context.Context, config Config, locale string) (core.ObservationStore, error) {
	if !config.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", config.Type)
	}
	dsn := config.DSNs[locale]

	switch config.Type {
	case SQLiteBackend:
		return f.openSQL(ctx, storage.DialectSQLite, locale, dsn)
	case PostgresBackend:
		return f.openSQL(ctx, storage.DialectPostgres, locale, dsn)
	case MemoryBackend:
		return f.openMemory(ctx, locale, dsn)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) openSQL(ctx context.Context, dialect storage.Dialect, locale, dsn string) (core.ObservationStore, error) {
	repo, err := storage.Open(ctx, dialect, dsn, f.logger.With(log.FieldLocale, locale))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store for %s: %w", dialect, locale, err)
	}
	f.logger.InfoContext(ctx, "Opened observation store",
		log.FieldLocale, locale,
		"dialect", string(dialect))
	return repo, nil
}

// openMemory seeds an in-process store from the locale's CSV file. A
// missing file yields an empty store.
func (f *DefaultFactory) openMemory(ctx context.Context, locale, seed string) (core.ObservationStore, error) {
	store := memory.New()
	if seed == "" {
		f.logger.InfoContext(ctx, "Initialized empty memory store", log.FieldLocale, locale)
		return store, nil
	}

	res, err := csvfile.New(seed).Read(ctx)
	if errors.Is(err, fs.ErrNotExist) {
		f.logger.WarnContext(ctx, "Memory seed file not found, starting empty",
			log.FieldLocale, locale,
			"path", seed)
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory store for %s: %w", locale, err)
	}
	if _, err := store.InsertObservations(ctx, res.Rows); err != nil {
		return nil, err
	}

	f.logger.InfoContext(ctx, "Initialized memory store",
		log.FieldLocale, locale,
		"path", seed,
		log.FieldRowCount, len(res.Rows),
		"skipped", res.Skipped)
	return store, nil
}
