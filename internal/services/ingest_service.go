package services

import (
	"context"
	"fmt"
	"time"

	"pricedash/internal/core"
	"pricedash/internal/log"
	"pricedash/internal/sources"
)

// Publisher announces completed ingestions to other processes.
type Publisher interface {
	PublishIngested(ctx context.Context, locale, source string, count int) error
}

// IngestConfig holds configuration for the ingest service
type IngestConfig struct {
	// BatchSize is the number of rows written per insert call (default: 500)
	BatchSize int
}

// DefaultIngestConfig returns sensible defaults
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{BatchSize: 500}
}

// IngestReport summarises one ingestion run.
type IngestReport struct {
	Locale    string        `json:"locale"`
	Source    string        `json:"source"`
	Read      int           `json:"read"`
	Skipped   int           `json:"skipped"`
	Inserted  int           `json:"inserted"`
	Published bool          `json:"published"`
	Duration  time.Duration `json:"duration"`
}

// IngestService loads observations from a source into a locale's store.
type IngestService struct {
	stores    StoreProvider
	publisher Publisher
	recorder  Recorder
	config    IngestConfig
	logger    *log.Logger
}

// NewIngestService creates an ingest service. publisher may be nil when no
// broker is configured.
func NewIngestService(stores StoreProvider, publisher Publisher, recorder Recorder, config IngestConfig, logger *log.Logger) *IngestService {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultIngestConfig().BatchSize
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &IngestService{
		stores:    stores,
		publisher: publisher,
		recorder:  recorder,
		config:    config,
		logger:    logger.WithComponent(log.ComponentIngest),
	}
}

// Ingest reads src and appends its rows to the store of locale in batches.
// Rows written before a failing batch stay written; the report counts them.
// A failed publish is logged and reported, never returned.
func (s *IngestService) Ingest(ctx context.Context, locale string, src sources.Reader) (IngestReport, error) {
	start := time.Now()
	report := IngestReport{Locale: locale, Source: src.Name()}

	store, err := s.stores.Get(ctx, locale)
	if err != nil {
		return report, err
	}

	res, err := src.Read(ctx)
	if err != nil {
		return report, fmt.Errorf("read %s: %w", src.Name(), err)
	}
	report.Read = len(res.Rows)
	report.Skipped = res.Skipped

	for batch := range chunk(res.Rows, s.config.BatchSize) {
		if err := ctx.Err(); err != nil {
			return s.finish(ctx, report, start), err
		}
		n, err := store.InsertObservations(ctx, batch)
		report.Inserted += n
		if err != nil {
			s.recorder.RowsIngested(locale, src.Name(), report.Inserted)
			return s.finish(ctx, report, start), fmt.Errorf("insert observations: %w", err)
		}
	}
	s.recorder.RowsIngested(locale, src.Name(), report.Inserted)

	if s.publisher != nil && report.Inserted > 0 {
		if err := s.publisher.PublishIngested(ctx, locale, src.Name(), report.Inserted); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish ingestion event",
				log.FieldLocale, locale,
				log.FieldSource, src.Name(),
				log.FieldError, err)
		} else {
			report.Published = true
		}
	}

	return s.finish(ctx, report, start), nil
}

func (s *IngestService) finish(ctx context.Context, report IngestReport, start time.Time) IngestReport {
	report.Duration = time.Since(start)
	s.logger.InfoContext(ctx, "Ingestion finished",
		log.FieldLocale, report.Locale,
		log.FieldSource, report.Source,
		log.FieldRowCount, report.Inserted,
		"read", report.Read,
		"skipped", report.Skipped,
		log.FieldDuration, report.Duration.Milliseconds())
	return report
}

// chunk yields consecutive slices of at most size rows.
func chunk(rows []core.Observation, size int) func(func([]core.Observation) bool) {
	return func(yield func([]core.Observation) bool) {
		for len(rows) > 0 {
			n := min(size, len(rows))
			if !yield(rows[:n]) {
				return
			}
			rows = rows[n:]
		}
	}
}
