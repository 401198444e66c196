// Package worker runs the server's background consumers.
package worker

import (
	"context"
	"errors"

	"pricedash/internal/amqp"
	"pricedash/internal/log"
)

// Consumer delivers ingestion events until its context ends.
type Consumer interface {
	ConsumeIngested(ctx context.Context, handler func(context.Context, *amqp.ObservationsIngested) error) error
}

// Invalidator drops whatever was derived from a locale's data.
type Invalidator interface {
	Invalidate(locale string) int
}

// InvalidationWorker drops cached responses for a locale whenever another
// process reports new observations for it.
type InvalidationWorker struct {
	consumer Consumer
	cache    Invalidator
	locales  map[string]bool
	logger   *log.Logger
}

// NewInvalidationWorker creates a worker. Events for locales outside
// locales are acknowledged and ignored.
func NewInvalidationWorker(consumer Consumer, cache Invalidator, locales []string, logger *log.Logger) *InvalidationWorker {
	if logger == nil {
		logger = log.Discard()
	}
	known := make(map[string]bool, len(locales))
	for _, l := range locales {
		known[l] = true
	}
	return &InvalidationWorker{
		consumer: consumer,
		cache:    cache,
		locales:  known,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleIngested processes a single ingestion event.
func (w *InvalidationWorker) HandleIngested(ctx context.Context, msg *amqp.ObservationsIngested) error {
	if !w.locales[msg.Locale] {
		w.logger.DebugContext(ctx, "Ignoring ingestion event for unserved locale",
			log.FieldLocale, msg.Locale,
			log.FieldSource, msg.Source)
		return nil
	}

	dropped := w.cache.Invalidate(msg.Locale)
	w.logger.InfoContext(ctx, "Invalidated cached responses",
		log.FieldLocale, msg.Locale,
		log.FieldSource, msg.Source,
		log.FieldRowCount, msg.Count,
		"dropped", dropped,
		"published_at", msg.Timestamp)
	return nil
}

// Run consumes events until ctx is done. A cancelled context is a clean stop.
func (w *InvalidationWorker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting cache invalidation worker")
	err := w.consumer.ConsumeIngested(ctx, w.HandleIngested)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		w.logger.InfoContext(ctx, "Cache invalidation worker stopped")
		return nil
	}
	return err
}
