package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"pricedash/internal/core"
	"pricedash/internal/log"
)

// ErrUnknownLocale is returned for locales outside the configuration.
var ErrUnknownLocale = errors.New("unknown locale")

// Pool hands out one store per locale. Stores are opened on first use and
// kept until Close; concurrent first requests share a single open.
type Pool struct {
	config   Config
	factory  Factory
	observer QueryObserver
	logger   *log.Logger

	mu     sync.RWMutex
	stores map[string]core.ObservationStore
	closed bool
	group  singleflight.Group
}

// NewPool creates a pool. observer may be nil.
func NewPool(config Config, factory Factory, observer QueryObserver, logger *log.Logger) *Pool {
	if logger == nil {
		logger = log.Discard()
	}
	return &Pool{
		config:   config,
		factory:  factory,
		observer: observer,
		logger:   logger.WithComponent(log.ComponentBackend),
		stores:   make(map[string]core.ObservationStore),
	}
}

// Locales returns the configured locales.
func (p *Pool) Locales() []string {
	return append([]string(nil), p.config.Locales...)
}

// Get returns the store of locale, opening it if needed. Open failures are
// reported as store unavailability and retried on the next call.
func (p *Pool) Get(ctx context.Context, locale string) (core.ObservationStore, error) {
	if !p.config.HasLocale(locale) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLocale, locale)
	}

	p.mu.RLock()
	store, ok := p.stores[locale]
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, core.NewStoreError("open", errors.New("pool closed"))
	}
	if ok {
		return store, nil
	}

	// The open outlives the first caller's deadline so a slow migration is
	// not restarted by every impatient request.
	ch := p.group.DoChan(locale, func() (any, error) {
		return p.open(context.WithoutCancel(ctx), locale)
	})
	select {
	case <-ctx.Done():
		return nil, core.NewStoreError("open", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(core.ObservationStore), nil
	}
}

func (p *Pool) open(ctx context.Context, locale string) (core.ObservationStore, error) {
	p.mu.RLock()
	store, ok := p.stores[locale]
	p.mu.RUnlock()
	if ok {
		return store, nil
	}

	opened, err := p.factory.Open(ctx, p.config, locale)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to open observation store",
			log.FieldLocale, locale,
			log.FieldError, err)
		return nil, core.NewStoreError("open", err)
	}
	if p.observer != nil {
		opened = Instrument(opened, locale, p.observer)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		opened.Close()
		return nil, core.NewStoreError("open", errors.New("pool closed"))
	}
	p.stores[locale] = opened
	return opened, nil
}

// Ping checks every configured locale, opening stores as needed.
func (p *Pool) Ping(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, locale := range p.config.Locales {
		g.Go(func() error {
			store, err := p.Get(gctx, locale)
			if err != nil {
				return fmt.Errorf("%s: %w", locale, err)
			}
			if err := store.Ping(gctx); err != nil {
				return fmt.Errorf("%s: %w", locale, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close closes every opened store. The pool is unusable afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true

	var errs []error
	for locale, store := range p.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", locale, err))
		}
		delete(p.stores, locale)
	}
	return errors.Join(errs...)
}
