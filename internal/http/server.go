// Package http serves the price dashboard API as JSON over net/http.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"pricedash/internal/cache"
	"pricedash/internal/core"
	"pricedash/internal/log"
	"pricedash/internal/middleware/ratelimit"
	"pricedash/internal/middleware/security"
	"pricedash/internal/middleware/trace"
	"pricedash/internal/services"
)

// PriceReader is the query surface the handlers need.
type PriceReader interface {
	Filters(ctx context.Context, locale string, sel core.FilterSelection) (core.Catalog, error)
	Overview(ctx context.Context, locale string, sel core.FilterSelection) (services.OverviewResult, error)
	Prices(ctx context.Context, locale string, sel core.FilterSelection, limit int) (services.PricesResult[core.Observation], error)
	LatestPrices(ctx context.Context, locale string, sel core.FilterSelection, limit int) (services.PricesResult[core.DeduplicatedRow], error)
}

// Readiness reports whether every opened store answers.
type Readiness interface {
	Ping(ctx context.Context) error
}

// Options configures the server. Zero values disable the optional parts.
type Options struct {
	Addr          string
	DefaultLocale string
	QueryTimeout  time.Duration

	// Cache, when set, stores filters and overview responses.
	Cache *cache.ResponseCache
	// Metrics, when set, is mounted at /metrics.
	Metrics  http.Handler
	Observer trace.Observer

	RateLimit     ratelimit.Config
	OnRateLimited func()
	Headers       security.HeadersConfig
	// TrustedProxies extends the private networks allowed to set
	// X-Forwarded-For. Invalid CIDRs are logged and skipped.
	TrustedProxies []string

	Logger *log.Logger
}

type Server struct {
	http.Server
	prices   PriceReader
	ready    Readiness
	opts     Options
	limiter  *ratelimit.Limiter
	detector *security.Detector
	logger   *log.Logger

	shutdownOnce sync.Once
}

// localeHandler serves a request already bound to a data locale.
type localeHandler func(w http.ResponseWriter, r *http.Request, locale string)

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(prices PriceReader, ready Readiness, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 7 * time.Second
	}

	s := &Server{
		prices:   prices,
		ready:    ready,
		opts:     opts,
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		detector: security.NewDetector(),
		logger:   opts.Logger.WithComponent(log.ComponentHTTP),
	}

	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.logger.Warn("Ignoring trusted proxy", log.FieldError, err.Error())
		}
	}

	mux := http.NewServeMux()
	for _, prefix := range []string{"/api/{locale}", "/api"} {
		mux.HandleFunc("GET "+prefix+"/filters", s.localized(s.cached("filters", s.handleFilters, ParamProvince, ParamDistrict)))
		mux.HandleFunc("GET "+prefix+"/overview", s.localized(s.cached("overview", s.handleOverview, ParamProvince, ParamDistrict, ParamItem, ParamItemID)))
		mux.HandleFunc("GET "+prefix+"/prices", s.localized(s.handlePrices))
		mux.HandleFunc("GET "+prefix+"/prices/latest", s.localized(s.handleLatestPrices))
		mux.HandleFunc("GET "+prefix+"/prices/export.xlsx", s.localized(s.handleExportXLSX))
		mux.HandleFunc("GET "+prefix+"/prices/export.csv", s.localized(s.handleExportCSV))
	}
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	var onLimit func(*http.Request)
	if opts.OnRateLimited != nil {
		onLimit = func(*http.Request) { opts.OnRateLimited() }
	}

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ClientIP, onLimit)(handler)
	handler = security.NewHeadersMiddleware(opts.Headers).Middleware(handler)
	handler = trace.NewMiddleware(opts.Logger, trace.Options{
		ExtractIP:  s.detector.ClientIP,
		Suspicious: s.detector.Suspicious,
		Observer:   opts.Observer,
	}).Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      opts.QueryTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// localized resolves the locale, defaulting for the unprefixed routes, and
// bounds the request with the query timeout.
func (s *Server) localized(h localeHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locale := r.PathValue("locale")
		if locale == "" {
			locale = s.opts.DefaultLocale
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.QueryTimeout)
		defer cancel()
		h(w, r.WithContext(ctx), locale)
	}
}

// cached serves successful responses of render from the response cache.
// Only the listed query parameters take part in the key.
func (s *Server) cached(route string, render func(r *http.Request, locale string) *ResponseBuilder, params ...string) localeHandler {
	return func(w http.ResponseWriter, r *http.Request, locale string) {
		c := s.opts.Cache
		if c == nil {
			render(r, locale).Write(w)
			return
		}

		key := cache.Key(locale, route, canonicalQuery(r.URL.Query(), params...))
		if e, ok := c.Get(key); ok {
			NewResponse().Header("X-Cache", "HIT").Body(e.ContentType, e.Body).Write(w)
			return
		}

		b := render(r, locale)
		if b.Err() == nil && b.statusCode == http.StatusOK {
			c.Set(key, cache.Entry{ContentType: b.ContentType(), Body: b.Bytes()})
			b.Header("X-Cache", "MISS")
		}
		b.Write(w)
	}
}

// Shutdown stops background work and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
