package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"pricedash/internal/cache"
	"pricedash/internal/cli"
	apphttp "pricedash/internal/http"
	"pricedash/internal/log"
	"pricedash/internal/metrics"
	"pricedash/internal/middleware/ratelimit"
	"pricedash/internal/middleware/security"
	"pricedash/internal/services"
	"pricedash/internal/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := cli.SetupLogger("info")
	cli.LoadEnvFile(logger)

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		return 1
	}
	logger = cli.SetupLogger(cfg.LogLevel)

	m := metrics.New()
	pool, err := cli.OpenPool(cfg, m, logger)
	if err != nil {
		logger.Error("Failed to configure stores", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		return 1
	}
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Error("Failed to close stores", log.FieldError, err.Error())
		}
	}()

	prices := services.NewPriceService(pool, services.PriceServiceConfig{
		DefaultLimit: cfg.DefaultPriceLimit,
		MaxLimit:     cfg.MaxPriceLimit,
	}, m, logger)

	// Cached responses are only safe while ingestion events can purge them.
	var responses *cache.ResponseCache
	amqpClient, err := cli.ConnectAMQP(cfg, logger)
	if err != nil {
		logger.Warn("AMQP unavailable, serving without response cache", log.FieldError, err.Error())
	}
	if amqpClient != nil {
		defer amqpClient.Close()
		if cfg.CacheEnabled() {
			responses = cache.NewResponseCache(cfg.CacheSize, cfg.CacheTTL, m)
		}
	}

	headers := security.DefaultHeadersConfig()
	headers.AllowOrigin = cfg.CORSAllowOrigin

	srv := apphttp.NewServer(prices, pool, apphttp.Options{
		Addr:          ":" + cfg.Port,
		DefaultLocale: cfg.DefaultLocale,
		QueryTimeout:  cfg.QueryTimeout,
		Cache:         responses,
		Metrics:       m.Handler(),
		Observer:      m,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		OnRateLimited:  m.RateLimited,
		TrustedProxies: cfg.TrustedProxies,
		Headers:        headers,
		Logger:         logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	if responses != nil {
		invalidator := worker.NewInvalidationWorker(amqpClient, responses, cfg.Locales, logger)
		g.Go(func() error { return invalidator.Run(gctx) })
		g.Go(func() error {
			cache.NewJanitor(time.Minute, logger, responses).Run(gctx)
			return nil
		})
	}

	logger.Info("Starting pricedash server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"locales", cfg.Locales,
		"cache", responses != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		return 1
	}

	<-done
	if err := g.Wait(); err != nil {
		logger.Error("Background worker failed", log.FieldError, err.Error())
	}
	logger.Info("Server stopped gracefully")
	return 0
}
