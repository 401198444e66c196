package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pricedash/internal/cli"
	"pricedash/internal/log"
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

	pool, err := cli.OpenPool(cfg, nil, logger)
	if err != nil {
		logger.Error("Failed to configure stores", log.FieldError, err.Error())
		return 1
	}
	defer pool.Close()

	deps := cli.IngestDeps{Config: cfg, Logger: logger, Stores: pool}

	client, err := cli.ConnectAMQP(cfg, logger)
	if err != nil {
		logger.Warn("AMQP unavailable, ingestion events will not be published", log.FieldError, err.Error())
	}
	if client != nil {
		defer client.Close()
		deps.Publisher = client
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewIngestCommand(deps).ExecuteContext(ctx); err != nil {
		logger.Error("Command failed", log.FieldError, err.Error())
		return 1
	}
	return 0
}
