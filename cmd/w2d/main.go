package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joseph-ayodele/w2-reporter/internal/app"
	"github.com/joseph-ayodele/w2-reporter/internal/async"
	"github.com/joseph-ayodele/w2-reporter/internal/common"
	"github.com/joseph-ayodele/w2-reporter/internal/server"
)

var version = "dev"

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		common.NewLogger(common.LogConfig{}, os.Stderr).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg.Log, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	queue := async.NewProcessorQueue(a.Processor, logger,
		async.WithWorkers(cfg.Server.Workers),
		async.WithQueueSize(cfg.Server.QueueSize),
		async.WithProcessTimeout(cfg.Server.ProcessTimeout),
	)

	logger.Info("w2-reporter starting",
		"version", version,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"remote", cfg.Remote.BaseURL,
		"ledger", cfg.Ledger.DSN != "",
	)
	if err := server.New(cfg.Server, version, queue, logger).Run(ctx); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("w2-reporter stopped")
}
