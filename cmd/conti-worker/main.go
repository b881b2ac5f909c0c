package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"conti/internal/amqp"
	"conti/internal/config"
	applog "conti/internal/log"
	"conti/internal/storage"
	"conti/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	loggerCfg := applog.DefaultConfig()
	loggerCfg.Component = applog.ComponentWorker
	logger := applog.New(loggerCfg)
	applog.SetDefault(logger)

	logger.Info("Starting conti-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Without a broker the worker still runs: it delivers from the pending
	// table on every sweep instead of consuming the queue.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, falling back to table sweeps only", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
		}
	}

	w := worker.NewAlertWorker(repo, amqpClient, nil, cfg.WorkerBatchSize, cfg.WorkerInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Alert worker running", "batch_size", cfg.WorkerBatchSize, "interval", cfg.WorkerInterval.String())
	if err := w.Run(ctx); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker shutdown complete")
}
