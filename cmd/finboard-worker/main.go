package main

import (
	"context"
	"os"
	"time"

	"finboard/internal/amqp"
	"finboard/internal/cache"
	"finboard/internal/cli"
	"finboard/internal/config"
	"finboard/internal/log"
	"finboard/internal/sheets"
	gsheet "finboard/internal/sheets/google"
	mem "finboard/internal/sheets/memory"
	"finboard/internal/worker"
)

const dedupeCleanupEvery = 5 * time.Minute

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	cli.MustValidate(logger, cfg.ValidateWorker)

	logger.Info("Starting finboard-worker")

	var writer sheets.ActivityWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(context.Background(), gsheet.Options{
			SpreadsheetID: cfg.GoogleSpreadsheetID,
			Sheet:         cfg.GoogleActivitySheet,
			Logger:        logger,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Google Sheets client initialized",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleActivitySheet)
	} else {
		writer = mem.New()
		logger.Info("Google Sheets disabled - activity is kept in memory")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	w := worker.NewActivityWorker(writer, logger)
	caches := cache.NewManager(logger.WithComponent(log.ComponentCache))
	caches.Register(w.Seen())
	caches.StartCleanup(dedupeCleanupEvery)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		logger.Info("Shutting down worker...")
	})

	runErr := w.Run(ctx, amqpClient)
	if runErr != nil {
		logger.Error("Activity consumption failed", log.FieldError, runErr)
	}

	caches.Stop()
	if err := amqpClient.Close(); err != nil {
		logger.Warn("Failed to close AMQP client", log.FieldError, err)
	}
	if runErr != nil {
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
