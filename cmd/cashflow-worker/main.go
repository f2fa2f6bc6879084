package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"cashflow/internal/amqp"
	"cashflow/internal/backend"
	"cashflow/internal/cli"
	"cashflow/internal/config"
	applog "cashflow/internal/log"
	"cashflow/internal/sheets"
	gsheet "cashflow/internal/sheets/google"
	"cashflow/internal/sheets/memory"
	"cashflow/internal/worker"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Stdout, applog.ComponentWorker)
	logger.Info("Starting cashflow-worker", applog.FieldOperation, applog.OpStartup)

	cfg, err := cli.LoadAndValidateConfig((*config.Config).ValidateWorker)
	if err != nil {
		logger.Error("Configuration validation failed",
			applog.FieldOperation, applog.OpValidate,
			applog.FieldErrorType, applog.ErrorTypeConfiguration,
			applog.FieldError, err)
		os.Exit(1)
	}

	if err := run(logger, cfg); err != nil {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}

func run(logger *applog.Logger, cfg *config.Config) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	// The worker only reads. Other processes write the same store, so it must
	// neither cache nor publish.
	backendCfg.CacheSize = 0
	backendCfg.AMQPURL = ""

	res, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		return err
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		res.Cleanup()
		return err
	}

	exporter, err := newExporter(logger, cfg, backendCfg)
	if err != nil {
		consumer.Close()
		res.Cleanup()
		return err
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func() {
		if err := consumer.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", applog.FieldError, err)
		}
	})

	syncWorker := worker.NewSyncWorker(res.Ledger, exporter)

	g, gctx := errgroup.WithContext(applog.NewContext(ctx, logger))
	g.Go(func() error {
		return consumer.ConsumeTransactionEvents(gctx, syncWorker.HandleEvent)
	})
	g.Go(func() error {
		return syncWorker.RunReconciler(gctx, cfg.SyncInterval)
	})

	logger.Info("Worker running",
		"queue", cfg.AMQPQueue,
		"sync_interval", cfg.SyncInterval)

	err = g.Wait()
	if ctx.Err() != nil {
		<-done
	} else {
		consumer.Close()
	}
	if cerr := res.Cleanup(); cerr != nil {
		logger.Warn("Backend cleanup failed", applog.FieldError, cerr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newExporter(logger *applog.Logger, cfg *config.Config, backendCfg backend.Config) (sheets.TransactionExporter, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Warn("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory only")
		return memory.New(), nil
	}
	client, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID: cfg.GoogleSpreadsheetID,
		ExpensesSheet: cfg.ExpensesSheetName,
		IncomeSheet:   cfg.IncomeSheetName,
		Location:      backendCfg.Location,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}
