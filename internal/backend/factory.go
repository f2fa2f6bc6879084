package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"cashflow/internal/aggregate"
	"cashflow/internal/amqp"
	"cashflow/internal/cache"
	"cashflow/internal/core"
	applog "cashflow/internal/log"
	"cashflow/internal/services"
	"cashflow/internal/storage"
	"cashflow/internal/storage/file"
	"cashflow/internal/storage/memory"
	"cashflow/internal/storage/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(applog.FieldComponent, applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	kv, closers, err := f.createStore(config)
	if err != nil {
		return nil, err
	}

	if config.CacheSize > 0 {
		cached := cache.NewStore(kv, config.CacheSize, config.CacheTTL)
		manager := cache.NewManager()
		manager.Register(cached)
		manager.StartCleanup(config.CacheTTL)
		kv = cached
		// Stop the cleanup loop before the backing store goes away.
		closers = append([]io.Closer{manager}, closers...)
		f.logger.InfoContext(ctx, "Read cache enabled",
			"size", config.CacheSize,
			"ttl", config.CacheTTL)
	}

	var publisher services.EventPublisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change events",
				applog.FieldError, err)
		} else {
			publisher = client
			closers = append([]io.Closer{client}, closers...)
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	opts := []storage.Option{storage.WithLocation(config.Location)}
	ledger := services.NewLedgerService(
		storage.NewRepository(kv, core.KindExpense, opts...),
		storage.NewRepository(kv, core.KindIncome, opts...),
		publisher,
		closers...,
	)

	f.logger.InfoContext(ctx, "Initialized backend",
		applog.FieldBackend, config.Type,
		"events_enabled", publisher != nil)

	return &BackendResult{
		Ledger:     ledger,
		Aggregator: aggregate.New(config.Location, config.Language),
		Cleanup:    ledger.Close,
	}, nil
}

func (f *DefaultFactory) createStore(config Config) (storage.KV, []io.Closer, error) {
	switch config.Type {
	case MemoryBackend:
		store := memory.NewFromFiles(config.DataDirectory)
		f.logger.Info("Initialized memory store",
			"data_directory", config.DataDirectory,
			"seeded_keys", len(store.Keys()))
		return store, nil, nil

	case FileBackend:
		store, err := file.NewFileStore(config.DataDirectory)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize file store: %w", err)
		}
		f.logger.Info("Initialized file store", "data_directory", store.Dir())
		return store, nil, nil

	case SQLiteBackend:
		store, err := sqlite.NewStore(config.SQLiteDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite store", "db_path", config.SQLiteDBPath)
		return store, []io.Closer{store}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
