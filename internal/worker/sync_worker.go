package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cashflow/internal/amqp"
	"cashflow/internal/core"
	applog "cashflow/internal/log"
	"cashflow/internal/sheets"
)

// Source is the read side of the ledger the worker mirrors from.
type Source interface {
	Get(ctx context.Context, kind core.Kind, id string) (core.Transaction, error)
	List(ctx context.Context, kind core.Kind) ([]core.Transaction, error)
}

// SyncWorker mirrors ledger transactions into a spreadsheet.
type SyncWorker struct {
	source   Source
	exporter sheets.TransactionExporter
}

func NewSyncWorker(source Source, exporter sheets.TransactionExporter) *SyncWorker {
	return &SyncWorker{source: source, exporter: exporter}
}

// HandleEvent loads the transaction named by msg and exports its current
// state. Events for records that no longer exist are acknowledged and dropped.
func (w *SyncWorker) HandleEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error {
	logger := applog.FromContext(ctx).
		WithComponent(applog.ComponentWorker).
		With(applog.FieldTransactionID, msg.ID, applog.FieldKind, msg.Kind)
	ctx = applog.NewContext(ctx, logger)

	logger.InfoContext(ctx, "Processing transaction event", applog.FieldOperation, msg.Op)

	tx, err := w.source.Get(ctx, msg.Kind, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		logger.WarnContext(ctx, "Event references unknown transaction, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	if err := w.exporter.Export(ctx, tx); err != nil {
		return fmt.Errorf("export transaction: %w", err)
	}
	return nil
}

// Reconcile rewrites every kind's tab from storage. It is the backup path for
// events that were lost or dropped.
func (w *SyncWorker) Reconcile(ctx context.Context) error {
	start := time.Now()
	var errs []error
	for _, kind := range core.Kinds() {
		txs, err := w.source.List(ctx, kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s: %w", kind, err))
			continue
		}
		if err := w.exporter.ExportAll(ctx, kind, txs); err != nil {
			errs = append(errs, fmt.Errorf("export %s: %w", kind, err))
			continue
		}
		slog.DebugContext(ctx, "Kind reconciled",
			applog.FieldComponent, applog.ComponentWorker,
			applog.FieldKind, kind,
			applog.FieldCount, len(txs))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Reconciliation completed",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldOperation, applog.OpSync,
		applog.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// RunReconciler reconciles once immediately and then every interval until ctx
// is cancelled. Failures are logged and retried on the next tick.
func (w *SyncWorker) RunReconciler(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid reconcile interval %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.Reconcile(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "Reconciliation failed",
				applog.FieldComponent, applog.ComponentWorker,
				applog.FieldError, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
