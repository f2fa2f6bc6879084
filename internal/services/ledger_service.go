package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"cashflow/internal/aggregate"
	"cashflow/internal/core"
	applog "cashflow/internal/log"
	"cashflow/internal/storage"
)

// EventPublisher announces committed writes to other processes.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, op core.EventOp, tx core.Transaction) error
}

// Snapshot is what a screen needs after every write: the records and the
// category vocabulary of one kind.
type Snapshot struct {
	Transactions []core.Transaction
	Categories   []string
}

// LedgerService routes operations to the repository of the requested kind and
// publishes change events after each successful write.
type LedgerService struct {
	repos     map[core.Kind]*storage.Repository
	publisher EventPublisher
	closers   []io.Closer
}

// NewLedgerService wires the two repositories. publisher may be nil. closers
// are released by Close in order, typically the KV backend and the publisher.
func NewLedgerService(expenses, incomes *storage.Repository, publisher EventPublisher, closers ...io.Closer) *LedgerService {
	return &LedgerService{
		repos: map[core.Kind]*storage.Repository{
			core.KindExpense: expenses,
			core.KindIncome:  incomes,
		},
		publisher: publisher,
		closers:   closers,
	}
}

func (s *LedgerService) repo(kind core.Kind) (*storage.Repository, error) {
	r, ok := s.repos[kind]
	if !ok || r == nil {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}
	return r, nil
}

// Create records a new transaction of the given kind.
func (s *LedgerService) Create(ctx context.Context, kind core.Kind, req core.CreateRequest) (core.Transaction, error) {
	r, err := s.repo(kind)
	if err != nil {
		return core.Transaction{}, err
	}
	tx, err := r.Create(ctx, req)
	if err != nil {
		return core.Transaction{}, err
	}
	s.publish(ctx, core.EventCreated, tx)
	return tx, nil
}

// Update patches an existing transaction of the given kind.
func (s *LedgerService) Update(ctx context.Context, kind core.Kind, id string, req core.UpdateRequest) (core.Transaction, error) {
	r, err := s.repo(kind)
	if err != nil {
		return core.Transaction{}, err
	}
	tx, err := r.Update(ctx, id, req)
	if err != nil {
		return core.Transaction{}, err
	}
	s.publish(ctx, core.EventUpdated, tx)
	return tx, nil
}

// Get returns one transaction by id.
func (s *LedgerService) Get(ctx context.Context, kind core.Kind, id string) (core.Transaction, error) {
	r, err := s.repo(kind)
	if err != nil {
		return core.Transaction{}, err
	}
	return r.Get(ctx, id)
}

// List returns every transaction of the given kind, newest first.
func (s *LedgerService) List(ctx context.Context, kind core.Kind) ([]core.Transaction, error) {
	r, err := s.repo(kind)
	if err != nil {
		return nil, err
	}
	return r.List(ctx)
}

// Categories returns the category vocabulary of the given kind.
func (s *LedgerService) Categories(ctx context.Context, kind core.Kind) ([]string, error) {
	r, err := s.repo(kind)
	if err != nil {
		return nil, err
	}
	return r.ListCategories(ctx)
}

// Snapshot loads records and vocabulary of one kind concurrently.
func (s *LedgerService) Snapshot(ctx context.Context, kind core.Kind) (Snapshot, error) {
	r, err := s.repo(kind)
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := r.List(gctx)
		snap.Transactions = txs
		return err
	})
	g.Go(func() error {
		cats, err := r.ListCategories(gctx)
		snap.Categories = cats
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// All returns the transactions of every kind merged newest first.
func (s *LedgerService) All(ctx context.Context) ([]core.Transaction, error) {
	kinds := core.Kinds()
	lists := make([][]core.Transaction, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			txs, err := s.List(gctx, kind)
			lists[i] = txs
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return aggregate.Merge(lists...), nil
}

func (s *LedgerService) publish(ctx context.Context, op core.EventOp, tx core.Transaction) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping change event",
			applog.FieldComponent, applog.ComponentLedger)
		return
	}
	if err := s.publisher.PublishTransactionEvent(ctx, op, tx); err != nil {
		fields := applog.NewFields().
			WithComponent(applog.ComponentLedger).
			WithOperation(string(op)).
			WithTransaction(tx.Kind.String(), tx.ID, tx.Amount.Cents, tx.Category).
			WithError(err)
		slog.ErrorContext(ctx, "Failed to publish change event", fields.ToSlice()...)
	}
}

// Close releases every registered closer and reports all failures.
func (s *LedgerService) Close() error {
	var errs []error
	for _, c := range s.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close ledger service: %w", err)
	}
	return nil
}
