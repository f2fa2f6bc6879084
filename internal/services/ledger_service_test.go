package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cashflow/internal/core"
	"cashflow/internal/storage"
	"cashflow/internal/storage/memory"
)

type publishedEvent struct {
	op core.EventOp
	tx core.Transaction
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (f *fakePublisher) PublishTransactionEvent(_ context.Context, op core.EventOp, tx core.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{op: op, tx: tx})
	return f.err
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

func newTestService(t *testing.T, pub EventPublisher) *LedgerService {
	t.Helper()
	kv := memory.New()
	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	n := 0
	clock := func() time.Time {
		n++
		return start.Add(time.Duration(n) * time.Hour)
	}
	ids := 0
	newID := func() string {
		ids++
		return fmt.Sprintf("tx-%d", ids)
	}
	opts := []storage.Option{
		storage.WithClock(clock),
		storage.WithLocation(time.UTC),
		storage.WithIDGenerator(newID),
	}
	return NewLedgerService(
		storage.NewRepository(kv, core.KindExpense, opts...),
		storage.NewRepository(kv, core.KindIncome, opts...),
		pub,
	)
}

func TestCreatePublishesEvent(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc := newTestService(t, pub)

	tx, err := svc.Create(ctx, core.KindExpense, core.CreateRequest{Amount: 45.5, Category: "Groceries"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].op != core.EventCreated || pub.events[0].tx.ID != tx.ID {
		t.Fatalf("unexpected events: %+v", pub.events)
	}

	cat := ""
	if _, err := svc.Update(ctx, core.KindExpense, tx.ID, core.UpdateRequest{Category: &cat}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(pub.events) != 2 || pub.events[1].op != core.EventUpdated || pub.events[1].tx.Category != "" {
		t.Fatalf("unexpected events: %+v", pub.events)
	}
}

func TestFailedWritesDoNotPublish(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc := newTestService(t, pub)

	if _, err := svc.Create(ctx, core.KindIncome, core.CreateRequest{Amount: 0}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Update(ctx, core.KindIncome, "nope", core.UpdateRequest{}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatalf("no event expected, got %+v", pub.events)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := newTestService(t, pub)

	tx, err := svc.Create(ctx, core.KindIncome, core.CreateRequest{Amount: 1200, Category: "Salary"})
	if err != nil {
		t.Fatalf("write should succeed despite publish failure: %v", err)
	}
	got, err := svc.Get(ctx, core.KindIncome, tx.ID)
	if err != nil || got.Amount.Cents != 120000 {
		t.Fatalf("Get = %+v, %v", got, err)
	}
}

func TestNilPublisher(t *testing.T) {
	svc := newTestService(t, nil)
	if _, err := svc.Create(context.Background(), core.KindExpense, core.CreateRequest{Amount: 1}); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestUnknownKind(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	if _, err := svc.List(ctx, core.Kind("budget")); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Snapshot(ctx, core.Kind("")); !errors.Is(err, core.ErrInvalidKind) {
		t.Fatalf("expected invalid kind, got %v", err)
	}
}

func TestSnapshotAndAll(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	mustCreate := func(kind core.Kind, amount float64, category string) core.Transaction {
		t.Helper()
		tx, err := svc.Create(ctx, kind, core.CreateRequest{Amount: amount, Category: category})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		return tx
	}
	e1 := mustCreate(core.KindExpense, 10, "Coffee")
	i1 := mustCreate(core.KindIncome, 2000, "Salary")
	e2 := mustCreate(core.KindExpense, 5, "coffee")

	snap, err := svc.Snapshot(ctx, core.KindExpense)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Transactions) != 2 || snap.Transactions[0].ID != e2.ID {
		t.Fatalf("unexpected transactions: %+v", snap.Transactions)
	}
	if len(snap.Categories) != 1 || snap.Categories[0] != "Coffee" {
		t.Fatalf("unexpected categories: %v", snap.Categories)
	}

	incomeCats, err := svc.Categories(ctx, core.KindIncome)
	if err != nil || len(incomeCats) != 1 || incomeCats[0] != "Salary" {
		t.Fatalf("income categories = %v, %v", incomeCats, err)
	}

	all, err := svc.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	want := []string{e2.ID, i1.ID, e1.ID}
	if len(all) != len(want) {
		t.Fatalf("All returned %d records", len(all))
	}
	for i := range want {
		if all[i].ID != want[i] {
			t.Fatalf("All[%d] = %s, want %s", i, all[i].ID, want[i])
		}
	}
}

func TestCloseJoinsErrors(t *testing.T) {
	var closed []string
	ok := closerFunc(func() error { closed = append(closed, "ok"); return nil })
	bad := closerFunc(func() error { closed = append(closed, "bad"); return errors.New("boom") })

	svc := NewLedgerService(nil, nil, nil, bad, nil, ok)
	err := svc.Close()
	if err == nil {
		t.Fatal("expected error")
	}
	if len(closed) != 2 || closed[0] != "bad" || closed[1] != "ok" {
		t.Fatalf("closers run = %v", closed)
	}
}
