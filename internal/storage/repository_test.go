package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"cashflow/internal/core"
	"cashflow/internal/storage/memory"
)

// stepClock returns start, start+step, start+2*step, ...
func stepClock(start time.Time, step time.Duration) func() time.Time {
	next := start
	return func() time.Time {
		t := next
		next = next.Add(step)
		return t
	}
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestRepo(kv KV, kind core.Kind, start time.Time) *Repository {
	return NewRepository(kv, kind,
		WithClock(stepClock(start, time.Minute)),
		WithLocation(time.UTC),
		WithIDGenerator(seqIDs()))
}

func ptr[T any](v T) *T { return &v }

func TestCreateAndListScenario(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(memory.New(), core.KindExpense, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))

	first, err := repo.Create(ctx, core.CreateRequest{Amount: 45.50, Category: "Groceries"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.MonthBucket != "2024-03" || first.Kind != core.KindExpense || first.ID == "" {
		t.Fatalf("unexpected record: %+v", first)
	}
	if first.MonthBucket != core.MonthBucket(time.UnixMilli(first.Timestamp), time.UTC) {
		t.Fatalf("bucket does not match timestamp")
	}

	list, err := repo.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %v", list, err)
	}
	if list[0].Amount.Cents != 4550 || list[0].Category != "Groceries" {
		t.Fatalf("unexpected listed record: %+v", list[0])
	}

	cats, err := repo.ListCategories(ctx)
	if err != nil || len(cats) != 1 || cats[0] != "Groceries" {
		t.Fatalf("categories: %v %v", cats, err)
	}

	if _, err := repo.Create(ctx, core.CreateRequest{Amount: 10, Category: "groceries"}); err != nil {
		t.Fatalf("second create: %v", err)
	}
	cats, _ = repo.ListCategories(ctx)
	if len(cats) != 1 || cats[0] != "Groceries" {
		t.Fatalf("vocabulary should keep first-seen casing only, got %v", cats)
	}

	list, _ = repo.List(ctx)
	if len(list) != 2 {
		t.Fatalf("expected 2 records, got %d", len(list))
	}
	// Newest first
	if list[0].Amount.Cents != 1000 || list[1].Amount.Cents != 4550 {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestVocabularyInsertionOrderAndTrim(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(memory.New(), core.KindIncome, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))

	for _, c := range []string{"  Salary ", "Bonus", "SALARY", "", "   ", "bonus", "Gift"} {
		if _, err := repo.Create(ctx, core.CreateRequest{Amount: 1, Category: c}); err != nil {
			t.Fatalf("create %q: %v", c, err)
		}
	}
	cats, err := repo.ListCategories(ctx)
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	want := []string{"Salary", "Bonus", "Gift"}
	if strings.Join(cats, ",") != strings.Join(want, ",") {
		t.Fatalf("categories = %v, want %v", cats, want)
	}

	list, _ := repo.List(ctx)
	for _, tx := range list {
		if strings.TrimSpace(tx.Category) != tx.Category {
			t.Fatalf("category stored untrimmed: %q", tx.Category)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	repo := newTestRepo(kv, core.KindExpense, time.Now())

	bad := []core.CreateRequest{
		{Amount: 0},
		{Amount: -5},
		{Amount: math.NaN()},
		{Amount: math.Inf(1)},
		{Amount: 0.001}, // rounds to zero cents
		{Amount: 1e17},
		{Amount: 1e20},
		{Amount: -1e20},
		{Amount: 1, Category: strings.Repeat("a", core.MaxCategoryLength+1)},
	}
	for i, req := range bad {
		if _, err := repo.Create(ctx, req); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if len(kv.Keys()) != 0 {
		t.Fatalf("rejected creates must not touch storage, keys=%v", kv.Keys())
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(memory.New(), core.KindExpense, time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC))

	created, err := repo.Create(ctx, core.CreateRequest{Amount: 12, Category: "Coffee"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Run("amount only keeps category and bucket", func(t *testing.T) {
		updated, err := repo.Update(ctx, created.ID, core.UpdateRequest{Amount: ptr(50.0)})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.Amount.Cents != 5000 || updated.Category != "Coffee" {
			t.Fatalf("unexpected update: %+v", updated)
		}
		if updated.MonthBucket != created.MonthBucket || updated.Timestamp != created.Timestamp || updated.ID != created.ID {
			t.Fatalf("immutable fields changed: %+v vs %+v", updated, created)
		}
	})

	t.Run("new category grows vocabulary", func(t *testing.T) {
		if _, err := repo.Update(ctx, created.ID, core.UpdateRequest{Category: ptr(" Snacks ")}); err != nil {
			t.Fatalf("update: %v", err)
		}
		cats, _ := repo.ListCategories(ctx)
		if strings.Join(cats, ",") != "Coffee,Snacks" {
			t.Fatalf("categories = %v", cats)
		}
	})

	t.Run("empty category clears it", func(t *testing.T) {
		updated, err := repo.Update(ctx, created.ID, core.UpdateRequest{Category: ptr("")})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.HasCategory() {
			t.Fatalf("expected category cleared, got %q", updated.Category)
		}
		got, _ := repo.Get(ctx, created.ID)
		if got.HasCategory() {
			t.Fatalf("persisted category not cleared: %q", got.Category)
		}
		// Clearing never shrinks the vocabulary.
		cats, _ := repo.ListCategories(ctx)
		if len(cats) != 2 {
			t.Fatalf("vocabulary shrank: %v", cats)
		}
	})

	t.Run("invalid amount rejected", func(t *testing.T) {
		if _, err := repo.Update(ctx, created.ID, core.UpdateRequest{Amount: ptr(math.NaN())}); !errors.Is(err, core.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		got, _ := repo.Get(ctx, created.ID)
		if got.Amount.Cents != 5000 {
			t.Fatalf("rejected update persisted: %+v", got)
		}
	})
}

func TestUpdateNotFoundLeavesRecordsUnchanged(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	repo := newTestRepo(kv, core.KindExpense, time.Now())
	if _, err := repo.Create(ctx, core.CreateRequest{Amount: 3, Category: "Bus"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	before, _, _ := kv.Get(ctx, core.KindExpense.RecordsKey())

	_, err := repo.Update(ctx, "nope", core.UpdateRequest{Amount: ptr(9.0)})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	after, _, _ := kv.Get(ctx, core.KindExpense.RecordsKey())
	if string(before) != string(after) {
		t.Fatalf("records changed on not-found update")
	}

	if _, err := repo.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Get, got %v", err)
	}
}

func TestUpdateValidatesOnlyPatchedFields(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	long := strings.Repeat("x", core.MaxCategoryLength+20)
	legacy := fmt.Sprintf(`[{"id":"old","timestamp":1709287200000,"amount":5,"expense_type":%q,"month_bucket":"2024-03"}]`, long)
	if err := kv.Set(ctx, core.KindExpense.RecordsKey(), []byte(legacy)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	repo := newTestRepo(kv, core.KindExpense, time.Now())

	updated, err := repo.Update(ctx, "old", core.UpdateRequest{Amount: ptr(7.25)})
	if err != nil {
		t.Fatalf("amount-only update of legacy record: %v", err)
	}
	if updated.Amount.Cents != 725 || updated.Category != long {
		t.Fatalf("unexpected update: %+v", updated)
	}
	if cats, _ := repo.ListCategories(ctx); len(cats) != 0 {
		t.Fatalf("amount-only update must not touch the vocabulary, got %v", cats)
	}

	if _, err := repo.Update(ctx, "old", core.UpdateRequest{Category: ptr(long)}); !errors.Is(err, core.ErrCategoryTooLong) {
		t.Fatalf("expected ErrCategoryTooLong for patched category, got %v", err)
	}
	if _, err := repo.Update(ctx, "old", core.UpdateRequest{Amount: ptr(1e20)}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for out-of-range amount, got %v", err)
	}
	got, _ := repo.Get(ctx, "old")
	if got.Amount.Cents != 725 {
		t.Fatalf("rejected update persisted: %+v", got)
	}
}

func TestKindsAreIsolated(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	expenses := newTestRepo(kv, core.KindExpense, start)
	incomes := newTestRepo(kv, core.KindIncome, start)

	if _, err := expenses.Create(ctx, core.CreateRequest{Amount: 5, Category: "Coffee"}); err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if _, err := incomes.Create(ctx, core.CreateRequest{Amount: 1000, Category: "coffee"}); err != nil {
		t.Fatalf("create income: %v", err)
	}

	el, _ := expenses.List(ctx)
	il, _ := incomes.List(ctx)
	if len(el) != 1 || len(il) != 1 || el[0].Kind != core.KindExpense || il[0].Kind != core.KindIncome {
		t.Fatalf("kinds leaked: %+v %+v", el, il)
	}
	ec, _ := expenses.ListCategories(ctx)
	ic, _ := incomes.ListCategories(ctx)
	if len(ec) != 1 || ec[0] != "Coffee" || len(ic) != 1 || ic[0] != "coffee" {
		t.Fatalf("vocabularies should be independent: %v %v", ec, ic)
	}
}

func TestLenientDecodingDefaultsMissingFields(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	ts := time.Date(2023, 11, 15, 8, 0, 0, 0, time.UTC).UnixMilli()
	legacy := fmt.Sprintf(`[{"id":"old","timestamp":%d,"amount":7.25,"reason":"Taxi"}]`, ts)
	if err := kv.Set(ctx, core.KindExpense.RecordsKey(), []byte(legacy)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	repo := newTestRepo(kv, core.KindExpense, time.Now())
	got, err := repo.Get(ctx, "old")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Kind != core.KindExpense || got.MonthBucket != "2023-11" || got.Category != "Taxi" || got.Amount.Cents != 725 {
		t.Fatalf("unexpected decode: %+v", got)
	}
}

func TestListStableForEqualTimestamps(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 2, 2, 2, 2, 2, 0, time.UTC)
	repo := NewRepository(memory.New(), core.KindExpense,
		WithClock(func() time.Time { return fixed }),
		WithLocation(time.UTC),
		WithIDGenerator(seqIDs()))
	for i := 0; i < 3; i++ {
		if _, err := repo.Create(ctx, core.CreateRequest{Amount: float64(i + 1)}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	list, _ := repo.List(ctx)
	for i, tx := range list {
		if tx.ID != fmt.Sprintf("id-%d", i+1) {
			t.Fatalf("equal timestamps should keep stored order, got %v at %d", tx.ID, i)
		}
	}
}

func TestDefaultIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(memory.New(), core.KindIncome)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		tx, err := repo.Create(ctx, core.CreateRequest{Amount: 1})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if seen[tx.ID] {
			t.Fatalf("duplicate id %s", tx.ID)
		}
		seen[tx.ID] = true
	}
}

// failingKV fails writes to the keys listed in failSet and reads from failGet.
type failingKV struct {
	KV
	failSet map[string]bool
	failGet bool
}

var errDiskFull = errors.New("quota exceeded")

func (f *failingKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGet {
		return nil, false, errDiskFull
	}
	return f.KV.Get(ctx, key)
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet[key] {
		return errDiskFull
	}
	return f.KV.Set(ctx, key, value)
}

func TestStorageFailuresPropagateAsIO(t *testing.T) {
	ctx := context.Background()

	t.Run("record write fails", func(t *testing.T) {
		kv := &failingKV{KV: memory.New(), failSet: map[string]bool{core.KindExpense.RecordsKey(): true}}
		repo := newTestRepo(kv, core.KindExpense, time.Now())
		_, err := repo.Create(ctx, core.CreateRequest{Amount: 1, Category: "X"})
		if !errors.Is(err, core.ErrIO) || !errors.Is(err, errDiskFull) {
			t.Fatalf("expected wrapped IO error, got %v", err)
		}
	})

	t.Run("vocabulary write fails after record persisted", func(t *testing.T) {
		inner := memory.New()
		kv := &failingKV{KV: inner, failSet: map[string]bool{core.KindExpense.CategoriesKey(): true}}
		repo := newTestRepo(kv, core.KindExpense, time.Now())
		_, err := repo.Create(ctx, core.CreateRequest{Amount: 1, Category: "X"})
		if !errors.Is(err, core.ErrIO) {
			t.Fatalf("expected IO error, got %v", err)
		}
		// The two writes are not atomic: the record stays without its category in the vocabulary.
		raw, ok, _ := inner.Get(ctx, core.KindExpense.RecordsKey())
		var records []core.Transaction
		if !ok || json.Unmarshal(raw, &records) != nil || len(records) != 1 {
			t.Fatalf("expected the record to be persisted, got %s", raw)
		}
		if _, ok, _ := inner.Get(ctx, core.KindExpense.CategoriesKey()); ok {
			t.Fatalf("vocabulary should not have been written")
		}
	})

	t.Run("read fails", func(t *testing.T) {
		kv := &failingKV{KV: memory.New(), failGet: true}
		repo := newTestRepo(kv, core.KindIncome, time.Now())
		if _, err := repo.List(ctx); !errors.Is(err, core.ErrIO) {
			t.Fatalf("expected IO error from List, got %v", err)
		}
		if _, err := repo.ListCategories(ctx); !errors.Is(err, core.ErrIO) {
			t.Fatalf("expected IO error from ListCategories, got %v", err)
		}
	})

	t.Run("corrupt payload", func(t *testing.T) {
		kv := memory.New()
		_ = kv.Set(ctx, core.KindIncome.RecordsKey(), []byte("{not json"))
		repo := newTestRepo(kv, core.KindIncome, time.Now())
		if _, err := repo.List(ctx); !errors.Is(err, core.ErrIO) {
			t.Fatalf("expected IO error for corrupt data, got %v", err)
		}
	})
}

func TestStorageWriteFailureIsLoggedWithErrorType(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := context.Background()
	kv := &failingKV{KV: memory.New(), failSet: map[string]bool{core.KindExpense.RecordsKey(): true}}
	repo := newTestRepo(kv, core.KindExpense, time.Now())
	if _, err := repo.Create(ctx, core.CreateRequest{Amount: 1}); !errors.Is(err, core.ErrIO) {
		t.Fatalf("expected IO error, got %v", err)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	var sawStorage, sawNotFound bool
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("decode log line %s: %v", line, err)
		}
		if entry["component"] != "storage" {
			continue
		}
		switch entry["error_type"] {
		case "storage_error":
			sawStorage = entry["msg"] == "Storage write failed"
		case "not_found_error":
			sawNotFound = entry["operation"] == "read"
		}
	}
	if !sawStorage || !sawNotFound {
		t.Fatalf("expected storage and not-found error types in logs:\n%s", buf.String())
	}
}
