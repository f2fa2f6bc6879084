package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cashflow/internal/core"
	applog "cashflow/internal/log"
)

// Repository owns the persisted records and the category vocabulary of one
// transaction kind.
type Repository struct {
	kv    KV
	kind  core.Kind
	now   func() time.Time
	loc   *time.Location
	newID func() string

	// mu serializes read-modify-write cycles issued through this value only.
	mu sync.Mutex
}

// Option customizes a Repository.
type Option func(*Repository)

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithLocation sets the location month buckets are computed in.
func WithLocation(loc *time.Location) Option {
	return func(r *Repository) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithIDGenerator overrides the id source.
func WithIDGenerator(newID func() string) Option {
	return func(r *Repository) { r.newID = newID }
}

func NewRepository(kv KV, kind core.Kind, opts ...Option) *Repository {
	r := &Repository{
		kv:    kv,
		kind:  kind,
		now:   time.Now,
		loc:   time.Local,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Kind returns the transaction kind this repository stores.
func (r *Repository) Kind() core.Kind {
	return r.kind
}

// Location returns the location month buckets are computed in.
func (r *Repository) Location() *time.Location {
	return r.loc
}

// Create validates the request, assigns identity and month bucket, appends the
// record and grows the vocabulary with its category.
func (r *Repository) Create(ctx context.Context, req core.CreateRequest) (core.Transaction, error) {
	now := r.now()
	tx := core.Transaction{
		ID:          r.newID(),
		Timestamp:   now.UnixMilli(),
		Amount:      core.MoneyFromFloat(req.Amount),
		Category:    core.NormalizeCategory(req.Category),
		MonthBucket: core.MonthBucket(now, r.loc),
		Kind:        r.kind,
	}
	if err := tx.Validate(); err != nil {
		slog.DebugContext(ctx, "Create rejected",
			applog.FieldComponent, applog.ComponentStorage,
			applog.FieldOperation, applog.OpValidate,
			applog.FieldKind, r.kind,
			applog.FieldErrorType, applog.ErrorTypeValidation,
			applog.FieldError, err)
		return core.Transaction{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.loadRecords(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	records = append(records, tx)
	if err := r.saveRecords(ctx, records); err != nil {
		return core.Transaction{}, err
	}

	if tx.HasCategory() {
		if err := r.upsertCategory(ctx, tx.Category); err != nil {
			return core.Transaction{}, err
		}
	}

	slog.InfoContext(ctx, "Transaction created",
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldOperation, applog.OpCreate,
		applog.FieldKind, r.kind,
		applog.FieldTransactionID, tx.ID,
		applog.FieldAmountCents, tx.Amount.Cents,
		applog.FieldMonthBucket, tx.MonthBucket)

	return tx, nil
}

// List returns every record of this kind, newest first.
func (r *Repository) List(ctx context.Context) ([]core.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.loadRecords(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
	slog.DebugContext(ctx, "Transactions listed",
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldOperation, applog.OpList,
		applog.FieldKind, r.kind,
		applog.FieldCount, len(records))
	return records, nil
}

// Get returns the record with the given id.
func (r *Repository) Get(ctx context.Context, id string) (core.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.loadRecords(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	if i := indexOf(records, id); i >= 0 {
		return records[i], nil
	}
	slog.DebugContext(ctx, "Transaction not found",
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldOperation, applog.OpRead,
		applog.FieldKind, r.kind,
		applog.FieldTransactionID, id,
		applog.FieldErrorType, applog.ErrorTypeNotFound)
	return core.Transaction{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
}

// ListCategories returns the vocabulary in insertion order.
func (r *Repository) ListCategories(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.loadCategories(ctx)
}

// Update patches amount and/or category of an existing record. The month bucket
// and timestamp are never recomputed.
func (r *Repository) Update(ctx context.Context, id string, req core.UpdateRequest) (core.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.loadRecords(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	i := indexOf(records, id)
	if i < 0 {
		slog.DebugContext(ctx, "Update target not found",
			applog.FieldComponent, applog.ComponentStorage,
			applog.FieldOperation, applog.OpUpdate,
			applog.FieldKind, r.kind,
			applog.FieldTransactionID, id,
			applog.FieldErrorType, applog.ErrorTypeNotFound)
		return core.Transaction{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}

	// Only patched fields are validated, so a legacy record stays editable.
	updated := records[i]
	if req.Amount != nil {
		updated.Amount = core.MoneyFromFloat(*req.Amount)
		if err := updated.Amount.Validate(); err != nil {
			return core.Transaction{}, err
		}
	}
	if req.Category != nil {
		updated.Category = core.NormalizeCategory(*req.Category)
		if err := core.ValidateCategory(updated.Category); err != nil {
			return core.Transaction{}, err
		}
	}

	records[i] = updated
	if err := r.saveRecords(ctx, records); err != nil {
		return core.Transaction{}, err
	}

	if req.Category != nil && updated.HasCategory() {
		if err := r.upsertCategory(ctx, updated.Category); err != nil {
			return core.Transaction{}, err
		}
	}

	slog.InfoContext(ctx, "Transaction updated",
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldOperation, applog.OpUpdate,
		applog.FieldKind, r.kind,
		applog.FieldTransactionID, updated.ID,
		applog.FieldAmountCents, updated.Amount.Cents)

	return updated, nil
}

// upsertCategory appends category unless an entry already matches it
// case-insensitively. The first-seen casing is kept.
func (r *Repository) upsertCategory(ctx context.Context, category string) error {
	categories, err := r.loadCategories(ctx)
	if err != nil {
		return err
	}
	for _, existing := range categories {
		if strings.EqualFold(existing, category) {
			return nil
		}
	}
	categories = append(categories, category)
	if err := r.save(ctx, r.kind.CategoriesKey(), categories); err != nil {
		return err
	}

	slog.DebugContext(ctx, "Category added to vocabulary",
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldKind, r.kind,
		applog.FieldCategory, category)
	return nil
}

func (r *Repository) loadRecords(ctx context.Context) ([]core.Transaction, error) {
	var records []core.Transaction
	if err := r.load(ctx, r.kind.RecordsKey(), &records); err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Kind == "" {
			records[i].Kind = r.kind
		}
		if records[i].MonthBucket == "" {
			records[i].MonthBucket = core.MonthBucket(time.UnixMilli(records[i].Timestamp), r.loc)
		}
	}
	return records, nil
}

func (r *Repository) saveRecords(ctx context.Context, records []core.Transaction) error {
	return r.save(ctx, r.kind.RecordsKey(), records)
}

func (r *Repository) loadCategories(ctx context.Context) ([]string, error) {
	var categories []string
	if err := r.load(ctx, r.kind.CategoriesKey(), &categories); err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []string{}
	}
	return categories, nil
}

func (r *Repository) load(ctx context.Context, key string, dst any) error {
	raw, ok, err := r.kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", core.ErrIO, key, err)
	}
	if !ok || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: decode %s: %w", core.ErrIO, key, err)
	}
	return nil
}

func (r *Repository) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		slog.ErrorContext(ctx, "Encoding failed",
			applog.FieldComponent, applog.ComponentStorage,
			applog.FieldKind, r.kind,
			"key", key,
			applog.FieldErrorType, applog.ErrorTypeInternal,
			applog.FieldError, err)
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.kv.Set(ctx, key, raw); err != nil {
		slog.ErrorContext(ctx, "Storage write failed",
			applog.FieldComponent, applog.ComponentStorage,
			applog.FieldErrorType, applog.ErrorTypeStorage,
			applog.FieldKind, r.kind,
			"key", key,
			applog.FieldError, err)
		return fmt.Errorf("%w: write %s: %w", core.ErrIO, key, err)
	}
	return nil
}

func indexOf(records []core.Transaction, id string) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}
