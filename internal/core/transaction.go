package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxCategoryLength bounds the free-text category, counted in characters.
const MaxCategoryLength = 100

// MonthBucketLayout is the time layout of a month bucket key.
const MonthBucketLayout = "2006-01"

type (
	// Transaction is a single expense or income record.
	Transaction struct {
		ID          string `json:"id"`
		Timestamp   int64  `json:"timestamp"` // Unix milliseconds
		Amount      Money  `json:"amount"`
		Category    string `json:"expense_type,omitempty"`
		MonthBucket string `json:"month_bucket"` // YYYY-MM, frozen at creation
		Kind        Kind   `json:"type"`
	}

	// CreateRequest carries the user-supplied fields of a new transaction.
	CreateRequest struct {
		Amount   float64
		Category string
	}

	// UpdateRequest patches an existing transaction. Nil fields are left untouched;
	// an empty Category clears it.
	UpdateRequest struct {
		Amount   *float64
		Category *string
	}
)

// Time returns the creation instant in the given location.
func (t Transaction) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(t.Timestamp).In(loc)
}

// HasCategory reports whether the category is set.
func (t Transaction) HasCategory() bool {
	return t.Category != ""
}

// UnmarshalJSON decodes leniently: the legacy "reason" field is accepted as
// the category when "expense_type" is absent.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type plain Transaction
	aux := struct {
		*plain
		Reason *string `json:"reason"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if t.Category == "" && aux.Reason != nil {
		t.Category = *aux.Reason
	}
	return nil
}

// MonthBucket computes the YYYY-MM key of the instant in loc.
func MonthBucket(at time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return at.In(loc).Format(MonthBucketLayout)
}

// ParseMonthBucket splits a bucket key into year and month.
func ParseMonthBucket(bucket string) (year int, month time.Month, err error) {
	t, err := time.Parse(MonthBucketLayout, bucket)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidBucket, bucket)
	}
	return t.Year(), t.Month(), nil
}

// NormalizeCategory trims the category; whitespace-only input becomes unset.
func NormalizeCategory(s string) string {
	return strings.TrimSpace(s)
}

// ValidateCategory enforces the length bound on an already normalized category.
func ValidateCategory(s string) error {
	if utf8.RuneCountInString(s) > MaxCategoryLength {
		return ErrCategoryTooLong
	}
	return nil
}

// Validate checks the mutable fields of a transaction.
func (t Transaction) Validate() error {
	if !t.Kind.IsValid() {
		return ErrInvalidKind
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	return ValidateCategory(t.Category)
}
