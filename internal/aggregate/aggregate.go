// Package aggregate turns flat transaction lists into month-grouped, filtered
// and totalled views. Nothing here touches storage; every function is a pure
// function of its input.
package aggregate

import (
	"sort"
	"time"

	"golang.org/x/text/language"

	"cashflow/internal/core"
)

// SignMode selects how amounts contribute to a total.
type SignMode int

const (
	// Plain sums amounts as positive values (single-kind views).
	Plain SignMode = iota
	// Signed counts expenses negatively and income positively (combined views).
	Signed
)

// MonthOption is a selectable month bucket with its display label.
type MonthOption struct {
	Bucket string
	Label  string
}

// Aggregator carries the calendar context needed for year and label
// computations.
type Aggregator struct {
	loc  *time.Location
	lang language.Tag
}

// New returns an Aggregator. A nil location means time.Local.
func New(loc *time.Location, lang language.Tag) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{loc: loc, lang: matchLanguage(lang)}
}

// GroupByMonth partitions txs by month bucket, preserving relative order within
// each bucket. Buckets are only created for transactions that exist, so no
// group is ever empty.
func GroupByMonth(txs []core.Transaction) map[string][]core.Transaction {
	groups := make(map[string][]core.Transaction)
	for _, tx := range txs {
		groups[tx.MonthBucket] = append(groups[tx.MonthBucket], tx)
	}
	return groups
}

// SortedBuckets returns the non-empty bucket keys newest first. YYYY-MM keys
// sort chronologically as strings.
func SortedBuckets(groups map[string][]core.Transaction) []string {
	buckets := make([]string, 0, len(groups))
	for bucket, txs := range groups {
		if len(txs) == 0 {
			continue
		}
		buckets = append(buckets, bucket)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(buckets)))
	return buckets
}

// MonthTotal sums the amounts of the transactions of one bucket.
func MonthTotal(txs []core.Transaction, mode SignMode) core.Money {
	var total core.Money
	for _, tx := range txs {
		total = total.Add(contribution(tx, mode))
	}
	return total
}

// FilteredTotal is MonthTotal over an arbitrary, already filtered list.
func FilteredTotal(txs []core.Transaction, mode SignMode) core.Money {
	return MonthTotal(txs, mode)
}

func contribution(tx core.Transaction, mode SignMode) core.Money {
	if mode == Signed && tx.Kind == core.KindExpense {
		return tx.Amount.Neg()
	}
	return tx.Amount
}

// Merge combines several lists into one ordered newest first. Records with the
// same timestamp keep the order of the input lists.
func Merge(lists ...[]core.Transaction) []core.Transaction {
	var n int
	for _, l := range lists {
		n += len(l)
	}
	merged := make([]core.Transaction, 0, n)
	for _, l := range lists {
		merged = append(merged, l...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp > merged[j].Timestamp
	})
	return merged
}

// AvailableYears returns the distinct calendar years of the timestamps,
// newest first.
func (a *Aggregator) AvailableYears(txs []core.Transaction) []int {
	seen := make(map[int]struct{})
	years := make([]int, 0)
	for _, tx := range txs {
		y := tx.Time(a.loc).Year()
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}

// AvailableMonthBucketsForYear lists the month buckets of the given year that
// hold at least one transaction, newest first, with localized labels.
func (a *Aggregator) AvailableMonthBucketsForYear(txs []core.Transaction, year int) []MonthOption {
	seen := make(map[string]struct{})
	buckets := make([]string, 0)
	for _, tx := range txs {
		if _, ok := seen[tx.MonthBucket]; ok {
			continue
		}
		y, _, err := core.ParseMonthBucket(tx.MonthBucket)
		if err != nil || y != year {
			continue
		}
		seen[tx.MonthBucket] = struct{}{}
		buckets = append(buckets, tx.MonthBucket)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(buckets)))

	options := make([]MonthOption, len(buckets))
	for i, b := range buckets {
		options[i] = MonthOption{Bucket: b, Label: a.MonthLabel(b)}
	}
	return options
}
