package aggregate

import (
	"strings"

	"cashflow/internal/core"
)

// Filter narrows a transaction list. Zero-valued fields are inactive; active
// fields combine with logical AND.
type Filter struct {
	// Search is matched case-insensitively as a substring of the category or
	// of the amount's decimal form.
	Search string
	// Year matches the calendar year of the timestamp; 0 means any year.
	Year int
	// MonthBucket matches a YYYY-MM bucket exactly; empty means any month.
	MonthBucket string
}

// Active reports whether any criterion is set.
func (f Filter) Active() bool {
	return strings.TrimSpace(f.Search) != "" || f.Year != 0 || f.MonthBucket != ""
}

// Filter returns the transactions matching every active criterion, in input order.
func (a *Aggregator) Filter(txs []core.Transaction, f Filter) []core.Transaction {
	term := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if f.Year != 0 && tx.Time(a.loc).Year() != f.Year {
			continue
		}
		if f.MonthBucket != "" && tx.MonthBucket != f.MonthBucket {
			continue
		}
		if term != "" && !matchesSearch(tx, term) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func matchesSearch(tx core.Transaction, lowerTerm string) bool {
	if tx.HasCategory() && strings.Contains(strings.ToLower(tx.Category), lowerTerm) {
		return true
	}
	return strings.Contains(tx.Amount.String(), lowerTerm)
}
