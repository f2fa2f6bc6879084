package aggregate

import "cashflow/internal/core"

// MonthGroup is one rendered month of a ledger view.
type MonthGroup struct {
	Bucket       string
	Label        string
	Transactions []core.Transaction
	Total        core.Money
}

// View is a filtered, month-grouped ledger ready for display.
type View struct {
	Groups []MonthGroup
	// Searched is true when the view was built with an active filter.
	Searched bool
	// Total is the sum over every transaction in the view.
	Total core.Money
	// Count is the number of transactions in the view.
	Count int
}

// Empty reports whether nothing matched. Callers combine it with Searched to
// tell "no matches" apart from "nothing recorded yet".
func (v View) Empty() bool {
	return len(v.Groups) == 0
}

// Build filters txs, groups them by month and orders the groups newest first.
func (a *Aggregator) Build(txs []core.Transaction, f Filter, mode SignMode) View {
	filtered := a.Filter(txs, f)
	groups := GroupByMonth(filtered)

	view := View{
		Searched: f.Active(),
		Total:    FilteredTotal(filtered, mode),
		Count:    len(filtered),
	}
	for _, bucket := range SortedBuckets(groups) {
		view.Groups = append(view.Groups, MonthGroup{
			Bucket:       bucket,
			Label:        a.MonthLabel(bucket),
			Transactions: groups[bucket],
			Total:        MonthTotal(groups[bucket], mode),
		})
	}
	return view
}
