package sheets

import (
	"context"

	"cashflow/internal/core"
)

// Header is the first row of every mirrored tab.
var Header = []string{"id", "date", "month_bucket", "category", "amount"}

// Ports for outbound adapters.
type (
	// TransactionExporter mirrors transactions into a spreadsheet.
	TransactionExporter interface {
		// Export writes tx to its kind's tab, replacing the row with the same id.
		Export(ctx context.Context, tx core.Transaction) error
		// ExportAll rewrites the tab of kind with txs, in the given order.
		ExportAll(ctx context.Context, kind core.Kind, txs []core.Transaction) error
	}
)
