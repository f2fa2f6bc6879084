// Package memory is an in-process TransactionExporter used when no
// spreadsheet is configured and in tests.
package memory

import (
	"context"
	"sync"

	"cashflow/internal/core"
	ports "cashflow/internal/sheets"
)

var _ ports.TransactionExporter = (*Store)(nil)

// Store keeps one ordered row list per kind, keyed by transaction id.
type Store struct {
	mu   sync.Mutex
	rows map[core.Kind][]core.Transaction
}

func New() *Store {
	return &Store{rows: make(map[core.Kind][]core.Transaction)}
}

// Export upserts tx by id.
func (s *Store) Export(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.rows[tx.Kind]
	for i := range rows {
		if rows[i].ID == tx.ID {
			rows[i] = tx
			return nil
		}
	}
	s.rows[tx.Kind] = append(rows, tx)
	return nil
}

// ExportAll replaces every row of kind.
func (s *Store) ExportAll(_ context.Context, kind core.Kind, txs []core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[kind] = append([]core.Transaction(nil), txs...)
	return nil
}

// Rows returns a copy of the mirrored rows of kind.
func (s *Store) Rows(kind core.Kind) []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.rows[kind]...)
}
