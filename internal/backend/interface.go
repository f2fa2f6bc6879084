package backend

import (
	"context"
	"time"

	"golang.org/x/text/language"

	"cashflow/internal/aggregate"
	"cashflow/internal/services"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the wired ledger and the aggregator configured for the
// same calendar.
type BackendResult struct {
	Ledger     *services.LedgerService
	Aggregator *aggregate.Aggregator
	Cleanup    CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// file and memory: directory of <key>.json files
	DataDirectory string
	// sqlite
	SQLiteDBPath string

	// CacheSize 0 disables the read cache.
	CacheSize int
	CacheTTL  time.Duration

	Location *time.Location
	Language language.Tag

	// Empty AMQPURL disables change events.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	FileBackend   BackendType = "file"
	SQLiteBackend BackendType = "sqlite"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, FileBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}
