package storage

import "context"

// KV is the key-value port the repository persists through. Backends live in
// the memory, file and sqlite subpackages; internal/cache wraps any of them.
type KV interface {
	// Get returns the value stored under key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
}
