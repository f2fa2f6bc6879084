package cache

import (
	"context"
	"log/slog"
	"time"

	applog "cashflow/internal/log"
)

// KV mirrors storage.KV so the cache can wrap any backend without importing
// the storage package.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

type entry struct {
	value []byte
	found bool
}

// Store is a read-through, write-through cache in front of a KV backend.
// Values are copied on the way in and out so callers can never mutate
// cached bytes.
type Store struct {
	inner KV
	lru   *LRUCache[entry]
}

// NewStore wraps inner with an LRU of the given size and TTL.
func NewStore(inner KV, size int, ttl time.Duration) *Store {
	return &Store{inner: inner, lru: NewLRUCache[entry](size, ttl)}
}

// Get serves key from the cache, falling back to the backend on a miss.
// Absent keys are cached too, so repeated reads of an empty ledger stay local.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if e, ok := s.lru.Get(key); ok {
		return clone(e.value), e.found, nil
	}

	value, found, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	s.lru.Set(key, entry{value: clone(value), found: found})
	slog.DebugContext(ctx, "Cache miss",
		applog.FieldComponent, applog.ComponentCache,
		"key", key)
	return value, found, nil
}

// Set writes to the backend first and only then refreshes the cache. A failed
// write evicts the key so the next read goes to the backend.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.inner.Set(ctx, key, value); err != nil {
		s.lru.Delete(key)
		return err
	}
	s.lru.Set(key, entry{value: clone(value), found: true})
	return nil
}

// Invalidate drops key from the cache.
func (s *Store) Invalidate(key string) {
	s.lru.Delete(key)
}

// CleanExpired lets a Manager prune the underlying LRU.
func (s *Store) CleanExpired() int {
	return s.lru.CleanExpired()
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
