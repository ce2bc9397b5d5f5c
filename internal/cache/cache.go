package cache

import (
	"context"
	"time"
)

// BytesCache is a best-effort byte cache.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// AtomicCache adds the set-if-absent primitive required for cross-instance
// deduplication. SetIfAbsent reports whether this caller created the key.
type AtomicCache interface {
	BytesCache
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}
