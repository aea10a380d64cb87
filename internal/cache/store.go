package cache

import (
	"context"
	"time"
)

// Store is the backend shared by the derived-list cache, rate counters,
// and session cache. Redis serves it when configured, the database
// otherwise.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}
