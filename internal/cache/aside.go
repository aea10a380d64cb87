package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/wardenhq/warden/pkg/logger"
)

// Aside provides read-through caching over a Store. Values are stored as
// JSON under named keys; writers invalidate the keys they affect and the
// next read recomputes. A failing store never breaks reads, it only
// removes the shortcut.
type Aside struct {
	store Store
	ttl   time.Duration
	log   *zap.Logger
}

// NewAside wraps the store with a default TTL for computed entries.
func NewAside(store Store, ttl time.Duration) *Aside {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Aside{
		store: store,
		ttl:   ttl,
		log:   logger.WithModule("cache"),
	}
}

// Invalidate removes the named keys. Missing keys are not an error.
func (a *Aside) Invalidate(ctx context.Context, keys ...string) {
	if a == nil || a.store == nil || len(keys) == 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.store.Delete(ctx, keys...); err != nil {
		a.log.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// GetOrCompute returns the cached value under key, computing and storing
// it on a miss. Store failures degrade to a direct compute.
func GetOrCompute[T any](ctx context.Context, a *Aside, key string, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	if a == nil || a.store == nil {
		return compute(ctx)
	}

	raw, ok, err := a.store.Get(ctx, key)
	if err != nil {
		a.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		// Unreadable entries are dropped so the next read repopulates.
		a.Invalidate(ctx, key)
	}

	value, err := compute(ctx)
	if err != nil {
		return zero, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		a.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return value, nil
	}
	if err := a.store.Set(ctx, key, encoded, a.ttl); err != nil {
		a.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}
