package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/cache"
)

// RateStore counts requests per key inside a rolling window.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// NewRedisRateStore counts against a Redis-backed cache store, sharing
// limits across replicas.
func NewRedisRateStore(store cache.Store) RateStore {
	return newSharedRateStore(store)
}

// NewDatabaseRateStore counts against the SQL-backed cache store.
func NewDatabaseRateStore(store cache.Store) RateStore {
	return newSharedRateStore(store)
}

type sharedRateStore struct {
	store cache.Store
}

func newSharedRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return &sharedRateStore{store: store}
}

func (s *sharedRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, key, window)
	return int(count), ttl, err
}

// memoryRateStore keeps counters in the process. Suited to tests and
// single-instance deployments only.
type memoryRateStore struct {
	mu    sync.Mutex
	data  map[string]*windowCounter
	tick  *time.Ticker
	clock func() time.Time
}

type windowCounter struct {
	count     int
	windowEnd time.Time
}

// NewMemoryRateStore constructs an in-memory rate store.
func NewMemoryRateStore() RateStore {
	store := &memoryRateStore{
		data:  make(map[string]*windowCounter),
		tick:  time.NewTicker(time.Minute),
		clock: time.Now,
	}
	go store.sweep()
	return store
}

// sweep drops counters whose window has lapsed so the map cannot grow
// without bound.
func (s *memoryRateStore) sweep() {
	for range s.tick.C {
		now := s.clock()
		s.mu.Lock()
		for key, counter := range s.data {
			if now.After(counter.windowEnd) {
				delete(s.data, key)
			}
		}
		s.mu.Unlock()
	}
}

func (s *memoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.data[key]
	if !ok || now.After(counter.windowEnd) {
		counter = &windowCounter{windowEnd: now.Add(window)}
		s.data[key] = counter
	}
	counter.count++

	return counter.count, time.Until(counter.windowEnd), nil
}
