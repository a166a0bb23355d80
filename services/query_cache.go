package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kendall-kelly/marketplace-client/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CacheEntry is a cached response plus the time it was fetched
type CacheEntry struct {
	Value     []byte    `json:"value"`
	FetchedAt time.Time `json:"fetched_at"`
}

// CacheStore persists query results by key
type CacheStore interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Set(ctx context.Context, key string, entry CacheEntry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// MemoryCacheStore keeps entries in process memory
type MemoryCacheStore struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
}

func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{entries: make(map[string]CacheEntry)}
}

func (m *MemoryCacheStore) Get(_ context.Context, key string) (*CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *MemoryCacheStore) Set(_ context.Context, key string, entry CacheEntry) error {
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryCacheStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCacheStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]CacheEntry)
	m.mu.Unlock()
	return nil
}

// RedisCacheStore shares query results between client processes on one device
type RedisCacheStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCacheStore connects to redisURL (redis://host:port/db) and pings it
func NewRedisCacheStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCacheStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCacheStore{client: client, prefix: "marketplace:query:", ttl: ttl}, nil
}

func (r *RedisCacheStore) Get(ctx context.Context, key string) (*CacheEntry, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return &entry, nil
}

func (r *RedisCacheStore) Set(ctx context.Context, key string, entry CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, raw, r.ttl).Err()
}

func (r *RedisCacheStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// Clear removes every key under the store's prefix
func (r *RedisCacheStore) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisCacheStore) Close() error {
	return r.client.Close()
}

// QueryCache de-duplicates concurrent fetches, serves fresh results from the
// store and falls back to the last good value when a fetch fails.
type QueryCache struct {
	store     CacheStore
	staleTime time.Duration
	group     singleflight.Group
	now       func() time.Time
}

func NewQueryCache(store CacheStore, staleTime time.Duration) *QueryCache {
	if store == nil {
		store = NewMemoryCacheStore()
	}
	return &QueryCache{store: store, staleTime: staleTime, now: time.Now}
}

// Invalidate marks key stale so the next Query refetches it. The old value is
// kept as a fallback for failed refetches.
func (q *QueryCache) Invalidate(ctx context.Context, key string) error {
	entry, err := q.store.Get(ctx, key)
	if err != nil || entry == nil {
		return err
	}
	entry.FetchedAt = time.Time{}
	return q.store.Set(ctx, key, *entry)
}

// Remove drops key entirely, e.g. on logout
func (q *QueryCache) Remove(ctx context.Context, key string) error {
	return q.store.Delete(ctx, key)
}

// Clear drops every cached query
func (q *QueryCache) Clear(ctx context.Context) error {
	return q.store.Clear(ctx)
}

// StaleError reports a failed refetch where a previous value was served instead
type StaleError struct {
	Key       string
	FetchedAt time.Time
	Err       error
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("showing cached %s from %s: %v", e.Key, e.FetchedAt.Format(time.RFC3339), e.Err)
}

func (e *StaleError) Unwrap() error {
	return e.Err
}

// Query returns the cached value for key while it is fresh, otherwise fetches it.
// When the fetch fails and an older value exists, that value is returned together
// with a *StaleError.
func Query[T any](ctx context.Context, q *QueryCache, key string, fetch func(context.Context) (T, error)) (T, error) {
	return query(ctx, q, key, false, fetch)
}

// Refetch always goes to the network (still de-duplicated with in-flight fetches)
func Refetch[T any](ctx context.Context, q *QueryCache, key string, fetch func(context.Context) (T, error)) (T, error) {
	return query(ctx, q, key, true, fetch)
}

func query[T any](ctx context.Context, q *QueryCache, key string, force bool, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	cached, err := q.store.Get(ctx, key)
	if err != nil {
		logger.Warn("query cache read failed", zap.String("key", key), zap.Error(err))
		cached = nil
	}
	if cached != nil && !force && q.now().Sub(cached.FetchedAt) < q.staleTime {
		var value T
		if err := json.Unmarshal(cached.Value, &value); err == nil {
			return value, nil
		}
	}

	// The shared fetch outlives whichever caller started it; a cancelled
	// caller only stops waiting.
	fetchCtx := context.WithoutCancel(ctx)
	ch := q.group.DoChan(key, func() (interface{}, error) {
		value, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err == nil {
			err = q.store.Set(fetchCtx, key, CacheEntry{Value: raw, FetchedAt: q.now()})
		}
		if err != nil {
			logger.Warn("query cache write failed", zap.String("key", key), zap.Error(err))
		}
		return value, nil
	})

	var shared interface{}
	select {
	case res := <-ch:
		shared, err = res.Val, res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		if cached != nil {
			var value T
			if decodeErr := json.Unmarshal(cached.Value, &value); decodeErr == nil {
				return value, &StaleError{Key: key, FetchedAt: cached.FetchedAt, Err: err}
			}
		}
		return zero, err
	}

	value, ok := shared.(T)
	if !ok {
		return zero, fmt.Errorf("query %s shared a %T result", key, shared)
	}
	return value, nil
}
