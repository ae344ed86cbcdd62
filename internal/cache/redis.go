package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marigraph/sealevel-rules/internal/domain"
)

// RedisStore keeps whole entries as JSON values so a swap is a single SET and
// readers never see a half-written result. A companion key set tracks size.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store over an existing client. A zero ttl keeps
// entries until the next swap overwrites them.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "sealevel:cache"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) entryKey(key string) string { return s.prefix + ":entry:" + key }
func (s *RedisStore) indexKey() string           { return s.prefix + ":keys" }

// Get fetches and decodes the entry for key.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("cache decode: %w", err)
	}
	return entry, true, nil
}

// Swap encodes and installs the entry, registering its key in the index set.
func (s *RedisStore) Swap(ctx context.Context, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	key := entry.Scope.Key()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.entryKey(key), raw, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache swap: %w", err)
	}
	return nil
}

// Size reports the number of registered scope keys.
func (s *RedisStore) Size(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("cache size: %w", err)
	}
	return int(n), nil
}

// RedisLocker serializes refreshes across engine instances with SET NX.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLocker creates a distributed refresh locker. The ttl bounds how
// long a crashed refresher can hold a filter.
func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if prefix == "" {
		prefix = "sealevel:refresh"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

// TryLock acquires the filter lock or reports a refresh conflict. It never
// waits.
func (l *RedisLocker) TryLock(ctx context.Context, filter string) (func(), error) {
	key := l.prefix + ":lock:" + filter
	ok, err := l.client.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("refresh lock: %w", err)
	}
	if !ok {
		return nil, &domain.RefreshConflictError{StationFilter: filter}
	}
	return func() {
		l.client.Del(context.WithoutCancel(ctx), key)
	}, nil
}
