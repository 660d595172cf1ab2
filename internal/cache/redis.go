package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"agreegraph/internal/logger"
)

const redisKeyPrefix = "cache:"

// RedisStore keeps JSON-encoded values in Redis and relies on native key
// expiry. Transport and codec failures count as errors and degrade to a
// miss or a failed write, never to a returned error.
type RedisStore struct {
	name   string
	ttl    time.Duration
	client redis.UniversalClient
	stats  statistics
}

// NewRedisStore creates a store that namespaces its keys under cache:<name>:
func NewRedisStore(name string, ttl time.Duration, client redis.UniversalClient) *RedisStore {
	return &RedisStore{name: name, ttl: ttl, client: client}
}

// NewRedisClient parses a redis:// URL and verifies the connection
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required for the redis backend")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

func (r *RedisStore) Name() string {
	return r.name
}

// key generates the namespaced Redis key
func (r *RedisStore) key(key string) string {
	return redisKeyPrefix + r.name + ":" + key
}

func (r *RedisStore) Get(ctx context.Context, key string) (any, bool) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.stats.miss()
			logger.Debug().Str("cache", r.name).Bool("cache_hit", false).Str("key", truncateKey(key)).Msg("Cache miss")
			return nil, false
		}
		r.fail("get", fmt.Errorf("%w: %v", ErrBackend, err))
		return nil, false
	}

	var value any
	if err := sonic.Unmarshal(data, &value); err != nil {
		r.fail("get", fmt.Errorf("%w: failed to decode value: %v", ErrBackend, err))
		return nil, false
	}

	r.stats.hit()
	logger.Debug().Str("cache", r.name).Bool("cache_hit", true).Str("key", truncateKey(key)).Msg("Cache hit")
	return value, true
}

func (r *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = r.ttl
	}

	data, err := sonic.Marshal(value)
	if err != nil {
		r.fail("set", fmt.Errorf("%w: failed to encode value: %v", ErrBackend, err))
		return false
	}

	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		r.fail("set", fmt.Errorf("%w: %v", ErrBackend, err))
		return false
	}

	r.stats.set()
	return true
}

func (r *RedisStore) Delete(ctx context.Context, key string) bool {
	n, err := r.client.Del(ctx, r.key(key)).Result()
	if err != nil {
		r.fail("delete", fmt.Errorf("%w: %v", ErrBackend, err))
		return false
	}
	return n > 0
}

// Clear removes only the keys of this store, scanning its namespace
func (r *RedisStore) Clear(ctx context.Context) bool {
	iter := r.client.Scan(ctx, 0, r.key("*"), 100).Iterator()
	batch := make([]string, 0, 100)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := r.client.Del(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				r.fail("clear", fmt.Errorf("%w: %v", ErrBackend, err))
				return false
			}
		}
	}
	if err := iter.Err(); err != nil {
		r.fail("clear", fmt.Errorf("%w: %v", ErrBackend, err))
		return false
	}
	if err := flush(); err != nil {
		r.fail("clear", fmt.Errorf("%w: %v", ErrBackend, err))
		return false
	}
	return true
}

func (r *RedisStore) Stats() Stats {
	return r.stats.snapshot()
}

func (r *RedisStore) fail(op string, err error) {
	r.stats.error()
	logger.Error().Err(err).Str("cache", r.name).Str("op", op).Msg("Redis cache operation failed")
}
