package cache

import (
	"context"
	"time"

	"github.com/bytedance/sonic"

	"agreegraph/internal/logger"
)

// Fetch returns the cached value for key, or calls compute and caches its
// result. compute errors are returned as-is and never cached.
//
// Values are copied through JSON on the way into and out of the store, so
// T must survive a JSON round trip and callers own what they get back.
func Fetch[T any](ctx context.Context, store Store, key string, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, error) {
	if raw, ok := store.Get(ctx, key); ok {
		if value, ok := convert[T](raw); ok {
			return value, nil
		}
		logger.Warn().Str("cache", store.Name()).Str("key", truncateKey(key)).Msg("Cached value has unexpected shape, recomputing")
	}

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	stored, ok := convert[T](value)
	if !ok {
		logger.Warn().Str("cache", store.Name()).Str("key", truncateKey(key)).Msg("Value cannot be copied, not caching")
		return value, nil
	}
	store.Set(ctx, key, stored, ttl)
	return value, nil
}

// convert decodes raw into a fresh T, which also detaches it from raw
func convert[T any](raw any) (T, bool) {
	var value T
	data, err := sonic.Marshal(raw)
	if err != nil {
		return value, false
	}
	if err := sonic.Unmarshal(data, &value); err != nil {
		return value, false
	}
	return value, true
}
