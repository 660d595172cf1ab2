package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"agreegraph/internal/logger"
)

// DefaultSessionTTL applies when a RedisStore is created without a TTL
const DefaultSessionTTL = time.Hour

// RedisStore keeps sessions as JSON documents in Redis with a sliding TTL
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore wraps an existing client
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func (r *RedisStore) key(key Key) string {
	return fmt.Sprintf("session:%s", key)
}

// Create stores a new session; SETNX guarantees a single winner per id
func (r *RedisStore) Create(ctx context.Context, key Key, initial State) (*Session, error) {
	now := r.now()
	session := &Session{Key: key, State: initial.Clone(), CreatedAt: now, UpdatedAt: now}

	data, err := sonic.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session data: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.key(key), data, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if !created {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, key)
	}

	logger.Debug().Str("session_id", key.ID).Str("user_id", key.UserID).Msg("Session created")
	return session, nil
}

func (r *RedisStore) Get(ctx context.Context, key Key) (*Session, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
		}
		return nil, fmt.Errorf("failed to get session data: %w", err)
	}

	var session Session
	if err := sonic.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}
	return &session, nil
}

// Update replaces the stored document only if it still exists (SET XX)
func (r *RedisStore) Update(ctx context.Context, session *Session) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}

	session.UpdatedAt = r.now()
	data, err := sonic.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	res, err := r.client.SetArgs(ctx, r.key(session.Key), data, redis.SetArgs{Mode: "XX", TTL: r.ttl}).Result()
	if err == redis.Nil || (err == nil && res != "OK") {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, session.Key)
	}
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (r *RedisStore) Reset(ctx context.Context, key Key, template State) error {
	now := r.now()
	session := &Session{Key: key, State: template.Clone(), CreatedAt: now, UpdatedAt: now}
	if existing, err := r.Get(ctx, key); err == nil {
		session.CreatedAt = existing.CreatedAt
	}

	data, err := sonic.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}
	if err := r.client.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// TTL returns the remaining lifetime of a session
func (r *RedisStore) TTL(ctx context.Context, key Key) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, r.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get TTL: %w", err)
	}
	return ttl, nil
}
