package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "pos:idempotency:"
	pendingMarker    = "pending"
)

// RedisIdempotencyStore shares idempotency state between server instances.
// A claim is a SETNX of a pending marker; Complete overwrites it with the
// encoded response under the same TTL.
type RedisIdempotencyStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

var _ IdempotencyStore = (*RedisIdempotencyStore)(nil)

// NewRedisIdempotencyStore returns a store using client. An empty prefix
// selects the default.
func NewRedisIdempotencyStore(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &RedisIdempotencyStore{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// Begin claims key.
func (s *RedisIdempotencyStore) Begin(ctx context.Context, key string) (*Response, error) {
	k := s.keyPrefix + key
	claimed, err := s.client.SetNX(ctx, k, pendingMarker, s.ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "claim idempotency key")
	}
	if claimed {
		return nil, nil
	}

	data, err := s.client.Get(ctx, k).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired or released between SETNX and GET.
		return nil, ErrInProgress
	case err != nil:
		return nil, errors.Wrap(err, "get idempotency key")
	case string(data) == pendingMarker:
		return nil, ErrInProgress
	}
	r, err := decodeResponse(data)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Complete stores the response for key.
func (s *RedisIdempotencyStore) Complete(ctx context.Context, key string, r Response) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, encodeResponse(r), s.ttl).Err(); err != nil {
		return errors.Wrap(err, "store idempotent response")
	}
	return nil
}

// Release forgets key.
func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return errors.Wrap(err, "release idempotency key")
	}
	return nil
}

// Ping checks the connection, for readiness probes.
func (s *RedisIdempotencyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
