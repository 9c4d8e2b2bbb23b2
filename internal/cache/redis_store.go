package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrSerialization marks a value that could not be encoded to or decoded from
// its stored JSON form. It is never used to signal a missing key.
var ErrSerialization = errors.New("cache value serialization failed")

type RedisStore struct {
	client redis.UniversalClient
	logger *logrus.Logger
}

func NewRedisStore(client redis.UniversalClient, logger *logrus.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger,
	}
}

// Set stores value under key with the key's own expiry, replacing any
// previous value.
func (s *RedisStore) Set(ctx context.Context, key Key, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: key %s: %v", ErrSerialization, key, err)
	}

	s.logger.WithField("key", key.String()).Debug("Set value in redis")

	if err := s.client.Set(ctx, key.String(), data, key.Expiry()).Err(); err != nil {
		s.logger.WithError(err).WithField("key", key.String()).Error("Failed to set value in redis")
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	return nil
}

// Update replaces the value under key and keeps its remaining TTL.
func (s *RedisStore) Update(ctx context.Context, key Key, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: key %s: %v", ErrSerialization, key, err)
	}

	if err := s.client.SetArgs(ctx, key.String(), data, redis.SetArgs{KeepTTL: true, Mode: "XX"}).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to update %s: %w", key, err)
	}

	return nil
}

// Get decodes the value under key into dest. found is false when the key is
// absent or expired.
func (s *RedisStore) Get(ctx context.Context, key Key, dest any) (bool, error) {
	s.logger.WithField("key", key.String()).Debug("Get value from redis")

	data, err := s.client.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		s.logger.WithError(err).WithField("key", key.String()).Error("Failed to get value from redis")
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("%w: key %s: %v", ErrSerialization, key, err)
	}

	return true, nil
}

// Delete removes key and reports whether it existed.
func (s *RedisStore) Delete(ctx context.Context, key Key) (bool, error) {
	s.logger.WithField("key", key.String()).Debug("Delete key in redis")

	n, err := s.client.Del(ctx, key.String()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return n > 0, nil
}

// TTL returns the remaining lifetime of key in seconds. Redis conventions
// apply: -2 when the key does not exist, -1 when it has no expiry.
func (s *RedisStore) TTL(ctx context.Context, key Key) (int64, error) {
	d, err := s.client.TTL(ctx, key.String()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get ttl of %s: %w", key, err)
	}
	if d < 0 {
		// go-redis passes the negative sentinels through unscaled.
		return int64(d), nil
	}
	return int64(d.Seconds()), nil
}

// Incr atomically increments the counter under key and returns the new
// value. The key's expiry is applied in the same transaction.
func (s *RedisStore) Incr(ctx context.Context, key Key) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key.String())
		pipe.Expire(ctx, key.String(), key.Expiry())
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("key", key.String()).Error("Failed to increment counter in redis")
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (s *RedisStore) Exists(ctx context.Context, key Key) (bool, error) {
	n, err := s.client.Exists(ctx, key.String()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SetValue stores a value of type V under key.
func SetValue[V any](ctx context.Context, s *RedisStore, key Key, value V) error {
	return s.Set(ctx, key, value)
}

// GetValue loads a value of type V from key.
func GetValue[V any](ctx context.Context, s *RedisStore, key Key) (V, bool, error) {
	var v V
	found, err := s.Get(ctx, key, &v)
	return v, found, err
}
