// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package memory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore implements Store against any Redis-compatible backend that
// supports GET, SETEX, DEL, and KEYS pattern semantics, for cross-process
// deployments. Put maps to SETEX (or SET with no expiration), Get to GET,
// Search to KEYS followed by MGET, Delete to DEL.
type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisStore wraps an already-configured *redis.Client.
func NewRedisStore(client *redis.Client, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}
	return &RedisStore{client: client, log: log}
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.log.Error("memory: redis put failed", "key", key, "err", err)
		return err
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.log.Error("memory: redis get failed", "key", key, "err", err)
		return nil, err
	}
	return val, nil
}

// Search lists keys matching pattern via KEYS, then fetches them with MGET.
// KEYS is O(n) over the keyspace; this mirrors internal/filelock's own
// choice to keep the distributed-registry contract simple (its registry
// exposes the same "scan everything, filter by pattern" shape) and is
// acceptable at the per-epic key volumes this store sees.
func (s *RedisStore) Search(ctx context.Context, pattern string) (map[string][]byte, error) {
	keys, err := s.client.Keys(ctx, pattern).Result()
	if err != nil {
		s.log.Error("memory: redis keys failed", "pattern", pattern, "err", err)
		return nil, err
	}
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		s.log.Error("memory: redis mget failed", "pattern", pattern, "err", err)
		return nil, err
	}

	out := make(map[string][]byte, len(keys))
	for i, key := range keys {
		if values[i] == nil {
			continue
		}
		if str, ok := values[i].(string); ok {
			out[key] = []byte(str)
		}
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.log.Error("memory: redis delete failed", "key", key, "err", err)
		return err
	}
	return nil
}
