package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geoyee/globetile/internal/metrics"
	"github.com/geoyee/globetile/internal/model"
)

// redisClient is the subset of *redis.Client the tier uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisStore shares payloads between processes through Redis.
type RedisStore struct {
	client redisClient
	prefix string
	ttl    time.Duration
}

// OpenRedis returns a client for addr, or nil when addr is empty.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// NewRedisStore wraps client. A non-positive ttl stores payloads without
// expiry.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return newRedisStore(client, ttl)
}

func newRedisStore(client redisClient, ttl time.Duration) *RedisStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{client: client, prefix: "globetile:", ttl: ttl}
}

func (s *RedisStore) Name() string { return "redis" }

// Get returns the payload for key; redis.Nil is a miss.
func (s *RedisStore) Get(ctx context.Context, _ model.Tile, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.StoreRequestsTotal.WithLabelValues("redis", "miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.StoreRequestsTotal.WithLabelValues("redis", "error").Inc()
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	metrics.StoreRequestsTotal.WithLabelValues("redis", "hit").Inc()
	return data, true, nil
}

// Put stores data under key with the configured TTL.
func (s *RedisStore) Put(ctx context.Context, _ model.Tile, key string, data []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
