package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KeyPrefix namespaces expiry records in a shared Redis
const KeyPrefix = "edgecdn:expiry:"

// RedisExpiryStore implements ExpiryStore on Redis so that several proxies on one
// host can share freshness data. Records also carry a Redis TTL equal to the
// remaining freshness, so stale keys disappear on their own.
type RedisExpiryStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisExpiryStore connects to addr and checks the connection
func NewRedisExpiryStore(addr, password string, db int, logger *zap.Logger) (*RedisExpiryStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis expiry store", zap.String("addr", addr), zap.Int("db", db))

	return &RedisExpiryStore{
		client: client,
		prefix: KeyPrefix,
		logger: logger,
	}, nil
}

// Get returns the expiry for key
func (s *RedisExpiryStore) Get(ctx context.Context, key string) (time.Time, error) {
	raw, err := s.client.Get(ctx, s.buildKey(key)).Result()
	if err == redis.Nil {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed expiry for %s: %w", key, err)
	}
	return time.Unix(0, nanos), nil
}

// Set stores the expiry for key
func (s *RedisExpiryStore) Set(ctx context.Context, key string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// already stale; a missing record means the same thing
		return s.Delete(ctx, key)
	}
	return s.client.Set(ctx, s.buildKey(key), strconv.FormatInt(expiresAt.UnixNano(), 10), ttl).Err()
}

// Delete removes the record for key
func (s *RedisExpiryStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.buildKey(key)).Err()
}

// Ping checks the Redis connection
func (s *RedisExpiryStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection pool
func (s *RedisExpiryStore) Close() error {
	return s.client.Close()
}

func (s *RedisExpiryStore) buildKey(key string) string {
	return s.prefix + key
}
