package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// ErrMissing is returned when a key does not exist or has expired
var ErrMissing = errors.New("key not found")

// RedisStorage stores JSON documents of type T under a key prefix with a TTL
type RedisStorage[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStorage connects to redisURL and verifies the connection
func NewRedisStorage[T any](ctx context.Context, redisURL, prefix string, ttl time.Duration) (*RedisStorage[T], error) {
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStorageWithClient[T](client, prefix, ttl), nil
}

// NewRedisStorageWithClient wraps an existing client
func NewRedisStorageWithClient[T any](client *redis.Client, prefix string, ttl time.Duration) *RedisStorage[T] {
	return &RedisStorage[T]{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStorage[T]) key(id string) string {
	return r.prefix + id
}

// Set stores the document with the default TTL
func (r *RedisStorage[T]) Set(ctx context.Context, id string, data *T) error {
	jsonData, err := sonic.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := r.client.Set(ctx, r.key(id), jsonData, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set data: %w", err)
	}
	return nil
}

// SetNX stores the document only if the key is absent and reports whether it did
func (r *RedisStorage[T]) SetNX(ctx context.Context, id string, data *T) (bool, error) {
	jsonData, err := sonic.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("failed to marshal data: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.key(id), jsonData, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to setnx data: %w", err)
	}
	return ok, nil
}

// Get reads the document
func (r *RedisStorage[T]) Get(ctx context.Context, id string) (*T, error) {
	jsonData, err := r.client.Get(ctx, r.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMissing
		}
		return nil, fmt.Errorf("failed to get data: %w", err)
	}
	return r.decode(jsonData)
}

// GetAndTouch reads the document and extends its TTL in one round trip
func (r *RedisStorage[T]) GetAndTouch(ctx context.Context, id string) (*T, error) {
	jsonData, err := r.client.GetEx(ctx, r.key(id), r.ttl).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMissing
		}
		return nil, fmt.Errorf("failed to GETEX: %w", err)
	}
	return r.decode(jsonData)
}

// Close closes the Redis connection
func (r *RedisStorage[T]) Close() error {
	return r.client.Close()
}

// Ping tests Redis connection
func (r *RedisStorage[T]) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStorage[T]) decode(jsonData string) (*T, error) {
	var dest T
	if err := sonic.UnmarshalString(jsonData, &dest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return &dest, nil
}
