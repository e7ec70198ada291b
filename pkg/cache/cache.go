package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SliceCache stores trial plaintext keyed by book and section bound. It never
// holds key material; every response is still sealed under a fresh key.
type SliceCache interface {
	// Get returns the cached trial bytes and whether they were present
	Get(ctx context.Context, bookID uuid.UUID, maxSections int) ([]byte, bool, error)
	Set(ctx context.Context, bookID uuid.UUID, maxSections int, data []byte) error
	// InvalidateBook drops every cached slice of the book
	InvalidateBook(ctx context.Context, bookID uuid.UUID) error
	Close() error
}

// RedisSliceCache implements SliceCache for Redis
type RedisSliceCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisCacheConfig holds configuration for Redis cache
type RedisCacheConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisSliceCache connects to Redis and returns a slice cache
func NewRedisSliceCache(config RedisCacheConfig) (*RedisSliceCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = "bookgate:trial:"
	}

	return &RedisSliceCache{
		client: client,
		prefix: prefix,
		ttl:    config.TTL,
	}, nil
}

func (c *RedisSliceCache) bookPrefix(bookID uuid.UUID) string {
	return c.prefix + bookID.String() + ":"
}

func (c *RedisSliceCache) key(bookID uuid.UUID, maxSections int) string {
	return c.bookPrefix(bookID) + strconv.Itoa(maxSections)
}

// Get returns the cached slice
func (c *RedisSliceCache) Get(ctx context.Context, bookID uuid.UUID, maxSections int) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.key(bookID, maxSections)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read trial cache: %w", err)
	}
	return data, true, nil
}

// Set stores a slice. A zero TTL keeps it until invalidated.
func (c *RedisSliceCache) Set(ctx context.Context, bookID uuid.UUID, maxSections int, data []byte) error {
	if err := c.client.Set(ctx, c.key(bookID, maxSections), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write trial cache: %w", err)
	}
	return nil
}

// InvalidateBook removes every slice of a book from the cache
func (c *RedisSliceCache) InvalidateBook(ctx context.Context, bookID uuid.UUID) error {
	iter := c.client.Scan(ctx, 0, c.bookPrefix(bookID)+"*", 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to invalidate trial cache: %w", err)
		}
	}

	return nil
}

// Close closes the Redis connection
func (c *RedisSliceCache) Close() error {
	return c.client.Close()
}

// NoOpSliceCache never stores anything
type NoOpSliceCache struct{}

// NewNoOpSliceCache creates a new no-op slice cache
func NewNoOpSliceCache() *NoOpSliceCache {
	return &NoOpSliceCache{}
}

// Get always misses
func (c *NoOpSliceCache) Get(ctx context.Context, bookID uuid.UUID, maxSections int) ([]byte, bool, error) {
	return nil, false, nil
}

// Set does nothing
func (c *NoOpSliceCache) Set(ctx context.Context, bookID uuid.UUID, maxSections int, data []byte) error {
	return nil
}

// InvalidateBook does nothing
func (c *NoOpSliceCache) InvalidateBook(ctx context.Context, bookID uuid.UUID) error {
	return nil
}

// Close does nothing
func (c *NoOpSliceCache) Close() error {
	return nil
}
