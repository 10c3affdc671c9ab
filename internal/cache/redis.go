package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Workflow state cache key
const RequestStateKeyFmt = "workflow:state:%d"

var (
	client     *redis.Client
	defaultTTL = 30 * time.Second
)

// Init connects to Redis. On failure the client stays nil and every helper
// below becomes a no-op, so callers fall through to the database.
func Init(addr, password string, db int, ttl time.Duration) error {
	if addr == "" {
		return fmt.Errorf("redis address not configured")
	}
	if ttl > 0 {
		defaultTTL = ttl
	}

	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return err
	}
	client = c
	log.Printf("[Cache] Connected to Redis at %s", addr)
	return nil
}

// SetClient swaps the client, e.g. for tests. nil disables caching.
func SetClient(c *redis.Client) {
	client = c
}

// GetClient returns the Redis client
func GetClient() *redis.Client {
	return client
}

// Ping reports Redis health; a disabled cache is not an error
func Ping(ctx context.Context) error {
	if client == nil {
		return nil
	}
	return client.Ping(ctx).Err()
}

func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}

func requestStateKey(requestID int64) string {
	return fmt.Sprintf(RequestStateKeyFmt, requestID)
}

// GetCachedRequestState returns a cached derived state if available
func GetCachedRequestState(ctx context.Context, requestID int64) ([]byte, bool) {
	return get(ctx, requestStateKey(requestID))
}

// CacheRequestState caches a derived state for the configured TTL
func CacheRequestState(ctx context.Context, requestID int64, data []byte) {
	set(ctx, requestStateKey(requestID), data)
}

// InvalidateRequestState drops the cached state after a transition
func InvalidateRequestState(ctx context.Context, requestID int64) {
	del(ctx, requestStateKey(requestID))
}

func get(ctx context.Context, key string) ([]byte, bool) {
	if client == nil {
		return nil, false
	}
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func set(ctx context.Context, key string, data []byte) {
	if client == nil {
		return
	}
	if err := client.Set(ctx, key, data, defaultTTL).Err(); err != nil {
		log.Printf("[Cache] Failed to set %s: %v", key, err)
	}
}

func del(ctx context.Context, key string) {
	if client == nil {
		return
	}
	if err := client.Del(ctx, key).Err(); err != nil {
		log.Printf("[Cache] Failed to delete %s: %v", key, err)
	}
}
