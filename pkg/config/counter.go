package config

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Counter counts hits per key inside a fixed window.
type Counter interface {
	// Hit records one request and returns the count so far in the current
	// window together with the time the window resets.
	Hit(ctx context.Context, key string, window time.Duration) (int, time.Time, error)
}

type RateLimitEntry struct {
	Count     int
	ResetTime time.Time
}

// MemoryCounter keeps windows in process memory.
type MemoryCounter struct {
	cache *cache.Cache
	mutex sync.Mutex
	now   func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		cache: cache.New(5*time.Minute, 10*time.Minute),
		now:   time.Now,
	}
}

func (mc *MemoryCounter) Hit(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	now := mc.now()

	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if item, found := mc.cache.Get(key); found {
		entry := item.(RateLimitEntry)

		if now.Before(entry.ResetTime) {
			entry.Count++
			mc.cache.Set(key, entry, entry.ResetTime.Sub(now))

			return entry.Count, entry.ResetTime, nil
		}
	}

	entry := RateLimitEntry{
		Count:     1,
		ResetTime: now.Add(window),
	}
	mc.cache.Set(key, entry, window)

	return entry.Count, entry.ResetTime, nil
}

// RedisCounter shares windows between instances through INCR and PEXPIRE.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// NewRedisCounterFromURL parses a redis:// URL and pings the server.
func NewRedisCounterFromURL(ctx context.Context, url string) (*RedisCounter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return NewRedisCounter(client), nil
}

func (rc *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := rc.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	if count == 1 {
		if err := rc.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, time.Time{}, err
		}

		return 1, time.Now().Add(window), nil
	}

	ttl, err := rc.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	// A key without expiry was left behind by a failed PEXPIRE.
	if ttl < 0 {
		if err := rc.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, time.Time{}, err
		}
		ttl = window
	}

	return int(count), time.Now().Add(ttl), nil
}

func (rc *RedisCounter) Close() error {
	return rc.client.Close()
}
