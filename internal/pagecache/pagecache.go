// Package pagecache stores rendered public pages in Redis and drops them
// when the data behind them changes.
package pagecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var ErrMiss = errors.New("page not cached")

const keyPrefix = "page:"

type Cache interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, body []byte) error
	Invalidate(ctx context.Context, paths ...string) error
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Key is the Redis key holding the page at path.
func Key(path string) string {
	return keyPrefix + path
}

func (c *RedisCache) Get(ctx context.Context, path string) ([]byte, error) {
	body, err := c.client.Get(ctx, Key(path)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("pagecache: failed to get %s: %w", path, err)
	}
	return body, nil
}

func (c *RedisCache) Put(ctx context.Context, path string, body []byte) error {
	if err := c.client.Set(ctx, Key(path), body, c.ttl).Err(); err != nil {
		return fmt.Errorf("pagecache: failed to put %s: %w", path, err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = Key(p)
	}

	removed, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("pagecache: failed to invalidate %d pages: %w", len(keys), err)
	}
	log.Debug().Strs("paths", paths).Int64("removed", removed).Msg("pagecache: pages invalidated")
	return nil
}

// Noop never caches anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }

func (Noop) Put(context.Context, string, []byte) error { return nil }

func (Noop) Invalidate(context.Context, ...string) error { return nil }
