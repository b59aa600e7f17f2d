package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"plotline/internal/domain/models/story"
)

const keyPrefix = "plotline:"

// RedisPathCache implements PathCache using Redis.
// Entries are keyed under a per-story version counter; Invalidate bumps the
// counter so stale entries are never read again and expire on their own.
type RedisPathCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisPathCache connects to redisURL and verifies the connection
func NewRedisPathCache(redisURL string, ttl time.Duration, logger *slog.Logger) (*RedisPathCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisPathCacheWithClient(client, ttl, logger), nil
}

// NewRedisPathCacheWithClient creates a cache from an existing Redis client
func NewRedisPathCacheWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisPathCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPathCache{client: client, ttl: ttl, logger: logger}
}

func versionKey(storyName string) string {
	return keyPrefix + "pathver:" + storyName
}

func pathKey(storyName string, version int64, selector string) string {
	return fmt.Sprintf("%spath:%s:v%d:%s", keyPrefix, storyName, version, selector)
}

func (c *RedisPathCache) version(ctx context.Context, storyName string) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(storyName)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Get returns a cached path for the story's current version.
// On a miss the version is returned for the following Set.
func (c *RedisPathCache) Get(ctx context.Context, storyName, selector string) (*story.PathResult, int64, bool) {
	version, err := c.version(ctx, storyName)
	if err != nil {
		c.logger.Warn("path cache version lookup failed", "story", storyName, "error", err)
		return nil, -1, false
	}

	data, err := c.client.Get(ctx, pathKey(storyName, version, selector)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, version, false
	}
	if err != nil {
		c.logger.Warn("path cache read failed", "story", storyName, "selector", selector, "error", err)
		return nil, version, false
	}

	var result story.PathResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("path cache entry corrupt", "story", storyName, "selector", selector, "error", err)
		return nil, version, false
	}
	return &result, version, true
}

// Set stores a path read under version. The write is skipped when the
// story's counter has moved since, so a path read before an Invalidate
// never lands under the new version.
func (c *RedisPathCache) Set(ctx context.Context, storyName, selector string, version int64, result *story.PathResult) {
	if version < 0 {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("path cache marshal failed", "story", storyName, "error", err)
		return
	}

	vKey := versionKey(storyName)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, vKey).Int64()
		if errors.Is(err, redis.Nil) {
			current = 0
		} else if err != nil {
			return err
		}
		if current != version {
			c.logger.Debug("path cache write skipped", "story", storyName, "selector", selector, "read_version", version, "version", current)
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, pathKey(storyName, version, selector), data, c.ttl)
			return nil
		})
		return err
	}, vKey)

	// A concurrent Invalidate aborts the transaction; the entry is simply not stored
	if errors.Is(err, redis.TxFailedErr) {
		return
	}
	if err != nil {
		c.logger.Warn("path cache write failed", "story", storyName, "selector", selector, "error", err)
	}
}

// Invalidate bumps the story's version counter
func (c *RedisPathCache) Invalidate(ctx context.Context, storyName string) {
	if err := c.client.Incr(ctx, versionKey(storyName)).Err(); err != nil {
		c.logger.Warn("path cache invalidate failed", "story", storyName, "error", err)
	}
}

// Ping checks if Redis is reachable
func (c *RedisPathCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisPathCache) Close() error {
	return c.client.Close()
}
