package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"schoolportal/internal/logger"
	"schoolportal/internal/model"
)

const (
	// ThreadCachePrefix is the key prefix for cached thread pages
	ThreadCachePrefix = "thread:post:"

	// DefaultThreadCacheTTL bounds how long a page survives a missed invalidation
	DefaultThreadCacheTTL = time.Minute
)

// ThreadCache stores assembled thread pages per post.
// Every page key of a post is tracked in a set so one call drops them all.
type ThreadCache interface {
	// Get returns the cached page. found=false on a miss.
	Get(ctx context.Context, postID, policy string, page, limit int) (*model.ThreadPage, bool, error)

	// Set stores a page and records its key in the post's index.
	// Pipeline: SET with TTL + SADD index + EXPIRE index
	Set(ctx context.Context, postID, policy string, page, limit int, value *model.ThreadPage) error

	// InvalidatePost removes every cached page of the post.
	InvalidatePost(ctx context.Context, postID string) error
}

// RedisThreadCache implements ThreadCache with plain string keys holding JSON.
type RedisThreadCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewThreadCache creates a new ThreadCache backed by Redis.
func NewThreadCache(client *redis.Client, ttl time.Duration, log *zap.Logger) ThreadCache {
	if ttl <= 0 {
		ttl = DefaultThreadCacheTTL
	}
	return &RedisThreadCache{client: client, ttl: ttl, log: logger.Component(log, "ThreadCache")}
}

func pageKey(postID, policy string, page, limit int) string {
	return fmt.Sprintf("%s%s:%s:%d:%d", ThreadCachePrefix, postID, policy, page, limit)
}

func indexKey(postID string) string {
	return ThreadCachePrefix + postID + ":keys"
}

func (c *RedisThreadCache) Get(ctx context.Context, postID, policy string, page, limit int) (*model.ThreadPage, bool, error) {
	key := pageKey(postID, policy, page, limit)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.log.Debug("Get MISS", zap.String("key", key))
		return nil, false, nil
	}
	if err != nil {
		c.log.Warn("Get FAILED", zap.String("key", key), zap.Error(err))
		return nil, false, fmt.Errorf("get thread page: %w", err)
	}

	var value model.ThreadPage
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, false, fmt.Errorf("decode thread page: %w", err)
	}

	c.log.Debug("Get HIT", zap.String("key", key))
	return &value, true, nil
}

func (c *RedisThreadCache) Set(ctx context.Context, postID, policy string, page, limit int, value *model.ThreadPage) error {
	key := pageKey(postID, policy, page, limit)
	startTime := time.Now()

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode thread page: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, data, c.ttl)
	pipe.SAdd(ctx, indexKey(postID), key)
	// The index outlives its pages by one TTL so a late Set is still found.
	pipe.Expire(ctx, indexKey(postID), 2*c.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("Set FAILED", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("set thread page: %w", err)
	}

	c.log.Debug("Set OK", zap.String("key", key), zap.Int("bytes", len(data)), zap.Duration("duration", time.Since(startTime)))
	return nil
}

func (c *RedisThreadCache) InvalidatePost(ctx context.Context, postID string) error {
	idx := indexKey(postID)

	keys, err := c.client.SMembers(ctx, idx).Result()
	if err != nil {
		c.log.Warn("InvalidatePost FAILED", zap.String("post_id", postID), zap.Error(err))
		return fmt.Errorf("list thread pages: %w", err)
	}

	keys = append(keys, idx)
	removed, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		c.log.Warn("InvalidatePost FAILED", zap.String("post_id", postID), zap.Error(err))
		return fmt.Errorf("delete thread pages: %w", err)
	}

	c.log.Debug("InvalidatePost OK", zap.String("post_id", postID), zap.Int64("removed", removed))
	return nil
}
