// Package cache implements a Redis key/value cache with tag based invalidation. Entries
// written without a TTL live until their tag is invalidated.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	apperrors "ipo-compliance/internal/common/errors"

	"github.com/redis/go-redis/v9"
)

const tagPrefix = "cache:tag:"

// TaggedCache stores values under keys and remembers, per tag, which keys to purge.
type TaggedCache struct {
	rdb redis.Cmdable
}

func NewTaggedCache(rdb redis.Cmdable) *TaggedCache {
	return &TaggedCache{rdb: rdb}
}

func tagKey(tag string) string {
	return tagPrefix + tag
}

// Set writes value under key and registers key with every tag. ttl 0 means no expiry.
func (c *TaggedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, value, ttl)
		for _, tag := range tags {
			pipe.SAdd(ctx, tagKey(tag), key)
		}
		return nil
	})
	if err != nil {
		return apperrors.NewCacheError("set", err)
	}
	return nil
}

// Get returns the value at key. A miss is (nil, false, nil).
func (c *TaggedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.NewCacheError("get", err)
	}
	return val, true, nil
}

func (c *TaggedCache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration, tags ...string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.NewCacheError("marshal", err)
	}
	return c.Set(ctx, key, data, ttl, tags...)
}

// GetJSON decodes the value at key into v and reports whether it was found.
func (c *TaggedCache) GetJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, apperrors.NewCacheError("unmarshal", err)
	}
	return true, nil
}

// InvalidateTag deletes every key registered under tag, and the tag itself. It returns the
// number of keys purged.
func (c *TaggedCache) InvalidateTag(ctx context.Context, tag string) (int, error) {
	keys, err := c.rdb.SMembers(ctx, tagKey(tag)).Result()
	if err != nil {
		return 0, apperrors.NewCacheError("invalidate", err)
	}

	if err := c.rdb.Del(ctx, append(keys, tagKey(tag))...).Err(); err != nil {
		return 0, apperrors.NewCacheError("invalidate", err)
	}
	return len(keys), nil
}
