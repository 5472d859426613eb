package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// JSONCache wraps Redis-based caching of JSON payloads with a fixed TTL.
// A nil receiver or nil client degrades to calling the loader directly, so
// callers never need to branch on cache availability.
type JSONCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewJSONCache instantiates the cache helper.
func NewJSONCache(client *redis.Client, ttl time.Duration) *JSONCache {
	return &JSONCache{client: client, ttl: ttl}
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *JSONCache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Invalidate drops the given keys, ignoring missing ones.
func (c *JSONCache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
