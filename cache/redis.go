// Package cache provides a Redis-backed secondary cache for read-model
// lookups. It is independent of ReplaySession's in-memory indexes: query
// paths consult it directly, replay never does.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

// RecordCache caches serialized read-model rows by (class, key) under a
// TTL, so hot lookups skip a round trip to Postgres.
type RecordCache struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
}

// New wraps client as a RecordCache. A zero ttl defaults to five minutes.
func New(client *redislib.Client, ttl time.Duration) *RecordCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RecordCache{client: client, prefix: "record:", ttl: ttl}
}

// Get unmarshals the cached value for (class, key) into dest, reporting
// ok=false on a cache miss.
func (c *RecordCache) Get(ctx context.Context, class, key string, dest any) (bool, error) {
	raw, err := c.client.Get(ctx, c.cacheKey(class, key)).Bytes()
	if err != nil {
		if err == redislib.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value under (class, key) with the cache's configured TTL.
func (c *RecordCache) Set(ctx context.Context, class, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.cacheKey(class, key), payload, c.ttl).Err()
}

// Invalidate drops the cached value for (class, key), e.g. after
// update_record changes the underlying row.
func (c *RecordCache) Invalidate(ctx context.Context, class, key string) error {
	return c.client.Del(ctx, c.cacheKey(class, key)).Err()
}

// InvalidateClass drops every cached key for class, used after a bulk
// mutation like delete_all_records or update_all_records.
func (c *RecordCache) InvalidateClass(ctx context.Context, class string) error {
	pattern := fmt.Sprintf("%s%s:*", c.prefix, class)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (c *RecordCache) cacheKey(class, key string) string {
	return fmt.Sprintf("%s%s:%s", c.prefix, class, key)
}
