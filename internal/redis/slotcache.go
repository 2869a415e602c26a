package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SlotCache keeps computed per-day open-slot lists in Redis. One hash per
// (practitioner, clinic, date) partition; fields distinguish duration and
// granularity variants so invalidating the day drops all of them at once.
type SlotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSlotCache(client *redis.Client, ttl time.Duration) *SlotCache {
	return &SlotCache{client: client, ttl: ttl}
}

func cacheKey(partitionKey string) string {
	return fmt.Sprintf("slots:%s", partitionKey)
}

func (c *SlotCache) Get(ctx context.Context, partitionKey, variant string) ([]byte, bool) {
	data, err := c.client.HGet(ctx, cacheKey(partitionKey), variant).Bytes()
	if err != nil {
		// Misses and cache errors both fall back to a recompute.
		return nil, false
	}
	return data, true
}

func (c *SlotCache) Set(ctx context.Context, partitionKey, variant string, data []byte) {
	key := cacheKey(partitionKey)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, variant, data)
	pipe.Expire(ctx, key, c.ttl)
	_, _ = pipe.Exec(ctx)
}

func (c *SlotCache) Invalidate(ctx context.Context, partitionKey string) {
	_ = c.client.Del(ctx, cacheKey(partitionKey)).Err()
}
