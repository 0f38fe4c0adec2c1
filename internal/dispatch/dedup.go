package dispatch

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper implements Deduper on a Redis SETNX key with a TTL. The TTL
// bounds the window in which a replayed job is recognized as a duplicate.
type RedisDeduper struct {
	client *redis.Client
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (r *RedisDeduper) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, 1, ttl).Result()
}

func (r *RedisDeduper) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
