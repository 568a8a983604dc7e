package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/powerauth-server/internal/domain"
)

// RedisApplicationVersionCache caches pa_application_version rows keyed by application key.
// Application keys and secrets almost never change once issued, so a short TTL mainly bounds
// staleness after an operator revokes a key rather than guarding against frequent writes.
type RedisApplicationVersionCache struct {
	client *redis.Client
}

func NewRedisApplicationVersionCache(client *redis.Client) *RedisApplicationVersionCache {
	return &RedisApplicationVersionCache{client: client}
}

type cachedApplicationVersion struct {
	ApplicationID     string `json:"application_id"`
	ApplicationKey    []byte `json:"application_key"`
	ApplicationSecret []byte `json:"application_secret"`
	Supported         bool   `json:"supported"`
}

func appVersionCacheKey(applicationKey []byte) string {
	return "pa:appver:" + string(applicationKey)
}

func (c *RedisApplicationVersionCache) Get(ctx context.Context, applicationKey []byte) (*domain.ApplicationVersion, bool, error) {
	raw, err := c.client.Get(ctx, appVersionCacheKey(applicationKey)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var cached cachedApplicationVersion
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false, err
	}
	return &domain.ApplicationVersion{
		ApplicationID:     cached.ApplicationID,
		ApplicationKey:    cached.ApplicationKey,
		ApplicationSecret: cached.ApplicationSecret,
		Supported:         cached.Supported,
	}, true, nil
}

func (c *RedisApplicationVersionCache) Put(ctx context.Context, applicationKey []byte, v *domain.ApplicationVersion, ttl time.Duration) error {
	payload, err := json.Marshal(cachedApplicationVersion{
		ApplicationID:     v.ApplicationID,
		ApplicationKey:    v.ApplicationKey,
		ApplicationSecret: v.ApplicationSecret,
		Supported:         v.Supported,
	})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, appVersionCacheKey(applicationKey), payload, ttl).Err()
}
