package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/powerauth-server/internal/domain"
)

// RedisMasterKeyPairCache caches the current server master key pair per application. A
// private key leaving Postgres into Redis on every signature-engine warm path would be a
// bad trade against a handful of milliseconds, so callers should prefer GetCurrent sparingly
// (e.g. once per process, refreshed on TTL expiry) rather than per-request.
type RedisMasterKeyPairCache struct {
	client *redis.Client
}

func NewRedisMasterKeyPairCache(client *redis.Client) *RedisMasterKeyPairCache {
	return &RedisMasterKeyPairCache{client: client}
}

type cachedMasterKeyPair struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	PublicKey     []byte    `json:"public_key"`
	PrivateKey    []byte    `json:"private_key"`
	CreatedAt     time.Time `json:"created_at"`
}

func masterKeyPairCacheKey(applicationID string) string {
	return "pa:masterkp:current:" + applicationID
}

func (c *RedisMasterKeyPairCache) GetCurrent(ctx context.Context, applicationID string) (*domain.MasterKeyPair, bool, error) {
	raw, err := c.client.Get(ctx, masterKeyPairCacheKey(applicationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var cached cachedMasterKeyPair
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false, err
	}
	return &domain.MasterKeyPair{
		ID:            cached.ID,
		ApplicationID: cached.ApplicationID,
		PublicKey:     cached.PublicKey,
		PrivateKey:    cached.PrivateKey,
		CreatedAt:     cached.CreatedAt,
	}, true, nil
}

func (c *RedisMasterKeyPairCache) PutCurrent(ctx context.Context, applicationID string, kp *domain.MasterKeyPair, ttl time.Duration) error {
	payload, err := json.Marshal(cachedMasterKeyPair{
		ID:            kp.ID,
		ApplicationID: kp.ApplicationID,
		PublicKey:     kp.PublicKey,
		PrivateKey:    kp.PrivateKey,
		CreatedAt:     kp.CreatedAt,
	})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, masterKeyPairCacheKey(applicationID), payload, ttl).Err()
}
