package ports

import (
	"context"
	"time"

	"github.com/viralforge/powerauth-server/internal/domain"
)

// ApplicationVersionCache is the read-mostly, TTL-based cache of ApplicationVersion rows
// described in spec §5 ("Shared state"). Stale reads are tolerated because activation
// records snapshot their master keypair reference rather than following rotations.
type ApplicationVersionCache interface {
	Get(ctx context.Context, applicationKey []byte) (*domain.ApplicationVersion, bool, error)
	Put(ctx context.Context, applicationKey []byte, version *domain.ApplicationVersion, ttl time.Duration) error
}

// MasterKeyPairCache caches the current MasterKeyPair per application.
type MasterKeyPairCache interface {
	GetCurrent(ctx context.Context, applicationID string) (*domain.MasterKeyPair, bool, error)
	PutCurrent(ctx context.Context, applicationID string, pair *domain.MasterKeyPair, ttl time.Duration) error
}
