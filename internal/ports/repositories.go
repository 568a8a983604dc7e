package ports

import (
	"context"
	"time"

	"github.com/viralforge/powerauth-server/internal/domain"
)

// ActivationMutation is the atomic read-modify-write payload applied to one activation row.
// Counter, CtrData, FailedAttempts and Status are always applied; the other fields are
// applied only when non-empty (an empty value keeps the stored one), and Tombstone clears
// the key material. Everything goes into a single UPDATE so counter/failedAttempts/status
// never observe an intermediate state (spec I2, I3).
type ActivationMutation struct {
	Counter        uint64
	CtrData        [16]byte
	FailedAttempts uint32
	Status         domain.Status
	BlockedReason  string
	LastUsedAt     time.Time
	DevicePublicKey []byte
	ActivationOTP  string
	OTPValidation  domain.OTPValidation
	ServerPrivateKey []byte
	Tombstone      bool
}

// ActivationRepository owns the ActivationRecord aggregate. Mutate is the only write path
// for fields covered by I2/I3; it must run under a row-level lock held for the duration
// of the caller's read-modify-write (spec §4.2, §5).
type ActivationRepository interface {
	Insert(ctx context.Context, rec *domain.Record) error
	GetByID(ctx context.Context, activationID string) (*domain.Record, error)
	GetByCode(ctx context.Context, code string) (*domain.Record, error)
	// Mutate loads the row under a write lock, lets fn observe and return the mutation to
	// apply, then commits the mutation and the record's new in-memory state atomically.
	// fn returning a nil *ActivationMutation performs no write (used for idempotent no-ops
	// like commitActivation on an already-ACTIVE record).
	Mutate(ctx context.Context, activationID string, fn func(rec *domain.Record) (*ActivationMutation, error)) (*domain.Record, error)
	// CodeInUse reports whether the given activationCode currently belongs to a record in
	// {CREATED, PENDING_COMMIT}, enforcing I5.
	CodeInUse(ctx context.Context, code string) (bool, error)
	// ListExpired returns CREATED/PENDING_COMMIT records whose expiry has passed, for the
	// periodic sweep (spec §5).
	ListExpired(ctx context.Context, asOf time.Time, limit int) ([]*domain.Record, error)
}

// ApplicationVersionRepository resolves the (applicationKey, applicationSecret) pair a
// client presents.
type ApplicationVersionRepository interface {
	GetByApplicationKey(ctx context.Context, applicationKey []byte) (*domain.ApplicationVersion, error)
}

// MasterKeyPairRepository resolves the keypair that authenticates the server's side of
// activation. GetCurrent returns the newest pair for an application; GetByID resolves the
// pair an existing record snapshotted at creation time.
type MasterKeyPairRepository interface {
	GetCurrent(ctx context.Context, applicationID string) (*domain.MasterKeyPair, error)
	GetByID(ctx context.Context, id string) (*domain.MasterKeyPair, error)
}

// ActivationHistoryRepository is the append-only transition log (spec §3.2, §4.5).
type ActivationHistoryRepository interface {
	Append(ctx context.Context, entry domain.ActivationHistoryEntry) error
	ListByActivation(ctx context.Context, activationID string, limit, offset int) ([]domain.ActivationHistoryEntry, error)
}

// SignatureAuditRepository is the append-only signature-verification log (spec §3.2, §7).
type SignatureAuditRepository interface {
	Append(ctx context.Context, entry domain.SignatureAuditEntry) error
	ListByActivation(ctx context.Context, activationID string, limit, offset int) ([]domain.SignatureAuditEntry, error)
}
