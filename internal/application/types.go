package application

import (
	"time"

	"github.com/viralforge/powerauth-server/internal/domain"
)

// Config holds the tunables spec §6 and §9 leave to deployment: failure thresholds,
// validity windows, and the retry budgets for collision-bound ID generation.
type Config struct {
	ActivationValidity              time.Duration
	SignatureMaxFailedAttempts      uint32
	SignatureValidationLookahead    int
	ActivationCodeGenerationRetries int
	ShortIDGenerationRetries        int
	DefaultOTPValidation            string
	DefaultVersion                  int
	ServerKeyEncryption             string
	ExpirationSweepBatchSize        int
}

// InitActivationRequest starts a new activation for a user under an application.
type InitActivationRequest struct {
	ApplicationID string
	UserID        string
	MaxFailures   uint32
	OTP           string
	OTPValidation string
	// Version pins the protocol generation for this activation's whole lifetime (spec
	// §4.1 "version duality"). Zero selects Config.DefaultVersion.
	Version int
}

// CreateActivationRequest is the one-shot convenience path that both provisions and
// immediately key-exchanges an activation, skipping the out-of-band activation-code step
// (spec §2 component 6, "createActivation").
type CreateActivationRequest struct {
	ApplicationID     string
	UserID            string
	MaxFailures       uint32
	OTP               string
	OTPValidation     string
	Version           int
	ApplicationKey    []byte
	ApplicationSecret []byte
	DeviceEnvelope    []byte
}

// RemoveActivationRequest tombstones an activation (spec §4.5 "removeActivation").
type RemoveActivationRequest struct {
	ActivationID string
}

// BlockActivationRequest suspends an ACTIVE activation (spec §4.5 "blockActivation").
type BlockActivationRequest struct {
	ActivationID string
	Reason       string
}

// UnblockActivationRequest restores a BLOCKED activation to ACTIVE, resetting
// failedAttempts (spec §4.5 "unblockActivation").
type UnblockActivationRequest struct {
	ActivationID string
}

// UpdateActivationOTPRequest rotates the pre-commit OTP (spec §4.7).
type UpdateActivationOTPRequest struct {
	ActivationID string
	OTP          string
}

// InitActivationResult is returned to the caller that will hand the activation code to
// the end user out of band (spec §4.1 step 1).
type InitActivationResult struct {
	ActivationID   string
	ActivationCode string
}

// PrepareActivationRequest is the device's key-exchange request (spec §4.1 step 2).
type PrepareActivationRequest struct {
	ActivationCode    string
	ApplicationKey    []byte
	ApplicationSecret []byte
	DeviceEnvelope    []byte
	Version           int
	// OTP is only consulted when the activation's frozen OTPValidation mode is
	// ON_KEY_EXCHANGE (spec §4.5, §4.7).
	OTP string
}

// PrepareActivationResult carries the server's encrypted reply envelope back to the device.
type PrepareActivationResult struct {
	ActivationID    string
	ServerEnvelope  []byte
	ActivationOTP   string
}

// CommitActivationRequest finalizes an activation (spec §4.1 step 3).
type CommitActivationRequest struct {
	ActivationID   string
	OTP            string
	ExternalUserID string
}

// SignatureVerifyRequest is one PowerAuth signature check (spec §4.2).
type SignatureVerifyRequest struct {
	ActivationID   string
	ApplicationKey []byte
	Data           []byte
	Signature      string
	SignatureType  string
	// ForcedSignatureVersion overrides the activation's pinned version for computation
	// only, for a v2 client mid-upgrade to a v3 server (spec §4.2 "forced version"). Zero
	// means "use the activation's own version".
	ForcedSignatureVersion int
}

// SignatureVerifyResult reports the outcome and the record state it was evaluated against.
type SignatureVerifyResult struct {
	Valid          bool
	ActivationID   string
	RemainingTries uint32
	Blocked        bool
}

// VaultUnlockRequest asks for the device's vault-unlock key, gated by a valid signature
// (spec §4.4).
type VaultUnlockRequest struct {
	ActivationID   string
	ApplicationKey []byte
	Data           []byte
	Signature      string
	SignatureType  string
}

// VaultUnlockResult carries the encrypted vault key back to the caller. EncryptedVaultEncryptionKey
// is nil when SignatureValid is false (spec §4.4). UserID/ActivationStatus surface
// "UNKNOWN"/REMOVED for an unknown activation id, the source's information-leak-avoidance
// response (spec §9 Open Question a) rather than a 404.
type VaultUnlockResult struct {
	SignatureValid              bool
	EncryptedVaultEncryptionKey []byte
	RemainingAttempts           uint32
	Counter                     uint64
	UserID                      string
	ActivationStatus            domain.Status
}

// ECDSAVerifyRequest is the out-of-band operation-approval check (spec §4.3).
type ECDSAVerifyRequest struct {
	ActivationID string
	Data         []byte
	SignatureDER []byte
}
