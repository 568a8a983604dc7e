package domain

import (
	"fmt"
	"time"
)

// Status is one of the activation record's terminal or transitional states.
type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusPendingCommit  Status = "PENDING_COMMIT"
	StatusActive         Status = "ACTIVE"
	StatusBlocked        Status = "BLOCKED"
	StatusRemoved        Status = "REMOVED"
)

// OTPValidation is the frozen policy choosing when, if ever, the activation OTP is checked.
type OTPValidation string

const (
	OTPValidationNone         OTPValidation = "NONE"
	OTPValidationOnKeyExchange OTPValidation = "ON_KEY_EXCHANGE"
	OTPValidationOnCommit     OTPValidation = "ON_COMMIT"
)

// ServerKeyEncryption names how serverPrivateKey is stored at rest.
type ServerKeyEncryption string

const (
	ServerKeyEncryptionNone    ServerKeyEncryption = "NO_ENCRYPTION"
	ServerKeyEncryptionAESHMAC ServerKeyEncryption = "AES_HMAC"
)

// Version pins the protocol generation an activation was created under. It never changes
// after init, per the version-duality design note: v2 and v3 are parallel families.
type Version int

const (
	VersionV2 Version = 2
	VersionV3 Version = 3
)

// Record is the activation aggregate root. Field names follow the wire contract in spec §6.
type Record struct {
	ActivationID      string
	ActivationCode    string
	ApplicationID     string
	UserID            string
	MasterKeyPairID   string
	ServerPublicKey   []byte
	ServerPrivateKey  []byte // ciphertext when KeyEncryption == ServerKeyEncryptionAESHMAC; tombstoned to nil after REMOVED
	KeyEncryption     ServerKeyEncryption
	DevicePublicKey   []byte // nil until PENDING_COMMIT; set exactly once
	Counter           uint64
	CtrData           [16]byte
	FailedAttempts    uint32
	MaxFailedAttempts uint32
	Status            Status
	BlockedReason     string
	TimestampCreated  time.Time
	TimestampExpire   time.Time
	TimestampLastUsed time.Time
	ActivationOTP     string
	OTPValidation     OTPValidation
	Version           Version
	Flags             []string
}

// IsNonTerminal reports whether the record can still be the target of a client operation
// other than removal.
func (r *Record) IsNonTerminal() bool {
	return r.Status != StatusRemoved
}

// ValidateInvariants checks I1 (devicePublicKey present exactly outside CREATED) and I3
// (failedAttempts bound) on the in-memory record. It does not check I2 (counter
// monotonicity) or I4 (legal transitions), which need the previous state, nor I5 (code
// uniqueness) or I6 (tombstoning on terminal transition), which are store-wide and
// enforced by the repository and the removal transition respectively.
func (r *Record) ValidateInvariants() error {
	if r.Status == StatusCreated && r.DevicePublicKey != nil {
		return fmt.Errorf("%w: devicePublicKey set while CREATED", ErrInvalidState)
	}
	if r.Status != StatusCreated && r.DevicePublicKey == nil {
		return fmt.Errorf("%w: devicePublicKey missing outside CREATED", ErrInvalidState)
	}
	if r.FailedAttempts > r.MaxFailedAttempts {
		return fmt.Errorf("%w: failedAttempts exceeds maxFailedAttempts", ErrInvalidState)
	}
	if r.FailedAttempts == r.MaxFailedAttempts && r.Status != StatusBlocked && r.Status != StatusRemoved {
		return fmt.Errorf("%w: failedAttempts at max without BLOCKED status", ErrInvalidState)
	}
	return nil
}

// transitions enumerates the legal (from, event) -> to moves from spec §4.5. It exists so
// every state change in the service layer goes through one table instead of scattered
// status string comparisons.
var transitions = map[Status]map[string]Status{
	StatusCreated: {
		"keyExchange": StatusPendingCommit,
		"expire":      StatusRemoved,
		"remove":      StatusRemoved,
	},
	StatusPendingCommit: {
		"commit": StatusActive,
		"expire": StatusRemoved,
		"remove": StatusRemoved,
		// otpFailBlock: commitActivation's OTP check exhausted failedAttempts (spec §4.5
		// "failure increments failedAttempts and may BLOCK").
		"otpFailBlock": StatusBlocked,
	},
	StatusActive: {
		"block":  StatusBlocked,
		"remove": StatusRemoved,
	},
	StatusBlocked: {
		"unblock": StatusActive,
		"remove":  StatusRemoved,
	},
}

// NextStatus resolves the target status for an event from the current status, or
// ErrInvalidState if no such transition exists (no transition skips states, I4).
func NextStatus(from Status, event string) (Status, error) {
	events, ok := transitions[from]
	if !ok {
		return "", fmt.Errorf("%w: no transitions from %s", ErrInvalidState, from)
	}
	to, ok := events[event]
	if !ok {
		return "", fmt.Errorf("%w: event %q not legal from %s", ErrInvalidState, event, from)
	}
	return to, nil
}

// Tombstone clears key material per I6: after REMOVED, key material is never reconstructed.
func (r *Record) Tombstone() {
	r.ServerPrivateKey = nil
	r.DevicePublicKey = nil
	r.ActivationOTP = ""
}
