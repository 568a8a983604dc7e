package application

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/powerauth-server/internal/adapters/crypto"
	"github.com/viralforge/powerauth-server/internal/domain"
	"github.com/viralforge/powerauth-server/internal/ports"
)

func otpEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func parseOTPValidation(s string, fallback domain.OTPValidation) domain.OTPValidation {
	switch domain.OTPValidation(s) {
	case domain.OTPValidationNone, domain.OTPValidationOnKeyExchange, domain.OTPValidationOnCommit:
		return domain.OTPValidation(s)
	default:
		return fallback
	}
}

func (s *Service) versionOrDefault(v int) domain.Version {
	if v != 0 {
		return domain.Version(v)
	}
	if s.cfg.DefaultVersion != 0 {
		return domain.Version(s.cfg.DefaultVersion)
	}
	return domain.VersionV3
}

// generateUniqueActivationCode retries GenerateActivationCode against CodeInUse up to the
// configured budget, surfacing ErrLimitExceeded on exhaustion (spec §4.6
// "UNABLE_TO_GENERATE_ACTIVATION_ID").
func (s *Service) generateUniqueActivationCode(ctx context.Context) (string, error) {
	retries := s.cfg.ActivationCodeGenerationRetries
	if retries <= 0 {
		retries = 10
	}
	for i := 0; i < retries; i++ {
		code, err := crypto.GenerateActivationCode()
		if err != nil {
			return "", err
		}
		inUse, err := s.activations.CodeInUse(ctx, code)
		if err != nil {
			return "", err
		}
		if !inUse {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: exhausted activation code generation retries", domain.ErrLimitExceeded)
}

// InitActivation provisions a new CREATED record: fresh server keypair, unique
// activationId/activationCode, and the current master keypair snapshot (spec §4.5 row 1).
func (s *Service) InitActivation(ctx context.Context, req InitActivationRequest) (InitActivationResult, error) {
	masterKeyPair, err := s.resolveCurrentMasterKeyPair(ctx, req.ApplicationID)
	if err != nil {
		return InitActivationResult{}, err
	}

	serverPublicKey, serverPrivateKey, err := crypto.GenerateP256KeyPair()
	if err != nil {
		return InitActivationResult{}, err
	}

	keyEncryption := domain.ServerKeyEncryption(s.cfg.ServerKeyEncryption)
	if keyEncryption == domain.ServerKeyEncryptionAESHMAC {
		if s.serverKeyCipher == nil {
			return InitActivationResult{}, fmt.Errorf("%w: serverKeyEncryption AES_HMAC configured without a cipher", domain.ErrConfig)
		}
	} else {
		keyEncryption = domain.ServerKeyEncryptionNone
	}

	activationCode, err := s.generateUniqueActivationCode(ctx)
	if err != nil {
		return InitActivationResult{}, err
	}

	validity := s.cfg.ActivationValidity
	if validity <= 0 {
		validity = 5 * time.Minute
	}
	maxFailures := req.MaxFailures
	if maxFailures == 0 {
		maxFailures = s.cfg.SignatureMaxFailedAttempts
	}
	if maxFailures == 0 {
		maxFailures = 5
	}

	now := time.Now().UTC()
	activationID := uuid.NewString()

	storedPrivateKey := serverPrivateKey
	if keyEncryption == domain.ServerKeyEncryptionAESHMAC {
		storedPrivateKey, err = s.serverKeyCipher.Encrypt(req.UserID, activationID, serverPrivateKey)
		if err != nil {
			return InitActivationResult{}, err
		}
	}

	rec := &domain.Record{
		ActivationID:      activationID,
		ActivationCode:    activationCode,
		ApplicationID:     req.ApplicationID,
		UserID:            req.UserID,
		MasterKeyPairID:   masterKeyPair.ID,
		ServerPublicKey:   serverPublicKey,
		ServerPrivateKey:  storedPrivateKey,
		KeyEncryption:     keyEncryption,
		Counter:           0,
		FailedAttempts:    0,
		MaxFailedAttempts: maxFailures,
		Status:            domain.StatusCreated,
		TimestampCreated:  now,
		TimestampExpire:   now.Add(validity),
		ActivationOTP:     req.OTP,
		OTPValidation:     parseOTPValidation(req.OTPValidation, domain.OTPValidation(s.cfg.DefaultOTPValidation)),
		Version:           s.versionOrDefault(req.Version),
	}
	if err := rec.ValidateInvariants(); err != nil {
		return InitActivationResult{}, err
	}
	if err := s.activations.Insert(ctx, rec); err != nil {
		return InitActivationResult{}, err
	}

	s.appendHistoryAndCallback(ctx, rec, "")
	s.logger.InfoContext(ctx, "activation initialized",
		"operation", "init_activation",
		"outcome", "success",
		"activation_id", rec.ActivationID,
		"application_id", rec.ApplicationID,
	)
	return InitActivationResult{ActivationID: rec.ActivationID, ActivationCode: rec.ActivationCode}, nil
}

// keyExchange is the shared CREATED->PENDING_COMMIT mutation used by both
// PrepareActivation (activation already initialized out of band) and CreateActivation
// (init and key-exchange in one call).
func (s *Service) keyExchange(ctx context.Context, activationID string, applicationKey, applicationSecret, deviceEnvelope []byte, providedOTP string) (PrepareActivationResult, error) {
	version, err := s.resolveApplicationVersion(ctx, applicationKey)
	if err != nil {
		return PrepareActivationResult{}, err
	}
	if !version.Supported || !otpEqual(string(version.ApplicationSecret), string(applicationSecret)) {
		return PrepareActivationResult{}, fmt.Errorf("%w: application key/secret not recognized", domain.ErrInvalidInput)
	}

	var result PrepareActivationResult
	var otpRejected bool
	var expired bool
	var cryptoFailed bool

	rec, err := s.activations.Mutate(ctx, activationID, func(rec *domain.Record) (*ports.ActivationMutation, error) {
		if rec.ApplicationID != version.ApplicationID {
			return nil, fmt.Errorf("%w: activation does not belong to this application", domain.ErrInvalidInput)
		}
		now := time.Now().UTC()
		if now.After(rec.TimestampExpire) {
			to, _ := domain.NextStatus(rec.Status, "expire")
			expired = true
			return &ports.ActivationMutation{Status: to, Tombstone: true, LastUsedAt: now}, nil
		}
		if rec.Status != domain.StatusCreated {
			return nil, fmt.Errorf("%w: activation not in CREATED", domain.ErrInvalidState)
		}

		if rec.OTPValidation == domain.OTPValidationOnKeyExchange && !otpEqual(providedOTP, rec.ActivationOTP) {
			// A wrong OTP at key exchange is a failed decryption in the real protocol (the OTP
			// feeds the device public key decryption itself), so it tombstones the activation
			// immediately rather than allowing repeated guesses against a CREATED record.
			otpRejected = true
			to, terr := domain.NextStatus(rec.Status, "remove")
			if terr != nil {
				return nil, terr
			}
			return &ports.ActivationMutation{
				Status:         to,
				Tombstone:      true,
				FailedAttempts: rec.FailedAttempts + 1,
				LastUsedAt:     now,
			}, nil
		}

		masterKeyPair, err := s.masterKeyPairs.GetByID(ctx, rec.MasterKeyPairID)
		if err != nil {
			return nil, err
		}
		activationCrypto, err := s.cryptoFor(rec.Version)
		if err != nil {
			return nil, err
		}

		secretArg := applicationSecret
		if rec.Version == domain.VersionV2 {
			secretArg = append(append([]byte{}, applicationKey...), applicationSecret...)
		}
		devicePublicKey, responseKey, cerr := activationCrypto.DecryptDeviceEnvelope(masterKeyPair.PrivateKey, deviceEnvelope, secretArg)
		if cerr == nil {
			var serverEnvelope []byte
			serverEnvelope, cerr = activationCrypto.EncryptServerResponse(responseKey, rec.ServerPublicKey)
			if cerr == nil {
				to, terr := domain.NextStatus(rec.Status, "keyExchange")
				if terr != nil {
					return nil, terr
				}
				result = PrepareActivationResult{
					ActivationID:   rec.ActivationID,
					ServerEnvelope: serverEnvelope,
					ActivationOTP:  rec.ActivationOTP,
				}
				return &ports.ActivationMutation{
					Status:          to,
					DevicePublicKey: devicePublicKey,
					LastUsedAt:      now,
					FailedAttempts:  rec.FailedAttempts,
				}, nil
			}
		}
		// Crypto failure on this activation: tombstone it and report the generic expired
		// error rather than propagating CRYPTO_FAILURE, so a probing attacker cannot
		// distinguish "bad key material" from "expired" (spec §7 "avoid oracles").
		cryptoFailed = true
		to, _ := domain.NextStatus(rec.Status, "remove")
		return &ports.ActivationMutation{Status: to, Tombstone: true, LastUsedAt: now}, nil
	})
	if err != nil {
		return PrepareActivationResult{}, err
	}
	if cryptoFailed {
		s.appendHistoryAndCallback(ctx, rec, "")
		return PrepareActivationResult{}, domain.ErrExpired
	}
	if expired {
		s.appendHistoryAndCallback(ctx, rec, "")
		return PrepareActivationResult{}, domain.ErrExpired
	}
	if otpRejected {
		s.appendHistoryAndCallback(ctx, rec, "")
		return PrepareActivationResult{}, fmt.Errorf("%w: activation OTP mismatch at key exchange", domain.ErrSignatureInvalid)
	}

	s.appendHistoryAndCallback(ctx, rec, "")
	s.logger.InfoContext(ctx, "activation key exchange completed",
		"operation", "key_exchange",
		"outcome", "success",
		"activation_id", rec.ActivationID,
	)
	return result, nil
}

// PrepareActivation performs the device's key exchange against an activation that was
// already provisioned by InitActivation (spec §4.1 step 2, §4.5 CREATED->PENDING_COMMIT).
func (s *Service) PrepareActivation(ctx context.Context, req PrepareActivationRequest) (PrepareActivationResult, error) {
	rec, err := s.activations.GetByCode(ctx, req.ActivationCode)
	if err != nil {
		return PrepareActivationResult{}, err
	}
	return s.keyExchange(ctx, rec.ActivationID, req.ApplicationKey, req.ApplicationSecret, req.DeviceEnvelope, req.OTP)
}

// CreateActivation provisions and key-exchanges an activation in a single call, the
// convenience path that skips the out-of-band activation-code handoff (spec §2 component 6).
func (s *Service) CreateActivation(ctx context.Context, req CreateActivationRequest) (PrepareActivationResult, error) {
	init, err := s.InitActivation(ctx, InitActivationRequest{
		ApplicationID: req.ApplicationID,
		UserID:        req.UserID,
		MaxFailures:   req.MaxFailures,
		OTP:           req.OTP,
		OTPValidation: req.OTPValidation,
		Version:       req.Version,
	})
	if err != nil {
		return PrepareActivationResult{}, err
	}
	return s.keyExchange(ctx, init.ActivationID, req.ApplicationKey, req.ApplicationSecret, req.DeviceEnvelope, req.OTP)
}

// CommitActivation finalizes PENDING_COMMIT into ACTIVE, enforcing the ON_COMMIT OTP check
// when configured (spec §4.5, §4.7). Committing an already-ACTIVE record is treated as an
// idempotent no-op rather than an error.
func (s *Service) CommitActivation(ctx context.Context, req CommitActivationRequest) (*domain.Record, error) {
	var otpRejected bool
	var blocked bool
	var expired bool

	rec, err := s.activations.Mutate(ctx, req.ActivationID, func(rec *domain.Record) (*ports.ActivationMutation, error) {
		if rec.Status == domain.StatusActive {
			return nil, nil
		}
		now := time.Now().UTC()
		if now.After(rec.TimestampExpire) {
			to, _ := domain.NextStatus(rec.Status, "expire")
			expired = true
			return &ports.ActivationMutation{Status: to, Tombstone: true, LastUsedAt: now}, nil
		}
		if rec.Status != domain.StatusPendingCommit {
			return nil, fmt.Errorf("%w: activation not in PENDING_COMMIT", domain.ErrInvalidState)
		}

		if rec.OTPValidation == domain.OTPValidationOnCommit && !otpEqual(req.OTP, rec.ActivationOTP) {
			otpRejected = true
			failed := rec.FailedAttempts + 1
			if failed >= rec.MaxFailedAttempts {
				blocked = true
				to, _ := domain.NextStatus(rec.Status, "otpFailBlock")
				return &ports.ActivationMutation{
					Status:         to,
					FailedAttempts: failed,
					BlockedReason:  "activation OTP attempts exhausted during commit",
					LastUsedAt:     now,
				}, nil
			}
			return &ports.ActivationMutation{Status: rec.Status, FailedAttempts: failed, LastUsedAt: now}, nil
		}

		to, err := domain.NextStatus(rec.Status, "commit")
		if err != nil {
			return nil, err
		}
		return &ports.ActivationMutation{
			Status:         to,
			FailedAttempts: 0,
			LastUsedAt:     now,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		s.appendHistoryAndCallback(ctx, rec, req.ExternalUserID)
		return rec, domain.ErrExpired
	}
	if otpRejected {
		s.appendHistoryAndCallback(ctx, rec, req.ExternalUserID)
		if blocked {
			return rec, fmt.Errorf("%w: activation OTP attempts exhausted, activation blocked", domain.ErrSignatureInvalid)
		}
		return rec, fmt.Errorf("%w: activation OTP mismatch at commit", domain.ErrSignatureInvalid)
	}

	s.appendHistoryAndCallback(ctx, rec, req.ExternalUserID)
	s.logger.InfoContext(ctx, "activation committed",
		"operation", "commit_activation",
		"outcome", "success",
		"activation_id", rec.ActivationID,
		"status", string(rec.Status),
	)
	return rec, nil
}

// GetActivationStatus returns the current record, lazily sweeping it to REMOVED first if
// its expiry has passed while it never left CREATED/PENDING_COMMIT (spec §4.5 row 3).
func (s *Service) GetActivationStatus(ctx context.Context, activationID string) (*domain.Record, error) {
	rec, err := s.activations.GetByID(ctx, activationID)
	if err != nil {
		return nil, err
	}
	if rec.IsNonTerminal() && (rec.Status == domain.StatusCreated || rec.Status == domain.StatusPendingCommit) && time.Now().UTC().After(rec.TimestampExpire) {
		return s.expireOne(ctx, activationID)
	}
	return rec, nil
}

func (s *Service) expireOne(ctx context.Context, activationID string) (*domain.Record, error) {
	rec, err := s.activations.Mutate(ctx, activationID, func(rec *domain.Record) (*ports.ActivationMutation, error) {
		if rec.Status != domain.StatusCreated && rec.Status != domain.StatusPendingCommit {
			return nil, nil
		}
		if !time.Now().UTC().After(rec.TimestampExpire) {
			return nil, nil
		}
		to, err := domain.NextStatus(rec.Status, "expire")
		if err != nil {
			return nil, err
		}
		return &ports.ActivationMutation{Status: to, Tombstone: true, LastUsedAt: time.Now().UTC()}, nil
	})
	if err != nil {
		return nil, err
	}
	if rec.Status == domain.StatusRemoved {
		s.appendHistoryAndCallback(ctx, rec, "")
	}
	return rec, nil
}

// RemoveActivation tombstones the activation from any non-terminal state (spec §4.5 last row).
func (s *Service) RemoveActivation(ctx context.Context, req RemoveActivationRequest) (*domain.Record, error) {
	rec, err := s.activations.Mutate(ctx, req.ActivationID, func(rec *domain.Record) (*ports.ActivationMutation, error) {
		if rec.Status == domain.StatusRemoved {
			return nil, nil
		}
		to, err := domain.NextStatus(rec.Status, "remove")
		if err != nil {
			return nil, err
		}
		return &ports.ActivationMutation{Status: to, Tombstone: true, LastUsedAt: time.Now().UTC()}, nil
	})
	if err != nil {
		return nil, err
	}
	s.appendHistoryAndCallback(ctx, rec, "")
	s.logger.InfoContext(ctx, "activation removed",
		"operation", "remove_activation",
		"outcome", "success",
		"activation_id", rec.ActivationID,
	)
	return rec, nil
}

// BlockActivation suspends an ACTIVE activation, recording the reason (spec §4.5).
func (s *Service) BlockActivation(ctx context.Context, req BlockActivationRequest) (*domain.Record, error) {
	rec, err := s.activations.Mutate(ctx, req.ActivationID, func(rec *domain.Record) (*ports.ActivationMutation, error) {
		if rec.Status == domain.StatusBlocked {
			return nil, nil
		}
		to, err := domain.NextStatus(rec.Status, "block")
		if err != nil {
			return nil, err
		}
		return &ports.ActivationMutation{
			Status:        to,
			BlockedReason: req.Reason,
			LastUsedAt:    time.Now().UTC(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.appendHistoryAndCallback(ctx, rec, "")
	return rec, nil
}

// UnblockActivation restores a BLOCKED activation to ACTIVE and resets failedAttempts
// (spec §4.5).
func (s *Service) UnblockActivation(ctx context.Context, req UnblockActivationRequest) (*domain.Record, error) {
	rec, err := s.activations.Mutate(ctx, req.ActivationID, func(rec *domain.Record) (*ports.ActivationMutation, error) {
		if rec.Status == domain.StatusActive {
			return nil, nil
		}
		to, err := domain.NextStatus(rec.Status, "unblock")
		if err != nil {
			return nil, err
		}
		return &ports.ActivationMutation{
			Status:         to,
			FailedAttempts: 0,
			BlockedReason:  "",
			LastUsedAt:     time.Now().UTC(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.appendHistoryAndCallback(ctx, rec, "")
	return rec, nil
}

// UpdateActivationOTP rotates the pre-commit OTP. Only legal while CREATED or
// PENDING_COMMIT and only under ON_COMMIT validation (spec §4.7).
func (s *Service) UpdateActivationOTP(ctx context.Context, req UpdateActivationOTPRequest) (*domain.Record, error) {
	rec, err := s.activations.Mutate(ctx, req.ActivationID, func(rec *domain.Record) (*ports.ActivationMutation, error) {
		if rec.Status != domain.StatusCreated && rec.Status != domain.StatusPendingCommit {
			return nil, fmt.Errorf("%w: OTP rotation only allowed pre-commit", domain.ErrInvalidState)
		}
		if rec.OTPValidation != domain.OTPValidationOnCommit {
			return nil, fmt.Errorf("%w: OTP rotation requires ON_COMMIT validation", domain.ErrInvalidState)
		}
		return &ports.ActivationMutation{
			Status:        rec.Status,
			ActivationOTP: req.OTP,
			OTPValidation: rec.OTPValidation,
			LastUsedAt:    time.Now().UTC(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
