package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/viralforge/powerauth-server/internal/adapters/crypto"
	"github.com/viralforge/powerauth-server/internal/domain"
	"github.com/viralforge/powerauth-server/internal/ports"
)

func dataFingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// signatureLookahead returns the configured distance window, defaulting to 20 (spec §4.2).
func (s *Service) signatureLookahead() int {
	if s.cfg.SignatureValidationLookahead > 0 {
		return s.cfg.SignatureValidationLookahead
	}
	return 20
}

// decryptServerPrivateKey reverses InitActivation's at-rest protection, a no-op when
// KeyEncryption is NO_ENCRYPTION (spec §3.1).
func (s *Service) decryptServerPrivateKey(rec *domain.Record) ([]byte, error) {
	if rec.KeyEncryption != domain.ServerKeyEncryptionAESHMAC {
		return rec.ServerPrivateKey, nil
	}
	if s.serverKeyCipher == nil {
		return nil, fmt.Errorf("%w: serverKeyEncryption AES_HMAC without a configured cipher", domain.ErrConfig)
	}
	return s.serverKeyCipher.Decrypt(rec.UserID, rec.ActivationID, rec.ServerPrivateKey)
}

func (s *Service) factorKeysFor(rec *domain.Record, version domain.Version) (ports.FactorKeys, error) {
	serverPrivateKey, err := s.decryptServerPrivateKey(rec)
	if err != nil {
		return ports.FactorKeys{}, err
	}
	sharedSecret, err := crypto.ECDH(serverPrivateKey, rec.DevicePublicKey)
	if err != nil {
		return ports.FactorKeys{}, err
	}
	activationCrypto, err := s.cryptoFor(version)
	if err != nil {
		return ports.FactorKeys{}, err
	}
	return activationCrypto.DeriveFactorKeys(sharedSecret), nil
}

// matchWithinLookahead recomputes the expected signature at the stored counter and the
// next lookahead values, returning the 0-based offset of the first match (spec §4.2
// "distance window tolerates client retries and dropped responses").
func (s *Service) matchWithinLookahead(rec *domain.Record, version domain.Version, keys ports.FactorKeys, applicationSecret []byte, req SignatureVerifyRequest) (offset int, nextCounter uint64, nextCtrData [16]byte, matched bool, err error) {
	window := s.signatureLookahead()
	counter := rec.Counter
	ctrData := rec.CtrData
	for i := 0; i <= window; i++ {
		expected, cerr := s.signatureEngine.ComputeExpected(req.Data, applicationSecret, counter, ctrData, version, keys, req.SignatureType)
		if cerr != nil {
			return 0, 0, [16]byte{}, false, cerr
		}
		if otpEqual(expected, req.Signature) {
			return i, counter + 1, s.signatureEngine.AdvanceCtrData(ctrData), true, nil
		}
		counter++
		ctrData = s.signatureEngine.AdvanceCtrData(ctrData)
	}
	return 0, rec.Counter + 1, s.signatureEngine.AdvanceCtrData(rec.CtrData), false, nil
}

// VerifySignature checks one PowerAuth MAC signature against the activation's counter (and
// the lookahead window beyond it), advancing the counter exactly once on every attempt and
// auto-blocking on exhausted failures (spec §4.2).
func (s *Service) VerifySignature(ctx context.Context, req SignatureVerifyRequest) (SignatureVerifyResult, error) {
	version, err := s.resolveApplicationVersion(ctx, req.ApplicationKey)
	if err != nil {
		return SignatureVerifyResult{}, err
	}

	var matched bool
	var blocked bool
	var remaining uint32
	var resultCounter uint64
	var transitioned bool

	rec, err := s.activations.Mutate(ctx, req.ActivationID, func(rec *domain.Record) (*ports.ActivationMutation, error) {
		if rec.ApplicationID != version.ApplicationID {
			return nil, fmt.Errorf("%w: activation does not belong to this application", domain.ErrInvalidInput)
		}
		if rec.Status != domain.StatusActive {
			return nil, fmt.Errorf("%w: activation not ACTIVE", domain.ErrInvalidState)
		}

		effectiveVersion := rec.Version
		if req.ForcedSignatureVersion != 0 {
			effectiveVersion = domain.Version(req.ForcedSignatureVersion)
		}
		keys, ferr := s.factorKeysFor(rec, effectiveVersion)
		if ferr != nil {
			return nil, ferr
		}

		_, nextCounter, nextCtrData, ok, merr := s.matchWithinLookahead(rec, effectiveVersion, keys, version.ApplicationSecret, req)
		if merr != nil {
			return nil, merr
		}

		now := time.Now().UTC()
		if ok {
			matched = true
			resultCounter = nextCounter
			remaining = rec.MaxFailedAttempts
			return &ports.ActivationMutation{
				Status:         domain.StatusActive,
				Counter:        nextCounter,
				CtrData:        nextCtrData,
				FailedAttempts: 0,
				LastUsedAt:     now,
			}, nil
		}

		failedAttempts := rec.FailedAttempts + 1
		resultCounter = nextCounter
		status := domain.StatusActive
		if failedAttempts >= rec.MaxFailedAttempts {
			status, _ = domain.NextStatus(domain.StatusActive, "block")
			blocked = true
			transitioned = true
		}
		remaining = 0
		if rec.MaxFailedAttempts > failedAttempts {
			remaining = rec.MaxFailedAttempts - failedAttempts
		}
		mutation := &ports.ActivationMutation{
			Status:         status,
			Counter:        nextCounter,
			CtrData:        nextCtrData,
			FailedAttempts: failedAttempts,
			LastUsedAt:     now,
		}
		if blocked {
			mutation.BlockedReason = "signature verification failed attempts exhausted"
		}
		return mutation, nil
	})
	if err != nil {
		return SignatureVerifyResult{}, err
	}

	auditResult := domain.SignatureResultFailed
	if matched {
		auditResult = domain.SignatureResultSucceeded
	}
	auditErr := s.signatureAudit.Append(ctx, domain.SignatureAuditEntry{
		ActivationID:    rec.ActivationID,
		ApplicationID:   rec.ApplicationID,
		UserID:          rec.UserID,
		SignatureType:   req.SignatureType,
		DataFingerprint: dataFingerprint(req.Data),
		Result:          auditResult,
		Counter:         resultCounter,
		Timestamp:       time.Now().UTC(),
	})
	if auditErr != nil {
		s.logger.ErrorContext(ctx, "signature audit append failed",
			"operation", "verify_signature",
			"outcome", "failure",
			"activation_id", rec.ActivationID,
			"error", auditErr,
		)
	}
	if transitioned {
		s.appendHistoryAndCallback(ctx, rec, "")
	}

	return SignatureVerifyResult{
		Valid:          matched,
		ActivationID:   rec.ActivationID,
		RemainingTries: remaining,
		Blocked:        blocked,
	}, nil
}

// VerifyECDSA checks an out-of-band ECDSA approval signature against the activation's
// devicePublicKey, independent of the PowerAuth MAC counter (spec §4.3).
func (s *Service) VerifyECDSA(ctx context.Context, req ECDSAVerifyRequest) (bool, error) {
	rec, err := s.activations.GetByID(ctx, req.ActivationID)
	if err != nil {
		return false, err
	}
	if rec.DevicePublicKey == nil {
		return false, fmt.Errorf("%w: activation has no device public key", domain.ErrInvalidState)
	}
	return s.ecdsaVerifier.Verify(rec.DevicePublicKey, req.Data, req.SignatureDER)
}
