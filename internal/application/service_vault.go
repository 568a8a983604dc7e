package application

import (
	"context"
	"errors"

	"github.com/viralforge/powerauth-server/internal/adapters/crypto"
	"github.com/viralforge/powerauth-server/internal/domain"
)

// zeroIV is the fixed 16-byte zero initialization vector spec §4.4 mandates for the vault
// unlock response; the client derives the same KEY_TRANSPORT/KEY_ENCRYPTED_VAULT pair from
// its side of the shared secret, so a reused IV here does not weaken confidentiality the way
// it would for arbitrary AES-CBC traffic.
var zeroIV = make([]byte, 16)

// UnlockVault verifies the inbound PowerAuth signature, then returns the vault-unlock key
// wrapped under KEY_TRANSPORT (spec §4.4). An invalid signature still advances the counter
// and is reported through SignatureValid=false rather than an error, matching the endpoint
// contract clients rely on to re-synchronise.
func (s *Service) UnlockVault(ctx context.Context, req VaultUnlockRequest) (VaultUnlockResult, error) {
	sigResult, err := s.VerifySignature(ctx, SignatureVerifyRequest{
		ActivationID:   req.ActivationID,
		ApplicationKey: req.ApplicationKey,
		Data:           req.Data,
		Signature:      req.Signature,
		SignatureType:  req.SignatureType,
	})
	if errors.Is(err, domain.ErrNotFound) {
		return unknownActivationVaultUnlockResult(), nil
	}
	if err != nil {
		return VaultUnlockResult{}, err
	}

	rec, err := s.activations.GetByID(ctx, req.ActivationID)
	if errors.Is(err, domain.ErrNotFound) {
		return unknownActivationVaultUnlockResult(), nil
	}
	if err != nil {
		return VaultUnlockResult{}, err
	}

	if !sigResult.Valid {
		return VaultUnlockResult{
			SignatureValid:    false,
			RemainingAttempts: sigResult.RemainingTries,
			Counter:           rec.Counter,
			UserID:            rec.UserID,
			ActivationStatus:  rec.Status,
		}, nil
	}

	keys, err := s.factorKeysFor(rec, rec.Version)
	if err != nil {
		return VaultUnlockResult{}, err
	}
	encryptedVaultKey, err := crypto.AESCBCEncrypt(keys.Transport, zeroIV, keys.Vault)
	if err != nil {
		return VaultUnlockResult{}, err
	}

	return VaultUnlockResult{
		SignatureValid:              true,
		EncryptedVaultEncryptionKey: encryptedVaultKey,
		RemainingAttempts:           sigResult.RemainingTries,
		Counter:                     rec.Counter,
		UserID:                      rec.UserID,
		ActivationStatus:            rec.Status,
	}, nil
}

// unknownActivationVaultUnlockResult is the information-leak-avoidance response for an
// activation id that does not exist, matching the source's "UNKNOWN" userId and REMOVED
// status rather than propagating ErrNotFound as a 404 (spec §9 Open Question a).
func unknownActivationVaultUnlockResult() VaultUnlockResult {
	return VaultUnlockResult{
		SignatureValid:    false,
		RemainingAttempts: 0,
		UserID:            "UNKNOWN",
		ActivationStatus:  domain.StatusRemoved,
	}
}
