package application

import (
	"errors"
	"testing"
	"time"

	"github.com/viralforge/powerauth-server/internal/domain"
)

func TestHappyPathV3ActivationLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := bg()

	initRes, err := f.svc.InitActivation(ctx, InitActivationRequest{
		ApplicationID: f.applicationID,
		UserID:        "user-1",
		Version:       3,
	})
	if err != nil {
		t.Fatalf("init activation: %v", err)
	}
	if initRes.ActivationID == "" || initRes.ActivationCode == "" {
		t.Fatalf("expected non-empty activation id/code, got %+v", initRes)
	}

	devicePub, devicePriv, envelope := deviceKeyExchangeV3(t, f.masterPublicKey, f.applicationSecret)

	prepRes, err := f.svc.PrepareActivation(ctx, PrepareActivationRequest{
		ActivationCode:    initRes.ActivationCode,
		ApplicationKey:    f.applicationKey,
		ApplicationSecret: f.applicationSecret,
		DeviceEnvelope:    envelope,
		Version:           3,
	})
	if err != nil {
		t.Fatalf("prepare activation: %v", err)
	}
	if prepRes.ActivationID != initRes.ActivationID {
		t.Fatalf("activation id mismatch: %q vs %q", prepRes.ActivationID, initRes.ActivationID)
	}
	if len(prepRes.ServerEnvelope) == 0 {
		t.Fatalf("expected non-empty server envelope")
	}

	rec, err := f.svc.GetActivationStatus(ctx, initRes.ActivationID)
	if err != nil {
		t.Fatalf("get activation status: %v", err)
	}
	if rec.Status != domain.StatusPendingCommit {
		t.Fatalf("expected PENDING_COMMIT after key exchange, got %s", rec.Status)
	}
	if string(rec.DevicePublicKey) != string(devicePub) {
		t.Fatalf("device public key not persisted correctly")
	}

	committed, err := f.svc.CommitActivation(ctx, CommitActivationRequest{ActivationID: initRes.ActivationID})
	if err != nil {
		t.Fatalf("commit activation: %v", err)
	}
	if committed.Status != domain.StatusActive {
		t.Fatalf("expected ACTIVE after commit, got %s", committed.Status)
	}

	// Committing again is an idempotent no-op (spec §4.5).
	committedAgain, err := f.svc.CommitActivation(ctx, CommitActivationRequest{ActivationID: initRes.ActivationID})
	if err != nil {
		t.Fatalf("idempotent re-commit: %v", err)
	}
	if committedAgain.Status != domain.StatusActive {
		t.Fatalf("expected re-commit to stay ACTIVE, got %s", committedAgain.Status)
	}

	keys := deviceFactorKeys(t, devicePriv, committed.ServerPublicKey)
	sig := signAt(t, []byte("POST&/pa/signature/validate"), f.applicationSecret, 0, [16]byte{}, domain.VersionV3, keys, "POSSESSION")

	sigResult, err := f.svc.VerifySignature(ctx, SignatureVerifyRequest{
		ActivationID:   initRes.ActivationID,
		ApplicationKey: f.applicationKey,
		Data:           []byte("POST&/pa/signature/validate"),
		Signature:      sig,
		SignatureType:  "POSSESSION",
	})
	if err != nil {
		t.Fatalf("verify signature: %v", err)
	}
	if !sigResult.Valid {
		t.Fatalf("expected valid signature on first use")
	}
	if sigResult.Blocked {
		t.Fatalf("did not expect lockout on a valid signature")
	}
}

func TestActivationExpirationIsLazilySwept(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := bg()

	initRes, err := f.svc.InitActivation(ctx, InitActivationRequest{
		ApplicationID: f.applicationID,
		UserID:        "user-1",
	})
	if err != nil {
		t.Fatalf("init activation: %v", err)
	}

	f.activations.setExpiry(initRes.ActivationID, time.Now().UTC().Add(-time.Minute))

	rec, err := f.svc.GetActivationStatus(ctx, initRes.ActivationID)
	if err != nil {
		t.Fatalf("get activation status: %v", err)
	}
	if rec.Status != domain.StatusRemoved {
		t.Fatalf("expected lazily-expired activation to be REMOVED, got %s", rec.Status)
	}
	if rec.ServerPrivateKey != nil || rec.ActivationOTP != "" {
		t.Fatalf("expected key material tombstoned on expiry")
	}

	// A key exchange attempt against an expired, never-prepared activation collapses to
	// ErrExpired rather than a state error (spec §7 "avoid oracles").
	initRes2, err := f.svc.InitActivation(ctx, InitActivationRequest{
		ApplicationID: f.applicationID,
		UserID:        "user-2",
	})
	if err != nil {
		t.Fatalf("init second activation: %v", err)
	}
	f.activations.setExpiry(initRes2.ActivationID, time.Now().UTC().Add(-time.Minute))

	_, _, envelope := deviceKeyExchangeV3(t, f.masterPublicKey, f.applicationSecret)
	_, err = f.svc.keyExchange(ctx, initRes2.ActivationID, f.applicationKey, f.applicationSecret, envelope, "")
	if !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestOTPRequiredAtCommitSuccessAndLockout(t *testing.T) {
	t.Parallel()

	t.Run("correct OTP commits", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := bg()

		initRes, err := f.svc.InitActivation(ctx, InitActivationRequest{
			ApplicationID: f.applicationID,
			UserID:        "user-1",
			OTP:           "777777",
			OTPValidation: string(domain.OTPValidationOnCommit),
		})
		if err != nil {
			t.Fatalf("init activation: %v", err)
		}
		_, _, envelope := deviceKeyExchangeV3(t, f.masterPublicKey, f.applicationSecret)
		if _, err := f.svc.PrepareActivation(ctx, PrepareActivationRequest{
			ActivationCode:    initRes.ActivationCode,
			ApplicationKey:    f.applicationKey,
			ApplicationSecret: f.applicationSecret,
			DeviceEnvelope:    envelope,
		}); err != nil {
			t.Fatalf("prepare activation: %v", err)
		}

		rec, err := f.svc.CommitActivation(ctx, CommitActivationRequest{ActivationID: initRes.ActivationID, OTP: "777777"})
		if err != nil {
			t.Fatalf("commit with correct OTP: %v", err)
		}
		if rec.Status != domain.StatusActive {
			t.Fatalf("expected ACTIVE, got %s", rec.Status)
		}
	})

	t.Run("exhausted OTP attempts block the activation", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := bg()

		initRes, err := f.svc.InitActivation(ctx, InitActivationRequest{
			ApplicationID: f.applicationID,
			UserID:        "user-1",
			OTP:           "777777",
			OTPValidation: string(domain.OTPValidationOnCommit),
			MaxFailures:   2,
		})
		if err != nil {
			t.Fatalf("init activation: %v", err)
		}
		_, _, envelope := deviceKeyExchangeV3(t, f.masterPublicKey, f.applicationSecret)
		if _, err := f.svc.PrepareActivation(ctx, PrepareActivationRequest{
			ActivationCode:    initRes.ActivationCode,
			ApplicationKey:    f.applicationKey,
			ApplicationSecret: f.applicationSecret,
			DeviceEnvelope:    envelope,
		}); err != nil {
			t.Fatalf("prepare activation: %v", err)
		}

		_, err = f.svc.CommitActivation(ctx, CommitActivationRequest{ActivationID: initRes.ActivationID, OTP: "000000"})
		if !errors.Is(err, domain.ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid on first wrong OTP, got %v", err)
		}
		rec, err := f.svc.GetActivationStatus(ctx, initRes.ActivationID)
		if err != nil {
			t.Fatalf("get status: %v", err)
		}
		if rec.Status != domain.StatusPendingCommit {
			t.Fatalf("expected still PENDING_COMMIT after one failure, got %s", rec.Status)
		}

		_, err = f.svc.CommitActivation(ctx, CommitActivationRequest{ActivationID: initRes.ActivationID, OTP: "000000"})
		if !errors.Is(err, domain.ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid on second wrong OTP, got %v", err)
		}
		rec, err = f.svc.GetActivationStatus(ctx, initRes.ActivationID)
		if err != nil {
			t.Fatalf("get status: %v", err)
		}
		if rec.Status != domain.StatusBlocked {
			t.Fatalf("expected BLOCKED after exhausting OTP attempts, got %s", rec.Status)
		}

		_, err = f.svc.CommitActivation(ctx, CommitActivationRequest{ActivationID: initRes.ActivationID, OTP: "777777"})
		if !errors.Is(err, domain.ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState committing a BLOCKED activation, got %v", err)
		}
	})
}

func TestOTPOnKeyExchangeMismatchRemovesActivation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := bg()

	initRes, err := f.svc.InitActivation(ctx, InitActivationRequest{
		ApplicationID: f.applicationID,
		UserID:        "user-1",
		OTP:           "777777",
		OTPValidation: string(domain.OTPValidationOnKeyExchange),
	})
	if err != nil {
		t.Fatalf("init activation: %v", err)
	}
	_, _, envelope := deviceKeyExchangeV3(t, f.masterPublicKey, f.applicationSecret)

	_, err = f.svc.PrepareActivation(ctx, PrepareActivationRequest{
		ActivationCode:    initRes.ActivationCode,
		ApplicationKey:    f.applicationKey,
		ApplicationSecret: f.applicationSecret,
		DeviceEnvelope:    envelope,
		OTP:               "000000",
	})
	if !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid on wrong key-exchange OTP, got %v", err)
	}

	rec, err := f.svc.GetActivationStatus(ctx, initRes.ActivationID)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if rec.Status != domain.StatusRemoved {
		t.Fatalf("expected REMOVED after a wrong key-exchange OTP, got %s", rec.Status)
	}
	if rec.ServerPrivateKey != nil || rec.DevicePublicKey != nil || rec.ActivationOTP != "" {
		t.Fatalf("expected key material tombstoned after a wrong key-exchange OTP")
	}

	// Retrying the key exchange against the now-REMOVED activation must not allow another
	// guess: it is no longer in CREATED, so it fails closed rather than re-checking the OTP.
	_, _, envelope2 := deviceKeyExchangeV3(t, f.masterPublicKey, f.applicationSecret)
	_, err = f.svc.PrepareActivation(ctx, PrepareActivationRequest{
		ActivationCode:    initRes.ActivationCode,
		ApplicationKey:    f.applicationKey,
		ApplicationSecret: f.applicationSecret,
		DeviceEnvelope:    envelope2,
		OTP:               "777777",
	})
	if err == nil {
		t.Fatalf("expected retrying key exchange against a removed activation to fail")
	}
}

func TestRemoveBlockUnblockActivation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := bg()

	initRes, err := f.svc.InitActivation(ctx, InitActivationRequest{ApplicationID: f.applicationID, UserID: "user-1"})
	if err != nil {
		t.Fatalf("init activation: %v", err)
	}
	_, _, envelope := deviceKeyExchangeV3(t, f.masterPublicKey, f.applicationSecret)
	if _, err := f.svc.PrepareActivation(ctx, PrepareActivationRequest{
		ActivationCode:    initRes.ActivationCode,
		ApplicationKey:    f.applicationKey,
		ApplicationSecret: f.applicationSecret,
		DeviceEnvelope:    envelope,
	}); err != nil {
		t.Fatalf("prepare activation: %v", err)
	}
	if _, err := f.svc.CommitActivation(ctx, CommitActivationRequest{ActivationID: initRes.ActivationID}); err != nil {
		t.Fatalf("commit activation: %v", err)
	}

	blocked, err := f.svc.BlockActivation(ctx, BlockActivationRequest{ActivationID: initRes.ActivationID, Reason: "suspicious activity"})
	if err != nil {
		t.Fatalf("block activation: %v", err)
	}
	if blocked.Status != domain.StatusBlocked || blocked.BlockedReason != "suspicious activity" {
		t.Fatalf("unexpected blocked record: %+v", blocked)
	}

	unblocked, err := f.svc.UnblockActivation(ctx, UnblockActivationRequest{ActivationID: initRes.ActivationID})
	if err != nil {
		t.Fatalf("unblock activation: %v", err)
	}
	if unblocked.Status != domain.StatusActive || unblocked.FailedAttempts != 0 {
		t.Fatalf("unexpected unblocked record: %+v", unblocked)
	}

	removed, err := f.svc.RemoveActivation(ctx, RemoveActivationRequest{ActivationID: initRes.ActivationID})
	if err != nil {
		t.Fatalf("remove activation: %v", err)
	}
	if removed.Status != domain.StatusRemoved {
		t.Fatalf("expected REMOVED, got %s", removed.Status)
	}
	if removed.ServerPrivateKey != nil || removed.DevicePublicKey != nil || removed.ActivationOTP != "" {
		t.Fatalf("expected key material tombstoned after removal")
	}
}
