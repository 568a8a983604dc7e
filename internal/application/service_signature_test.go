package application

import (
	"errors"
	"testing"

	"github.com/viralforge/powerauth-server/internal/adapters/crypto"
	"github.com/viralforge/powerauth-server/internal/domain"
)

// activateFixture drives a fixture through init->prepare->commit for one user, returning
// the device's permanent ECDH private key and the activation id, so signature tests can
// start straight from an ACTIVE record.
func activateFixture(t *testing.T, f *fixture) (activationID string, devicePriv []byte) {
	t.Helper()
	ctx := bg()

	initRes, err := f.svc.InitActivation(ctx, InitActivationRequest{ApplicationID: f.applicationID, UserID: "user-1"})
	if err != nil {
		t.Fatalf("init activation: %v", err)
	}
	_, priv, envelope := deviceKeyExchangeV3(t, f.masterPublicKey, f.applicationSecret)
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
	return initRes.ActivationID, priv
}

func TestSignatureLookaheadWindowMatches(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := bg()
	activationID, devicePriv := activateFixture(t, f)

	rec, err := f.svc.GetActivationStatus(ctx, activationID)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	keys := deviceFactorKeys(t, devicePriv, rec.ServerPublicKey)
	data := []byte("GET&/pa/activation/status")

	// The device signs 3 positions ahead of the server's stored counter, e.g. because three
	// prior requests never reached the server (spec §4.2 "tolerates client retries").
	aheadCtrData := advanceCtrData(3, rec.CtrData)
	sig := signAt(t, data, f.applicationSecret, rec.Counter+3, aheadCtrData, domain.VersionV3, keys, "POSSESSION")

	result, err := f.svc.VerifySignature(ctx, SignatureVerifyRequest{
		ActivationID:   activationID,
		ApplicationKey: f.applicationKey,
		Data:           data,
		Signature:      sig,
		SignatureType:  "POSSESSION",
	})
	if err != nil {
		t.Fatalf("verify signature: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected lookahead match within the default window")
	}

	updated, err := f.svc.GetActivationStatus(ctx, activationID)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if updated.Counter != rec.Counter+4 {
		t.Fatalf("expected counter to advance to the matched position + 1, got %d want %d", updated.Counter, rec.Counter+4)
	}
}

func TestSignatureBeyondLookaheadWindowFails(t *testing.T) {
	t.Parallel()
	f := newFixtureWithConfig(t, func() Config {
		cfg := defaultTestConfig()
		cfg.SignatureValidationLookahead = 3
		return cfg
	}())
	ctx := bg()
	activationID, devicePriv := activateFixture(t, f)

	rec, err := f.svc.GetActivationStatus(ctx, activationID)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	keys := deviceFactorKeys(t, devicePriv, rec.ServerPublicKey)
	data := []byte("GET&/pa/activation/status")

	tooFarCtrData := advanceCtrData(10, rec.CtrData)
	sig := signAt(t, data, f.applicationSecret, rec.Counter+10, tooFarCtrData, domain.VersionV3, keys, "POSSESSION")

	result, err := f.svc.VerifySignature(ctx, SignatureVerifyRequest{
		ActivationID:   activationID,
		ApplicationKey: f.applicationKey,
		Data:           data,
		Signature:      sig,
		SignatureType:  "POSSESSION",
	})
	if err != nil {
		t.Fatalf("verify signature: %v", err)
	}
	if result.Valid {
		t.Fatalf("expected a position beyond the lookahead window to fail")
	}
}

func TestSignatureLockoutAfterMaxFailedAttempts(t *testing.T) {
	t.Parallel()
	f := newFixtureWithConfig(t, func() Config {
		cfg := defaultTestConfig()
		cfg.SignatureMaxFailedAttempts = 3
		return cfg
	}())
	ctx := bg()
	activationID, _ := activateFixture(t, f)

	var lastResult SignatureVerifyResult
	for i := 0; i < 3; i++ {
		result, err := f.svc.VerifySignature(ctx, SignatureVerifyRequest{
			ActivationID:   activationID,
			ApplicationKey: f.applicationKey,
			Data:           []byte("data"),
			Signature:      "00000000",
			SignatureType:  "POSSESSION",
		})
		if err != nil {
			t.Fatalf("verify signature attempt %d: %v", i, err)
		}
		if result.Valid {
			t.Fatalf("expected garbage signature to fail, attempt %d", i)
		}
		lastResult = result
	}
	if !lastResult.Blocked {
		t.Fatalf("expected activation to be blocked after exhausting failed attempts")
	}

	rec, err := f.svc.GetActivationStatus(ctx, activationID)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if rec.Status != domain.StatusBlocked {
		t.Fatalf("expected BLOCKED status, got %s", rec.Status)
	}

	_, err = f.svc.VerifySignature(ctx, SignatureVerifyRequest{
		ActivationID:   activationID,
		ApplicationKey: f.applicationKey,
		Data:           []byte("data"),
		Signature:      "00000000",
		SignatureType:  "POSSESSION",
	})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState verifying against a BLOCKED activation, got %v", err)
	}
}

func TestVerifyECDSAApprovalSignature(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := bg()
	activationID, devicePriv := activateFixture(t, f)

	data := []byte("approve payment of 100.00 EUR to IBAN CZ00")
	sig, err := crypto.ECDSASignP256(devicePriv, data)
	if err != nil {
		t.Fatalf("ecdsa sign: %v", err)
	}

	ok, err := f.svc.VerifyECDSA(ctx, ECDSAVerifyRequest{ActivationID: activationID, Data: data, SignatureDER: sig})
	if err != nil {
		t.Fatalf("verify ecdsa: %v", err)
	}
	if !ok {
		t.Fatalf("expected valid ecdsa approval signature")
	}

	tamperedOK, err := f.svc.VerifyECDSA(ctx, ECDSAVerifyRequest{ActivationID: activationID, Data: []byte("approve payment of 999.00 EUR"), SignatureDER: sig})
	if err != nil {
		t.Fatalf("verify tampered ecdsa: %v", err)
	}
	if tamperedOK {
		t.Fatalf("expected tampered data to fail ecdsa verification")
	}
}
