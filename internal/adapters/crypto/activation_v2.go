package crypto

import (
	"crypto/rand"
	"fmt"

	domerr "github.com/viralforge/powerauth-server/internal/domain"
	"github.com/viralforge/powerauth-server/internal/ports"
)

// V2 implements ports.ActivationCrypto for the legacy protocol generation kept alive so
// devices can upgrade gradually (spec §4.1, design note "version duality": do not unify
// formats). The device key is AES-128-CBC encrypted under a key derived from an ephemeral
// ECDH exchange with the application master key, and an application HMAC signature
// authenticates the envelope (spec: "HMAC-SHA-256(applicationSecret,
// activationIdShort‖activationNonce‖C_devicePublicKey‖applicationKey)").
//
// Wire layout of the envelope this adapter consumes: activationIdShortLen(1) ||
// activationIdShort || nonce(16) || ephemeralPublicKey(65) || iv(16) ||
// ciphertext(devicePublicKey, AES-CBC) || appSignature(32). The caller passes
// applicationKey||applicationSecret concatenated as the "applicationSecret" argument,
// since V2's authentication formula needs both.
type V2 struct{}

func NewV2() *V2 { return &V2{} }

func (v *V2) Version() domerr.Version { return domerr.VersionV2 }

const (
	v2NonceSize     = 16
	v2PubKeySize    = 65
	v2IVSize        = 16
	v2SignatureSize = 32
)

// DecryptDeviceEnvelope implements ports.ActivationCrypto for v2.
func (v *V2) DecryptDeviceEnvelope(masterPrivateKey, envelope, appKeyAndSecret []byte) ([]byte, []byte, error) {
	activationIdShort, nonce, ephemeralPub, iv, ciphertext, appSig, err := v2ParseEnvelope(envelope)
	if err != nil {
		return nil, nil, err
	}
	applicationKey, applicationSecret, err := splitAppKeyAndSecret(appKeyAndSecret)
	if err != nil {
		return nil, nil, err
	}

	expectedSig := HMACSHA256(applicationSecret, v2SignatureBase(activationIdShort, nonce, ciphertext, applicationKey))
	if !constantTimeEqual(expectedSig, appSig) {
		return nil, nil, fmt.Errorf("%w: v2 application signature mismatch", domerr.ErrCryptoFailure)
	}

	secret, err := ECDH(masterPrivateKey, ephemeralPub)
	if err != nil {
		return nil, nil, err
	}
	aesKey := KDFX9_63(secret, nonce, 16)
	devicePublicKey, err := AESCBCDecrypt(aesKey, iv, ciphertext)
	if err != nil {
		return nil, nil, err
	}
	return devicePublicKey, secret, nil
}

// EncryptServerResponse implements ports.ActivationCrypto for v2, reusing the same
// AES-CBC-under-derived-key scheme as the request envelope.
func (v *V2) EncryptServerResponse(responseKey, serverPublicKey []byte) ([]byte, error) {
	key := KDFX9_63(responseKey, []byte("powerauth/v2/response"), 16)
	iv := make([]byte, 16)
	return AESCBCEncrypt(key, iv, serverPublicKey)
}

// DeriveFactorKeys implements ports.ActivationCrypto for v2. v2 uses the same
// KDF_INTERNAL-over-master-secret chain as v3; the two generations differ in how the
// shared secret is established, not in how factor keys are derived from it.
func (v *V2) DeriveFactorKeys(sharedSecret []byte) ports.FactorKeys {
	master := KDFInternal(sharedSecret, kdfIndexMasterSecret)
	return ports.FactorKeys{
		Possession: KDFInternal(master, kdfIndexSignaturePossession),
		Knowledge:  KDFInternal(master, kdfIndexSignatureKnowledge),
		Biometry:   KDFInternal(master, kdfIndexSignatureBiometry),
		Transport:  KDFInternal(master, kdfIndexTransport),
		Vault:      KDFInternal(master, kdfIndexEncryptedVault),
	}
}

// FallbackSignature reproduces the legacy quirk noted in spec §9 open question (b): when
// ECDSA signing fails for a v2 offline-signature request, the source returns 71 random
// bytes rather than propagating the error. Preserved rather than "fixed" per the design
// note; it is unclear whether any client actually inspects this value.
func FallbackSignature() ([]byte, error) {
	buf := make([]byte, 71)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("%w: generate fallback signature: %v", domerr.ErrCryptoFailure, err)
	}
	return buf, nil
}

func v2SignatureBase(activationIdShort, nonce, ciphertext, applicationKey []byte) []byte {
	out := make([]byte, 0, len(activationIdShort)+len(nonce)+len(ciphertext)+len(applicationKey))
	out = append(out, activationIdShort...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	out = append(out, applicationKey...)
	return out
}

func v2ParseEnvelope(envelope []byte) (activationIdShort, nonce, ephemeralPub, iv, ciphertext, appSig []byte, err error) {
	if len(envelope) < 1 {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("%w: empty v2 envelope", domerr.ErrInvalidInput)
	}
	idLen := int(envelope[0])
	off := 1
	need := off + idLen + v2NonceSize + v2PubKeySize + v2IVSize + v2SignatureSize
	if len(envelope) < need {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("%w: v2 envelope too short", domerr.ErrInvalidInput)
	}
	activationIdShort = envelope[off : off+idLen]
	off += idLen
	nonce = envelope[off : off+v2NonceSize]
	off += v2NonceSize
	ephemeralPub = envelope[off : off+v2PubKeySize]
	off += v2PubKeySize
	iv = envelope[off : off+v2IVSize]
	off += v2IVSize
	ciphertext = envelope[off : len(envelope)-v2SignatureSize]
	appSig = envelope[len(envelope)-v2SignatureSize:]
	return activationIdShort, nonce, ephemeralPub, iv, ciphertext, appSig, nil
}

func splitAppKeyAndSecret(b []byte) (applicationKey, applicationSecret []byte, err error) {
	if len(b) < 32 {
		return nil, nil, fmt.Errorf("%w: malformed applicationKey||applicationSecret", domerr.ErrInvalidInput)
	}
	return b[:16], b[16:32], nil
}

var _ ports.ActivationCrypto = (*V2)(nil)
