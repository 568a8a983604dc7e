package crypto

import (
	"crypto/rand"
	"fmt"

	domerr"github.com/viralforge/powerauth-server/internal/domain"
	"github.com/viralforge/powerauth-server/internal/ports"
)

const (
	kdfIndexMasterSecret        = 0
	kdfIndexSignaturePossession = 1
	kdfIndexSignatureKnowledge  = 2
	kdfIndexSignatureBiometry   = 3
	kdfIndexTransport           = 1000
	kdfIndexEncryptedVault      = 2000
)

// v3SharedInfo binds the ECIES envelope to this protocol family so a v2 envelope can never
// be replayed against a v3 decryptor.
var v3SharedInfo = []byte("powerauth/v3/activation")

// V3 implements ports.ActivationCrypto for the current protocol generation: an ECIES-like
// envelope (keyed by the application master keypair) protects the device public key during
// key exchange, and KDF_INTERNAL derives the factor key family from the per-activation
// ECDH shared secret (spec §4.1).
type V3 struct{}

func NewV3() *V3 { return &V3{} }

func (v *V3) Version() domerr.Version { return domerr.VersionV3 }

// DecryptDeviceEnvelope implements ports.ActivationCrypto.
func (v *V3) DecryptDeviceEnvelope(masterPrivateKey, envelopeBytes, applicationSecret []byte) ([]byte, []byte, error) {
	env, err := ParseEnvelope(envelopeBytes)
	if err != nil {
		return nil, nil, err
	}
	plaintext, secret, err := EciesDecrypt(masterPrivateKey, env, append(v3SharedInfo, applicationSecret...))
	if err != nil {
		return nil, nil, err
	}
	return plaintext, secret, nil
}

// EncryptServerResponse implements ports.ActivationCrypto: AES-128-CBC under a key derived
// from the envelope's shared secret, with a fresh random IV prepended to the ciphertext.
func (v *V3) EncryptServerResponse(responseKey, serverPublicKey []byte) ([]byte, error) {
	key := KDFX9_63(responseKey, v3SharedInfo, 16)
	iv := make([]byte, 16)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("%w: read iv: %v", domerr.ErrCryptoFailure, err)
	}
	ciphertext, err := AESCBCEncrypt(key, iv, serverPublicKey)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, iv...), ciphertext...), nil
}

// DeriveFactorKeys implements ports.ActivationCrypto: derives KEY_MASTER_SECRET from the
// ECDH shared secret, then the full factor/transport/vault family from it (spec §4.1).
func (v *V3) DeriveFactorKeys(sharedSecret []byte) ports.FactorKeys {
	master := KDFInternal(sharedSecret, kdfIndexMasterSecret)
	return ports.FactorKeys{
		Possession: KDFInternal(master, kdfIndexSignaturePossession),
		Knowledge:  KDFInternal(master, kdfIndexSignatureKnowledge),
		Biometry:   KDFInternal(master, kdfIndexSignatureBiometry),
		Transport:  KDFInternal(master, kdfIndexTransport),
		Vault:      KDFInternal(master, kdfIndexEncryptedVault),
	}
}

var _ ports.ActivationCrypto = (*V3)(nil)
