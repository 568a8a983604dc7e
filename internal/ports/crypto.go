package ports

import "github.com/viralforge/powerauth-server/internal/domain"

// FactorKeys holds the subset of {possession, knowledge, biometry} keys derived for one
// activation's master secret, as produced by KDF_INTERNAL (spec §4.1).
type FactorKeys struct {
	Possession []byte
	Knowledge  []byte
	Biometry   []byte
	Transport  []byte
	Vault      []byte
}

// ActivationCrypto is the version-specific (v2 or v3) key-agreement and envelope family
// selected by a record's frozen Version (spec §4.1, design note "version duality").
type ActivationCrypto interface {
	Version() domain.Version
	// DecryptDeviceEnvelope unwraps the device's key-exchange payload, keyed by the
	// application master keypair's private key, into the raw device public key point. It
	// also returns a responseKey derived from the envelope's shared secret, to be used by
	// EncryptServerResponse for the correlated reply.
	DecryptDeviceEnvelope(masterPrivateKey, envelope, applicationSecret []byte) (devicePublicKey []byte, responseKey []byte, err error)
	// EncryptServerResponse symmetrically protects the server public key for transport back
	// to the device using the responseKey produced by DecryptDeviceEnvelope.
	EncryptServerResponse(responseKey, serverPublicKey []byte) ([]byte, error)
	// DeriveFactorKeys derives the full factor/transport/vault key family from the
	// per-activation ECDH shared secret between the server and device keypairs.
	DeriveFactorKeys(sharedSecret []byte) FactorKeys
}

// SignatureEngine computes and verifies the PowerAuth MAC signature (spec §4.2).
type SignatureEngine interface {
	// ComputeExpected returns the expected signature string for one counter/ctrData value
	// under the given factor combination.
	ComputeExpected(data []byte, applicationSecret []byte, counter uint64, ctrData [16]byte, version domain.Version, keys FactorKeys, signatureType string) (string, error)
	// AdvanceCtrData returns the next v3 hash-chain counter value.
	AdvanceCtrData(ctrData [16]byte) [16]byte
}

// ECDSAVerifier verifies out-of-band operation approvals (spec §4.3).
type ECDSAVerifier interface {
	Verify(devicePublicKey []byte, data []byte, signatureDER []byte) (bool, error)
}

// ServerKeyCipher encrypts/decrypts serverPrivateKey at rest when KeyEncryption ==
// AES_HMAC (spec §3.1, §6 masterDbEncryptionKey).
type ServerKeyCipher interface {
	Encrypt(userID, activationID string, plaintext []byte) ([]byte, error)
	Decrypt(userID, activationID string, ciphertext []byte) ([]byte, error)
}
