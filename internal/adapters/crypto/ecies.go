package crypto

import (
	"crypto/rand"
	"fmt"

	domerr "github.com/viralforge/powerauth-server/internal/domain"
)

const (
	eciesIVSize  = 16
	eciesMACSize = 32
	eciesKeySize = 16 // AES-128 key: first 16 of the 48 X9.63 output bytes, the other 32 are the MAC key
)

// Envelope is the ECIES-like container used to protect a device or server public key
// payload during activation key exchange (spec §4.1). Layout: ephemeralPublicKey (65) ||
// iv (16) || mac (32) || ciphertext (remainder).
type Envelope struct {
	EphemeralPublicKey []byte
	IV                 []byte
	MAC                []byte
	Ciphertext         []byte
}

// Marshal serializes the envelope to its wire layout.
func (e *Envelope) Marshal() []byte {
	out := make([]byte, 0, len(e.EphemeralPublicKey)+eciesIVSize+eciesMACSize+len(e.Ciphertext))
	out = append(out, e.EphemeralPublicKey...)
	out = append(out, e.IV...)
	out = append(out, e.MAC...)
	out = append(out, e.Ciphertext...)
	return out
}

// ParseEnvelope reads the wire layout produced by Marshal.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	const pubKeySize = 65
	min := pubKeySize + eciesIVSize + eciesMACSize
	if len(raw) < min {
		return nil, fmt.Errorf("%w: envelope too short", domerr.ErrInvalidInput)
	}
	return &Envelope{
		EphemeralPublicKey: raw[:pubKeySize],
		IV:                 raw[pubKeySize : pubKeySize+eciesIVSize],
		MAC:                raw[pubKeySize+eciesIVSize : min],
		Ciphertext:         raw[min:],
	}, nil
}

// EciesEncrypt encrypts plaintext to recipientPublicKey using an ephemeral ECDH keypair,
// KDF_X9.63(SHA-256) to derive an AES key and a MAC key, AES-128-CBC for confidentiality,
// and HMAC-SHA-256 over the ciphertext for integrity. Returns the envelope and the derived
// shared secret so the caller can symmetrically protect a correlated response.
func EciesEncrypt(recipientPublicKey, sharedInfo, plaintext []byte) (*Envelope, []byte, error) {
	ephPub, ephPriv, err := GenerateP256KeyPair()
	if err != nil {
		return nil, nil, err
	}
	secret, err := ECDH(ephPriv, recipientPublicKey)
	if err != nil {
		return nil, nil, err
	}
	derived := KDFX9_63(secret, sharedInfo, eciesKeySize+32)
	encKey, macKey := derived[:eciesKeySize], derived[eciesKeySize:]

	iv := make([]byte, eciesIVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("%w: read iv: %v", domerr.ErrCryptoFailure, err)
	}
	ciphertext, err := AESCBCEncrypt(encKey, iv, plaintext)
	if err != nil {
		return nil, nil, err
	}
	mac := HMACSHA256(macKey, ciphertext)

	return &Envelope{EphemeralPublicKey: ephPub, IV: iv, MAC: mac, Ciphertext: ciphertext}, secret, nil
}

// EciesDecrypt reverses EciesEncrypt using the recipient's private key.
func EciesDecrypt(recipientPrivateKey []byte, env *Envelope, sharedInfo []byte) ([]byte, []byte, error) {
	secret, err := ECDH(recipientPrivateKey, env.EphemeralPublicKey)
	if err != nil {
		return nil, nil, err
	}
	derived := KDFX9_63(secret, sharedInfo, eciesKeySize+32)
	encKey, macKey := derived[:eciesKeySize], derived[eciesKeySize:]

	expectedMAC := HMACSHA256(macKey, env.Ciphertext)
	if !constantTimeEqual(expectedMAC, env.MAC) {
		return nil, nil, fmt.Errorf("%w: envelope MAC mismatch", domerr.ErrCryptoFailure)
	}
	plaintext, err := AESCBCDecrypt(encKey, env.IV, env.Ciphertext)
	if err != nil {
		return nil, nil, err
	}
	return plaintext, secret, nil
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
