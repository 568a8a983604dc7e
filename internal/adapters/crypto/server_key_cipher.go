package crypto

import (
	"crypto/rand"
	"fmt"

	domerr "github.com/viralforge/powerauth-server/internal/domain"
	"github.com/viralforge/powerauth-server/internal/ports"
)

// ServerKeyCipher implements ports.ServerKeyCipher for KeyEncryption == AES_HMAC
// (spec §3.1, §6 masterDbEncryptionKey). Keys are derived per-record from a server-wide
// secret and (userId, activationId), so compromising one record's derived key does not
// expose another's.
type ServerKeyCipher struct {
	masterKey []byte
}

func NewServerKeyCipher(masterKey []byte) *ServerKeyCipher {
	return &ServerKeyCipher{masterKey: masterKey}
}

func (c *ServerKeyCipher) deriveKey(userID, activationID string) []byte {
	info := []byte(userID + "|" + activationID)
	return KDFX9_63(c.masterKey, info, 16)
}

// Encrypt implements ports.ServerKeyCipher: random IV prepended to the AES-CBC ciphertext,
// with an HMAC-SHA-256 tag over both for integrity.
func (c *ServerKeyCipher) Encrypt(userID, activationID string, plaintext []byte) ([]byte, error) {
	key := c.deriveKey(userID, activationID)
	iv := make([]byte, 16)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("%w: read iv: %v", domerr.ErrCryptoFailure, err)
	}
	ciphertext, err := AESCBCEncrypt(key, iv, plaintext)
	if err != nil {
		return nil, err
	}
	body := append(append([]byte{}, iv...), ciphertext...)
	mac := HMACSHA256(key, body)
	return append(body, mac...), nil
}

// Decrypt implements ports.ServerKeyCipher.
func (c *ServerKeyCipher) Decrypt(userID, activationID string, blob []byte) ([]byte, error) {
	const ivSize, macSize = 16, 32
	if len(blob) < ivSize+macSize {
		return nil, fmt.Errorf("%w: encrypted server key too short", domerr.ErrCryptoFailure)
	}
	key := c.deriveKey(userID, activationID)
	body, mac := blob[:len(blob)-macSize], blob[len(blob)-macSize:]
	if !constantTimeEqual(HMACSHA256(key, body), mac) {
		return nil, fmt.Errorf("%w: server key MAC mismatch", domerr.ErrCryptoFailure)
	}
	iv, ciphertext := body[:ivSize], body[ivSize:]
	return AESCBCDecrypt(key, iv, ciphertext)
}

var _ ports.ServerKeyCipher = (*ServerKeyCipher)(nil)
